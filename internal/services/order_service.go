package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dispatchly/backend/internal/metrics"
	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/realtime"
	repo "github.com/dispatchly/backend/internal/repository"
)

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID string
	Role   models.Role
}

// Events receives lifecycle events after the change has committed. Both
// methods must return promptly and never fail the caller.
type Events interface {
	Notify(ctx context.Context, n Notice)
	Publish(ctx context.Context, room, event string, payload any)
}

type CreateOrderInput struct {
	PickupLatitude     float64
	PickupLongitude    float64
	PickupAddress      string
	DeliveryLatitude   float64
	DeliveryLongitude  float64
	DeliveryAddress    string
	RecipientName      string
	RecipientPhone     string
	PackageDescription string
	PackageWeight      *float64
	PackageSize        models.PackageSize
	DeliveryNotes      string
}

type OrderService struct {
	store  repo.Store
	wallet *WalletService
	cfg    ConfigReader
	events Events
	log    *slog.Logger
	now    func() time.Time
}

func NewOrderService(store repo.Store, wallet *WalletService, cfg ConfigReader, events Events, log *slog.Logger) *OrderService {
	return &OrderService{
		store:  store,
		wallet: wallet,
		cfg:    cfg,
		events: events,
		log:    log.With("svc", "orders"),
		now:    time.Now,
	}
}

// ----------------- Pricing -----------------

func (s *OrderService) priceParams(ctx context.Context, size models.PackageSize) PriceParams {
	p := PriceParams{
		BasePrice:  s.cfg.GetNumber(ctx, KeyOrderBasePrice, DefaultBasePrice),
		PricePerKm: s.cfg.GetNumber(ctx, KeyOrderPricePerKm, DefaultPricePerKm),
	}
	switch size {
	case models.PackageSmall:
		p.Multiplier = s.cfg.GetNumber(ctx, KeySmallMultiplier, 1)
	case models.PackageLarge:
		p.Multiplier = s.cfg.GetNumber(ctx, KeyLargeMultiplier, 2)
	default:
		p.Multiplier = s.cfg.GetNumber(ctx, KeyMediumMultiplier, 1.5)
	}
	return p
}

// EstimatePrice prices a trip without creating an order.
func (s *OrderService) EstimatePrice(ctx context.Context, in CreateOrderInput) (decimal.Decimal, float64) {
	d := Haversine(in.PickupLatitude, in.PickupLongitude, in.DeliveryLatitude, in.DeliveryLongitude)
	return Price(d, s.priceParams(ctx, in.PackageSize)), d
}

func validCoord(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ----------------- Create / read -----------------

func (s *OrderService) Create(ctx context.Context, customerID string, in CreateOrderInput) (models.Order, error) {
	if in.PackageSize == "" {
		in.PackageSize = models.PackageMedium
	}
	if !in.PackageSize.Valid() {
		return models.Order{}, fmt.Errorf("%w: unknown package size %q", ErrInvalidInput, in.PackageSize)
	}
	if !validCoord(in.PickupLatitude, in.PickupLongitude) || !validCoord(in.DeliveryLatitude, in.DeliveryLongitude) {
		return models.Order{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	price, _ := s.EstimatePrice(ctx, in)

	o, err := s.store.Repos().Orders.Create(ctx, models.Order{
		CustomerID:         customerID,
		Status:             models.OrderPending,
		PickupLatitude:     in.PickupLatitude,
		PickupLongitude:    in.PickupLongitude,
		PickupAddress:      strings.TrimSpace(in.PickupAddress),
		DeliveryLatitude:   in.DeliveryLatitude,
		DeliveryLongitude:  in.DeliveryLongitude,
		DeliveryAddress:    strings.TrimSpace(in.DeliveryAddress),
		RecipientName:      strings.TrimSpace(in.RecipientName),
		RecipientPhone:     strings.TrimSpace(in.RecipientPhone),
		PackageDescription: in.PackageDescription,
		PackageWeight:      in.PackageWeight,
		PackageSize:        in.PackageSize,
		DeliveryNotes:      in.DeliveryNotes,
		EstimatedPrice:     price,
	})
	if err != nil {
		return models.Order{}, err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(models.OrderPending)).Inc()
	s.log.InfoContext(ctx, "order created", "order_id", o.ID, "customer_id", customerID, "price", price.String())

	s.events.Notify(ctx, Notice{
		UserID:  customerID,
		Type:    models.NotifyOrderCreated,
		Title:   "Order Created",
		Message: fmt.Sprintf("Your order #%s has been created successfully.", o.ID),
		Data:    map[string]any{"orderId": o.ID},
		Email:   true,
		Event:   "order_created",
		Payload: map[string]any{"order": o},
	})
	s.events.Publish(ctx, realtime.DriversRoom, "new_order_available", map[string]any{"order": o})
	return o, nil
}

func (s *OrderService) getOrder(ctx context.Context, r repo.Repos, id string, lock bool) (models.Order, error) {
	var (
		o   models.Order
		err error
	)
	if lock {
		o, err = r.Orders.LockByID(ctx, id)
	} else {
		o, err = r.Orders.GetByID(ctx, id)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return models.Order{}, ErrOrderNotFound
	}
	return o, err
}

// Get returns an order the actor may see: its own orders, pending orders for
// drivers, anything for admins.
func (s *OrderService) Get(ctx context.Context, orderID string, actor Actor) (models.Order, error) {
	o, err := s.getOrder(ctx, s.store.Repos(), orderID, false)
	if err != nil {
		return models.Order{}, err
	}
	switch {
	case actor.Role == models.RoleAdmin, o.IsParty(actor.UserID):
	case actor.Role == models.RoleDriver && o.Status == models.OrderPending:
	default:
		return models.Order{}, ErrForbidden
	}
	return o, nil
}

// List pages the actor's orders, newest first. Customers see orders they
// placed, drivers orders assigned to them, admins everything.
func (s *OrderService) List(ctx context.Context, actor Actor, page, limit int, status models.OrderStatus) ([]models.Order, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if page < 1 {
		page = 1
	}
	f := models.OrderFilter{Status: status, Limit: limit, Offset: (page - 1) * limit}
	switch actor.Role {
	case models.RoleCustomer:
		f.CustomerID = actor.UserID
	case models.RoleDriver:
		f.DriverID = actor.UserID
	}
	return s.store.Repos().Orders.List(ctx, f)
}

// FindAvailable returns pending orders whose pickup lies within the
// configured radius of (lat, lng), nearest first.
func (s *OrderService) FindAvailable(ctx context.Context, lat, lng float64) ([]models.Order, error) {
	if !validCoord(lat, lng) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	radius := s.cfg.GetNumber(ctx, KeyOrderDeliveryRadiusKm, DefaultDeliveryRadiusKm)
	pending, err := s.store.Repos().Orders.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(pending))
	for _, o := range pending {
		d := Haversine(lat, lng, o.PickupLatitude, o.PickupLongitude)
		if d > radius {
			continue
		}
		d = math.Round(d*100) / 100
		o.Distance = &d
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Distance < *out[j].Distance })
	return out, nil
}

// ----------------- Lifecycle -----------------

func (s *OrderService) depositEnabled(ctx context.Context) bool {
	return s.cfg.GetBoolean(ctx, KeySecurityDepositEnabled, false)
}

// Accept assigns a pending order to driverID. The order row lock makes
// racing drivers serialise; the loser sees a non-pending status.
func (s *OrderService) Accept(ctx context.Context, orderID, driverID string) (models.Order, error) {
	var (
		out     models.Order
		deposit bool
	)
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		o, err := s.getOrder(ctx, r, orderID, true)
		if err != nil {
			return err
		}
		if o.Status != models.OrderPending {
			return ErrOrderNotAvailable
		}
		ok, err := s.wallet.canDriverTakeOrder(ctx, r, driverID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: minimum balance of %s required", ErrInsufficientDriverBalance, s.wallet.minBalance(ctx))
		}
		if s.depositEnabled(ctx) {
			if deposit, err = s.wallet.deductSecurityDepositTx(ctx, r, driverID, o.ID); err != nil {
				return err
			}
		}

		if err := driverAssignedTx(ctx, r, driverID); err != nil {
			return err
		}

		now := s.now()
		o.DriverID = &driverID
		o.Status = models.OrderAccepted
		o.AcceptedAt = &now
		out, err = r.Orders.Update(ctx, o)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(models.OrderAccepted)).Inc()
	if deposit {
		metrics.LedgerEntriesTotal.WithLabelValues(KindSecurityDeposit).Inc()
	}
	s.log.InfoContext(ctx, "order accepted", "order_id", out.ID, "driver_id", driverID, "deposit", deposit)

	s.events.Notify(ctx, Notice{
		UserID:  out.CustomerID,
		Type:    models.NotifyOrderAccepted,
		Title:   "Driver Assigned",
		Message: fmt.Sprintf("A driver has accepted your order #%s.", out.ID),
		Data:    map[string]any{"orderId": out.ID, "driverId": driverID},
		Email:   true,
		SMS:     true,
		Event:   "order_accepted",
		Payload: map[string]any{"order": out},
	})
	s.events.Publish(ctx, realtime.OrderRoom(out.ID), "order_accepted", map[string]any{"orderId": out.ID, "driverId": driverID})
	return out, nil
}

func authorize(o models.Order, actor Actor) error {
	switch actor.Role {
	case models.RoleCustomer:
		if o.CustomerID != actor.UserID {
			return ErrForbidden
		}
	case models.RoleDriver:
		if o.DriverID == nil || *o.DriverID != actor.UserID {
			return ErrForbidden
		}
	case models.RoleAdmin:
	default:
		return ErrForbidden
	}
	return nil
}

func transitionErr(from, to models.OrderStatus) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatusTransition, from, to)
}

// UpdateStatus moves an order along the lifecycle. Delivering an order with a
// driver credits the driver's wallet in the same transaction; if that
// payment fails the order is not marked delivered.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, actor Actor) (models.Order, error) {
	if !next.Valid() {
		return models.Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	var (
		out        models.Order
		payment    *models.Transaction
		paymentErr error
		refunded   bool
	)
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		o, err := s.getOrder(ctx, r, orderID, true)
		if err != nil {
			return err
		}
		if err := authorize(o, actor); err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(next) {
			return transitionErr(o.Status, next)
		}

		now := s.now()
		o.Status = next
		switch next {
		case models.OrderPickedUp:
			if o.PickedUpAt == nil {
				o.PickedUpAt = &now
			}
		case models.OrderDelivered:
			if o.DeliveredAt == nil {
				o.DeliveredAt = &now
			}
			if o.FinalPrice == nil {
				fp := o.EstimatedPrice
				o.FinalPrice = &fp
			}
			if o.DriverID != nil {
				t, err := s.wallet.processOrderPaymentTx(ctx, r, *o.DriverID, o.ID, *o.FinalPrice, models.PaymentCash)
				if err != nil {
					paymentErr = err
					return fmt.Errorf("order payment: %w", err)
				}
				payment = &t
			}
		}
		if next.Terminal() && o.DriverID != nil {
			if refunded, err = s.wallet.refundSecurityDepositTx(ctx, r, *o.DriverID, o.ID); err != nil {
				return err
			}
			earnings := decimal.Zero
			if payment != nil {
				earnings = payment.Amount
			}
			if err := driverReleasedTx(ctx, r, *o.DriverID, next == models.OrderDelivered, earnings); err != nil {
				return err
			}
		}
		out, err = r.Orders.Update(ctx, o)
		return err
	})
	if err != nil {
		if paymentErr != nil {
			s.paymentFailed(ctx, orderID, actor, paymentErr)
		}
		return models.Order{}, err
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(next)).Inc()
	if payment != nil {
		metrics.LedgerEntriesTotal.WithLabelValues("order_payment").Inc()
	}
	if refunded {
		metrics.LedgerEntriesTotal.WithLabelValues(KindSecurityDepositRefund).Inc()
	}
	s.log.InfoContext(ctx, "order status updated", "order_id", out.ID, "status", next, "actor_id", actor.UserID)
	s.emitStatus(ctx, out, payment)
	return out, nil
}

func (s *OrderService) paymentFailed(ctx context.Context, orderID string, actor Actor, cause error) {
	s.log.ErrorContext(ctx, "delivery payment failed", "order_id", orderID, "err", cause)
	if actor.Role != models.RoleDriver {
		return
	}
	s.events.Notify(ctx, Notice{
		UserID:  actor.UserID,
		Type:    models.NotifyPaymentFailed,
		Title:   "Payment Failed",
		Message: fmt.Sprintf("Payment for order #%s failed. Please try again.", orderID),
		Data:    map[string]any{"orderId": orderID},
		Event:   "payment_failed",
		Payload: map[string]any{"orderId": orderID, "error": cause.Error()},
	})
}

var statusNotices = map[models.OrderStatus]struct {
	typ     models.NotificationType
	title   string
	message string
	email   bool
	sms     bool
}{
	models.OrderPickedUp:  {models.NotifyOrderPickedUp, "Package Picked Up", "Your package has been picked up and is on the way.", false, false},
	models.OrderInTransit: {models.NotifyOrderInTransit, "Package In Transit", "Your package for order #%s is in transit.", false, false},
	models.OrderDelivered: {models.NotifyOrderDelivered, "Order Delivered", "Your order #%s has been delivered successfully!", true, true},
	models.OrderCancelled: {models.NotifyOrderCancelled, "Order Cancelled", "Order #%s has been cancelled.", false, false},
}

func (s *OrderService) emitStatus(ctx context.Context, o models.Order, payment *models.Transaction) {
	s.events.Publish(ctx, realtime.OrderRoom(o.ID), "order_status_updated", map[string]any{
		"orderId": o.ID,
		"status":  o.Status,
		"order":   o,
	})
	if n, ok := statusNotices[o.Status]; ok {
		msg := n.message
		if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, o.ID)
		}
		s.events.Notify(ctx, Notice{
			UserID:  o.CustomerID,
			Type:    n.typ,
			Title:   n.title,
			Message: msg,
			Data:    map[string]any{"orderId": o.ID},
			Email:   n.email,
			SMS:     n.sms,
			Event:   "order_" + string(o.Status),
			Payload: map[string]any{"order": o},
		})
	}
	if payment != nil && o.DriverID != nil {
		s.events.Notify(ctx, Notice{
			UserID:  *o.DriverID,
			Type:    models.NotifyPaymentSuccess,
			Title:   "Payment Successful",
			Message: fmt.Sprintf("You earned %s for order #%s.", payment.Amount.StringFixed(2), o.ID),
			Data:    map[string]any{"paymentId": payment.ID, "orderId": o.ID},
			Event:   "payment_success",
			Payload: map[string]any{"payment": payment},
		})
	}
}

// Cancel cancels any non-terminal order. A held security deposit goes back
// to the driver; earlier payments are left as they are.
func (s *OrderService) Cancel(ctx context.Context, orderID string, actor Actor) (models.Order, error) {
	out, refunded, err := s.cancel(ctx, orderID, func(o models.Order) error {
		return authorize(o, actor)
	})
	if err != nil {
		return models.Order{}, err
	}
	s.afterCancel(ctx, out, refunded, actor.UserID)
	return out, nil
}

func (s *OrderService) cancel(ctx context.Context, orderID string, check func(models.Order) error) (models.Order, bool, error) {
	var (
		out      models.Order
		refunded bool
	)
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		o, err := s.getOrder(ctx, r, orderID, true)
		if err != nil {
			return err
		}
		if err := check(o); err != nil {
			return err
		}
		switch o.Status {
		case models.OrderDelivered:
			return ErrCannotCancelDeliveredOrder
		case models.OrderCancelled:
			return transitionErr(o.Status, models.OrderCancelled)
		}
		o.Status = models.OrderCancelled
		if o.DriverID != nil {
			if refunded, err = s.wallet.refundSecurityDepositTx(ctx, r, *o.DriverID, o.ID); err != nil {
				return err
			}
			if err := driverReleasedTx(ctx, r, *o.DriverID, false, decimal.Zero); err != nil {
				return err
			}
		}
		out, err = r.Orders.Update(ctx, o)
		return err
	})
	return out, refunded, err
}

func (s *OrderService) afterCancel(ctx context.Context, o models.Order, refunded bool, actorID string) {
	metrics.OrderTransitionsTotal.WithLabelValues(string(models.OrderCancelled)).Inc()
	if refunded {
		metrics.LedgerEntriesTotal.WithLabelValues(KindSecurityDepositRefund).Inc()
	}
	s.log.InfoContext(ctx, "order cancelled", "order_id", o.ID, "actor_id", actorID)

	s.events.Publish(ctx, realtime.OrderRoom(o.ID), "order_cancelled", map[string]any{"orderId": o.ID, "order": o})
	notice := Notice{
		Type:    models.NotifyOrderCancelled,
		Title:   "Order Cancelled",
		Message: fmt.Sprintf("Order #%s has been cancelled.", o.ID),
		Data:    map[string]any{"orderId": o.ID},
		Event:   "order_cancelled",
		Payload: map[string]any{"order": o},
	}
	for _, uid := range []string{o.CustomerID, deref(o.DriverID)} {
		if uid == "" || uid == actorID {
			continue
		}
		n := notice
		n.UserID = uid
		s.events.Notify(ctx, n)
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// UpdateDriverLocation records the assigned driver's live position. It does
// not depend on the order's status.
func (s *OrderService) UpdateDriverLocation(ctx context.Context, orderID string, actor Actor, lat, lng float64) (models.Order, error) {
	if !validCoord(lat, lng) {
		return models.Order{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	var out models.Order
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		o, err := s.getOrder(ctx, r, orderID, true)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && (o.DriverID == nil || *o.DriverID != actor.UserID) {
			return ErrForbidden
		}
		if actor.Role == models.RoleDriver {
			if err := driverMovedTx(ctx, r, actor.UserID, lat, lng); err != nil {
				return err
			}
		}
		o.DriverLatitude = &lat
		o.DriverLongitude = &lng
		out, err = r.Orders.Update(ctx, o)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	s.events.Publish(ctx, realtime.OrderRoom(out.ID), "driver_location_updated", map[string]any{
		"orderId":   out.ID,
		"latitude":  lat,
		"longitude": lng,
	})
	return out, nil
}

// CancelStale cancels pending orders older than ORDER_AUTO_CANCEL_MINUTES.
// A value of 0 disables it.
func (s *OrderService) CancelStale(ctx context.Context) (int, error) {
	minutes := s.cfg.GetNumber(ctx, KeyOrderAutoCancelMinutes, DefaultOrderAutoCancelMinutes)
	if minutes <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-time.Duration(minutes * float64(time.Minute)))

	pending, err := s.store.Repos().Orders.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range pending {
		if !o.CreatedAt.Before(cutoff) {
			break
		}
		out, _, err := s.cancel(ctx, o.ID, func(cur models.Order) error {
			if cur.Status != models.OrderPending {
				return ErrOrderNotAvailable
			}
			return nil
		})
		if errors.Is(err, ErrOrderNotAvailable) {
			continue
		}
		if err != nil {
			return n, err
		}
		n++
		metrics.OrdersAutoCancelled.Inc()
		s.afterCancel(ctx, out, false, "")
	}
	if n > 0 {
		s.log.InfoContext(ctx, "stale orders cancelled", "count", n)
	}
	return n, nil
}
