package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/realtime"
)

var (
	customer = Actor{UserID: "c1", Role: models.RoleCustomer}
	driver   = Actor{UserID: "d1", Role: models.RoleDriver}
	admin    = Actor{UserID: "a1", Role: models.RoleAdmin}
)

// Lagos Island to Victoria Island.
var lagosTrip = CreateOrderInput{
	PickupLatitude:     6.5244,
	PickupLongitude:    3.3792,
	PickupAddress:      "Lagos Island",
	DeliveryLatitude:   6.4281,
	DeliveryLongitude:  3.4219,
	DeliveryAddress:    "Victoria Island",
	RecipientName:      "Ada",
	RecipientPhone:     "+2348000000000",
	PackageDescription: "documents",
	PackageSize:        models.PackageMedium,
}

func (f *fixture) seedOrder(status models.OrderStatus, driverID string) models.Order {
	o := models.Order{
		CustomerID:      "c1",
		Status:          status,
		PickupLatitude:  6.5244,
		PickupLongitude: 3.3792,
		PackageSize:     models.PackageMedium,
		EstimatedPrice:  dec("3405"),
	}
	if driverID != "" {
		o.DriverID = &driverID
	}
	return f.store.PutOrder(o)
}

func TestOrder_CreatePricesTrip(t *testing.T) {
	f := newFixture(t)

	o, err := f.orders.Create(context.Background(), "c1", lagosTrip)
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, o.Status)
	assert.Equal(t, "c1", o.CustomerID)
	assert.Nil(t, o.DriverID)
	assert.Equal(t, "3255", o.EstimatedPrice.String())
	assert.Equal(t, []models.NotificationType{models.NotifyOrderCreated}, f.events.noticeTypes())
	assert.Equal(t, "new_order_available", f.events.eventNames())
	assert.Equal(t, realtime.DriversRoom, f.events.published[0].Room)
}

func TestOrder_CreateUsesSizeAndConfig(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := lagosTrip
	in.PackageSize = models.PackageLarge
	f.setConfig(t, KeyOrderBasePrice, "0")
	f.setConfig(t, KeyOrderPricePerKm, "0")
	o, err := f.orders.Create(ctx, "c1", in)
	require.NoError(t, err)
	assert.True(t, o.EstimatedPrice.IsZero())

	in.PackageSize = "huge"
	_, err = f.orders.Create(ctx, "c1", in)
	assert.ErrorIs(t, err, ErrInvalidInput)

	in.PackageSize = ""
	in.PickupLatitude = 91
	_, err = f.orders.Create(ctx, "c1", in)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrder_FindAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	near, err := f.orders.Create(ctx, "c1", lagosTrip)
	require.NoError(t, err)
	far := lagosTrip
	far.PickupLatitude, far.PickupLongitude = 9.0765, 7.3986 // Abuja
	_, err = f.orders.Create(ctx, "c1", far)
	require.NoError(t, err)
	taken := f.seedOrder(models.OrderAccepted, "d9")

	list, err := f.orders.FindAvailable(ctx, 6.5, 3.38)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, near.ID, list[0].ID)
	require.NotNil(t, list[0].Distance)
	assert.InDelta(t, 2.71, *list[0].Distance, 0.01)
	assert.NotEqual(t, taken.ID, list[0].ID)

	f.setConfig(t, KeyOrderDeliveryRadiusKm, "1000")
	list, err = f.orders.FindAvailable(ctx, 6.5, 3.38)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Less(t, *list[0].Distance, *list[1].Distance)

	_, err = f.orders.FindAvailable(ctx, 100, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrder_Accept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(models.OrderPending, "")

	_, err := f.orders.Accept(ctx, o.ID, "d1")
	require.ErrorIs(t, err, ErrInsufficientDriverBalance)
	assert.Contains(t, err.Error(), "5000")
	assert.Equal(t, models.OrderPending, f.store.Order(o.ID).Status)

	f.fund(t, "d1", 5000)
	got, err := f.orders.Accept(ctx, o.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, got.Status)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, "d1", *got.DriverID)
	assert.NotNil(t, got.AcceptedAt)
	// No deposit by default.
	assert.True(t, f.store.Wallet("d1").Balance.Equal(dec("5000")))
	assert.Contains(t, f.events.noticeTypes(), models.NotifyOrderAccepted)
	assert.Contains(t, f.events.eventNames(), "order_accepted")

	f.fund(t, "d2", 5000)
	_, err = f.orders.Accept(ctx, o.ID, "d2")
	assert.ErrorIs(t, err, ErrOrderNotAvailable)

	_, err = f.orders.Accept(ctx, "missing", "d2")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrder_ConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(models.OrderPending, "")
	const drivers = 8
	for i := 0; i < drivers; i++ {
		f.fund(t, fmt.Sprintf("d%d", i), 6000)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.orders.Accept(context.Background(), o.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, ErrOrderNotAvailable):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("d%d", i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, drivers-1, losers)
	assert.Equal(t, winners[0], *f.store.Order(o.ID).DriverID)
}

func TestOrder_TransitionTable(t *testing.T) {
	allowed := map[[2]models.OrderStatus]bool{
		{models.OrderPending, models.OrderAccepted}:    true,
		{models.OrderPending, models.OrderCancelled}:   true,
		{models.OrderAccepted, models.OrderPickedUp}:   true,
		{models.OrderAccepted, models.OrderCancelled}:  true,
		{models.OrderPickedUp, models.OrderInTransit}:  true,
		{models.OrderPickedUp, models.OrderCancelled}:  true,
		{models.OrderInTransit, models.OrderDelivered}: true,
		{models.OrderInTransit, models.OrderCancelled}: true,
	}
	for _, from := range models.OrderStatuses {
		for _, to := range models.OrderStatuses {
			t.Run(fmt.Sprintf("%s->%s", from, to), func(t *testing.T) {
				f := newFixture(t)
				o := f.seedOrder(from, "d1")

				got, err := f.orders.UpdateStatus(context.Background(), o.ID, to, admin)

				if allowed[[2]models.OrderStatus{from, to}] {
					require.NoError(t, err)
					assert.Equal(t, to, got.Status)
					return
				}
				assert.ErrorIs(t, err, ErrInvalidStatusTransition)
				assert.Equal(t, from, f.store.Order(o.ID).Status)
			})
		}
	}
}

func TestOrder_UpdateStatusAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(models.OrderAccepted, "d1")

	_, err := f.orders.UpdateStatus(ctx, o.ID, models.OrderPickedUp, Actor{UserID: "c2", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.UpdateStatus(ctx, o.ID, models.OrderPickedUp, Actor{UserID: "d2", Role: models.RoleDriver})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.UpdateStatus(ctx, o.ID, "teleported", driver)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.orders.UpdateStatus(ctx, "missing", models.OrderPickedUp, driver)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	got, err := f.orders.UpdateStatus(ctx, o.ID, models.OrderPickedUp, driver)
	require.NoError(t, err)
	require.NotNil(t, got.PickedUpAt)

	pending := f.seedOrder(models.OrderPending, "")
	_, err = f.orders.UpdateStatus(ctx, pending.ID, models.OrderAccepted, driver)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestOrder_DeliveryPaysDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(models.OrderInTransit, "d1")

	got, err := f.orders.UpdateStatus(ctx, o.ID, models.OrderDelivered, driver)
	require.NoError(t, err)

	assert.Equal(t, models.OrderDelivered, got.Status)
	require.NotNil(t, got.FinalPrice)
	assert.Equal(t, "3405", got.FinalPrice.String())
	assert.NotNil(t, got.DeliveredAt)

	w := f.store.Wallet("d1")
	assert.True(t, w.Balance.Equal(dec("2724")), w.Balance.String())
	txns := f.store.WalletTxns("d1")
	require.Len(t, txns, 1)
	assert.True(t, txns[0].Commission.Equal(dec("681")))
	assert.Equal(t, o.ID, *txns[0].OrderID)

	assert.Equal(t, "order_status_updated", f.events.eventNames())
	assert.Equal(t, []models.NotificationType{models.NotifyOrderDelivered, models.NotifyPaymentSuccess}, f.events.noticeTypes())
	assert.Equal(t, "d1", f.events.notices[1].UserID)
}

func TestOrder_DeliveryReadsMissingConfigInsideTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cfg.Delete(ctx, "a1", KeyDriverCommissionPct))
	o := f.seedOrder(models.OrderInTransit, "d1")

	done := make(chan error, 1)
	go func() {
		_, err := f.orders.UpdateStatus(ctx, o.ID, models.OrderDelivered, driver)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("delivery did not finish")
	}
	// Falls back to the default 20%.
	assert.True(t, f.store.Wallet("d1").Balance.Equal(dec("2724")))
}

func TestOrder_DeliveryPaymentFailureKeepsOrderInTransit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(models.OrderInTransit, "d1")
	_, err := f.wallet.LockWallet(ctx, "a1", "d1")
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, o.ID, models.OrderDelivered, driver)

	assert.ErrorIs(t, err, ErrWalletLocked)
	stored := f.store.Order(o.ID)
	assert.Equal(t, models.OrderInTransit, stored.Status)
	assert.Nil(t, stored.FinalPrice)
	assert.Nil(t, stored.DeliveredAt)
	assert.Empty(t, f.store.WalletTxns("d1"))
	assert.Equal(t, []models.NotificationType{models.NotifyPaymentFailed}, f.events.noticeTypes())
	assert.Equal(t, "d1", f.events.notices[0].UserID)
}

func TestOrder_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	delivered := f.seedOrder(models.OrderDelivered, "d1")
	_, err := f.orders.Cancel(ctx, delivered.ID, admin)
	assert.ErrorIs(t, err, ErrCannotCancelDeliveredOrder)

	cancelled := f.seedOrder(models.OrderCancelled, "")
	_, err = f.orders.Cancel(ctx, cancelled.ID, customer)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	accepted := f.seedOrder(models.OrderAccepted, "d1")
	_, err = f.orders.Cancel(ctx, accepted.ID, Actor{UserID: "c2", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := f.orders.Cancel(ctx, accepted.ID, customer)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.Status)
	// Only the other party is told.
	require.Len(t, f.events.notices, 1)
	assert.Equal(t, "d1", f.events.notices[0].UserID)
	assert.Equal(t, models.NotifyOrderCancelled, f.events.notices[0].Type)
	assert.Equal(t, "order_cancelled", f.events.eventNames())
}

func TestOrder_CancelAfterPaymentKeepsPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(models.OrderInTransit, "d1")
	_, err := f.wallet.ProcessOrderPayment(ctx, "d1", o.ID, dec("3405"), "")
	require.NoError(t, err)

	_, err = f.orders.Cancel(ctx, o.ID, admin)
	require.NoError(t, err)

	assert.True(t, f.store.Wallet("d1").Balance.Equal(dec("2724")))
	assert.Len(t, f.store.WalletTxns("d1"), 1)
}

func TestOrder_SecurityDepositLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setConfig(t, KeySecurityDepositEnabled, "true")
	f.fund(t, "d1", 6000)

	first := f.seedOrder(models.OrderPending, "")
	_, err := f.orders.Accept(ctx, first.ID, "d1")
	require.NoError(t, err)
	w := f.store.Wallet("d1")
	assert.True(t, w.Balance.Equal(dec("1000")))
	assert.True(t, w.PendingBalance.Equal(dec("5000")))

	_, err = f.orders.Cancel(ctx, first.ID, customer)
	require.NoError(t, err)
	w = f.store.Wallet("d1")
	assert.True(t, w.Balance.Equal(dec("6000")))
	assert.True(t, w.PendingBalance.IsZero())

	second := f.seedOrder(models.OrderPending, "")
	_, err = f.orders.Accept(ctx, second.ID, "d1")
	require.NoError(t, err)
	for _, s := range []models.OrderStatus{models.OrderPickedUp, models.OrderInTransit, models.OrderDelivered} {
		_, err = f.orders.UpdateStatus(ctx, second.ID, s, driver)
		require.NoError(t, err, s)
	}
	w = f.store.Wallet("d1")
	assert.True(t, w.Balance.Equal(dec("8724")), w.Balance.String())
	assert.True(t, w.PendingBalance.IsZero())

	// A second driver without enough for the deposit cannot accept.
	f.fund(t, "d2", 4999)
	third := f.seedOrder(models.OrderPending, "")
	_, err = f.orders.Accept(ctx, third.ID, "d2")
	assert.ErrorIs(t, err, ErrInsufficientDriverBalance)
	assert.True(t, f.store.Wallet("d2").Balance.Equal(dec("4999")))
}

func TestOrder_SecurityDepositZeroMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setConfig(t, KeySecurityDepositEnabled, "true")
	f.setConfig(t, KeyDriverMinBalance, "0")

	first := f.seedOrder(models.OrderPending, "")
	got, err := f.orders.Accept(ctx, first.ID, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderAccepted, got.Status)
	assert.Empty(t, f.store.WalletTxns("d1"))

	_, err = f.orders.Cancel(ctx, first.ID, customer)
	require.NoError(t, err)
	assert.Empty(t, f.store.WalletTxns("d1"))

	second := f.seedOrder(models.OrderPending, "")
	_, err = f.orders.Accept(ctx, second.ID, "d1")
	require.NoError(t, err)
	for _, s := range []models.OrderStatus{models.OrderPickedUp, models.OrderInTransit, models.OrderDelivered} {
		_, err = f.orders.UpdateStatus(ctx, second.ID, s, driver)
		require.NoError(t, err, s)
	}
	txns := f.store.WalletTxns("d1")
	require.Len(t, txns, 1)
	assert.True(t, txns[0].Amount.Equal(dec("2724")))
	assert.True(t, f.store.Wallet("d1").PendingBalance.IsZero())
}

func TestOrder_DriverProfileFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "d1", 5000)

	o := f.seedOrder(models.OrderPending, "")
	_, err := f.orders.Accept(ctx, o.ID, "d1")
	require.NoError(t, err)
	assert.True(t, f.store.Driver("d1").IsOnDelivery)

	for _, s := range []models.OrderStatus{models.OrderPickedUp, models.OrderInTransit, models.OrderDelivered} {
		_, err = f.orders.UpdateStatus(ctx, o.ID, s, driver)
		require.NoError(t, err, s)
	}
	p := f.store.Driver("d1")
	assert.False(t, p.IsOnDelivery)
	assert.Equal(t, 1, p.TotalDeliveries)
	assert.True(t, p.TotalEarnings.Equal(dec("2724")), p.TotalEarnings.String())

	cancelled := f.seedOrder(models.OrderPending, "")
	_, err = f.orders.Accept(ctx, cancelled.ID, "d1")
	require.NoError(t, err)
	require.True(t, f.store.Driver("d1").IsOnDelivery)
	_, err = f.orders.Cancel(ctx, cancelled.ID, customer)
	require.NoError(t, err)
	p = f.store.Driver("d1")
	assert.False(t, p.IsOnDelivery)
	assert.Equal(t, 1, p.TotalDeliveries)
	assert.True(t, p.TotalEarnings.Equal(dec("2724")))
}

func TestOrder_AcceptRollsBackWhenProfileUpdateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "d1", 5000)
	o := f.seedOrder(models.OrderPending, "")

	boom := errors.New("boom")
	f.store.Fail("drivers.update", boom)
	_, err := f.orders.Accept(ctx, o.ID, "d1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, models.OrderPending, f.store.Order(o.ID).Status)
	assert.False(t, f.store.Driver("d1").IsOnDelivery)
}

func TestOrder_UpdateDriverLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.seedOrder(models.OrderPickedUp, "d1")

	got, err := f.orders.UpdateDriverLocation(ctx, o.ID, driver, 6.45, 3.40)
	require.NoError(t, err)
	assert.Equal(t, 6.45, *got.DriverLatitude)
	assert.Equal(t, 3.40, *got.DriverLongitude)
	assert.Equal(t, "driver_location_updated", f.events.eventNames())
	assert.Equal(t, realtime.OrderRoom(o.ID), f.events.published[0].Room)

	assert.Equal(t, 6.45, *f.store.Driver("d1").CurrentLatitude)

	_, err = f.orders.UpdateDriverLocation(ctx, o.ID, Actor{UserID: "d2", Role: models.RoleDriver}, 6.45, 3.40)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.UpdateDriverLocation(ctx, o.ID, customer, 6.45, 3.40)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.UpdateDriverLocation(ctx, o.ID, admin, 6.46, 3.41)
	assert.NoError(t, err)
	// An admin moves the order pin only.
	assert.Equal(t, 6.45, *f.store.Driver("d1").CurrentLatitude)
	_, err = f.orders.UpdateDriverLocation(ctx, o.ID, driver, 0, 181)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOrder_CancelStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.orders.now = func() time.Time { return now }

	put := func(status models.OrderStatus, age time.Duration) models.Order {
		return f.store.PutOrder(models.Order{CustomerID: "c1", Status: status, CreatedAt: now.Add(-age)})
	}
	old := put(models.OrderPending, 45*time.Minute)
	older := put(models.OrderPending, 2*time.Hour)
	fresh := put(models.OrderPending, 10*time.Minute)
	accepted := put(models.OrderAccepted, 3*time.Hour)

	n, err := f.orders.CancelStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, models.OrderCancelled, f.store.Order(old.ID).Status)
	assert.Equal(t, models.OrderCancelled, f.store.Order(older.ID).Status)
	assert.Equal(t, models.OrderPending, f.store.Order(fresh.ID).Status)
	assert.Equal(t, models.OrderAccepted, f.store.Order(accepted.ID).Status)
	assert.Equal(t, []models.NotificationType{models.NotifyOrderCancelled, models.NotifyOrderCancelled}, f.events.noticeTypes())

	f.setConfig(t, KeyOrderAutoCancelMinutes, "0")
	now = now.Add(time.Hour)
	n, err = f.orders.CancelStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.OrderPending, f.store.Order(fresh.ID).Status)
}

func TestOrder_ListAndGetByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.seedOrder(models.OrderAccepted, "d1")
	f.seedOrder(models.OrderPending, "")
	theirs := f.store.PutOrder(models.Order{CustomerID: "c2", Status: models.OrderDelivered})

	list, total, err := f.orders.List(ctx, customer, 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, list, 2)

	list, total, err = f.orders.List(ctx, driver, 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, mine.ID, list[0].ID)

	_, total, err = f.orders.List(ctx, admin, 1, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	list, total, err = f.orders.List(ctx, admin, 1, 10, models.OrderDelivered)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, theirs.ID, list[0].ID)

	list, _, err = f.orders.List(ctx, admin, 2, 2, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, _, err = f.orders.List(ctx, admin, 1, 10, "lost")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.orders.Get(ctx, theirs.ID, customer)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.Get(ctx, mine.ID, Actor{UserID: "d2", Role: models.RoleDriver})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.orders.Get(ctx, mine.ID, driver)
	assert.NoError(t, err)
	_, err = f.orders.Get(ctx, theirs.ID, admin)
	assert.NoError(t, err)
	_, err = f.orders.Get(ctx, "missing", admin)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
