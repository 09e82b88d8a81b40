package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dispatchly/backend/internal/models"
	repo "github.com/dispatchly/backend/internal/repository"
)

// DriverService owns driver profiles. The order lifecycle keeps the
// delivery flags and totals current through the *Tx helpers below, inside
// the order's own transaction.
type DriverService struct {
	store repo.Store
	log   *slog.Logger
}

func NewDriverService(store repo.Store, log *slog.Logger) *DriverService {
	return &DriverService{store: store, log: log.With("svc", "drivers")}
}

type VehicleInput struct {
	VehicleType   string `json:"vehicle_type" validate:"max=50"`
	VehiclePlate  string `json:"vehicle_plate" validate:"max=20"`
	LicenseNumber string `json:"license_number" validate:"max=50"`
}

// lockDriverProfile takes the profile row lock, creating the profile first
// if needed.
func lockDriverProfile(ctx context.Context, r repo.Repos, userID string) (models.DriverProfile, error) {
	p, err := r.DriverProfiles.LockByUserID(ctx, userID)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return p, err
	}
	if err := r.DriverProfiles.Create(ctx, userID); err != nil {
		return models.DriverProfile{}, err
	}
	return r.DriverProfiles.LockByUserID(ctx, userID)
}

func updateDriverProfile(ctx context.Context, r repo.Repos, userID string, fn func(*models.DriverProfile)) (models.DriverProfile, error) {
	p, err := lockDriverProfile(ctx, r, userID)
	if err != nil {
		return models.DriverProfile{}, err
	}
	fn(&p)
	return r.DriverProfiles.Update(ctx, p)
}

func (s *DriverService) update(ctx context.Context, userID string, fn func(*models.DriverProfile)) (models.DriverProfile, error) {
	var out models.DriverProfile
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		var err error
		out, err = updateDriverProfile(ctx, r, userID, fn)
		return err
	})
	return out, err
}

// GetProfile returns the driver's profile, creating it on first access.
func (s *DriverService) GetProfile(ctx context.Context, userID string) (models.DriverProfile, error) {
	r := s.store.Repos()
	p, err := r.DriverProfiles.GetByUserID(ctx, userID)
	if err == nil || !errors.Is(err, repo.ErrNotFound) {
		return p, err
	}
	if err := r.DriverProfiles.Create(ctx, userID); err != nil {
		return models.DriverProfile{}, err
	}
	return r.DriverProfiles.GetByUserID(ctx, userID)
}

func (s *DriverService) GetStats(ctx context.Context, userID string) (models.DriverStats, error) {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return models.DriverStats{}, err
	}
	return models.DriverStats{
		TotalDeliveries: p.TotalDeliveries,
		Rating:          p.Rating.StringFixed(1),
		TotalRatings:    p.TotalRatings,
		TotalEarnings:   p.TotalEarnings,
		IsOnline:        p.IsOnline,
		IsOnDelivery:    p.IsOnDelivery,
	}, nil
}

func (s *DriverService) SetOnline(ctx context.Context, userID string, online bool) (models.DriverProfile, error) {
	p, err := s.update(ctx, userID, func(p *models.DriverProfile) { p.IsOnline = online })
	if err != nil {
		return models.DriverProfile{}, err
	}
	s.log.InfoContext(ctx, "driver availability changed", "driver_id", userID, "online", online)
	return p, nil
}

func (s *DriverService) UpdateLocation(ctx context.Context, userID string, lat, lng float64) (models.DriverProfile, error) {
	if !validCoord(lat, lng) {
		return models.DriverProfile{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	return s.update(ctx, userID, func(p *models.DriverProfile) {
		p.CurrentLatitude = &lat
		p.CurrentLongitude = &lng
	})
}

func (s *DriverService) UpdateVehicle(ctx context.Context, userID string, in VehicleInput) (models.DriverProfile, error) {
	return s.update(ctx, userID, func(p *models.DriverProfile) {
		p.VehicleType = strings.TrimSpace(in.VehicleType)
		p.VehiclePlate = strings.ToUpper(strings.TrimSpace(in.VehiclePlate))
		p.LicenseNumber = strings.TrimSpace(in.LicenseNumber)
	})
}

// Rate records the customer's 1-5 score for the driver of a delivered
// order. Each order can be rated once.
func (s *DriverService) Rate(ctx context.Context, orderID string, actor Actor, score int) (models.DriverProfile, error) {
	if score < 1 || score > 5 {
		return models.DriverProfile{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	var out models.DriverProfile
	err := s.store.WithTx(ctx, func(r repo.Repos) error {
		o, err := r.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if actor.Role != models.RoleCustomer || o.CustomerID != actor.UserID {
			return ErrForbidden
		}
		if o.Status != models.OrderDelivered || o.DriverID == nil {
			return fmt.Errorf("%w: only delivered orders can be rated", ErrInvalidInput)
		}
		err = r.DriverProfiles.RecordRating(ctx, o.ID, *o.DriverID, actor.UserID, score)
		if errors.Is(err, repo.ErrConflict) {
			return ErrAlreadyRated
		}
		if err != nil {
			return err
		}
		out, err = updateDriverProfile(ctx, r, *o.DriverID, func(p *models.DriverProfile) { p.AddRating(score) })
		return err
	})
	if err != nil {
		return models.DriverProfile{}, err
	}
	s.log.InfoContext(ctx, "driver rated", "order_id", orderID, "driver_id", out.UserID, "score", score)
	return out, nil
}

// driverAssignedTx marks the driver busy when an order is accepted.
func driverAssignedTx(ctx context.Context, r repo.Repos, driverID string) error {
	_, err := updateDriverProfile(ctx, r, driverID, func(p *models.DriverProfile) { p.IsOnDelivery = true })
	return err
}

// driverReleasedTx frees the driver when an assigned order ends. A
// delivered order also counts towards the totals with the driver's net
// earnings.
func driverReleasedTx(ctx context.Context, r repo.Repos, driverID string, delivered bool, earnings decimal.Decimal) error {
	_, err := updateDriverProfile(ctx, r, driverID, func(p *models.DriverProfile) {
		p.IsOnDelivery = false
		if delivered {
			p.TotalDeliveries++
			p.TotalEarnings = p.TotalEarnings.Add(earnings)
		}
	})
	return err
}

func driverMovedTx(ctx context.Context, r repo.Repos, driverID string, lat, lng float64) error {
	_, err := updateDriverProfile(ctx, r, driverID, func(p *models.DriverProfile) {
		p.CurrentLatitude = &lat
		p.CurrentLongitude = &lng
	})
	return err
}
