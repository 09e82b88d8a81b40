package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/models"
)

func TestDriver_ProfileCreatedOnFirstAccess(t *testing.T) {
	f := newFixture(t)
	svc := NewDriverService(f.store, testLog)

	p, err := svc.GetProfile(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", p.UserID)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.IsOnline)
	assert.Zero(t, p.TotalDeliveries)

	again, err := svc.GetProfile(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestDriver_SetOnlineAndLocation(t *testing.T) {
	f := newFixture(t)
	svc := NewDriverService(f.store, testLog)
	ctx := context.Background()

	p, err := svc.SetOnline(ctx, "d1", true)
	require.NoError(t, err)
	assert.True(t, p.IsOnline)

	p, err = svc.UpdateLocation(ctx, "d1", 6.45, 3.40)
	require.NoError(t, err)
	require.NotNil(t, p.CurrentLatitude)
	assert.Equal(t, 6.45, *p.CurrentLatitude)
	assert.Equal(t, 3.40, *p.CurrentLongitude)
	assert.True(t, p.IsOnline)

	_, err = svc.UpdateLocation(ctx, "d1", -91, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 6.45, *f.store.Driver("d1").CurrentLatitude)

	p, err = svc.SetOnline(ctx, "d1", false)
	require.NoError(t, err)
	assert.False(t, p.IsOnline)
}

func TestDriver_UpdateVehicle(t *testing.T) {
	f := newFixture(t)
	svc := NewDriverService(f.store, testLog)

	p, err := svc.UpdateVehicle(context.Background(), "d1", VehicleInput{
		VehicleType:   " motorcycle ",
		VehiclePlate:  "lag-123-xy",
		LicenseNumber: "DL0001",
	})
	require.NoError(t, err)
	assert.Equal(t, "motorcycle", p.VehicleType)
	assert.Equal(t, "LAG-123-XY", p.VehiclePlate)
	assert.Equal(t, "DL0001", f.store.Driver("d1").LicenseNumber)
}

func TestDriver_UpdateFailureLeavesProfile(t *testing.T) {
	f := newFixture(t)
	svc := NewDriverService(f.store, testLog)
	ctx := context.Background()
	_, err := svc.SetOnline(ctx, "d1", true)
	require.NoError(t, err)

	boom := errors.New("boom")
	f.store.Fail("drivers.update", boom)
	_, err = svc.SetOnline(ctx, "d1", false)
	assert.ErrorIs(t, err, boom)
	assert.True(t, f.store.Driver("d1").IsOnline)
}

func TestDriver_Rate(t *testing.T) {
	f := newFixture(t)
	svc := NewDriverService(f.store, testLog)
	ctx := context.Background()

	delivered := f.seedOrder(models.OrderDelivered, "d1")
	open := f.seedOrder(models.OrderInTransit, "d1")

	_, err := svc.Rate(ctx, delivered.ID, customer, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Rate(ctx, delivered.ID, customer, 6)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Rate(ctx, delivered.ID, Actor{UserID: "c2", Role: models.RoleCustomer}, 5)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Rate(ctx, delivered.ID, driver, 5)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Rate(ctx, open.ID, customer, 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Rate(ctx, "missing", customer, 5)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	p, err := svc.Rate(ctx, delivered.ID, customer, 5)
	require.NoError(t, err)
	assert.Equal(t, "d1", p.UserID)
	assert.Equal(t, 1, p.TotalRatings)
	assert.Equal(t, "5", p.Rating.String())

	_, err = svc.Rate(ctx, delivered.ID, customer, 1)
	assert.ErrorIs(t, err, ErrAlreadyRated)
	assert.Equal(t, 1, f.store.Driver("d1").TotalRatings)

	for _, score := range []int{4, 4} {
		o := f.seedOrder(models.OrderDelivered, "d1")
		_, err = svc.Rate(ctx, o.ID, customer, score)
		require.NoError(t, err)
	}
	stats, err := svc.GetStats(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRatings)
	assert.Equal(t, "4.3", stats.Rating)
	assert.Equal(t, "4.33", f.store.Driver("d1").Rating.String())
}

func TestDriverProfile_AddRating(t *testing.T) {
	var p models.DriverProfile
	p.AddRating(5)
	p.AddRating(4)
	assert.Equal(t, 2, p.TotalRatings)
	assert.Equal(t, "4.5", p.Rating.String())
	p.AddRating(1)
	assert.Equal(t, "3.33", p.Rating.String())
}
