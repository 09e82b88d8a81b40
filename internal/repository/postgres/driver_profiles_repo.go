package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/dispatchly/backend/internal/models"
)

type driverProfilesRepo struct{ db DBTX }

const driverProfileColumns = `id, user_id, is_online, is_on_delivery, current_latitude, current_longitude,
	COALESCE(vehicle_type, ''), COALESCE(vehicle_plate, ''), COALESCE(license_number, ''),
	total_deliveries, rating, total_ratings, total_earnings, is_verified, created_at, updated_at`

func scanDriverProfile(row interface{ Scan(...any) error }) (models.DriverProfile, error) {
	var p models.DriverProfile
	err := row.Scan(&p.ID, &p.UserID, &p.IsOnline, &p.IsOnDelivery, &p.CurrentLatitude, &p.CurrentLongitude,
		&p.VehicleType, &p.VehiclePlate, &p.LicenseNumber,
		&p.TotalDeliveries, &p.Rating, &p.TotalRatings, &p.TotalEarnings, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt)
	return p, mapErr(err)
}

func (r *driverProfilesRepo) Create(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO driver_profiles(id, user_id) VALUES($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID,
	)
	return mapErr(err)
}

func (r *driverProfilesRepo) GetByUserID(ctx context.Context, userID string) (models.DriverProfile, error) {
	return scanDriverProfile(r.db.QueryRow(ctx,
		`SELECT `+driverProfileColumns+` FROM driver_profiles WHERE user_id=$1`, userID))
}

func (r *driverProfilesRepo) LockByUserID(ctx context.Context, userID string) (models.DriverProfile, error) {
	return scanDriverProfile(r.db.QueryRow(ctx,
		`SELECT `+driverProfileColumns+` FROM driver_profiles WHERE user_id=$1 FOR UPDATE`, userID))
}

func (r *driverProfilesRepo) Update(ctx context.Context, p models.DriverProfile) (models.DriverProfile, error) {
	return scanDriverProfile(r.db.QueryRow(ctx,
		`UPDATE driver_profiles
		    SET is_online=$2, is_on_delivery=$3, current_latitude=$4, current_longitude=$5,
		        vehicle_type=NULLIF($6,''), vehicle_plate=NULLIF($7,''), license_number=NULLIF($8,''),
		        total_deliveries=$9, rating=$10, total_ratings=$11, total_earnings=$12,
		        updated_at=now()
		  WHERE id=$1
		  RETURNING `+driverProfileColumns,
		p.ID, p.IsOnline, p.IsOnDelivery, p.CurrentLatitude, p.CurrentLongitude,
		p.VehicleType, p.VehiclePlate, p.LicenseNumber,
		p.TotalDeliveries, p.Rating, p.TotalRatings, p.TotalEarnings,
	))
}

func (r *driverProfilesRepo) RecordRating(ctx context.Context, orderID, driverID, customerID string, score int) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO driver_ratings(order_id, driver_id, customer_id, score) VALUES($1,$2,$3,$4)`,
		orderID, driverID, customerID, score,
	)
	return mapErr(err)
}
