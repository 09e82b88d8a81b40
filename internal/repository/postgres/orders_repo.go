package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/backend/internal/models"
)

type ordersRepo struct{ db DBTX }

const orderColumns = `id, customer_id, driver_id, status,
	pickup_latitude, pickup_longitude, pickup_address,
	delivery_latitude, delivery_longitude, delivery_address,
	recipient_name, recipient_phone, package_description, package_weight, package_size,
	COALESCE(delivery_notes, ''), estimated_price, final_price,
	accepted_at, picked_up_at, delivered_at, driver_latitude, driver_longitude,
	created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (models.Order, error) {
	var (
		o          models.Order
		finalPrice decimal.NullDecimal
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.DriverID, &o.Status,
		&o.PickupLatitude, &o.PickupLongitude, &o.PickupAddress,
		&o.DeliveryLatitude, &o.DeliveryLongitude, &o.DeliveryAddress,
		&o.RecipientName, &o.RecipientPhone, &o.PackageDescription, &o.PackageWeight, &o.PackageSize,
		&o.DeliveryNotes, &o.EstimatedPrice, &finalPrice,
		&o.AcceptedAt, &o.PickedUpAt, &o.DeliveredAt, &o.DriverLatitude, &o.DriverLongitude,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return models.Order{}, mapErr(err)
	}
	if finalPrice.Valid {
		o.FinalPrice = &finalPrice.Decimal
	}
	return o, nil
}

func (r *ordersRepo) Create(ctx context.Context, o models.Order) (models.Order, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return scanOrder(r.db.QueryRow(ctx,
		`INSERT INTO orders (
		   id, customer_id, status,
		   pickup_latitude, pickup_longitude, pickup_address,
		   delivery_latitude, delivery_longitude, delivery_address,
		   recipient_name, recipient_phone, package_description, package_weight, package_size,
		   delivery_notes, estimated_price
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NULLIF($15,''),$16)
		 RETURNING `+orderColumns,
		o.ID, o.CustomerID, o.Status,
		o.PickupLatitude, o.PickupLongitude, o.PickupAddress,
		o.DeliveryLatitude, o.DeliveryLongitude, o.DeliveryAddress,
		o.RecipientName, o.RecipientPhone, o.PackageDescription, o.PackageWeight, o.PackageSize,
		o.DeliveryNotes, o.EstimatedPrice,
	))
}

func (r *ordersRepo) GetByID(ctx context.Context, id string) (models.Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
}

func (r *ordersRepo) LockByID(ctx context.Context, id string) (models.Order, error) {
	return scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

// Update writes the mutable lifecycle fields. Pickup, delivery and package
// details are fixed at creation.
func (r *ordersRepo) Update(ctx context.Context, o models.Order) (models.Order, error) {
	return scanOrder(r.db.QueryRow(ctx,
		`UPDATE orders
		    SET driver_id=$2, status=$3, final_price=$4,
		        accepted_at=$5, picked_up_at=$6, delivered_at=$7,
		        driver_latitude=$8, driver_longitude=$9, updated_at=now()
		  WHERE id=$1
		  RETURNING `+orderColumns,
		o.ID, o.DriverID, o.Status, o.FinalPrice,
		o.AcceptedAt, o.PickedUpAt, o.DeliveredAt,
		o.DriverLatitude, o.DriverLongitude,
	))
}

func (r *ordersRepo) List(ctx context.Context, f models.OrderFilter) ([]models.Order, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id=$%d", f.CustomerID)
	}
	if f.DriverID != "" {
		add("driver_id=$%d", f.DriverID)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders`+clause+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *ordersRepo) ListPending(ctx context.Context) ([]models.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status=$1 ORDER BY created_at ASC`,
		models.OrderPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
