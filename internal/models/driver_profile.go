package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DriverProfile is the operational record of a driver: availability, last
// known position, vehicle and delivery totals. One per driver user.
type DriverProfile struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	IsOnline         bool            `json:"is_online"`
	IsOnDelivery     bool            `json:"is_on_delivery"`
	CurrentLatitude  *float64        `json:"current_latitude,omitempty"`
	CurrentLongitude *float64        `json:"current_longitude,omitempty"`
	VehicleType      string          `json:"vehicle_type,omitempty"`
	VehiclePlate     string          `json:"vehicle_plate,omitempty"`
	LicenseNumber    string          `json:"license_number,omitempty"`
	TotalDeliveries  int             `json:"total_deliveries"`
	Rating           decimal.Decimal `json:"rating"`
	TotalRatings     int             `json:"total_ratings"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	IsVerified       bool            `json:"is_verified"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type DriverStats struct {
	TotalDeliveries int             `json:"total_deliveries"`
	Rating          string          `json:"rating"` // one decimal place
	TotalRatings    int             `json:"total_ratings"`
	TotalEarnings   decimal.Decimal `json:"total_earnings"`
	IsOnline        bool            `json:"is_online"`
	IsOnDelivery    bool            `json:"is_on_delivery"`
}

// AddRating folds score into the running average.
func (p *DriverProfile) AddRating(score int) {
	total := p.Rating.Mul(decimal.NewFromInt(int64(p.TotalRatings))).Add(decimal.NewFromInt(int64(score)))
	p.TotalRatings++
	p.Rating = total.Div(decimal.NewFromInt(int64(p.TotalRatings))).Round(2)
}
