package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderAccepted  OrderStatus = "accepted"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderAccepted, OrderCancelled},
	OrderAccepted:  {OrderPickedUp, OrderCancelled},
	OrderPickedUp:  {OrderInTransit, OrderCancelled},
	OrderInTransit: {OrderDelivered, OrderCancelled},
	OrderDelivered: nil,
	OrderCancelled: nil,
}

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderPending, OrderAccepted, OrderPickedUp, OrderInTransit, OrderDelivered, OrderCancelled,
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// CanTransitionTo checks the fixed lifecycle table.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type PackageSize string

const (
	PackageSmall  PackageSize = "small"
	PackageMedium PackageSize = "medium"
	PackageLarge  PackageSize = "large"
)

func (p PackageSize) Valid() bool {
	return p == PackageSmall || p == PackageMedium || p == PackageLarge
}

type Order struct {
	ID                 string           `json:"id"`
	CustomerID         string           `json:"customer_id"`
	DriverID           *string          `json:"driver_id,omitempty"`
	Status             OrderStatus      `json:"status"`
	PickupLatitude     float64          `json:"pickup_latitude"`
	PickupLongitude    float64          `json:"pickup_longitude"`
	PickupAddress      string           `json:"pickup_address"`
	DeliveryLatitude   float64          `json:"delivery_latitude"`
	DeliveryLongitude  float64          `json:"delivery_longitude"`
	DeliveryAddress    string           `json:"delivery_address"`
	RecipientName      string           `json:"recipient_name"`
	RecipientPhone     string           `json:"recipient_phone"`
	PackageDescription string           `json:"package_description"`
	PackageWeight      *float64         `json:"package_weight,omitempty"`
	PackageSize        PackageSize      `json:"package_size"`
	DeliveryNotes      string           `json:"delivery_notes,omitempty"`
	EstimatedPrice     decimal.Decimal  `json:"estimated_price"`
	FinalPrice         *decimal.Decimal `json:"final_price,omitempty"`
	AcceptedAt         *time.Time       `json:"accepted_at,omitempty"`
	PickedUpAt         *time.Time       `json:"picked_up_at,omitempty"`
	DeliveredAt        *time.Time       `json:"delivered_at,omitempty"`
	DriverLatitude     *float64         `json:"driver_latitude,omitempty"`
	DriverLongitude    *float64         `json:"driver_longitude,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`

	// Distance is filled by the available-orders query only.
	Distance *float64 `json:"distance_km,omitempty"`
}

// IsParty reports whether userID is the order's customer or assigned driver.
func (o Order) IsParty(userID string) bool {
	if o.CustomerID == userID {
		return true
	}
	return o.DriverID != nil && *o.DriverID == userID
}

type OrderFilter struct {
	CustomerID string
	DriverID   string
	Status     OrderStatus
	Limit      int
	Offset     int
}
