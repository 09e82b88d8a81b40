package services

import (
	"math"

	"github.com/shopspring/decimal"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// PriceParams are the pricing constants read from the configuration store.
type PriceParams struct {
	BasePrice  float64
	PricePerKm float64
	Multiplier float64
}

// Price is round((base + km*perKm) * multiplier) to a whole currency unit.
func Price(distanceKm float64, p PriceParams) decimal.Decimal {
	raw := (p.BasePrice + distanceKm*p.PricePerKm) * p.Multiplier
	return decimal.NewFromFloat(math.Round(raw))
}
