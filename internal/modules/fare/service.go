// README: Fare calculator computes ride prices and per-seat shares.
package fare

import (
	"math"

	"ridepool/internal/types"
)

type Calculator struct {
	rate Rate
}

func NewCalculator(rate Rate) *Calculator {
	if rate.Currency == "" {
		rate.Currency = types.DefaultCurrency
	}
	return &Calculator{rate: rate}
}

func (c *Calculator) Currency() string {
	return c.rate.Currency
}

// Estimate prices a route of distanceM metres taking durationS seconds.
func (c *Calculator) Estimate(distanceM, durationS float64) Fare {
	km := math.Max(distanceM, 0) / 1000
	minutes := math.Max(durationS, 0) / 60
	fils := float64(c.rate.BaseFare) + km*float64(c.rate.PerKm) + minutes*float64(c.rate.PerMin)
	return Fare{Fils: fils, Currency: c.rate.Currency}
}

// PerSeat splits f evenly over seats. Zero seats yields zero.
func (c *Calculator) PerSeat(f Fare, seats int) types.Money {
	if seats <= 0 {
		return types.Money{Currency: f.Currency}
	}
	return types.Money{Amount: roundFils(f.Fils / float64(seats)), Currency: f.Currency}
}

func roundFils(v float64) int64 {
	return int64(math.Round(v))
}
