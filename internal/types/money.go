// README: Common money value object used across modules.
package types

import (
	"fmt"
	"math"
)

// DefaultCurrency is the currency all fares are quoted in.
const DefaultCurrency = "BHD"

// filsPerDinar is the minor-unit ratio for BHD.
const filsPerDinar = 1000

// Money is an amount in minor units (fils for BHD).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// FromMajor converts a major-unit value (e.g. 1.5 BHD) to Money, rounding to the nearest fil.
func FromMajor(v float64, currency string) Money {
	return Money{Amount: int64(math.Round(v * filsPerDinar)), Currency: currency}
}

// Major returns the amount in major units.
func (m Money) Major() float64 {
	return float64(m.Amount) / filsPerDinar
}

// Times multiplies the amount by n.
func (m Money) Times(n int) Money {
	return Money{Amount: m.Amount * int64(n), Currency: m.Currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%.3f %s", m.Major(), m.Currency)
}
