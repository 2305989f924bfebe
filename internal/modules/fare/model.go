// README: Fare rate definition, amounts in minor units (fils).
package fare

import "ridepool/internal/types"

type Rate struct {
	BaseFare int64 // flat fee per ride
	PerKm    int64
	PerMin   int64
	Currency string
}

// DefaultRate is 1.5 BHD + 0.20 BHD/km + 0.05 BHD/min.
var DefaultRate = Rate{
	BaseFare: 1500,
	PerKm:    200,
	PerMin:   50,
	Currency: types.DefaultCurrency,
}

// Fare is an unrounded ride price in fils. Rounding happens once, when the
// price is split per seat or converted to Money.
type Fare struct {
	Fils     float64
	Currency string
}

func (f Fare) Money() types.Money {
	return types.Money{Amount: roundFils(f.Fils), Currency: f.Currency}
}
