package fare

import (
	"testing"
)

func TestCalculator_Estimate(t *testing.T) {
	calc := NewCalculator(DefaultRate)

	tests := []struct {
		name      string
		distanceM float64
		durationS float64
		wantFils  int64
	}{
		{name: "base fare only", distanceM: 0, durationS: 0, wantFils: 1500},
		{name: "10 km, 20 min", distanceM: 10000, durationS: 1200, wantFils: 4500},
		{name: "distance charge only (2.5 km)", distanceM: 2500, durationS: 0, wantFils: 2000},
		{name: "time charge only (90 s)", distanceM: 0, durationS: 90, wantFils: 1575},
		{name: "negative inputs clamp to zero", distanceM: -50, durationS: -10, wantFils: 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Estimate(tt.distanceM, tt.durationS).Money()
			if got.Amount != tt.wantFils {
				t.Errorf("Estimate() = %d, want %d", got.Amount, tt.wantFils)
			}
			if got.Currency != "BHD" {
				t.Errorf("currency = %q, want BHD", got.Currency)
			}
		})
	}
}

func TestCalculator_PerSeatSplit(t *testing.T) {
	calc := NewCalculator(DefaultRate)
	price := calc.Estimate(10000, 1200)

	perSeat := calc.PerSeat(price, 3)
	if perSeat.Amount != 1500 {
		t.Fatalf("per seat = %d, want 1500", perSeat.Amount)
	}
	if a := perSeat.Times(1).Amount; a != 1500 {
		t.Errorf("one-seat share = %d, want 1500", a)
	}
	if b := perSeat.Times(2).Amount; b != 3000 {
		t.Errorf("two-seat share = %d, want 3000", b)
	}
}

func TestCalculator_PerSeatRoundsOnce(t *testing.T) {
	calc := NewCalculator(DefaultRate)
	// 1500 + 1.0 km*200 = 1700 fils over 3 seats = 566.67 -> 567
	got := calc.PerSeat(calc.Estimate(1000, 0), 3)
	if got.Amount != 567 {
		t.Errorf("per seat = %d, want 567", got.Amount)
	}
}

func TestCalculator_PerSeatZeroSeats(t *testing.T) {
	calc := NewCalculator(DefaultRate)
	got := calc.PerSeat(calc.Estimate(10000, 1200), 0)
	if got.Amount != 0 {
		t.Errorf("zero seats should yield 0, got %d", got.Amount)
	}
}

func TestNewCalculator_DefaultsCurrency(t *testing.T) {
	calc := NewCalculator(Rate{BaseFare: 1000})
	if got := calc.Estimate(0, 0).Currency; got != "BHD" {
		t.Errorf("currency = %q, want BHD", got)
	}
}
