// README: Booking entity, its state flow and the seat invariant check.
package ride

import (
	"fmt"
	"time"

	"ridepool/internal/types"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingPickedUp  BookingStatus = "picked_up"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

const DefaultPaymentMethod = "cash"

type Actor string

const (
	ActorPassenger Actor = "passenger"
	ActorDriver    Actor = "driver"
	ActorSystem    Actor = "system"
)

type Booking struct {
	ID              types.ID       `json:"id"`
	RideID          types.ID       `json:"ride_id"`
	PassengerID     types.ID       `json:"passenger_id"`
	SeatsBooked     int            `json:"seats_booked"`
	PickupLocation  types.Location `json:"pickup_location"`
	RiderSafeCode   string         `json:"rider_safe_code"`
	DriverSafeCode  string         `json:"driver_safe_code"`
	TotalAmount     types.Money    `json:"total_amount"`
	PaymentStatus   PaymentStatus  `json:"payment_status"`
	PaymentMethod   string         `json:"payment_method,omitempty"`
	SpecialRequests string         `json:"special_requests,omitempty"`
	Status          BookingStatus  `json:"status"`
	StatusVersion   int            `json:"status_version"`
	CancelledBy     Actor          `json:"cancelled_by,omitempty"`
	CancelReason    string         `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ConfirmedAt     *time.Time     `json:"confirmed_at,omitempty"`
	PickedUpAt      *time.Time     `json:"picked_up_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	CancelledAt     *time.Time     `json:"cancelled_at,omitempty"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
}

// BookingStats summarises a passenger's booking history. TotalSpent sums
// completed bookings; CompletionRate is a percentage with one decimal.
type BookingStats struct {
	TotalBookings     int         `json:"total_bookings"`
	CompletedBookings int         `json:"completed_bookings"`
	CancelledBookings int         `json:"cancelled_bookings"`
	CompletionRate    float64     `json:"completion_rate"`
	TotalSpent        types.Money `json:"total_spent"`
}

// HoldsSeats reports whether the booking's seats are counted against the ride.
// Every status reachable only through acceptance, and never released, holds seats.
func (b *Booking) HoldsSeats() bool {
	switch b.Status {
	case BookingConfirmed, BookingPickedUp, BookingNoShow, BookingCompleted:
		return true
	}
	return false
}

// Live reports whether the booking blocks another request by the same passenger.
func (b *Booking) Live() bool {
	return b.Status != BookingCancelled
}

func (b *Booking) clone() *Booking {
	c := *b
	return &c
}

// BookingSummary is what non-drivers may see of other passengers' bookings.
type BookingSummary struct {
	ID             types.ID       `json:"id"`
	PickupLocation types.Location `json:"pickup_location"`
	SeatsBooked    int            `json:"seats_booked"`
	Status         BookingStatus  `json:"status"`
}

func (b *Booking) Summary() BookingSummary {
	return BookingSummary{
		ID:             b.ID,
		PickupLocation: b.PickupLocation,
		SeatsBooked:    b.SeatsBooked,
		Status:         b.Status,
	}
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingCancelled},
	BookingConfirmed: {BookingPickedUp, BookingNoShow, BookingCancelled, BookingCompleted},
	BookingPickedUp:  {BookingCompleted},
}

func CanBookingTransition(from, to BookingStatus) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckSeatInvariant verifies the ride's seat counters against its bookings.
func CheckSeatInvariant(r *Ride, bookings []*Booking) error {
	if r.AvailableSeats < 0 || r.AvailableSeats > r.TotalSeats {
		return fmt.Errorf("ride %s: available seats %d out of range [0,%d]", r.ID, r.AvailableSeats, r.TotalSeats)
	}
	held := 0
	for _, b := range bookings {
		if b.RideID == r.ID && b.HoldsSeats() {
			held += b.SeatsBooked
		}
	}
	if r.CommittedSeats() != held {
		return fmt.Errorf("ride %s: %d seats committed but bookings hold %d", r.ID, r.CommittedSeats(), held)
	}
	return nil
}

// CheckOneLiveBooking verifies no passenger has two live bookings on one ride.
func CheckOneLiveBooking(bookings []*Booking) error {
	type key struct{ ride, passenger types.ID }
	seen := make(map[key]types.ID, len(bookings))
	for _, b := range bookings {
		if !b.Live() {
			continue
		}
		k := key{b.RideID, b.PassengerID}
		if other, ok := seen[k]; ok {
			return fmt.Errorf("passenger %s has live bookings %s and %s on ride %s", b.PassengerID, other, b.ID, b.RideID)
		}
		seen[k] = b.ID
	}
	return nil
}
