package ride

import (
	"time"

	"ridepool/internal/types"
)

type CreateRideCommand struct {
	DriverID         types.ID `validate:"required"`
	Start            types.Location
	Destination      types.Location
	DepartureTime    time.Time `validate:"required"`
	TotalSeats       int       `validate:"min=1,max=8"`
	GenderPreference Gender    `validate:"omitempty,oneof=any male female"`
	Notes            string    `validate:"max=500"`
}

type PreviewRouteCommand struct {
	Start       types.Point
	Destination types.Point
}

// UpdateRideCommand changes only the fields that are non-nil.
type UpdateRideCommand struct {
	RideID           types.ID `validate:"required"`
	DriverID         types.ID `validate:"required"`
	Notes            *string  `validate:"omitempty,max=500"`
	DepartureTime    *time.Time
	TotalSeats       *int    `validate:"omitempty,min=1,max=8"`
	PricePerSeat     *int64  `validate:"omitempty,min=0"`
	GenderPreference *Gender `validate:"omitempty,oneof=any male female"`
}

type StartRideCommand struct {
	RideID   types.ID `validate:"required"`
	DriverID types.ID `validate:"required"`
}

type CompleteRideCommand struct {
	RideID   types.ID `validate:"required"`
	DriverID types.ID `validate:"required"`
}

type CancelRideCommand struct {
	RideID   types.ID `validate:"required"`
	DriverID types.ID `validate:"required"`
	Reason   string   `validate:"max=500"`
}

type RequestBookingCommand struct {
	RideID          types.ID `validate:"required"`
	PassengerID     types.ID `validate:"required"`
	PassengerGender Gender   `validate:"omitempty,oneof=male female"`
	SeatsBooked     int      `validate:"min=1,max=8"`
	PickupLocation  *types.Location
	SpecialRequests string `validate:"max=500"`
}

type AcceptBookingCommand struct {
	BookingID types.ID `validate:"required"`
	DriverID  types.ID `validate:"required"`
}

type RejectBookingCommand struct {
	BookingID types.ID `validate:"required"`
	DriverID  types.ID `validate:"required"`
	Reason    string   `validate:"max=500"`
}

// CancelBookingCommand may come from the booking's passenger or the ride's driver.
type CancelBookingCommand struct {
	BookingID types.ID `validate:"required"`
	ActorID   types.ID `validate:"required"`
	Reason    string   `validate:"max=500"`
}

type PickupCommand struct {
	BookingID types.ID `validate:"required"`
	DriverID  types.ID `validate:"required"`
	RiderCode string   `validate:"required"`
}

type NoShowCommand struct {
	BookingID types.ID `validate:"required"`
	DriverID  types.ID `validate:"required"`
}

type MarkPaidCommand struct {
	BookingID types.ID `validate:"required"`
	DriverID  types.ID `validate:"required"`
	Method    string   `validate:"omitempty,oneof=cash card transfer"`
}
