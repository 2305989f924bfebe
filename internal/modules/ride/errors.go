package ride

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service wraps exactly one of these.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrResourceExhausted   = errors.New("resource exhausted")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrDependencyFailure   = errors.New("dependency failure")
	ErrConflict            = errors.New("state conflict")
	ErrBadRequest          = errors.New("bad request")
)

var (
	ErrRideNotFound    = fmt.Errorf("ride %w", ErrNotFound)
	ErrBookingNotFound = fmt.Errorf("booking %w", ErrNotFound)

	ErrNotDriver      = fmt.Errorf("%w: only the ride's driver may do this", ErrForbidden)
	ErrNotParticipant = fmt.Errorf("%w: not a participant of this booking", ErrForbidden)

	ErrRideNotBookable = fmt.Errorf("%w: ride is no longer open for booking", ErrInvalidTransition)
	ErrAlreadyPaid     = fmt.Errorf("%w: booking is already paid", ErrInvalidTransition)
	ErrRiderOnBoard    = fmt.Errorf("%w: a passenger is already on board", ErrInvalidTransition)

	ErrInsufficientSeats = fmt.Errorf("%w: not enough available seats", ErrResourceExhausted)

	ErrGenderMismatch      = fmt.Errorf("%w: ride gender preference does not match", ErrConstraintViolation)
	ErrDuplicateBooking    = fmt.Errorf("%w: passenger already has a booking on this ride", ErrConstraintViolation)
	ErrTooLateToCancel     = fmt.Errorf("%w: too late to cancel before departure", ErrConstraintViolation)
	ErrOwnRide             = fmt.Errorf("%w: drivers cannot book their own ride", ErrConstraintViolation)
	ErrPastDeparture       = fmt.Errorf("%w: departure time has passed", ErrConstraintViolation)
	ErrSafeCodeMismatch    = fmt.Errorf("%w: rider safe code does not match", ErrConstraintViolation)
	ErrOutsideServiceArea  = fmt.Errorf("%w: location is outside the service area", ErrConstraintViolation)
	ErrRideHasBookings     = fmt.Errorf("%w: ride already has active bookings", ErrConstraintViolation)
	ErrSeatsBelowCommitted = fmt.Errorf("%w: total seats below seats already booked", ErrConstraintViolation)
)
