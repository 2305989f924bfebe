// README: Booking transitions. Each runs inside the owning ride's unit of work.
package ride

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"ridepool/internal/types"
)

const reasonSeatsFilled = "not enough seats left on this ride"

func (s *Service) RequestBooking(ctx context.Context, cmd RequestBookingCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	if cmd.PickupLocation != nil {
		if err := checkPoint(cmd.PickupLocation.Point); err != nil {
			return nil, err
		}
	}
	riderCode, err := newSafeCode()
	if err != nil {
		return nil, err
	}
	driverCode, err := newSafeCode()
	if err != nil {
		return nil, err
	}

	var out *Booking
	err = s.inRide(ctx, cmd.RideID, func(tx Tx, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.Status != StatusScheduled {
			return nil, ErrRideNotBookable
		}
		if !r.DepartureTime.After(now) {
			return nil, ErrPastDeparture
		}
		if r.DriverID == cmd.PassengerID {
			return nil, ErrOwnRide
		}
		if r.AvailableSeats < cmd.SeatsBooked {
			return nil, ErrInsufficientSeats
		}
		if !r.GenderPreference.Admits(cmd.PassengerGender) {
			return nil, ErrGenderMismatch
		}
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range bookings {
			if b.PassengerID == cmd.PassengerID && b.Live() {
				return nil, ErrDuplicateBooking
			}
		}

		pickup := r.Start
		if cmd.PickupLocation != nil {
			pickup = *cmd.PickupLocation
		}
		b := &Booking{
			ID:              types.NewID(),
			RideID:          r.ID,
			PassengerID:     cmd.PassengerID,
			SeatsBooked:     cmd.SeatsBooked,
			PickupLocation:  pickup,
			RiderSafeCode:   riderCode,
			DriverSafeCode:  driverCode,
			TotalAmount:     r.PricePerSeat.Times(cmd.SeatsBooked),
			PaymentStatus:   PaymentUnpaid,
			SpecialRequests: cmd.SpecialRequests,
			Status:          BookingPending,
			CreatedAt:       now,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return nil, err
		}
		if err := tx.AppendTransition(ctx, &Transition{
			EntityType: "booking",
			EntityID:   b.ID,
			RideID:     r.ID,
			ToStatus:   string(BookingPending),
			ActorType:  string(ActorPassenger),
			ActorID:    cmd.PassengerID,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}
		out = b.clone()
		return []Event{
			bookingEvent(KindBookingRequest, PushBookingNew, r.DriverID, b, now, map[string]any{
				"seats_booked":    b.SeatsBooked,
				"available_seats": r.AvailableSeats,
			}),
			bookingEvent(KindBookingPending, "", b.PassengerID, b, now, nil),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptBooking reserves the booking's seats. Pending requests that no longer
// fit in the remaining seats are expired in the same unit of work.
func (s *Service) AcceptBooking(ctx context.Context, cmd AcceptBookingCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	return s.inBooking(ctx, cmd.BookingID, func(tx Tx, b *Booking, bookings []*Booking, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		// A request expired because the ride filled up reports the seat shortage.
		if b.Status == BookingCancelled && b.CancelledBy == ActorSystem && b.CancelReason == reasonSeatsFilled {
			return nil, ErrInsufficientSeats
		}
		if !CanBookingTransition(b.Status, BookingConfirmed) {
			return nil, invalidBooking(b.Status, BookingConfirmed)
		}
		if r.Status != StatusScheduled {
			return nil, ErrRideNotBookable
		}
		if err := Reserve(r, b.SeatsBooked); err != nil {
			return nil, err
		}

		from := b.Status
		b.Status = BookingConfirmed
		b.ConfirmedAt = &now
		if err := s.saveBooking(ctx, tx, b, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		events := []Event{
			bookingEvent(KindBookingConfirmed, PushBookingConfirmed, b.PassengerID, b, now, nil),
			bookingEvent("", PushBookingAccepted, r.DriverID, b, now, map[string]any{
				"available_seats": r.AvailableSeats,
			}),
		}

		for _, other := range bookings {
			if other.ID == b.ID || other.Status != BookingPending || other.SeatsBooked <= r.AvailableSeats {
				continue
			}
			ev, err := s.expire(ctx, tx, other, reasonSeatsFilled, now)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if err := tx.SaveRide(ctx, r); err != nil {
			return nil, err
		}
		return events, nil
	})
}

func (s *Service) RejectBooking(ctx context.Context, cmd RejectBookingCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	return s.inBooking(ctx, cmd.BookingID, func(tx Tx, b *Booking, _ []*Booking, now time.Time) ([]Event, error) {
		if tx.Ride().DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if b.Status != BookingPending {
			return nil, invalidBooking(b.Status, BookingCancelled)
		}
		from := b.Status
		b.Status = BookingCancelled
		b.CancelledBy = ActorDriver
		b.CancelReason = cmd.Reason
		b.CancelledAt = &now
		if err := s.saveBooking(ctx, tx, b, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		return []Event{
			bookingEvent(KindBookingCancelled, PushBookingRejected, b.PassengerID, b, now, map[string]any{
				"cancelled_by": string(ActorDriver),
				"reason":       cmd.Reason,
			}),
		}, nil
	})
}

// CancelBooking cancels a pending or confirmed booking on behalf of its
// passenger or the ride's driver. Passengers must cancel at least
// CancelWindow before departure.
func (s *Service) CancelBooking(ctx context.Context, cmd CancelBookingCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	return s.inBooking(ctx, cmd.BookingID, func(tx Tx, b *Booking, _ []*Booking, now time.Time) ([]Event, error) {
		r := tx.Ride()
		isPassenger := b.PassengerID == cmd.ActorID
		isDriver := r.DriverID == cmd.ActorID
		if !isPassenger && !isDriver {
			return nil, ErrNotParticipant
		}
		if b.Status != BookingPending && b.Status != BookingConfirmed {
			return nil, invalidBooking(b.Status, BookingCancelled)
		}
		if isPassenger && r.DepartureTime.Sub(now) < s.cfg.CancelWindow {
			return nil, ErrTooLateToCancel
		}

		actor, recipient := ActorPassenger, r.DriverID
		if isDriver {
			actor, recipient = ActorDriver, b.PassengerID
		}
		from := b.Status
		if from == BookingConfirmed {
			Release(r, b.SeatsBooked)
			if err := tx.SaveRide(ctx, r); err != nil {
				return nil, err
			}
		}
		b.Status = BookingCancelled
		b.CancelledBy = actor
		b.CancelReason = cmd.Reason
		b.CancelledAt = &now
		if err := s.saveBooking(ctx, tx, b, from, actor, cmd.ActorID, now); err != nil {
			return nil, err
		}
		return []Event{
			bookingEvent(KindBookingCancelled, PushBookingCancelled, recipient, b, now, map[string]any{
				"cancelled_by": string(actor),
			}),
		}, nil
	})
}

// MarkPickedUp requires the code the passenger shows the driver.
func (s *Service) MarkPickedUp(ctx context.Context, cmd PickupCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	return s.inBooking(ctx, cmd.BookingID, func(tx Tx, b *Booking, _ []*Booking, now time.Time) ([]Event, error) {
		if tx.Ride().DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if !CanBookingTransition(b.Status, BookingPickedUp) {
			return nil, invalidBooking(b.Status, BookingPickedUp)
		}
		if !safeCodesMatch(b.RiderSafeCode, cmd.RiderCode) {
			return nil, ErrSafeCodeMismatch
		}
		from := b.Status
		b.Status = BookingPickedUp
		b.PickedUpAt = &now
		if err := s.saveBooking(ctx, tx, b, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		return []Event{bookingEvent("", PushBookingPickedUp, b.PassengerID, b, now, nil)}, nil
	})
}

// MarkNoShow records that a confirmed passenger never showed up. Their seats stay taken.
func (s *Service) MarkNoShow(ctx context.Context, cmd NoShowCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	return s.inBooking(ctx, cmd.BookingID, func(tx Tx, b *Booking, _ []*Booking, now time.Time) ([]Event, error) {
		if tx.Ride().DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if !CanBookingTransition(b.Status, BookingNoShow) {
			return nil, invalidBooking(b.Status, BookingNoShow)
		}
		from := b.Status
		b.Status = BookingNoShow
		if err := s.saveBooking(ctx, tx, b, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		return []Event{
			bookingEvent(KindBookingCancelled, "", b.PassengerID, b, now, map[string]any{
				"message": "you were marked as a no-show for this ride",
			}),
		}, nil
	})
}

// MarkPaid settles a completed booking. Paying twice is rejected.
func (s *Service) MarkPaid(ctx context.Context, cmd MarkPaidCommand) (*Booking, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	return s.inBooking(ctx, cmd.BookingID, func(tx Tx, b *Booking, _ []*Booking, now time.Time) ([]Event, error) {
		if tx.Ride().DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if b.Status != BookingCompleted {
			return nil, fmt.Errorf("%w: booking is %s, not completed", ErrInvalidTransition, b.Status)
		}
		if b.PaymentStatus == PaymentPaid {
			return nil, ErrAlreadyPaid
		}
		method := cmd.Method
		if method == "" {
			method = DefaultPaymentMethod
		}
		b.PaymentStatus = PaymentPaid
		b.PaymentMethod = method
		b.PaidAt = &now
		if err := tx.SaveBooking(ctx, b); err != nil {
			return nil, err
		}
		if err := tx.AppendTransition(ctx, &Transition{
			EntityType: "booking",
			EntityID:   b.ID,
			RideID:     b.RideID,
			FromStatus: string(PaymentUnpaid),
			ToStatus:   string(PaymentPaid),
			ActorType:  string(ActorDriver),
			ActorID:    cmd.DriverID,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}
		return []Event{
			bookingEvent(KindPaymentReceived, PushBookingPaid, b.PassengerID, b, now, map[string]any{
				"amount":   b.TotalAmount.Amount,
				"currency": b.TotalAmount.Currency,
			}),
		}, nil
	})
}

// GetBooking returns a booking to its passenger or the ride's driver.
func (s *Service) GetBooking(ctx context.Context, id, callerID types.ID) (*Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.PassengerID == callerID {
		return b, nil
	}
	r, err := s.store.GetRide(ctx, b.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != callerID {
		return nil, ErrNotParticipant
	}
	return b, nil
}

func (s *Service) ListPassengerBookings(ctx context.Context, passengerID types.ID, status BookingStatus, p Page) ([]*Booking, int, error) {
	return s.store.ListBookingsByPassenger(ctx, passengerID, status, p)
}

func (s *Service) BookingStats(ctx context.Context, passengerID types.ID) (BookingStats, error) {
	st, err := s.store.PassengerBookingStats(ctx, passengerID)
	if err != nil {
		return BookingStats{}, err
	}
	st.TotalSpent.Currency = s.fares.Currency()
	if st.TotalBookings > 0 {
		st.CompletionRate = math.Round(float64(st.CompletedBookings)*1000/float64(st.TotalBookings)) / 10
	}
	return st, nil
}

// inBooking locates the booking's ride, locks it, and re-reads the booking
// inside the unit of work before handing it to fn.
func (s *Service) inBooking(ctx context.Context, bookingID types.ID, fn func(tx Tx, b *Booking, bookings []*Booking, now time.Time) ([]Event, error)) (*Booking, error) {
	found, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	var out *Booking
	err = s.inRide(ctx, found.RideID, func(tx Tx, now time.Time) ([]Event, error) {
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}
		var b *Booking
		for _, candidate := range bookings {
			if candidate.ID == bookingID {
				b = candidate
				break
			}
		}
		if b == nil {
			return nil, ErrBookingNotFound
		}
		events, err := fn(tx, b, bookings, now)
		if err != nil {
			return nil, err
		}
		out = b.clone()
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("booking updated",
		zap.String("booking_id", out.ID.String()),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

// expire cancels a pending request on the system's behalf.
func (s *Service) expire(ctx context.Context, tx Tx, b *Booking, reason string, now time.Time) (Event, error) {
	from := b.Status
	b.Status = BookingCancelled
	b.CancelledBy = ActorSystem
	b.CancelReason = reason
	b.CancelledAt = &now
	if err := s.saveBooking(ctx, tx, b, from, ActorSystem, "", now); err != nil {
		return Event{}, err
	}
	return bookingEvent(KindBookingCancelled, PushBookingCancelled, b.PassengerID, b, now, map[string]any{
		"cancelled_by": string(ActorSystem),
		"reason":       reason,
	}), nil
}

func invalidBooking(from, to BookingStatus) error {
	return fmt.Errorf("%w: booking %s -> %s", ErrInvalidTransition, from, to)
}
