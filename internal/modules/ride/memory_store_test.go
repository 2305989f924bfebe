package ride

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridepool/internal/types"
)

func TestMemoryStoreRollsBackFailedUnitOfWork(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	r := &Ride{ID: "r1", DriverID: "d1", TotalSeats: 2, AvailableSeats: 2, Status: StatusScheduled, DepartureTime: time.Now().Add(time.Hour)}
	if err := store.CreateRide(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("boom")
	err := store.InRide(ctx, "r1", func(tx Tx) error {
		ride := tx.Ride()
		if err := Reserve(ride, 1); err != nil {
			return err
		}
		if err := tx.SaveRide(ctx, ride); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, &Booking{ID: "b1", RideID: "r1", PassengerID: "p1", SeatsBooked: 1, Status: BookingConfirmed}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := store.GetRide(ctx, "r1")
	if got.AvailableSeats != 2 || got.StatusVersion != 0 {
		t.Fatalf("ride changed by failed unit of work: %+v", got)
	}
	if _, err := store.GetBooking(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("booking leaked from failed unit of work: %v", err)
	}
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.CreateRide(ctx, &Ride{ID: "r1", TotalSeats: 1, AvailableSeats: 1, Status: StatusScheduled}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.InRide(ctx, "r1", func(tx Tx) error {
		stale := tx.Ride().clone()
		stale.StatusVersion = 7
		return tx.SaveRide(ctx, stale)
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestMemoryStoreDuplicateLiveBooking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.CreateRide(ctx, &Ride{ID: "r1", TotalSeats: 2, AvailableSeats: 2, Status: StatusScheduled}); err != nil {
		t.Fatalf("create: %v", err)
	}
	insert := func(id types.ID, status BookingStatus) error {
		return store.InRide(ctx, "r1", func(tx Tx) error {
			return tx.InsertBooking(ctx, &Booking{ID: id, RideID: "r1", PassengerID: "p1", SeatsBooked: 1, Status: status})
		})
	}
	if err := insert("b1", BookingCancelled); err != nil {
		t.Fatalf("cancelled booking: %v", err)
	}
	if err := insert("b2", BookingPending); err != nil {
		t.Fatalf("first live booking: %v", err)
	}
	if err := insert("b3", BookingPending); !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("second live booking: expected ErrDuplicateBooking, got %v", err)
	}

	if _, err := store.GetRide(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.InRide(ctx, "missing", func(Tx) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
