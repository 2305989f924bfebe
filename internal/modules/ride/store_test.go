// README: PostgreSQL store tests. Skipped unless RIDEPOOL_TEST_DSN is set.
package ride

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/modules/route"
	"ridepool/internal/types"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	r := &Ride{
		ID:          types.NewID(),
		DriverID:    "d_store",
		Start:       testStart,
		Destination: testDest,
		Route: route.Leg{
			DistanceMeters:  10000,
			DurationSeconds: 1200,
			Polyline:        "abc",
			Waypoints:       []types.Point{testStart.Point, testDest.Point},
		},
		TotalSeats:           3,
		AvailableSeats:       3,
		PricePerSeat:         types.Money{Amount: 1500, Currency: "BHD"},
		GenderPreference:     GenderAny,
		DepartureTime:        now.Add(2 * time.Hour),
		EstimatedArrivalTime: now.Add(2*time.Hour + 20*time.Minute),
		Status:               StatusScheduled,
		CreatedAt:            now,
	}
	if err := store.CreateRide(ctx, r); err != nil {
		t.Fatalf("create ride: %v", err)
	}

	got, err := store.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Route.DistanceMeters != 10000 || len(got.Route.Waypoints) != 2 || got.Route.Waypoints[1] != testDest.Point {
		t.Fatalf("route not persisted: %+v", got.Route)
	}
	if got.PricePerSeat != r.PricePerSeat || !got.DepartureTime.Equal(r.DepartureTime) {
		t.Fatalf("ride fields not persisted: %+v", got)
	}

	if _, err := store.GetRide(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing ride: expected ErrNotFound, got %v", err)
	}

	b := &Booking{
		ID:             types.NewID(),
		RideID:         r.ID,
		PassengerID:    "p_store",
		SeatsBooked:    2,
		PickupLocation: testPickupA,
		RiderSafeCode:  "1234",
		DriverSafeCode: "5678",
		TotalAmount:    types.Money{Amount: 3000, Currency: "BHD"},
		PaymentStatus:  PaymentUnpaid,
		Status:         BookingPending,
		CreatedAt:      now,
	}
	err = store.InRide(ctx, r.ID, func(tx Tx) error {
		return tx.InsertBooking(ctx, b)
	})
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}

	dup := *b
	dup.ID = types.NewID()
	err = store.InRide(ctx, r.ID, func(tx Tx) error {
		return tx.InsertBooking(ctx, &dup)
	})
	if !errors.Is(err, ErrDuplicateBooking) {
		t.Fatalf("second live booking: expected ErrDuplicateBooking, got %v", err)
	}

	// A failed unit of work leaves nothing behind.
	boom := errors.New("boom")
	err = store.InRide(ctx, r.ID, func(tx Tx) error {
		ride := tx.Ride()
		if err := Reserve(ride, 2); err != nil {
			return err
		}
		if err := tx.SaveRide(ctx, ride); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	if got, _ := store.GetRide(ctx, r.ID); got.AvailableSeats != 3 {
		t.Fatalf("rolled back reservation leaked: available = %d", got.AvailableSeats)
	}

	err = store.InRide(ctx, r.ID, func(tx Tx) error {
		ride := tx.Ride()
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return err
		}
		if len(bookings) != 1 {
			return errors.New("expected one booking in unit of work")
		}
		if err := Reserve(ride, bookings[0].SeatsBooked); err != nil {
			return err
		}
		bookings[0].Status = BookingConfirmed
		bookings[0].ConfirmedAt = &now
		if err := tx.SaveBooking(ctx, bookings[0]); err != nil {
			return err
		}
		if err := tx.SaveRide(ctx, ride); err != nil {
			return err
		}
		return tx.AppendTransition(ctx, &Transition{
			EntityType: "booking",
			EntityID:   b.ID,
			RideID:     r.ID,
			FromStatus: string(BookingPending),
			ToStatus:   string(BookingConfirmed),
			ActorType:  string(ActorDriver),
			ActorID:    "d_store",
			CreatedAt:  now,
		})
	})
	if err != nil {
		t.Fatalf("accept in unit of work: %v", err)
	}

	stored, err := store.GetBooking(ctx, b.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if stored.Status != BookingConfirmed || stored.PickupLocation != testPickupA || stored.StatusVersion != 1 {
		t.Fatalf("booking not persisted: %+v", stored)
	}
	assertInvariants(t, store, r.ID)

	list, total, err := store.ListBookingsByPassenger(ctx, "p_store", BookingConfirmed, Page{})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("list by passenger: %v (%d/%d)", err, len(list), total)
	}
	rides, total, err := store.ListRidesByDriver(ctx, "d_store", "", Page{})
	if err != nil || total != 1 || len(rides) != 1 {
		t.Fatalf("list by driver: %v (%d/%d)", err, len(rides), total)
	}
	bookable, err := store.ListBookableRides(ctx, now)
	if err != nil || len(bookable) != 1 {
		t.Fatalf("list bookable: %v (%d)", err, len(bookable))
	}
	stats, err := store.PassengerBookingStats(ctx, "p_store")
	if err != nil || stats.TotalBookings != 1 || stats.CompletedBookings != 0 || stats.TotalSpent.Amount != 0 {
		t.Fatalf("passenger stats: %v (%+v)", err, stats)
	}
}

func TestPostgresStoreStalePending(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := newRaceService(store)

	r, err := svc.CreateRide(ctx, CreateRideCommand{
		DriverID:      "d_stale",
		Start:         testStart,
		Destination:   testDest,
		DepartureTime: time.Now().Add(time.Hour),
		TotalSeats:    2,
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	if _, err := svc.RequestBooking(ctx, RequestBookingCommand{RideID: r.ID, PassengerID: "p_stale", SeatsBooked: 1}); err != nil {
		t.Fatalf("request: %v", err)
	}

	ids, err := store.ListStalePendingRides(ctx, time.Now())
	if err != nil || len(ids) != 0 {
		t.Fatalf("before departure: %v %v", ids, err)
	}
	ids, err = store.ListStalePendingRides(ctx, time.Now().Add(2*time.Hour))
	if err != nil || len(ids) != 1 || ids[0] != r.ID {
		t.Fatalf("after departure: %v %v", ids, err)
	}
}

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv("RIDEPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("RIDEPOOL_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE notifications, ride_events, bookings, rides"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewPostgresStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
