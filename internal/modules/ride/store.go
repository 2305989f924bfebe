// README: Ride/booking persistence boundary and its PostgreSQL implementation.
package ride

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

// Store persists rides and bookings. InRide is the per-ride serialized unit
// of work: seat counters and booking statuses of one ride change only inside it.
type Store interface {
	CreateRide(ctx context.Context, r *Ride) error
	GetRide(ctx context.Context, id types.ID) (*Ride, error)
	GetRides(ctx context.Context, ids []types.ID) ([]*Ride, error)
	ListRidesByDriver(ctx context.Context, driverID types.ID, status Status, p Page) ([]*Ride, int, error)
	ListBookableRides(ctx context.Context, now time.Time) ([]*Ride, error)
	ListStalePendingRides(ctx context.Context, now time.Time) ([]types.ID, error)

	GetBooking(ctx context.Context, id types.ID) (*Booking, error)
	ListBookingsByRide(ctx context.Context, rideID types.ID) ([]*Booking, error)
	ListBookingsByPassenger(ctx context.Context, passengerID types.ID, status BookingStatus, p Page) ([]*Booking, int, error)
	PassengerBookingStats(ctx context.Context, passengerID types.ID) (BookingStats, error)

	AppendTransition(ctx context.Context, t *Transition) error
	InRide(ctx context.Context, rideID types.ID, fn func(Tx) error) error
}

// Tx is a unit of work holding the ride lock. Writes become visible only if
// the function passed to InRide returns nil.
type Tx interface {
	Ride() *Ride
	Bookings(ctx context.Context) ([]*Booking, error)
	SaveRide(ctx context.Context, r *Ride) error
	InsertBooking(ctx context.Context, b *Booking) error
	SaveBooking(ctx context.Context, b *Booking) error
	AppendTransition(ctx context.Context, t *Transition) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const rideColumns = `
	id, driver_id,
	start_address, start_lat, start_lng,
	dest_address, dest_lat, dest_lng,
	route_distance_m, route_duration_s, route_polyline, route_waypoints,
	total_seats, available_seats, price_per_seat, currency,
	gender_preference, departure_time, estimated_arrival_time, notes,
	status, status_version, cancel_reason,
	created_at, started_at, completed_at, cancelled_at`

const bookingColumns = `
	id, ride_id, passenger_id, seats_booked,
	pickup_address, pickup_lat, pickup_lng,
	rider_safe_code, driver_safe_code,
	total_amount, currency, payment_status, payment_method, special_requests,
	status, status_version, cancelled_by, cancel_reason,
	created_at, confirmed_at, picked_up_at, completed_at, cancelled_at, paid_at`

func (s *PostgresStore) CreateRide(ctx context.Context, r *Ride) error {
	waypoints, err := json.Marshal(r.Route.Waypoints)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`) VALUES (
			$1, $2,
			$3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20,
			$21, $22, $23,
			$24, $25, $26, $27
		)`,
		string(r.ID), string(r.DriverID),
		r.Start.Address, r.Start.Point.Lat, r.Start.Point.Lng,
		r.Destination.Address, r.Destination.Point.Lat, r.Destination.Point.Lng,
		r.Route.DistanceMeters, r.Route.DurationSeconds, r.Route.Polyline, waypoints,
		r.TotalSeats, r.AvailableSeats, r.PricePerSeat.Amount, r.PricePerSeat.Currency,
		string(r.GenderPreference), r.DepartureTime, r.EstimatedArrivalTime, r.Notes,
		string(r.Status), r.StatusVersion, r.CancelReason,
		r.CreatedAt, r.StartedAt, r.CompletedAt, r.CancelledAt,
	)
	return err
}

func (s *PostgresStore) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	return getRide(ctx, s.db, id, false)
}

func (s *PostgresStore) GetRides(ctx context.Context, ids []types.ID) ([]*Ride, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = ANY($1)`, raw)
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

func (s *PostgresStore) ListRidesByDriver(ctx context.Context, driverID types.ID, status Status, p Page) ([]*Ride, int, error) {
	p = p.Normalize()
	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM rides
		WHERE driver_id = $1 AND ($2 = '' OR status = $2)`,
		string(driverID), string(status),
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY departure_time DESC
		LIMIT $3 OFFSET $4`,
		string(driverID), string(status), p.Limit, p.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	rides, err := collectRides(rows)
	return rides, total, err
}

func (s *PostgresStore) ListBookableRides(ctx context.Context, now time.Time) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE status = 'scheduled' AND departure_time > $1
		ORDER BY departure_time`, now,
	)
	if err != nil {
		return nil, err
	}
	return collectRides(rows)
}

func (s *PostgresStore) ListStalePendingRides(ctx context.Context, now time.Time) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT r.id FROM rides r
		JOIN bookings b ON b.ride_id = r.id
		WHERE b.status = 'pending'
		  AND (r.status <> 'scheduled' OR r.departure_time <= $1)`, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *PostgresStore) GetBooking(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (s *PostgresStore) ListBookingsByRide(ctx context.Context, rideID types.ID) ([]*Booking, error) {
	return listBookingsByRide(ctx, s.db, rideID)
}

func (s *PostgresStore) ListBookingsByPassenger(ctx context.Context, passengerID types.ID, status BookingStatus, p Page) ([]*Booking, int, error) {
	p = p.Normalize()
	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE passenger_id = $1 AND ($2 = '' OR status = $2)`,
		string(passengerID), string(status),
	).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE passenger_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		string(passengerID), string(status), p.Limit, p.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	bookings, err := collectBookings(rows)
	return bookings, total, err
}

func (s *PostgresStore) PassengerBookingStats(ctx context.Context, passengerID types.ID) (BookingStats, error) {
	var st BookingStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'cancelled'),
		       COALESCE(SUM(total_amount) FILTER (WHERE status = 'completed'), 0)::BIGINT
		FROM bookings WHERE passenger_id = $1`,
		string(passengerID),
	).Scan(&st.TotalBookings, &st.CompletedBookings, &st.CancelledBookings, &st.TotalSpent.Amount)
	return st, err
}

func (s *PostgresStore) AppendTransition(ctx context.Context, t *Transition) error {
	return appendTransition(ctx, s.db, t)
}

func (s *PostgresStore) InRide(ctx context.Context, rideID types.ID, fn func(Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := getRide(ctx, tx, rideID, true)
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx, ride: r}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx   pgx.Tx
	ride *Ride
}

func (t *pgTx) Ride() *Ride {
	return t.ride
}

func (t *pgTx) Bookings(ctx context.Context) ([]*Booking, error) {
	return listBookingsByRide(ctx, t.tx, t.ride.ID)
}

func (t *pgTx) SaveRide(ctx context.Context, r *Ride) error {
	waypoints, err := json.Marshal(r.Route.Waypoints)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE rides SET
			route_distance_m = $1, route_duration_s = $2, route_polyline = $3, route_waypoints = $4,
			total_seats = $5, available_seats = $6, price_per_seat = $7, currency = $8,
			gender_preference = $9, departure_time = $10, estimated_arrival_time = $11, notes = $12,
			status = $13, cancel_reason = $14,
			started_at = $15, completed_at = $16, cancelled_at = $17,
			status_version = status_version + 1
		WHERE id = $18 AND status_version = $19`,
		r.Route.DistanceMeters, r.Route.DurationSeconds, r.Route.Polyline, waypoints,
		r.TotalSeats, r.AvailableSeats, r.PricePerSeat.Amount, r.PricePerSeat.Currency,
		string(r.GenderPreference), r.DepartureTime, r.EstimatedArrivalTime, r.Notes,
		string(r.Status), r.CancelReason,
		r.StartedAt, r.CompletedAt, r.CancelledAt,
		string(r.ID), r.StatusVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	r.StatusVersion++
	return nil
}

func (t *pgTx) InsertBooking(ctx context.Context, b *Booking) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24
		)`,
		string(b.ID), string(b.RideID), string(b.PassengerID), b.SeatsBooked,
		b.PickupLocation.Address, b.PickupLocation.Point.Lat, b.PickupLocation.Point.Lng,
		b.RiderSafeCode, b.DriverSafeCode,
		b.TotalAmount.Amount, b.TotalAmount.Currency, string(b.PaymentStatus), b.PaymentMethod, b.SpecialRequests,
		string(b.Status), b.StatusVersion, string(b.CancelledBy), b.CancelReason,
		b.CreatedAt, b.ConfirmedAt, b.PickedUpAt, b.CompletedAt, b.CancelledAt, b.PaidAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateBooking
	}
	return err
}

func (t *pgTx) SaveBooking(ctx context.Context, b *Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings SET
			total_amount = $1, currency = $2, payment_status = $3, payment_method = $4,
			status = $5, cancelled_by = $6, cancel_reason = $7,
			confirmed_at = $8, picked_up_at = $9, completed_at = $10, cancelled_at = $11, paid_at = $12,
			status_version = status_version + 1
		WHERE id = $13 AND status_version = $14`,
		b.TotalAmount.Amount, b.TotalAmount.Currency, string(b.PaymentStatus), b.PaymentMethod,
		string(b.Status), string(b.CancelledBy), b.CancelReason,
		b.ConfirmedAt, b.PickedUpAt, b.CompletedAt, b.CancelledAt, b.PaidAt,
		string(b.ID), b.StatusVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	b.StatusVersion++
	return nil
}

func (t *pgTx) AppendTransition(ctx context.Context, tr *Transition) error {
	return appendTransition(ctx, t.tx, tr)
}

func getRide(ctx context.Context, q querier, id types.ID, forUpdate bool) (*Ride, error) {
	sql := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanRide(q.QueryRow(ctx, sql, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	return r, err
}

func listBookingsByRide(ctx context.Context, q querier, rideID types.ID) ([]*Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE ride_id = $1
		ORDER BY created_at, id`, string(rideID),
	)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func appendTransition(ctx context.Context, q querier, t *Transition) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ride_events (
			entity_type, entity_id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.EntityType, string(t.EntityID), string(t.RideID),
		t.FromStatus, t.ToStatus, t.ActorType, string(t.ActorID), t.CreatedAt,
	)
	return err
}

func collectRides(rows pgx.Rows) ([]*Ride, error) {
	defer rows.Close()
	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectBookings(rows pgx.Rows) ([]*Booking, error) {
	defer rows.Close()
	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var waypoints []byte
	var gender, status string
	err := row.Scan(
		&r.ID, &r.DriverID,
		&r.Start.Address, &r.Start.Point.Lat, &r.Start.Point.Lng,
		&r.Destination.Address, &r.Destination.Point.Lat, &r.Destination.Point.Lng,
		&r.Route.DistanceMeters, &r.Route.DurationSeconds, &r.Route.Polyline, &waypoints,
		&r.TotalSeats, &r.AvailableSeats, &r.PricePerSeat.Amount, &r.PricePerSeat.Currency,
		&gender, &r.DepartureTime, &r.EstimatedArrivalTime, &r.Notes,
		&status, &r.StatusVersion, &r.CancelReason,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	r.GenderPreference = Gender(gender)
	r.Status = Status(status)
	if len(waypoints) > 0 {
		if err := json.Unmarshal(waypoints, &r.Route.Waypoints); err != nil {
			return nil, fmt.Errorf("decode waypoints of ride %s: %w", r.ID, err)
		}
	}
	return &r, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var paymentStatus, status, cancelledBy string
	err := row.Scan(
		&b.ID, &b.RideID, &b.PassengerID, &b.SeatsBooked,
		&b.PickupLocation.Address, &b.PickupLocation.Point.Lat, &b.PickupLocation.Point.Lng,
		&b.RiderSafeCode, &b.DriverSafeCode,
		&b.TotalAmount.Amount, &b.TotalAmount.Currency, &paymentStatus, &b.PaymentMethod, &b.SpecialRequests,
		&status, &b.StatusVersion, &cancelledBy, &b.CancelReason,
		&b.CreatedAt, &b.ConfirmedAt, &b.PickedUpAt, &b.CompletedAt, &b.CancelledAt, &b.PaidAt,
	)
	if err != nil {
		return nil, err
	}
	b.PaymentStatus = PaymentStatus(paymentStatus)
	b.Status = BookingStatus(status)
	b.CancelledBy = Actor(cancelledBy)
	return &b, nil
}
