// README: In-memory Store used when no database is configured and in tests.
package ride

import (
	"context"
	"sort"
	"sync"
	"time"

	"ridepool/internal/types"
)

type MemoryStore struct {
	mu          sync.RWMutex
	rides       map[types.ID]*Ride
	bookings    map[types.ID]*Booking
	transitions []Transition

	locksMu sync.Mutex
	locks   map[types.ID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:    make(map[types.ID]*Ride),
		bookings: make(map[types.ID]*Booking),
		locks:    make(map[types.ID]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateRide(ctx context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; ok {
		return ErrConflict
	}
	s.rides[r.ID] = r.clone()
	return nil
}

func (s *MemoryStore) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrRideNotFound
	}
	return r.clone(), nil
}

func (s *MemoryStore) GetRides(ctx context.Context, ids []types.ID) ([]*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Ride, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.rides[id]; ok {
			out = append(out, r.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRidesByDriver(ctx context.Context, driverID types.ID, status Status, p Page) ([]*Ride, int, error) {
	s.mu.RLock()
	var matched []*Ride
	for _, r := range s.rides {
		if r.DriverID == driverID && (status == "" || r.Status == status) {
			matched = append(matched, r.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].DepartureTime.After(matched[j].DepartureTime)
	})
	return paginate(matched, p), len(matched), nil
}

func (s *MemoryStore) ListBookableRides(ctx context.Context, now time.Time) ([]*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Ride
	for _, r := range s.rides {
		if r.Status == StatusScheduled && r.DepartureTime.After(now) {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}

func (s *MemoryStore) ListStalePendingRides(ctx context.Context, now time.Time) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[types.ID]bool)
	var ids []types.ID
	for _, b := range s.bookings {
		if b.Status != BookingPending || seen[b.RideID] {
			continue
		}
		r, ok := s.rides[b.RideID]
		if !ok {
			continue
		}
		if r.Status != StatusScheduled || !r.DepartureTime.After(now) {
			seen[b.RideID] = true
			ids = append(ids, b.RideID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id types.ID) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b.clone(), nil
}

func (s *MemoryStore) ListBookingsByRide(ctx context.Context, rideID types.ID) ([]*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rideBookingsLocked(rideID), nil
}

func (s *MemoryStore) ListBookingsByPassenger(ctx context.Context, passengerID types.ID, status BookingStatus, p Page) ([]*Booking, int, error) {
	s.mu.RLock()
	var matched []*Booking
	for _, b := range s.bookings {
		if b.PassengerID == passengerID && (status == "" || b.Status == status) {
			matched = append(matched, b.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, p), len(matched), nil
}

func (s *MemoryStore) PassengerBookingStats(ctx context.Context, passengerID types.ID) (BookingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st BookingStats
	for _, b := range s.bookings {
		if b.PassengerID != passengerID {
			continue
		}
		st.TotalBookings++
		switch b.Status {
		case BookingCompleted:
			st.CompletedBookings++
			st.TotalSpent.Amount += b.TotalAmount.Amount
		case BookingCancelled:
			st.CancelledBookings++
		}
	}
	return st, nil
}

func (s *MemoryStore) AppendTransition(ctx context.Context, t *Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(*t)
	return nil
}

// Transitions returns the audit trail recorded so far.
func (s *MemoryStore) Transitions() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transition(nil), s.transitions...)
}

func (s *MemoryStore) InRide(ctx context.Context, rideID types.ID, fn func(Tx) error) error {
	lock := s.rideLock(rideID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	r, ok := s.rides[rideID]
	if !ok {
		s.mu.RUnlock()
		return ErrRideNotFound
	}
	tx := &memTx{
		ride:        r.clone(),
		rideVersion: r.StatusVersion,
		bookings:    s.rideBookingsLocked(rideID),
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.savedRide != nil {
		s.rides[rideID] = tx.savedRide
	}
	for _, b := range tx.bookings {
		if tx.dirty(b.ID) {
			s.bookings[b.ID] = b.clone()
		}
	}
	for _, t := range tx.transitions {
		s.appendLocked(t)
	}
	return nil
}

func (s *MemoryStore) rideLock(id types.ID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) rideBookingsLocked(rideID types.ID) []*Booking {
	var out []*Booking
	for _, b := range s.bookings {
		if b.RideID == rideID {
			out = append(out, b.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) appendLocked(t Transition) {
	t.ID = int64(len(s.transitions) + 1)
	s.transitions = append(s.transitions, t)
}

// memTx stages writes on copies; InRide applies them only on success.
type memTx struct {
	ride        *Ride
	rideVersion int
	savedRide   *Ride

	bookings    []*Booking
	inserted    map[types.ID]bool
	updated     map[types.ID]bool
	transitions []Transition
}

func (t *memTx) Ride() *Ride {
	return t.ride
}

func (t *memTx) Bookings(ctx context.Context) ([]*Booking, error) {
	out := make([]*Booking, len(t.bookings))
	for i, b := range t.bookings {
		out[i] = b.clone()
	}
	return out, nil
}

func (t *memTx) SaveRide(ctx context.Context, r *Ride) error {
	if r.ID != t.ride.ID || r.StatusVersion != t.rideVersion {
		return ErrConflict
	}
	r.StatusVersion++
	t.rideVersion = r.StatusVersion
	t.savedRide = r.clone()
	return nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *Booking) error {
	for _, existing := range t.bookings {
		if existing.ID == b.ID {
			return ErrConflict
		}
		if existing.Live() && b.Live() && existing.PassengerID == b.PassengerID {
			return ErrDuplicateBooking
		}
	}
	if t.inserted == nil {
		t.inserted = make(map[types.ID]bool)
	}
	t.inserted[b.ID] = true
	t.bookings = append(t.bookings, b.clone())
	return nil
}

func (t *memTx) SaveBooking(ctx context.Context, b *Booking) error {
	for i, existing := range t.bookings {
		if existing.ID != b.ID {
			continue
		}
		if existing.StatusVersion != b.StatusVersion {
			return ErrConflict
		}
		b.StatusVersion++
		t.bookings[i] = b.clone()
		if t.updated == nil {
			t.updated = make(map[types.ID]bool)
		}
		t.updated[b.ID] = true
		return nil
	}
	return ErrBookingNotFound
}

func (t *memTx) AppendTransition(ctx context.Context, tr *Transition) error {
	t.transitions = append(t.transitions, *tr)
	return nil
}

func (t *memTx) dirty(id types.ID) bool {
	return t.inserted[id] || t.updated[id]
}

func paginate[T any](items []T, p Page) []T {
	start, end := p.Bounds(len(items))
	if start == end {
		return []T{}
	}
	return items[start:end]
}
