// README: User notification inbox, PostgreSQL-backed with an in-memory variant for dev and tests.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

var ErrNotificationNotFound = fmt.Errorf("notification %w", ride.ErrNotFound)

type PostgresInbox struct {
	db *pgxpool.Pool
}

func NewPostgresInbox(db *pgxpool.Pool) *PostgresInbox {
	return &PostgresInbox{db: db}
}

func (s *PostgresInbox) Notify(ctx context.Context, kind string, recipient types.ID, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (user_id, kind, ride_id, booking_id, payload, read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		string(recipient), kind,
		string(payloadID(payload, "ride_id")), string(payloadID(payload, "booking_id")),
		body, time.Now(),
	)
	return err
}

func (s *PostgresInbox) ListNotifications(ctx context.Context, userID types.ID, unreadOnly bool, p ride.Page) ([]Notification, int, error) {
	p = p.Normalize()
	var total int
	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read = FALSE)`,
		string(userID), unreadOnly,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, ride_id, booking_id, payload, read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		string(userID), unreadOnly, p.Limit, p.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		var (
			n                     Notification
			user, rideID, booking string
			body                  []byte
		)
		if err := rows.Scan(&n.ID, &user, &n.Kind, &rideID, &booking, &body, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		n.UserID, n.RideID, n.BookingID = types.ID(user), types.ID(rideID), types.ID(booking)
		if len(body) > 0 {
			if err := json.Unmarshal(body, &n.Payload); err != nil {
				return nil, 0, err
			}
		}
		out = append(out, n)
	}
	return out, total, rows.Err()
}

func (s *PostgresInbox) MarkRead(ctx context.Context, userID types.ID, id int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, string(userID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MemoryInbox keeps notifications in process memory.
type MemoryInbox struct {
	mu     sync.RWMutex
	nextID int64
	items  []Notification
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{}
}

func (s *MemoryInbox) Notify(ctx context.Context, kind string, recipient types.ID, payload map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.items = append(s.items, Notification{
		ID:        s.nextID,
		UserID:    recipient,
		Kind:      kind,
		RideID:    payloadID(payload, "ride_id"),
		BookingID: payloadID(payload, "booking_id"),
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *MemoryInbox) ListNotifications(ctx context.Context, userID types.ID, unreadOnly bool, p ride.Page) ([]Notification, int, error) {
	s.mu.RLock()
	var matched []Notification
	for _, n := range s.items {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			matched = append(matched, n)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	start, end := p.Bounds(len(matched))
	return append([]Notification{}, matched[start:end]...), len(matched), nil
}

func (s *MemoryInbox) MarkRead(ctx context.Context, userID types.ID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].UserID == userID {
			s.items[i].Read = true
			return nil
		}
	}
	return ErrNotificationNotFound
}
