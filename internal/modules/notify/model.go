// README: Notification boundaries: inbox, real-time push and the event bus.
package notify

import (
	"context"
	"time"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

// Notifier persists a notification to a user's inbox.
type Notifier interface {
	Notify(ctx context.Context, kind string, recipient types.ID, payload map[string]any) error
}

// Pusher delivers a real-time event to a user's devices or open sessions.
type Pusher interface {
	PushEvent(ctx context.Context, userID types.ID, event string, payload map[string]any) error
}

// Bus publishes committed events for out-of-process consumers (email, analytics).
type Bus interface {
	PublishEvent(ctx context.Context, e ride.Event) error
}

// Notification is one inbox entry.
type Notification struct {
	ID        int64          `json:"id"`
	UserID    types.ID       `json:"user_id"`
	Kind      string         `json:"kind"`
	RideID    types.ID       `json:"ride_id,omitempty"`
	BookingID types.ID       `json:"booking_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// Inbox is the read side of a user's notifications.
type Inbox interface {
	ListNotifications(ctx context.Context, userID types.ID, unreadOnly bool, p ride.Page) ([]Notification, int, error)
	MarkRead(ctx context.Context, userID types.ID, id int64) error
}

func payloadID(payload map[string]any, key string) types.ID {
	if v, ok := payload[key].(string); ok {
		return types.ID(v)
	}
	return ""
}
