// README: Domain events emitted by ride and booking transitions, delivered after commit.
package ride

import (
	"time"

	"ridepool/internal/types"
)

// Notification kinds persisted to a user's inbox.
const (
	KindBookingRequest   = "booking_request"
	KindBookingPending   = "booking_pending"
	KindBookingConfirmed = "booking_confirmed"
	KindBookingCancelled = "booking_cancelled"
	KindRideUpdated      = "ride_updated"
	KindRideCancelled    = "ride_cancelled"
	KindRideStarting     = "ride_starting"
	KindRideCompleted    = "ride_completed"
	KindPaymentReceived  = "payment_received"
)

// Real-time push event names.
const (
	PushBookingNew       = "booking:new"
	PushBookingAccepted  = "booking:accepted"
	PushBookingConfirmed = "booking:confirmed"
	PushBookingRejected  = "booking:rejected"
	PushBookingCancelled = "booking:cancelled"
	PushBookingPickedUp  = "booking:picked_up"
	PushBookingPaid      = "booking:paid"
	PushRideUpdated      = "ride:updated"
	PushRideCancelled    = "ride:cancelled"
	PushRideStarted      = "ride:started"
	PushRideCompleted    = "ride:completed"
)

// Event is one message for one recipient. Kind is empty for push-only events
// and Push is empty for inbox-only events.
type Event struct {
	Kind      string         `json:"kind,omitempty"`
	Push      string         `json:"push,omitempty"`
	Recipient types.ID       `json:"recipient"`
	RideID    types.ID       `json:"ride_id"`
	BookingID types.ID       `json:"booking_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	At        time.Time      `json:"at"`
}

// Name is the routing name of the event.
func (e Event) Name() string {
	if e.Push != "" {
		return e.Push
	}
	return e.Kind
}

// EventSink receives committed events. Publish must not block on delivery.
type EventSink interface {
	Publish(events []Event)
}

type nopSink struct{}

func (nopSink) Publish([]Event) {}

func bookingEvent(kind, push string, to types.ID, b *Booking, now time.Time, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["booking_id"] = b.ID.String()
	payload["ride_id"] = b.RideID.String()
	payload["status"] = string(b.Status)
	return Event{
		Kind:      kind,
		Push:      push,
		Recipient: to,
		RideID:    b.RideID,
		BookingID: b.ID,
		Payload:   payload,
		At:        now,
	}
}

func rideEvent(kind, push string, to types.ID, r *Ride, now time.Time) Event {
	return Event{
		Kind:      kind,
		Push:      push,
		Recipient: to,
		RideID:    r.ID,
		Payload: map[string]any{
			"ride_id":        r.ID.String(),
			"status":         string(r.Status),
			"departure_time": r.DepartureTime,
		},
		At: now,
	}
}
