// README: Firebase Cloud Messaging pusher; every user subscribes to the topic user_<id>.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

// messageSender is the part of *messaging.Client the pusher needs.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMPusher struct {
	client messageSender
}

func NewFCMPusher(client *messaging.Client) *FCMPusher {
	return &FCMPusher{client: client}
}

func (p *FCMPusher) PushEvent(ctx context.Context, userID types.ID, event string, payload map[string]any) error {
	msg, err := fcmMessage(userID, event, payload)
	if err != nil {
		return err
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("sending FCM %s to %s: %w", event, userID, err)
	}
	return nil
}

// UserTopic is the FCM topic a user's devices subscribe to.
func UserTopic(userID types.ID) string {
	return "user_" + string(userID)
}

func fcmMessage(userID types.ID, event string, payload map[string]any) (*messaging.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	data := map[string]string{
		"event":   event,
		"payload": string(body),
	}
	for _, key := range []string{"ride_id", "booking_id", "status"} {
		if v, ok := payload[key].(string); ok {
			data[key] = v
		}
	}
	return &messaging.Message{
		Topic: UserTopic(userID),
		Data:  data,
		Notification: &messaging.Notification{
			Title: pushTitle(event),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}, nil
}

var pushTitles = map[string]string{
	ride.PushBookingNew:       "New booking request",
	ride.PushBookingAccepted:  "Booking accepted",
	ride.PushBookingConfirmed: "Your seat is confirmed",
	ride.PushBookingRejected:  "Booking request declined",
	ride.PushBookingCancelled: "Booking cancelled",
	ride.PushBookingPickedUp:  "You have been picked up",
	ride.PushBookingPaid:      "Payment received",
	ride.PushRideUpdated:      "Ride details changed",
	ride.PushRideCancelled:    "Ride cancelled",
	ride.PushRideStarted:      "Your ride has started",
	ride.PushRideCompleted:    "Ride completed",
}

func pushTitle(event string) string {
	if t, ok := pushTitles[event]; ok {
		return t
	}
	return "Ride update"
}
