// README: Dispatcher tests with recording sinks.
package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
	block bool
}

func (r *recorder) record(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) Notify(ctx context.Context, kind string, recipient types.ID, payload map[string]any) error {
	return r.record(kind + "->" + recipient.String())
}

func (r *recorder) PushEvent(ctx context.Context, userID types.ID, event string, payload map[string]any) error {
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.record(event + "->" + userID.String())
}

func (r *recorder) PublishEvent(ctx context.Context, e ride.Event) error {
	return r.record(RoutingKey(e))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func runDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcherRoutesEventsToSinks(t *testing.T) {
	inbox, push, bus := &recorder{}, &recorder{}, &recorder{}
	d := NewDispatcher(config.NotifyConfig{Workers: 2, QueueSize: 8, Timeout: time.Second}, nil, inbox, bus, push)
	runDispatcher(t, d)

	d.Publish([]ride.Event{
		{Kind: ride.KindBookingConfirmed, Push: ride.PushBookingConfirmed, Recipient: "p1"},
		{Push: ride.PushBookingPickedUp, Recipient: "p1"},
		{Kind: ride.KindBookingPending, Recipient: "p2"},
	})

	waitFor(t, func() bool { return bus.count() == 3 })
	waitFor(t, func() bool { return inbox.count() == 2 && push.count() == 2 })
}

func TestDispatcherIsolatesFailingSinks(t *testing.T) {
	inbox := &recorder{err: errors.New("db down")}
	slow := &recorder{block: true}
	push := &recorder{}
	d := NewDispatcher(config.NotifyConfig{Workers: 1, QueueSize: 8, Timeout: 50 * time.Millisecond}, nil, inbox, nil, slow, push)
	runDispatcher(t, d)

	d.Publish([]ride.Event{
		{Kind: ride.KindRideCancelled, Push: ride.PushRideCancelled, Recipient: "p1"},
		{Kind: ride.KindRideCancelled, Push: ride.PushRideCancelled, Recipient: "p2"},
	})
	waitFor(t, func() bool { return push.count() == 2 && inbox.count() == 2 })
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(config.NotifyConfig{Workers: 1, QueueSize: 1, Timeout: time.Second}, nil, &recorder{}, nil)

	start := time.Now()
	d.Publish([]ride.Event{
		{Kind: ride.KindBookingRequest, Recipient: "d1"},
		{Kind: ride.KindBookingRequest, Recipient: "d1"},
		{Kind: ride.KindBookingRequest, Recipient: "d1"},
	})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("Publish blocked on a full queue")
	}
	if got := d.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want 2", got)
	}
}

func TestDispatcherDrainsOnShutdown(t *testing.T) {
	inbox := &recorder{}
	d := NewDispatcher(config.NotifyConfig{Workers: 1, QueueSize: 4, Timeout: time.Second}, nil, inbox, nil)
	d.Publish([]ride.Event{
		{Kind: ride.KindRideCompleted, Recipient: "p1"},
		{Kind: ride.KindRideCompleted, Recipient: "p2"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if inbox.count() != 2 {
		t.Fatalf("delivered %d queued events on shutdown, want 2", inbox.count())
	}
}

func TestDispatcherWithRideService(t *testing.T) {
	inbox := NewMemoryInbox()
	d := NewDispatcher(config.NotifyConfig{Workers: 1, QueueSize: 16, Timeout: time.Second}, nil, inbox, nil)
	runDispatcher(t, d)

	d.Publish([]ride.Event{{
		Kind:      ride.KindBookingRequest,
		Push:      ride.PushBookingNew,
		Recipient: "d1",
		RideID:    "r1",
		BookingID: "b1",
		Payload:   map[string]any{"ride_id": "r1", "booking_id": "b1"},
	}})

	waitFor(t, func() bool {
		_, total, _ := inbox.ListNotifications(context.Background(), "d1", false, ride.Page{})
		return total == 1
	})
	items, _, _ := inbox.ListNotifications(context.Background(), "d1", false, ride.Page{})
	if items[0].RideID != "r1" || items[0].BookingID != "b1" || items[0].Kind != ride.KindBookingRequest {
		t.Fatalf("unexpected inbox entry: %+v", items[0])
	}
}
