// README: Dispatcher queues committed ride events and fans them out to sinks on a worker pool.
package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ridepool/internal/config"
	"ridepool/internal/modules/ride"
)

// Dispatcher implements ride.EventSink. Publish never blocks: when the queue
// is full the event is dropped and logged. Sink failures are logged and never
// reach the caller.
type Dispatcher struct {
	notifier Notifier
	pushers  []Pusher
	bus      Bus

	queue   chan ride.Event
	workers int
	timeout time.Duration
	log     *zap.Logger
	dropped atomic.Int64
}

// NewDispatcher builds a dispatcher. notifier and bus may be nil.
func NewDispatcher(cfg config.NotifyConfig, log *zap.Logger, notifier Notifier, bus Bus, pushers ...Pusher) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		notifier: notifier,
		pushers:  pushers,
		bus:      bus,
		queue:    make(chan ride.Event, cfg.QueueSize),
		workers:  cfg.Workers,
		timeout:  cfg.Timeout,
		log:      log.With(zap.String("component", "notify_dispatcher")),
	}
}

func (d *Dispatcher) Publish(events []ride.Event) {
	for _, e := range events {
		select {
		case d.queue <- e:
		default:
			d.dropped.Add(1)
			d.log.Warn("notification queue full, dropping event",
				zap.String("event", e.Name()),
				zap.String("recipient", e.Recipient.String()),
				zap.String("ride_id", e.RideID.String()),
			)
		}
	}
}

// Dropped is the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers queued events until ctx is done, then drains what is left
// with a fresh deadline per event.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case e := <-d.queue:
					d.deliver(ctx, e)
				}
			}
		})
	}
	_ = g.Wait()

	for {
		select {
		case e := <-d.queue:
			d.deliver(context.Background(), e)
		default:
			return nil
		}
	}
}

// deliver sends one event to every sink concurrently under the dispatcher
// timeout. Each failing sink is logged on its own.
func (d *Dispatcher) deliver(ctx context.Context, e ride.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var g errgroup.Group
	if e.Kind != "" && d.notifier != nil {
		g.Go(func() error {
			return d.report(e, "inbox", d.notifier.Notify(ctx, e.Kind, e.Recipient, e.Payload))
		})
	}
	if e.Push != "" {
		for _, p := range d.pushers {
			g.Go(func() error {
				return d.report(e, fmt.Sprintf("%T", p), p.PushEvent(ctx, e.Recipient, e.Push, e.Payload))
			})
		}
	}
	if d.bus != nil {
		g.Go(func() error {
			return d.report(e, "bus", d.bus.PublishEvent(ctx, e))
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) report(e ride.Event, sink string, err error) error {
	if err == nil {
		return nil
	}
	d.log.Warn("notification delivery failed",
		zap.String("sink", sink),
		zap.String("event", e.Name()),
		zap.String("recipient", e.Recipient.String()),
		zap.String("ride_id", e.RideID.String()),
		zap.String("booking_id", e.BookingID.String()),
		zap.Error(err),
	)
	return err
}
