package ride

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridepool/internal/types"
)

// ExpireStalePending cancels pending requests on rides that can no longer
// take them: departure has passed or the ride left the scheduled state.
// It returns the number of bookings expired.
func (s *Service) ExpireStalePending(ctx context.Context) (int, error) {
	ids, err := s.store.ListStalePendingRides(ctx, s.now())
	if err != nil {
		return 0, err
	}
	total := 0
	for _, id := range ids {
		n, err := s.expireRide(ctx, id)
		if err != nil {
			s.log.Warn("expire pending bookings failed", zap.String("ride_id", id.String()), zap.Error(err))
			continue
		}
		total += n
	}
	return total, nil
}

func (s *Service) expireRide(ctx context.Context, rideID types.ID) (int, error) {
	expired := 0
	err := s.inRide(ctx, rideID, func(tx Tx, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.Status == StatusScheduled && r.DepartureTime.After(now) {
			return nil, nil
		}
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}
		var events []Event
		for _, b := range filterBookings(bookings, BookingPending) {
			ev, err := s.expire(ctx, tx, b, "ride is no longer open for booking", now)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		expired = len(events)
		return events, nil
	})
	return expired, err
}

// RunPendingSweeper calls ExpireStalePending every interval until ctx is done.
func (s *Service) RunPendingSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireStalePending(ctx)
			if err != nil {
				s.log.Warn("pending sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("expired stale pending bookings", zap.Int("count", n))
			}
		}
	}
}
