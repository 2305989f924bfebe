// README: Search service; narrows candidates with the GEO index and filters with haversine.
package search

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"ridepool/internal/modules/location"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

// Index returns ride ids whose start lies near p. location.RedisIndex implements it.
type Index interface {
	Nearby(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error)
}

// RideSource is the read side of ride.Store used by search.
type RideSource interface {
	GetRides(ctx context.Context, ids []types.ID) ([]*ride.Ride, error)
	ListBookableRides(ctx context.Context, now time.Time) ([]*ride.Ride, error)
}

type Service struct {
	rides RideSource
	index Index
	tz    *time.Location
	log   *zap.Logger
	now   func() time.Time
}

// NewService builds a search service. index may be nil; tz defaults to UTC.
func NewService(rides RideSource, index Index, tz *time.Location, log *zap.Logger) *Service {
	if tz == nil {
		tz = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rides: rides,
		index: index,
		tz:    tz,
		log:   log.With(zap.String("service", "search")),
		now:   time.Now,
	}
}

// Nearby lists bookable rides starting within the query radius, closest first.
func (s *Service) Nearby(ctx context.Context, q NearbyQuery) (ResultPage, error) {
	if q.Origin.IsZero() {
		return ResultPage{}, fmt.Errorf("%w: origin is required", ride.ErrBadRequest)
	}
	if q.RadiusM < 0 || q.MinSeats < 0 {
		return ResultPage{}, fmt.Errorf("%w: radius and seats must not be negative", ride.ErrBadRequest)
	}
	radius := q.RadiusM
	if radius == 0 {
		radius = defaultRadiusM
	}

	candidates, err := s.candidates(ctx, &q.Origin, radius)
	if err != nil {
		return ResultPage{}, err
	}

	var results []Result
	for _, r := range candidates {
		d := location.DistanceMeters(q.Origin, r.Start.Point)
		if d > radius {
			continue
		}
		if q.MinSeats > 0 && r.AvailableSeats < q.MinSeats {
			continue
		}
		if !admits(r, q.Gender) {
			continue
		}
		if q.Date != nil && !s.sameDay(r.DepartureTime, *q.Date) {
			continue
		}
		res := Result{Ride: r, DistanceFromStartM: metres(d)}
		if q.Destination != nil {
			res.DistanceToDestinationM = metres(location.DistanceMeters(*q.Destination, r.Destination.Point))
		}
		results = append(results, res)
	}
	sortResults(results)

	p := q.Page.Normalize()
	total := len(results)
	start, end := p.Bounds(total)
	page := results[start:end]
	if page == nil {
		page = []Result{}
	}
	return ResultPage{
		Results: page,
		Count:   len(page),
		Total:   total,
		Page:    p.Page,
		Pages:   (total + p.Limit - 1) / p.Limit,
	}, nil
}

// Advanced applies every filter set on q and ranks by distance from the
// requested start, then departure.
func (s *Service) Advanced(ctx context.Context, q AdvancedQuery) ([]Result, error) {
	if q.MaxWalkingM < 0 || q.MinSeats < 0 {
		return nil, fmt.Errorf("%w: walking distance and seats must not be negative", ride.ErrBadRequest)
	}
	if q.Start != nil && q.Start.IsZero() {
		q.Start = nil
	}
	if q.Destination != nil && q.Destination.IsZero() {
		q.Destination = nil
	}
	walk := q.MaxWalkingM
	if walk == 0 {
		walk = defaultMaxWalkingM
	}
	minSeats := q.MinSeats
	if minSeats == 0 {
		minSeats = 1
	}

	candidates, err := s.candidates(ctx, q.Start, walk)
	if err != nil {
		return nil, err
	}

	results := []Result{}
	for _, r := range candidates {
		if r.AvailableSeats < minSeats || !admits(r, q.Gender) {
			continue
		}
		if q.MaxPrice != nil && r.PricePerSeat.Amount > *q.MaxPrice {
			continue
		}
		if q.Date != nil && !s.sameDay(r.DepartureTime, *q.Date) {
			continue
		}
		if q.DepartureAfter != nil && r.DepartureTime.Before(*q.DepartureAfter) {
			continue
		}
		if q.DepartureUntil != nil && r.DepartureTime.After(*q.DepartureUntil) {
			continue
		}
		res := Result{Ride: r}
		if q.Start != nil {
			d := location.DistanceMeters(*q.Start, r.Start.Point)
			if d > walk {
				continue
			}
			res.DistanceFromStartM = metres(d)
		}
		if q.Destination != nil {
			d := location.DistanceMeters(*q.Destination, r.Destination.Point)
			if d > walk {
				continue
			}
			res.DistanceToDestinationM = metres(d)
		}
		results = append(results, res)
	}
	sortResults(results)
	return results, nil
}

// candidates returns scheduled rides departing in the future. With an origin
// and an index it asks the index first and falls back to a full scan.
func (s *Service) candidates(ctx context.Context, origin *types.Point, radiusM float64) ([]*ride.Ride, error) {
	now := s.now()
	var rides []*ride.Ride
	fromIndex := false
	if origin != nil && s.index != nil {
		ids, err := s.index.Nearby(ctx, *origin, radiusM*indexSlack)
		if err != nil {
			s.log.Warn("ride index lookup failed, scanning store", zap.Error(err))
		} else {
			rides, err = s.rides.GetRides(ctx, ids)
			if err != nil {
				return nil, err
			}
			fromIndex = true
		}
	}
	if !fromIndex {
		var err error
		rides, err = s.rides.ListBookableRides(ctx, now)
		if err != nil {
			return nil, err
		}
	}

	out := rides[:0]
	for _, r := range rides {
		if r.Status == ride.StatusScheduled && r.DepartureTime.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Service) sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(s.tz).Date()
	by, bm, bd := b.In(s.tz).Date()
	return ay == by && am == bm && ad == bd
}

func admits(r *ride.Ride, g ride.Gender) bool {
	if g == "" || g == ride.GenderAny {
		return true
	}
	return r.GenderPreference.Admits(g)
}

// sortResults orders by distance from start when known, then departure.
func sortResults(results []Result) {
	location.SortByDistance(results,
		func(r Result) float64 {
			if r.DistanceFromStartM == nil {
				return math.Inf(1)
			}
			return *r.DistanceFromStartM
		},
		func(a, b Result) bool { return a.Ride.DepartureTime.Before(b.Ride.DepartureTime) },
	)
}

func metres(d float64) *float64 {
	v := math.Round(d)
	return &v
}
