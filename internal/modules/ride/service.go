// README: Ride service implements the ride lifecycle on top of Store.InRide.
package ride

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"ridepool/internal/modules/fare"
	"ridepool/internal/modules/location"
	"ridepool/internal/modules/route"
	"ridepool/internal/types"
)

// Index keeps bookable rides discoverable by their start point.
type Index interface {
	Add(ctx context.Context, rideID types.ID, p types.Point) error
	Remove(ctx context.Context, rideID types.ID) error
}

// Area is a circular service area. A zero radius disables the check.
type Area struct {
	Center  types.Point
	RadiusM float64
}

func (a Area) Contains(p types.Point) bool {
	return a.RadiusM <= 0 || location.Within(a.Center, p, a.RadiusM)
}

type Config struct {
	CancelWindow   time.Duration
	RoutingTimeout time.Duration
	ServiceArea    Area
	Rate           fare.Rate
}

type Service struct {
	store     Store
	router    route.Router
	optimizer *route.Optimizer
	fares     *fare.Calculator
	sink      EventSink
	index     Index
	validate  *validator.Validate
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the ride engine. sink and index may be nil.
func NewService(store Store, router route.Router, sink EventSink, index Index, log *zap.Logger, cfg Config) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = nopSink{}
	}
	if cfg.CancelWindow <= 0 {
		cfg.CancelWindow = time.Hour
	}
	if cfg.RoutingTimeout <= 0 {
		cfg.RoutingTimeout = 5 * time.Second
	}
	if cfg.Rate == (fare.Rate{}) {
		cfg.Rate = fare.DefaultRate
	}
	log = log.With(zap.String("service", "ride"))
	return &Service{
		store:     store,
		router:    router,
		optimizer: route.NewOptimizer(router, log),
		fares:     fare.NewCalculator(cfg.Rate),
		sink:      sink,
		index:     index,
		validate:  validator.New(),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

func (s *Service) CreateRide(ctx context.Context, cmd CreateRideCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	if err := checkPoint(cmd.Start.Point); err != nil {
		return nil, err
	}
	if err := checkPoint(cmd.Destination.Point); err != nil {
		return nil, err
	}
	now := s.now()
	if !cmd.DepartureTime.After(now) {
		return nil, ErrPastDeparture
	}
	if !s.cfg.ServiceArea.Contains(cmd.Start.Point) || !s.cfg.ServiceArea.Contains(cmd.Destination.Point) {
		return nil, ErrOutsideServiceArea
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.RoutingTimeout)
	defer cancel()
	leg, err := s.router.Route(rctx, cmd.Start.Point, cmd.Destination.Point)
	if err != nil {
		return nil, fmt.Errorf("%w: route: %v", ErrDependencyFailure, err)
	}
	if len(leg.Waypoints) == 0 {
		leg.Waypoints = []types.Point{cmd.Start.Point, cmd.Destination.Point}
	}

	gender := cmd.GenderPreference
	if gender == "" {
		gender = GenderAny
	}
	r := &Ride{
		ID:                   types.NewID(),
		DriverID:             cmd.DriverID,
		Start:                cmd.Start,
		Destination:          cmd.Destination,
		Route:                leg,
		TotalSeats:           cmd.TotalSeats,
		AvailableSeats:       cmd.TotalSeats,
		PricePerSeat:         s.fares.PerSeat(s.estimate(leg), cmd.TotalSeats),
		GenderPreference:     gender,
		DepartureTime:        cmd.DepartureTime,
		EstimatedArrivalTime: cmd.DepartureTime.Add(legDuration(leg)),
		Notes:                cmd.Notes,
		Status:               StatusScheduled,
		CreatedAt:            now,
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	if err := s.store.AppendTransition(ctx, &Transition{
		EntityType: "ride",
		EntityID:   r.ID,
		RideID:     r.ID,
		ToStatus:   string(StatusScheduled),
		ActorType:  string(ActorDriver),
		ActorID:    cmd.DriverID,
		CreatedAt:  now,
	}); err != nil {
		s.log.Warn("record ride creation failed", zap.String("ride_id", r.ID.String()), zap.Error(err))
	}
	s.indexAdd(ctx, r)
	s.log.Info("ride created",
		zap.String("ride_id", r.ID.String()),
		zap.String("driver_id", r.DriverID.String()),
		zap.Int("seats", r.TotalSeats),
		zap.Int64("price_per_seat", r.PricePerSeat.Amount),
	)
	return r, nil
}

// RoutePreview is the driving route between two points and what a ride
// along it would cost in total.
type RoutePreview struct {
	Route        route.Leg   `json:"route"`
	FareEstimate types.Money `json:"fare_estimate"`
}

// PreviewRoute asks the routing provider for a route without creating a ride.
func (s *Service) PreviewRoute(ctx context.Context, cmd PreviewRouteCommand) (*RoutePreview, error) {
	if err := checkPoint(cmd.Start); err != nil {
		return nil, err
	}
	if err := checkPoint(cmd.Destination); err != nil {
		return nil, err
	}
	rctx, cancel := context.WithTimeout(ctx, s.cfg.RoutingTimeout)
	defer cancel()
	leg, err := s.router.Route(rctx, cmd.Start, cmd.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: route: %v", ErrDependencyFailure, err)
	}
	return &RoutePreview{Route: leg, FareEstimate: s.estimate(leg).Money()}, nil
}

func (s *Service) GetRide(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.GetRide(ctx, id)
}

func (s *Service) ListDriverRides(ctx context.Context, driverID types.ID, status Status, p Page) ([]*Ride, int, error) {
	return s.store.ListRidesByDriver(ctx, driverID, status, p)
}

// RideBookings is the driver's full view or everyone else's redacted view.
type RideBookings struct {
	Bookings  []*Booking       `json:"bookings,omitempty"`
	Summaries []BookingSummary `json:"summaries,omitempty"`
}

func (s *Service) ListRideBookings(ctx context.Context, rideID, callerID types.ID) (RideBookings, error) {
	r, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return RideBookings{}, err
	}
	bookings, err := s.store.ListBookingsByRide(ctx, rideID)
	if err != nil {
		return RideBookings{}, err
	}
	if r.DriverID == callerID {
		return RideBookings{Bookings: bookings}, nil
	}
	out := RideBookings{Summaries: []BookingSummary{}}
	for _, b := range bookings {
		if b.Live() {
			out.Summaries = append(out.Summaries, b.Summary())
		}
	}
	return out, nil
}

func (s *Service) UpdateRide(ctx context.Context, cmd UpdateRideCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	var out *Ride
	err := s.inRide(ctx, cmd.RideID, func(tx Tx, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if r.Status != StatusScheduled {
			return nil, fmt.Errorf("%w: cannot update a %s ride", ErrInvalidTransition, r.Status)
		}
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}
		active := filterBookings(bookings, BookingPending, BookingConfirmed)
		if len(active) > 0 && (cmd.TotalSeats != nil || cmd.PricePerSeat != nil || cmd.GenderPreference != nil) {
			return nil, ErrRideHasBookings
		}

		if cmd.Notes != nil {
			r.Notes = *cmd.Notes
		}
		if cmd.DepartureTime != nil {
			if !cmd.DepartureTime.After(now) {
				return nil, ErrPastDeparture
			}
			r.DepartureTime = *cmd.DepartureTime
			r.EstimatedArrivalTime = r.DepartureTime.Add(legDuration(r.Route))
		}
		if cmd.TotalSeats != nil {
			committed := r.CommittedSeats()
			if *cmd.TotalSeats < committed {
				return nil, ErrSeatsBelowCommitted
			}
			r.TotalSeats = *cmd.TotalSeats
			r.AvailableSeats = r.TotalSeats - committed
		}
		if cmd.PricePerSeat != nil {
			r.PricePerSeat = types.Money{Amount: *cmd.PricePerSeat, Currency: r.PricePerSeat.Currency}
		}
		if cmd.GenderPreference != nil {
			r.GenderPreference = *cmd.GenderPreference
		}
		if err := tx.SaveRide(ctx, r); err != nil {
			return nil, err
		}

		events := make([]Event, 0, len(active))
		for _, b := range active {
			events = append(events, rideEvent(KindRideUpdated, PushRideUpdated, b.PassengerID, r, now))
		}
		out = r.clone()
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StartRide moves a ride to in_progress. Pickup ordering runs before the ride
// is locked; a plan computed against a different set of confirmed bookings is
// dropped and the planned route kept.
func (s *Service) StartRide(ctx context.Context, cmd StartRideCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	r, err := s.store.GetRide(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != cmd.DriverID {
		return nil, ErrNotDriver
	}
	if !CanTransition(r.Status, StatusInProgress) {
		return nil, invalidRide(r.Status, StatusInProgress)
	}
	bookings, err := s.store.ListBookingsByRide(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	signature := confirmedSignature(bookings)

	var plan *route.Plan
	if pickups := distinctPickups(r, bookings); len(pickups) > 0 {
		octx, cancel := context.WithTimeout(ctx, 2*s.cfg.RoutingTimeout)
		p, err := s.optimizer.Optimize(octx, r.Start.Point, r.Destination.Point, pickups)
		cancel()
		if err != nil {
			s.log.Warn("pickup routing failed, keeping planned route",
				zap.String("ride_id", r.ID.String()), zap.Error(err))
		} else {
			plan = &p
		}
	}

	var out *Ride
	err = s.inRide(ctx, cmd.RideID, func(tx Tx, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if !CanTransition(r.Status, StatusInProgress) {
			return nil, invalidRide(r.Status, StatusInProgress)
		}
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}

		from := r.Status
		r.Status = StatusInProgress
		r.StartedAt = &now
		if plan != nil {
			if confirmedSignature(bookings) == signature {
				r.Route = plan.Leg
				r.EstimatedArrivalTime = now.Add(legDuration(plan.Leg))
				r.PricePerSeat = s.fares.PerSeat(s.estimate(plan.Leg), r.TotalSeats)
			} else {
				s.log.Info("confirmed bookings changed while planning, keeping planned route",
					zap.String("ride_id", r.ID.String()))
			}
		}

		var events []Event
		for _, b := range bookings {
			switch b.Status {
			case BookingPending:
				ev, err := s.expire(ctx, tx, b, "ride has started", now)
				if err != nil {
					return nil, err
				}
				events = append(events, ev)
			case BookingConfirmed, BookingPickedUp:
				events = append(events, rideEvent(KindRideStarting, PushRideStarted, b.PassengerID, r, now))
			}
		}
		if err := s.saveRide(ctx, tx, r, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		out = r.clone()
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	s.indexRemove(ctx, out.ID)
	s.log.Info("ride started",
		zap.String("ride_id", out.ID.String()),
		zap.Bool("optimized", plan != nil),
		zap.Int("distance_m", out.Route.DistanceMeters),
	)
	return out, nil
}

// FareShare is one rider's part of a completed ride's fare.
type FareShare struct {
	BookingID   types.ID    `json:"id"`
	PassengerID types.ID    `json:"passenger_id"`
	SeatsBooked int         `json:"seats_booked"`
	TotalAmount types.Money `json:"total_amount"`
}

// Completion is the settlement of a completed ride.
type Completion struct {
	Ride           *Ride       `json:"ride"`
	Bookings       []FareShare `json:"bookings"`
	DriverEarnings types.Money `json:"driver_total_earnings"`
}

// CompleteRide splits the fare of the driven route over the seats of every
// rider still on board and completes their bookings.
func (s *Service) CompleteRide(ctx context.Context, cmd CompleteRideCommand) (*Completion, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	var out *Completion
	err := s.inRide(ctx, cmd.RideID, func(tx Tx, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if !CanTransition(r.Status, StatusCompleted) {
			return nil, invalidRide(r.Status, StatusCompleted)
		}
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}

		riders := filterBookings(bookings, BookingConfirmed, BookingPickedUp)
		seats := 0
		for _, b := range riders {
			seats += b.SeatsBooked
		}
		perSeat := s.fares.PerSeat(s.estimate(r.Route), seats)
		settled := &Completion{
			Bookings:       make([]FareShare, 0, len(riders)),
			DriverEarnings: types.Money{Currency: perSeat.Currency},
		}

		events := make([]Event, 0, len(riders))
		for _, b := range riders {
			from := b.Status
			b.Status = BookingCompleted
			b.TotalAmount = perSeat.Times(b.SeatsBooked)
			b.CompletedAt = &now
			if err := s.saveBooking(ctx, tx, b, from, ActorDriver, cmd.DriverID, now); err != nil {
				return nil, err
			}
			settled.Bookings = append(settled.Bookings, FareShare{
				BookingID:   b.ID,
				PassengerID: b.PassengerID,
				SeatsBooked: b.SeatsBooked,
				TotalAmount: b.TotalAmount,
			})
			settled.DriverEarnings.Amount += b.TotalAmount.Amount
			events = append(events, bookingEvent(KindRideCompleted, PushRideCompleted, b.PassengerID, b, now, map[string]any{
				"amount":   b.TotalAmount.Amount,
				"currency": b.TotalAmount.Currency,
			}))
		}

		from := r.Status
		r.Status = StatusCompleted
		r.CompletedAt = &now
		if seats > 0 {
			r.PricePerSeat = perSeat
		}
		if err := s.saveRide(ctx, tx, r, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		settled.Ride = r.clone()
		out = settled
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("ride completed",
		zap.String("ride_id", out.Ride.ID.String()),
		zap.Int64("price_per_seat", out.Ride.PricePerSeat.Amount),
		zap.Int64("driver_earnings", out.DriverEarnings.Amount),
	)
	return out, nil
}

// CancelRide cancels a scheduled ride and every pending or confirmed booking on it.
// Once a passenger has been picked up the ride can only be completed.
func (s *Service) CancelRide(ctx context.Context, cmd CancelRideCommand) (*Ride, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, badRequest(err)
	}
	var out *Ride
	err := s.inRide(ctx, cmd.RideID, func(tx Tx, now time.Time) ([]Event, error) {
		r := tx.Ride()
		if r.DriverID != cmd.DriverID {
			return nil, ErrNotDriver
		}
		if !CanTransition(r.Status, StatusCancelled) {
			return nil, invalidRide(r.Status, StatusCancelled)
		}
		bookings, err := tx.Bookings(ctx)
		if err != nil {
			return nil, err
		}

		if len(filterBookings(bookings, BookingPickedUp)) > 0 {
			return nil, ErrRiderOnBoard
		}
		affected := filterBookings(bookings, BookingPending, BookingConfirmed)
		for _, b := range affected {
			from := b.Status
			if from == BookingConfirmed {
				Release(r, b.SeatsBooked)
			}
			b.Status = BookingCancelled
			b.CancelledBy = ActorDriver
			b.CancelReason = cmd.Reason
			b.CancelledAt = &now
			if err := s.saveBooking(ctx, tx, b, from, ActorDriver, cmd.DriverID, now); err != nil {
				return nil, err
			}
		}

		from := r.Status
		r.Status = StatusCancelled
		r.CancelReason = cmd.Reason
		r.CancelledAt = &now
		if err := s.saveRide(ctx, tx, r, from, ActorDriver, cmd.DriverID, now); err != nil {
			return nil, err
		}
		events := make([]Event, 0, len(affected))
		for _, b := range affected {
			events = append(events, rideEvent(KindRideCancelled, PushRideCancelled, b.PassengerID, r, now))
		}
		out = r.clone()
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	s.indexRemove(ctx, out.ID)
	s.log.Info("ride cancelled", zap.String("ride_id", out.ID.String()))
	return out, nil
}

// inRide runs fn in the ride's unit of work and publishes its events after commit.
func (s *Service) inRide(ctx context.Context, rideID types.ID, fn func(tx Tx, now time.Time) ([]Event, error)) error {
	var events []Event
	err := s.store.InRide(ctx, rideID, func(tx Tx) error {
		var err error
		events, err = fn(tx, s.now())
		return err
	})
	if err != nil {
		return err
	}
	if len(events) > 0 {
		s.sink.Publish(events)
	}
	return nil
}

func (s *Service) saveRide(ctx context.Context, tx Tx, r *Ride, from Status, actor Actor, actorID types.ID, now time.Time) error {
	if err := tx.SaveRide(ctx, r); err != nil {
		return err
	}
	if from == r.Status {
		return nil
	}
	return tx.AppendTransition(ctx, &Transition{
		EntityType: "ride",
		EntityID:   r.ID,
		RideID:     r.ID,
		FromStatus: string(from),
		ToStatus:   string(r.Status),
		ActorType:  string(actor),
		ActorID:    actorID,
		CreatedAt:  now,
	})
}

func (s *Service) saveBooking(ctx context.Context, tx Tx, b *Booking, from BookingStatus, actor Actor, actorID types.ID, now time.Time) error {
	if err := tx.SaveBooking(ctx, b); err != nil {
		return err
	}
	if from == b.Status {
		return nil
	}
	return tx.AppendTransition(ctx, &Transition{
		EntityType: "booking",
		EntityID:   b.ID,
		RideID:     b.RideID,
		FromStatus: string(from),
		ToStatus:   string(b.Status),
		ActorType:  string(actor),
		ActorID:    actorID,
		CreatedAt:  now,
	})
}

func (s *Service) estimate(leg route.Leg) fare.Fare {
	return s.fares.Estimate(float64(leg.DistanceMeters), float64(leg.DurationSeconds))
}

func (s *Service) indexAdd(ctx context.Context, r *Ride) {
	if s.index == nil {
		return
	}
	if err := s.index.Add(ctx, r.ID, r.Start.Point); err != nil {
		s.log.Warn("index ride failed", zap.String("ride_id", r.ID.String()), zap.Error(err))
	}
}

func (s *Service) indexRemove(ctx context.Context, id types.ID) {
	if s.index == nil {
		return
	}
	if err := s.index.Remove(ctx, id); err != nil {
		s.log.Warn("unindex ride failed", zap.String("ride_id", id.String()), zap.Error(err))
	}
}

func legDuration(leg route.Leg) time.Duration {
	return time.Duration(leg.DurationSeconds) * time.Second
}

func filterBookings(bookings []*Booking, statuses ...BookingStatus) []*Booking {
	var out []*Booking
	for _, b := range bookings {
		for _, st := range statuses {
			if b.Status == st {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// distinctPickups lists confirmed pickup points other than the ride start, first occurrence kept.
func distinctPickups(r *Ride, bookings []*Booking) []types.Point {
	seen := map[types.Point]bool{r.Start.Point: true}
	var out []types.Point
	for _, b := range filterBookings(bookings, BookingConfirmed) {
		p := b.PickupLocation.Point
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func confirmedSignature(bookings []*Booking) string {
	var parts []string
	for _, b := range filterBookings(bookings, BookingConfirmed) {
		p := b.PickupLocation.Point
		parts = append(parts, b.ID.String()+"@"+
			strconv.FormatFloat(p.Lat, 'f', -1, 64)+","+strconv.FormatFloat(p.Lng, 'f', -1, 64))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func checkPoint(p types.Point) error {
	if p.IsZero() || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: invalid coordinates (%f, %f)", ErrBadRequest, p.Lat, p.Lng)
	}
	return nil
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrBadRequest, err)
}

func invalidRide(from, to Status) error {
	return fmt.Errorf("%w: ride %s -> %s", ErrInvalidTransition, from, to)
}
