package search

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

var (
	origin = types.Point{Lat: 26.1300, Lng: 50.5500}
	campus = types.Point{Lat: 26.0500, Lng: 50.5100}
)

// north returns the point metres due north of p.
func north(p types.Point, metres float64) types.Point {
	return types.Point{Lat: p.Lat + metres/111195.0, Lng: p.Lng}
}

type rideOpt func(*ride.Ride)

func withSeats(available int) rideOpt { return func(r *ride.Ride) { r.AvailableSeats = available } }
func withGender(g ride.Gender) rideOpt { return func(r *ride.Ride) { r.GenderPreference = g } }
func withPrice(fils int64) rideOpt     { return func(r *ride.Ride) { r.PricePerSeat.Amount = fils } }
func withDest(p types.Point) rideOpt   { return func(r *ride.Ride) { r.Destination.Point = p } }
func withStatus(s ride.Status) rideOpt { return func(r *ride.Ride) { r.Status = s } }

func addRide(t *testing.T, store *ride.MemoryStore, id types.ID, start types.Point, depart time.Time, opts ...rideOpt) *ride.Ride {
	t.Helper()
	r := &ride.Ride{
		ID:               id,
		DriverID:         "d_" + id,
		Start:            types.Location{Point: start},
		Destination:      types.Location{Point: campus},
		TotalSeats:       3,
		AvailableSeats:   3,
		PricePerSeat:     types.Money{Amount: 1500, Currency: "BHD"},
		GenderPreference: ride.GenderAny,
		DepartureTime:    depart,
		Status:           ride.StatusScheduled,
		CreatedAt:        time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := store.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("create ride %s: %v", id, err)
	}
	return r
}

func ids(results []Result) []types.ID {
	out := make([]types.ID, len(results))
	for i, r := range results {
		out[i] = r.Ride.ID
	}
	return out
}

func assertIDs(t *testing.T, results []Result, want ...types.ID) {
	t.Helper()
	got := ids(results)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

type fakeIndex struct {
	ids    []types.ID
	err    error
	radius float64
}

func (f *fakeIndex) Nearby(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error) {
	f.radius = radiusM
	return f.ids, f.err
}

func TestNearbyRadius(t *testing.T) {
	store := ride.NewMemoryStore()
	depart := time.Now().Add(2 * time.Hour)
	addRide(t, store, "in", north(origin, 4000), depart)
	addRide(t, store, "out", north(origin, 6000), depart)
	svc := NewService(store, nil, nil, nil)

	page, err := svc.Nearby(context.Background(), NearbyQuery{Origin: origin})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	assertIDs(t, page.Results, "in")
	if d := *page.Results[0].DistanceFromStartM; math.Abs(d-4000) > 5 {
		t.Errorf("distance = %.0f, want ~4000", d)
	}

	page, err = svc.Nearby(context.Background(), NearbyQuery{Origin: origin, RadiusM: 7000})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	assertIDs(t, page.Results, "in", "out")
}

func TestNearbyRequiresOrigin(t *testing.T) {
	svc := NewService(ride.NewMemoryStore(), nil, nil, nil)
	if _, err := svc.Nearby(context.Background(), NearbyQuery{}); !errors.Is(err, ride.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if _, err := svc.Nearby(context.Background(), NearbyQuery{Origin: origin, RadiusM: -1}); !errors.Is(err, ride.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestNearbyFilters(t *testing.T) {
	store := ride.NewMemoryStore()
	tz := time.FixedZone("AST", 3*3600)
	tomorrow := time.Now().In(tz).AddDate(0, 0, 1)
	day := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, tz)

	addRide(t, store, "any", north(origin, 100), day)
	addRide(t, store, "female", north(origin, 200), day, withGender(ride.GenderFemale))
	addRide(t, store, "male", north(origin, 300), day, withGender(ride.GenderMale))
	addRide(t, store, "one_seat", north(origin, 400), day, withSeats(1))
	addRide(t, store, "next_day", north(origin, 500), day.AddDate(0, 0, 1))
	addRide(t, store, "started", north(origin, 50), day, withStatus(ride.StatusInProgress))
	addRide(t, store, "departed", north(origin, 50), time.Now().Add(-time.Minute))
	svc := NewService(store, nil, tz, nil)
	ctx := context.Background()

	page, err := svc.Nearby(ctx, NearbyQuery{Origin: origin})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	assertIDs(t, page.Results, "any", "female", "male", "one_seat", "next_day")

	page, _ = svc.Nearby(ctx, NearbyQuery{Origin: origin, Gender: ride.GenderFemale})
	assertIDs(t, page.Results, "any", "female", "one_seat", "next_day")

	page, _ = svc.Nearby(ctx, NearbyQuery{Origin: origin, MinSeats: 2})
	assertIDs(t, page.Results, "any", "female", "male", "next_day")

	// Midnight local time of the ride day, expressed in UTC.
	date := time.Date(day.Year(), day.Month(), day.Day(), 0, 30, 0, 0, tz).UTC()
	page, _ = svc.Nearby(ctx, NearbyQuery{Origin: origin, Date: &date})
	assertIDs(t, page.Results, "any", "female", "male", "one_seat")
}

func TestNearbyOrderingAndPaging(t *testing.T) {
	store := ride.NewMemoryStore()
	now := time.Now()
	addRide(t, store, "late", north(origin, 1000), now.Add(3*time.Hour))
	addRide(t, store, "early", north(origin, 1000), now.Add(1*time.Hour))
	addRide(t, store, "close", north(origin, 10), now.Add(5*time.Hour))
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	page, err := svc.Nearby(ctx, NearbyQuery{Origin: origin, Page: ride.Page{Page: 1, Limit: 2}})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	assertIDs(t, page.Results, "close", "early")
	if page.Total != 3 || page.Pages != 2 || page.Count != 2 || page.Page != 1 {
		t.Fatalf("unexpected page metadata: %+v", page)
	}

	page, _ = svc.Nearby(ctx, NearbyQuery{Origin: origin, Page: ride.Page{Page: 2, Limit: 2}})
	assertIDs(t, page.Results, "late")

	page, _ = svc.Nearby(ctx, NearbyQuery{Origin: origin, Page: ride.Page{Page: 5, Limit: 2}})
	if len(page.Results) != 0 || page.Total != 3 {
		t.Fatalf("page past the end: %+v", page)
	}

	page, err = svc.Nearby(ctx, NearbyQuery{Origin: origin, Page: ride.Page{Page: 922337203685477581, Limit: 20}})
	if err != nil {
		t.Fatalf("nearby with huge page: %v", err)
	}
	if len(page.Results) != 0 || page.Total != 3 {
		t.Fatalf("huge page: %+v", page)
	}
}

func TestNearbyDestinationAnnotation(t *testing.T) {
	store := ride.NewMemoryStore()
	addRide(t, store, "r1", north(origin, 100), time.Now().Add(time.Hour))
	svc := NewService(store, nil, nil, nil)

	dest := north(campus, 2000)
	page, err := svc.Nearby(context.Background(), NearbyQuery{Origin: origin, Destination: &dest})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	got := page.Results[0].DistanceToDestinationM
	if got == nil || math.Abs(*got-2000) > 5 {
		t.Fatalf("destination distance = %v, want ~2000", got)
	}
}

func TestNearbyUsesIndex(t *testing.T) {
	store := ride.NewMemoryStore()
	depart := time.Now().Add(time.Hour)
	addRide(t, store, "a", north(origin, 100), depart)
	addRide(t, store, "b", north(origin, 200), depart)
	addRide(t, store, "far", north(origin, 6000), depart)
	addRide(t, store, "gone", north(origin, 300), depart, withStatus(ride.StatusCancelled))

	index := &fakeIndex{ids: []types.ID{"b", "far", "gone", "missing"}}
	svc := NewService(store, index, nil, nil)
	page, err := svc.Nearby(context.Background(), NearbyQuery{Origin: origin})
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	assertIDs(t, page.Results, "b")
	if index.radius < defaultRadiusM {
		t.Errorf("index queried with radius %.0f, want at least %d", index.radius, defaultRadiusM)
	}

	index.err = errors.New("redis down")
	page, err = svc.Nearby(context.Background(), NearbyQuery{Origin: origin})
	if err != nil {
		t.Fatalf("nearby with failing index: %v", err)
	}
	assertIDs(t, page.Results, "a", "b")
}

func TestAdvancedWalkingDistance(t *testing.T) {
	store := ride.NewMemoryStore()
	depart := time.Now().Add(time.Hour)
	addRide(t, store, "near", north(origin, 500), depart)
	addRide(t, store, "walkable", north(origin, 900), depart.Add(-30*time.Minute))
	addRide(t, store, "far", north(origin, 1500), depart)
	addRide(t, store, "wrong_dest", north(origin, 100), depart, withDest(north(campus, 5000)))
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	start, dest := origin, campus
	results, err := svc.Advanced(ctx, AdvancedQuery{Start: &start, Destination: &dest})
	if err != nil {
		t.Fatalf("advanced: %v", err)
	}
	assertIDs(t, results, "near", "walkable")

	results, _ = svc.Advanced(ctx, AdvancedQuery{Start: &start, MaxWalkingM: 2000})
	assertIDs(t, results, "wrong_dest", "near", "walkable", "far")
}

func TestAdvancedFilters(t *testing.T) {
	store := ride.NewMemoryStore()
	base := time.Now().Add(2 * time.Hour)
	addRide(t, store, "cheap", origin, base, withPrice(1000))
	addRide(t, store, "pricey", origin, base.Add(time.Minute), withPrice(3000))
	addRide(t, store, "full", origin, base.Add(2*time.Minute), withSeats(0))
	addRide(t, store, "later", origin, base.Add(3*time.Hour), withPrice(1000))
	addRide(t, store, "male", origin, base.Add(3*time.Minute), withGender(ride.GenderMale))
	svc := NewService(store, nil, nil, nil)
	ctx := context.Background()

	results, err := svc.Advanced(ctx, AdvancedQuery{})
	if err != nil {
		t.Fatalf("advanced: %v", err)
	}
	assertIDs(t, results, "cheap", "pricey", "male", "later")

	maxPrice := int64(1500)
	results, _ = svc.Advanced(ctx, AdvancedQuery{MaxPrice: &maxPrice})
	assertIDs(t, results, "cheap", "male", "later")

	until := base.Add(time.Hour)
	results, _ = svc.Advanced(ctx, AdvancedQuery{DepartureUntil: &until, Gender: ride.GenderFemale})
	assertIDs(t, results, "cheap", "pricey")

	after := base.Add(time.Hour)
	results, _ = svc.Advanced(ctx, AdvancedQuery{DepartureAfter: &after})
	assertIDs(t, results, "later")

	results, _ = svc.Advanced(ctx, AdvancedQuery{MinSeats: 4})
	if len(results) != 0 {
		t.Fatalf("no ride has 4 free seats, got %v", ids(results))
	}

	if _, err := svc.Advanced(ctx, AdvancedQuery{MinSeats: -1}); !errors.Is(err, ride.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}
