package maps

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"ridepool/internal/modules/route"
	"ridepool/internal/types"
)

func TestLatLng(t *testing.T) {
	got := latLng(types.Point{Lat: 26.13, Lng: 50.5551234})
	if want := "26.130000,50.555123"; got != want {
		t.Errorf("latLng() = %q, want %q", got, want)
	}
}

// newTestService points the maps client at a local server answering every
// request with body.
func newTestService(t *testing.T, body string) *RouteService {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	svc, err := NewRouteService("test-key", time.Second, maps.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new route service: %v", err)
	}
	return svc
}

var (
	campus = types.Point{Lat: 26.05, Lng: 50.51}
	isa    = types.Point{Lat: 26.1736, Lng: 50.5478}
	manama = types.Point{Lat: 26.2285, Lng: 50.586}
)

func TestMultiStopRouteSumsLegs(t *testing.T) {
	svc := newTestService(t, `{
		"status": "OK",
		"routes": [{
			"overview_polyline": {"points": "abc"},
			"legs": [
				{"distance": {"value": 12000, "text": "12 km"}, "duration": {"value": 900, "text": "15 mins"}},
				{"distance": {"value": 8000, "text": "8 km"}, "duration": {"value": 600, "text": "10 mins"}}
			]
		}]
	}`)

	leg, err := svc.MultiStopRoute(context.Background(), []types.Point{campus, isa, manama})
	if err != nil {
		t.Fatalf("multi stop route: %v", err)
	}
	if leg.DistanceMeters != 20000 || leg.DurationSeconds != 1500 || leg.Polyline != "abc" {
		t.Errorf("unexpected leg %+v", leg)
	}
	if len(leg.Waypoints) != 3 || leg.Waypoints[1] != isa {
		t.Errorf("waypoints should keep the given order, got %v", leg.Waypoints)
	}
}

func TestRouteErrorsWrapUnavailable(t *testing.T) {
	cases := map[string]string{
		"denied":    `{"status": "REQUEST_DENIED", "error_message": "key rejected", "routes": []}`,
		"no routes": `{"status": "OK", "routes": []}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, body)
			_, err := svc.Route(context.Background(), campus, manama)
			if !errors.Is(err, route.ErrUnavailable) {
				t.Fatalf("expected route.ErrUnavailable, got %v", err)
			}
		})
	}
}

func TestDistanceMatrixMarksMissingElements(t *testing.T) {
	svc := newTestService(t, `{
		"status": "OK",
		"origin_addresses": ["a", "b"],
		"destination_addresses": ["c", "d"],
		"rows": [
			{"elements": [
				{"status": "OK", "distance": {"value": 1200, "text": "1.2 km"}, "duration": {"value": 300, "text": "5 mins"}},
				{"status": "ZERO_RESULTS"}
			]},
			{"elements": [
				{"status": "OK", "distance": {"value": 700, "text": "0.7 km"}, "duration": {"value": 120, "text": "2 mins"}}
			]}
		]
	}`)

	got, err := svc.DistanceMatrix(context.Background(), []types.Point{campus, isa}, []types.Point{isa, manama})
	if err != nil {
		t.Fatalf("distance matrix: %v", err)
	}
	if got[0][0] != 1200 || got[1][0] != 700 {
		t.Errorf("unexpected distances %v", got)
	}
	if !math.IsNaN(got[0][1]) || !math.IsNaN(got[1][1]) {
		t.Errorf("missing elements should be NaN, got %v", got)
	}
}

func TestDistanceMatrixErrorsWrapUnavailable(t *testing.T) {
	svc := newTestService(t, `{"status": "REQUEST_DENIED", "error_message": "key rejected", "rows": []}`)
	_, err := svc.DistanceMatrix(context.Background(), []types.Point{campus}, []types.Point{manama})
	if !errors.Is(err, route.ErrUnavailable) {
		t.Fatalf("expected route.ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "distance matrix") {
		t.Errorf("error should name the call: %v", err)
	}
}
