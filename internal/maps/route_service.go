package maps

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"ridepool/internal/modules/route"
	"ridepool/internal/types"
)

// RouteService implements route.Router on top of the Google Maps APIs.
type RouteService struct {
	client  *maps.Client
	timeout time.Duration
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string, timeout time.Duration, opts ...maps.ClientOption) (*RouteService, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RouteService{client: client, timeout: timeout}, nil
}

func (s *RouteService) Route(ctx context.Context, a, b types.Point) (route.Leg, error) {
	return s.MultiStopRoute(ctx, []types.Point{a, b})
}

// MultiStopRoute drives through ordered in sequence; waypoints are not reordered.
func (s *RouteService) MultiStopRoute(ctx context.Context, ordered []types.Point) (route.Leg, error) {
	if len(ordered) < 2 {
		return route.Leg{}, fmt.Errorf("need at least two stops, got %d", len(ordered))
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := &maps.DirectionsRequest{
		Origin:      latLng(ordered[0]),
		Destination: latLng(ordered[len(ordered)-1]),
		Mode:        maps.TravelModeDriving,
		Region:      "bh",
	}
	for _, p := range ordered[1 : len(ordered)-1] {
		r.Waypoints = append(r.Waypoints, latLng(p))
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return route.Leg{}, fmt.Errorf("%w: directions: %w", route.ErrUnavailable, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return route.Leg{}, fmt.Errorf("%w: no route found", route.ErrUnavailable)
	}

	leg := route.Leg{
		Polyline:  routes[0].OverviewPolyline.Points,
		Waypoints: append([]types.Point(nil), ordered...),
	}
	for _, l := range routes[0].Legs {
		leg.DistanceMeters += l.Distance.Meters
		leg.DurationSeconds += int(l.Duration.Seconds())
	}
	return leg, nil
}

// DistanceMatrix returns driving distances in metres, NaN where Google has no element.
func (s *RouteService) DistanceMatrix(ctx context.Context, origins, destinations []types.Point) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	r := &maps.DistanceMatrixRequest{Mode: maps.TravelModeDriving}
	for _, p := range origins {
		r.Origins = append(r.Origins, latLng(p))
	}
	for _, p := range destinations {
		r.Destinations = append(r.Destinations, latLng(p))
	}

	resp, err := s.client.DistanceMatrix(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%w: distance matrix: %w", route.ErrUnavailable, err)
	}
	if len(resp.Rows) != len(origins) {
		return nil, fmt.Errorf("%w: distance matrix: got %d rows, want %d", route.ErrUnavailable, len(resp.Rows), len(origins))
	}

	out := make([][]float64, len(origins))
	for i, row := range resp.Rows {
		out[i] = make([]float64, len(destinations))
		for j := range out[i] {
			out[i][j] = math.NaN()
			if j < len(row.Elements) && row.Elements[j].Status == "OK" {
				out[i][j] = float64(row.Elements[j].Distance.Meters)
			}
		}
	}
	return out, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
