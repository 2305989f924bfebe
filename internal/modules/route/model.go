// README: Routing boundary used by ride creation, start and pickup ordering.
package route

import (
	"context"
	"errors"

	"ridepool/internal/types"
)

// ErrUnavailable is returned when no usable route could be produced.
var ErrUnavailable = errors.New("route unavailable")

// Leg is a driving route with its geometry.
type Leg struct {
	DistanceMeters  int           `json:"distance_meters"`
	DurationSeconds int           `json:"duration_seconds"`
	Polyline        string        `json:"polyline,omitempty"`
	Waypoints       []types.Point `json:"waypoints,omitempty"`
}

// Router is the mapping provider. DistanceMatrix returns metres; math.NaN()
// marks an element the provider could not compute.
type Router interface {
	Route(ctx context.Context, a, b types.Point) (Leg, error)
	DistanceMatrix(ctx context.Context, origins, destinations []types.Point) ([][]float64, error)
	MultiStopRoute(ctx context.Context, ordered []types.Point) (Leg, error)
}
