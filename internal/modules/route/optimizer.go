// README: Pickup order planner, greedy nearest neighbour over a distance matrix.
package route

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

type Optimizer struct {
	router Router
	log    *zap.Logger
}

func NewOptimizer(router Router, log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Optimizer{router: router, log: log.With(zap.String("component", "route_optimizer"))}
}

// Plan is an ordered tour start -> pickups -> destination with its real route.
type Plan struct {
	Pickups []types.Point
	Leg     Leg
}

// Optimize orders pickups between start and dest. The tour is valid (every
// pickup exactly once, start first, destination last) but not necessarily optimal.
func (o *Optimizer) Optimize(ctx context.Context, start, dest types.Point, pickups []types.Point) (Plan, error) {
	points := make([]types.Point, 0, len(pickups)+2)
	points = append(points, start)
	points = append(points, pickups...)
	points = append(points, dest)

	dist := o.matrix(ctx, points)
	order := nearestNeighbour(dist, len(pickups))

	ordered := make([]types.Point, 0, len(points))
	ordered = append(ordered, start)
	plan := Plan{Pickups: make([]types.Point, 0, len(pickups))}
	for _, idx := range order {
		ordered = append(ordered, points[idx])
		plan.Pickups = append(plan.Pickups, points[idx])
	}
	ordered = append(ordered, dest)

	leg, err := o.router.MultiStopRoute(ctx, ordered)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: multi-stop route: %v", ErrUnavailable, err)
	}
	if len(leg.Waypoints) == 0 {
		leg.Waypoints = ordered
	}
	plan.Leg = leg
	return plan, nil
}

// matrix returns a full n×n distance table. Provider failures and unavailable
// elements fall back to haversine.
func (o *Optimizer) matrix(ctx context.Context, points []types.Point) [][]float64 {
	n := len(points)
	got, err := o.router.DistanceMatrix(ctx, points, points)
	if err != nil {
		o.log.Warn("distance matrix failed, using straight-line distances", zap.Error(err))
		got = nil
	} else if len(got) != n {
		o.log.Warn("distance matrix has wrong shape, using straight-line distances",
			zap.Int("rows", len(got)), zap.Int("want", n))
		got = nil
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			v := math.NaN()
			if got != nil && j < len(got[i]) {
				v = got[i][j]
			}
			if math.IsNaN(v) || v < 0 {
				v = location.DistanceMeters(points[i], points[j])
			}
			dist[i][j] = v
		}
	}
	return dist
}

// nearestNeighbour walks from row 0 over indices 1..pickups, choosing the
// closest unvisited pickup each step. Ties keep the lowest index.
func nearestNeighbour(dist [][]float64, pickups int) []int {
	visited := make([]bool, pickups+1)
	order := make([]int, 0, pickups)
	current := 0
	for len(order) < pickups {
		best := -1
		for j := 1; j <= pickups; j++ {
			if visited[j] {
				continue
			}
			if best == -1 || dist[current][j] < dist[current][best] {
				best = j
			}
		}
		visited[best] = true
		order = append(order, best)
		current = best
	}
	return order
}
