// README: Ride start-point index backed by Redis GEO, used to narrow search candidates.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"ridepool/internal/types"
)

// RideGeoKey is the sorted set holding bookable rides by start point.
const RideGeoKey = "search:rides:scheduled"

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(redis *redis.Client) *RedisIndex {
	return &RedisIndex{redis: redis}
}

// Add indexes (or moves) a bookable ride at its start point.
func (s *RedisIndex) Add(ctx context.Context, rideID types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, RideGeoKey, &redis.GeoLocation{
		Name:      string(rideID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

// Remove drops a ride that is no longer bookable.
func (s *RedisIndex) Remove(ctx context.Context, rideID types.ID) error {
	return s.redis.ZRem(ctx, RideGeoKey, string(rideID)).Err()
}

// Nearby returns ride ids whose start lies within radiusM of p, closest first.
func (s *RedisIndex) Nearby(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, RideGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusM,
		RadiusUnit: "m",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}
