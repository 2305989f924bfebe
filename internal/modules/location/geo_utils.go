// Package location — geo_utils contains pure geographic computation helpers.
package location

import (
	"math"

	"ridepool/internal/types"
)

const earthRadiusM = 6371000.0

// DistanceMeters returns the great-circle (haversine) distance in metres
// between two points specified in decimal degrees.
func DistanceMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusM * c
}

// Within reports whether p lies within radiusM metres of center.
func Within(center, p types.Point, radiusM float64) bool {
	return DistanceMeters(center, p) <= radiusM
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// SortByDistance performs a stable insertion sort (fine for small N) on any
// slice where each element exposes a distance via the accessor function.
// Equal distances fall back to tieLess when it is non-nil.
func SortByDistance[T any](items []T, dist func(T) float64, tieLess func(a, b T) bool) {
	less := func(a, b T) bool {
		da, db := dist(a), dist(b)
		if da != db {
			return da < db
		}
		return tieLess != nil && tieLess(a, b)
	}
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && less(key, items[j]) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
