// README: Search queries and results for finding bookable rides.
package search

import (
	"time"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

const (
	defaultRadiusM     = 5000
	defaultMaxWalkingM = 1000
	// indexSlack widens index lookups so the store's haversine check decides edge cases.
	indexSlack = 1.01
)

// NearbyQuery finds rides starting within RadiusM of Origin.
type NearbyQuery struct {
	Origin      types.Point
	RadiusM     float64
	Destination *types.Point
	MinSeats    int
	Gender      ride.Gender
	// Date keeps rides departing on the same calendar day in the service time zone.
	Date *time.Time
	Page ride.Page
}

// AdvancedQuery intersects every filter that is set. Start and Destination
// must each lie within MaxWalkingM of the ride's start and destination.
type AdvancedQuery struct {
	Start          *types.Point
	Destination    *types.Point
	MaxWalkingM    float64
	Date           *time.Time
	DepartureAfter *time.Time
	DepartureUntil *time.Time
	MinSeats       int
	MaxPrice       *int64
	Gender         ride.Gender
}

type Result struct {
	Ride                   *ride.Ride `json:"ride"`
	DistanceFromStartM     *float64   `json:"distance_from_start_m,omitempty"`
	DistanceToDestinationM *float64   `json:"distance_to_destination_m,omitempty"`
}

type ResultPage struct {
	Results []Result `json:"rides"`
	Count   int      `json:"count"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Pages   int      `json:"pages"`
}
