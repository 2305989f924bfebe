// README: Ride aggregate, status definitions and the ride state flow.
package ride

import (
	"time"

	"ridepool/internal/modules/route"
	"ridepool/internal/types"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Gender string

const (
	GenderAny    Gender = "any"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// Admits reports whether a passenger of gender g may ride under preference p.
func (p Gender) Admits(g Gender) bool {
	return p == "" || p == GenderAny || p == g
}

type Ride struct {
	ID                   types.ID       `json:"id"`
	DriverID             types.ID       `json:"driver_id"`
	Start                types.Location `json:"start"`
	Destination          types.Location `json:"destination"`
	Route                route.Leg      `json:"route"`
	TotalSeats           int            `json:"total_seats"`
	AvailableSeats       int            `json:"available_seats"`
	PricePerSeat         types.Money    `json:"price_per_seat"`
	GenderPreference     Gender         `json:"gender_preference"`
	DepartureTime        time.Time      `json:"departure_time"`
	EstimatedArrivalTime time.Time      `json:"estimated_arrival_time"`
	Notes                string         `json:"notes,omitempty"`
	Status               Status         `json:"status"`
	StatusVersion        int            `json:"status_version"`
	CancelReason         string         `json:"cancel_reason,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	CancelledAt          *time.Time     `json:"cancelled_at,omitempty"`
}

// CommittedSeats is the number of seats held by accepted bookings.
func (r *Ride) CommittedSeats() int {
	return r.TotalSeats - r.AvailableSeats
}

func (r *Ride) clone() *Ride {
	c := *r
	c.Route.Waypoints = append([]types.Point(nil), r.Route.Waypoints...)
	return &c
}

// rideTransitions represents the ride state flow as code.
var rideTransitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	for _, s := range rideTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is an audit record of one status change.
type Transition struct {
	ID         int64
	EntityType string // "ride" or "booking"
	EntityID   types.ID
	RideID     types.ID
	FromStatus string
	ToStatus   string
	ActorType  string
	ActorID    types.ID
	CreatedAt  time.Time
}

// Page selects a 1-based page of results.
type Page struct {
	Page  int
	Limit int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	// maxPage keeps Offset far from integer overflow.
	maxPage = 100000
)

// Normalize applies the default and maximum page size and caps the page number.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.Limit
}

// Bounds returns the slice range of this page over n items.
func (p Page) Bounds(n int) (start, end int) {
	p = p.Normalize()
	start = min(max(p.Offset(), 0), n)
	end = min(start+p.Limit, n)
	return start, end
}
