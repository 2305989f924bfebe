// README: Search handlers for nearby and advanced ride search.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/ride"
	"ridepool/internal/modules/search"
	"ridepool/internal/types"
)

const dateLayout = "2006-01-02"

var errInvalidDate = errors.New("date must be YYYY-MM-DD")

type SearchHandler struct {
	search *search.Service
	tz     *time.Location
}

// NewSearchHandler parses date filters in tz.
func NewSearchHandler(svc *search.Service, tz *time.Location) *SearchHandler {
	if tz == nil {
		tz = time.UTC
	}
	return &SearchHandler{search: svc, tz: tz}
}

type advancedSearchReq struct {
	Start          *types.Point `json:"start"`
	Destination    *types.Point `json:"destination"`
	MaxWalkingM    float64      `json:"max_walking_distance_m"`
	Date           string       `json:"date"`
	DepartureAfter *time.Time   `json:"departure_after"`
	DepartureUntil *time.Time   `json:"departure_until"`
	MinSeats       int          `json:"seats"`
	MaxPrice       *int64       `json:"max_price"`
	Gender         string       `json:"gender"`
}

// Nearby serves GET /api/rides?lat=&lng=&radius=&dest_lat=&dest_lng=&seats=&gender=&date=&page=&limit=.
func (h *SearchHandler) Nearby(c *gin.Context) {
	origin, err := pointQuery(c, "lat", "lng")
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if origin == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	dest, err := pointQuery(c, "dest_lat", "dest_lng")
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	radius, _, err := floatQuery(c, "radius")
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	seats, err := intQuery(c, "seats")
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	date, err := h.parseDate(c.Query("date"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	p, err := pageFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.search.Nearby(c.Request.Context(), search.NearbyQuery{
		Origin:      *origin,
		RadiusM:     radius,
		Destination: dest,
		MinSeats:    seats,
		Gender:      ride.Gender(c.Query("gender")),
		Date:        date,
		Page:        p,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, page)
}

func (h *SearchHandler) Advanced(c *gin.Context) {
	var req advancedSearchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	results, err := h.search.Advanced(c.Request.Context(), search.AdvancedQuery{
		Start:          req.Start,
		Destination:    req.Destination,
		MaxWalkingM:    req.MaxWalkingM,
		Date:           date,
		DepartureAfter: req.DepartureAfter,
		DepartureUntil: req.DepartureUntil,
		MinSeats:       req.MinSeats,
		MaxPrice:       req.MaxPrice,
		Gender:         ride.Gender(req.Gender),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"rides": results, "count": len(results)})
}

func (h *SearchHandler) parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(dateLayout, v, h.tz)
	if err != nil {
		return nil, errInvalidDate
	}
	return &d, nil
}
