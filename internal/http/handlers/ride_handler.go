// README: Ride handlers for the driver side of the lifecycle.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	Start            types.Location `json:"start"`
	Destination      types.Location `json:"destination"`
	DepartureTime    time.Time      `json:"departure_time"`
	TotalSeats       int            `json:"total_seats"`
	GenderPreference string         `json:"gender_preference"`
	Notes            string         `json:"notes"`
}

type updateRideReq struct {
	Notes            *string    `json:"notes"`
	DepartureTime    *time.Time `json:"departure_time"`
	TotalSeats       *int       `json:"total_seats"`
	PricePerSeat     *int64     `json:"price_per_seat"`
	GenderPreference *string    `json:"gender_preference"`
}

type routeReq struct {
	Start       *types.Point `json:"start"`
	Destination *types.Point `json:"destination"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.CreateRide(c.Request.Context(), ride.CreateRideCommand{
		DriverID:         callerID(c),
		Start:            req.Start,
		Destination:      req.Destination,
		DepartureTime:    req.DepartureTime,
		TotalSeats:       req.TotalSeats,
		GenderPreference: ride.Gender(req.GenderPreference),
		Notes:            req.Notes,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"ride": r})
}

func (h *RideHandler) Get(c *gin.Context) {
	r, err := h.rides.GetRide(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ride": r})
}

func (h *RideHandler) Update(c *gin.Context) {
	var req updateRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := ride.UpdateRideCommand{
		RideID:        types.ID(c.Param("id")),
		DriverID:      callerID(c),
		Notes:         req.Notes,
		DepartureTime: req.DepartureTime,
		TotalSeats:    req.TotalSeats,
		PricePerSeat:  req.PricePerSeat,
	}
	if req.GenderPreference != nil {
		g := ride.Gender(*req.GenderPreference)
		cmd.GenderPreference = &g
	}
	r, err := h.rides.UpdateRide(c.Request.Context(), cmd)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ride": r})
}

// PreviewRoute returns the route and fare estimate between two points.
func (h *RideHandler) PreviewRoute(c *gin.Context) {
	var req routeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Start == nil || req.Destination == nil {
		writeError(c, http.StatusBadRequest, "start and destination are required")
		return
	}
	preview, err := h.rides.PreviewRoute(c.Request.Context(), ride.PreviewRouteCommand{
		Start:       *req.Start,
		Destination: *req.Destination,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, preview)
}

func (h *RideHandler) Start(c *gin.Context) {
	r, err := h.rides.StartRide(c.Request.Context(), ride.StartRideCommand{
		RideID:   types.ID(c.Param("id")),
		DriverID: callerID(c),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ride": r})
}

func (h *RideHandler) Complete(c *gin.Context) {
	done, err := h.rides.CompleteRide(c.Request.Context(), ride.CompleteRideCommand{
		RideID:   types.ID(c.Param("id")),
		DriverID: callerID(c),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, done)
}

// Cancel accepts an optional {"reason": "..."} body.
func (h *RideHandler) Cancel(c *gin.Context) {
	var req reasonReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	r, err := h.rides.CancelRide(c.Request.Context(), ride.CancelRideCommand{
		RideID:   types.ID(c.Param("id")),
		DriverID: callerID(c),
		Reason:   req.Reason,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"ride": r})
}

// ListMine pages through the caller's rides as a driver, newest departure first.
func (h *RideHandler) ListMine(c *gin.Context) {
	p, err := pageFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	rides, total, err := h.rides.ListDriverRides(c.Request.Context(), callerID(c), ride.Status(c.Query("status")), p)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newPageResponse(rides, total, p))
}

// Bookings shows the driver every booking and everyone else a summary.
func (h *RideHandler) Bookings(c *gin.Context) {
	caller := callerID(c)
	out, err := h.rides.ListRideBookings(c.Request.Context(), types.ID(c.Param("id")), caller)
	if err != nil {
		writeRideError(c, err)
		return
	}
	for i, b := range out.Bookings {
		out.Bookings[i] = bookingView(b, caller)
	}
	writeJSON(c, http.StatusOK, out)
}
