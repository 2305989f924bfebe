// README: Booking handlers for passengers and the ride's driver.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type BookingHandler struct {
	rides *ride.Service
}

func NewBookingHandler(svc *ride.Service) *BookingHandler {
	return &BookingHandler{rides: svc}
}

type requestBookingReq struct {
	SeatsBooked     int             `json:"seats_booked"`
	PickupLocation  *types.Location `json:"pickup_location"`
	SpecialRequests string          `json:"special_requests"`
}

type pickupReq struct {
	RiderCode string `json:"rider_code"`
}

type markPaidReq struct {
	Method string `json:"payment_method"`
}

// Request books seats on the ride in the path for the caller.
func (h *BookingHandler) Request(c *gin.Context) {
	var req requestBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.SeatsBooked == 0 {
		req.SeatsBooked = 1
	}
	b, err := h.rides.RequestBooking(c.Request.Context(), ride.RequestBookingCommand{
		RideID:          types.ID(c.Param("id")),
		PassengerID:     callerID(c),
		PassengerGender: ride.Gender(middleware.CallerGender(c)),
		SeatsBooked:     req.SeatsBooked,
		PickupLocation:  req.PickupLocation,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"booking": b})
}

func (h *BookingHandler) Get(c *gin.Context) {
	caller := callerID(c)
	b, err := h.rides.GetBooking(c.Request.Context(), types.ID(c.Param("id")), caller)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"booking": bookingView(b, caller)})
}

func (h *BookingHandler) Accept(c *gin.Context) {
	b, err := h.rides.AcceptBooking(c.Request.Context(), ride.AcceptBookingCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  callerID(c),
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) Reject(c *gin.Context) {
	var req reasonReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	b, err := h.rides.RejectBooking(c.Request.Context(), ride.RejectBookingCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  callerID(c),
		Reason:    req.Reason,
	})
	h.respond(c, b, err)
}

// Cancel is open to the booking's passenger and the ride's driver.
func (h *BookingHandler) Cancel(c *gin.Context) {
	var req reasonReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	b, err := h.rides.CancelBooking(c.Request.Context(), ride.CancelBookingCommand{
		BookingID: types.ID(c.Param("id")),
		ActorID:   callerID(c),
		Reason:    req.Reason,
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) Pickup(c *gin.Context) {
	var req pickupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.rides.MarkPickedUp(c.Request.Context(), ride.PickupCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  callerID(c),
		RiderCode: req.RiderCode,
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) NoShow(c *gin.Context) {
	b, err := h.rides.MarkNoShow(c.Request.Context(), ride.NoShowCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  callerID(c),
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) MarkPaid(c *gin.Context) {
	var req markPaidReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	b, err := h.rides.MarkPaid(c.Request.Context(), ride.MarkPaidCommand{
		BookingID: types.ID(c.Param("id")),
		DriverID:  callerID(c),
		Method:    req.Method,
	})
	h.respond(c, b, err)
}

// ListMine pages through the caller's bookings as a passenger.
func (h *BookingHandler) ListMine(c *gin.Context) {
	p, err := pageFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	bookings, total, err := h.rides.ListPassengerBookings(c.Request.Context(), callerID(c), ride.BookingStatus(c.Query("status")), p)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newPageResponse(bookings, total, p))
}

// Stats summarises the caller's bookings as a passenger.
func (h *BookingHandler) Stats(c *gin.Context) {
	st, err := h.rides.BookingStats(c.Request.Context(), callerID(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"stats": st})
}

func (h *BookingHandler) respond(c *gin.Context, b *ride.Booking, err error) {
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"booking": bookingView(b, callerID(c))})
}

// bookingView hides the rider code from anyone but the passenger; the driver
// must hear it from the rider at pickup.
func bookingView(b *ride.Booking, caller types.ID) *ride.Booking {
	if b == nil || b.PassengerID == caller {
		return b
	}
	v := *b
	v.RiderSafeCode = ""
	return &v
}
