// README: HTTP router registration.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ridepool/internal/http/handlers"
	"ridepool/internal/http/middleware"
	"ridepool/internal/infra"
	"ridepool/internal/modules/notify"
	"ridepool/internal/modules/ride"
	"ridepool/internal/modules/search"
)

// RouterDeps carries the services behind the API. Verifier and Hub may be nil:
// without a verifier identity comes from dev headers, without a hub /api/ws answers 503.
type RouterDeps struct {
	Rides    *ride.Service
	Search   *search.Service
	Inbox    notify.Inbox
	Hub      *notify.Hub
	Verifier infra.TokenVerifier
	TimeZone *time.Location
	Log      *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	auth := middleware.DevAuth()
	if deps.Verifier != nil {
		auth = middleware.Auth(deps.Verifier)
	} else {
		deps.Log.Warn("no token verifier configured; trusting identity headers")
	}
	api := r.Group("/api", auth)

	rideHandler := handlers.NewRideHandler(deps.Rides)
	api.POST("/rides", rideHandler.Create)
	api.POST("/rides/route", rideHandler.PreviewRoute)
	api.GET("/rides/:id", rideHandler.Get)
	api.PATCH("/rides/:id", rideHandler.Update)
	api.POST("/rides/:id/start", rideHandler.Start)
	api.POST("/rides/:id/complete", rideHandler.Complete)
	api.POST("/rides/:id/cancel", rideHandler.Cancel)
	api.GET("/rides/:id/bookings", rideHandler.Bookings)
	api.GET("/me/rides", rideHandler.ListMine)

	searchHandler := handlers.NewSearchHandler(deps.Search, deps.TimeZone)
	api.GET("/rides", searchHandler.Nearby)
	api.POST("/rides/search", searchHandler.Advanced)

	bookingHandler := handlers.NewBookingHandler(deps.Rides)
	api.POST("/rides/:id/bookings", bookingHandler.Request)
	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/accept", bookingHandler.Accept)
	api.POST("/bookings/:id/reject", bookingHandler.Reject)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	api.POST("/bookings/:id/pickup", bookingHandler.Pickup)
	api.POST("/bookings/:id/no-show", bookingHandler.NoShow)
	api.POST("/bookings/:id/paid", bookingHandler.MarkPaid)
	api.GET("/me/bookings", bookingHandler.ListMine)
	api.GET("/me/bookings/stats", bookingHandler.Stats)

	notificationHandler := handlers.NewNotificationHandler(deps.Inbox, deps.Hub)
	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	api.GET("/ws", notificationHandler.Stream)

	return r
}
