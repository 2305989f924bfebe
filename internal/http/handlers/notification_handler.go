// README: Notification inbox and websocket stream handlers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/notify"
)

type NotificationHandler struct {
	inbox notify.Inbox
	hub   *notify.Hub
}

// NewNotificationHandler accepts a nil hub when realtime push is disabled.
func NewNotificationHandler(inbox notify.Inbox, hub *notify.Hub) *NotificationHandler {
	return &NotificationHandler{inbox: inbox, hub: hub}
}

func (h *NotificationHandler) List(c *gin.Context) {
	p, err := pageFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	unread := c.Query("unread") == "true"
	items, total, err := h.inbox.ListNotifications(c.Request.Context(), callerID(c), unread, p)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newPageResponse(items, total, p))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.inbox.MarkRead(c.Request.Context(), callerID(c), id); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"id": id, "read": true})
}

// Stream upgrades to a websocket carrying the caller's ride and booking events.
func (h *NotificationHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		writeError(c, http.StatusServiceUnavailable, "realtime updates disabled")
		return
	}
	// Upgrade writes its own error response.
	if err := h.hub.Serve(c.Writer, c.Request, callerID(c)); err != nil {
		_ = c.Error(err)
	}
}
