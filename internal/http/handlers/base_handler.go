// README: Base handler utilities (JSON helpers, error mapping, query parsing).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// pageResponse wraps one page of a list endpoint.
type pageResponse struct {
	Items any `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeRideError maps an error kind to its HTTP status.
func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, ride.ErrInvalidTransition),
		errors.Is(err, ride.ErrConflict),
		errors.Is(err, ride.ErrResourceExhausted):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrConstraintViolation):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ride.ErrDependencyFailure):
		_ = c.Error(err)
		writeError(c, http.StatusBadGateway, "upstream service unavailable")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

func pageFromQuery(c *gin.Context) (ride.Page, error) {
	page, err := intQuery(c, "page")
	if err != nil {
		return ride.Page{}, err
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		return ride.Page{}, err
	}
	return ride.Page{Page: page, Limit: limit}.Normalize(), nil
}

func newPageResponse(items any, total int, p ride.Page) pageResponse {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return pageResponse{Items: items, Total: total, Page: p.Page, Limit: p.Limit, Pages: pages}
}

// intQuery returns 0 when the parameter is absent.
func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func floatQuery(c *gin.Context, key string) (float64, bool, error) {
	v := c.Query(key)
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
	return f, true, nil
}

// pointQuery reads a lat/lng pair; both or neither must be present.
func pointQuery(c *gin.Context, latKey, lngKey string) (*types.Point, error) {
	lat, hasLat, err := floatQuery(c, latKey)
	if err != nil {
		return nil, err
	}
	lng, hasLng, err := floatQuery(c, lngKey)
	if err != nil {
		return nil, err
	}
	if hasLat != hasLng {
		return nil, fmt.Errorf("%s and %s must be given together", latKey, lngKey)
	}
	if !hasLat {
		return nil, nil
	}
	return &types.Point{Lat: lat, Lng: lng}, nil
}
