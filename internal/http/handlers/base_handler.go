// README: Base handler utilities (JSON helpers, caller identity, error mapping).
package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/apperr"
	"campusride/internal/http/middleware"
	"campusride/internal/modules/booking"
	"campusride/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

var errInvalidID = apperr.Validation("invalid id")

// isValidID accepts uuids and Firebase uids.
func isValidID(v string) bool {
	if v == "" || len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeAppError(c, errInvalidID)
		return "", false
	}
	return types.ID(v), true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func writeAppError(c *gin.Context, err error) {
	msg := err.Error()
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		writeError(c, http.StatusBadRequest, msg)
	case apperr.KindForbidden:
		writeError(c, http.StatusForbidden, msg)
	case apperr.KindNotFound:
		writeError(c, http.StatusNotFound, msg)
	case apperr.KindConflict:
		writeError(c, http.StatusConflict, msg)
	case apperr.KindTransient:
		log.Printf("%s %s: transient: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func callerID(c *gin.Context) types.ID {
	return types.ID(middleware.CallerUID(c))
}

// callerActor maps the caller's role claim onto a booking actor.
func callerActor(c *gin.Context) booking.Actor {
	if middleware.CallerRole(c) == middleware.RoleDriver {
		return booking.Driver(callerID(c))
	}
	return booking.Customer(callerID(c))
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
