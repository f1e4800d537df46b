// README: Driver earnings report handler.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/apperr"
	"campusride/internal/modules/earnings"
)

var errInvalidAnchor = apperr.Validation("anchor must be YYYY-MM-DD or RFC3339")

type EarningsHandler struct {
	earnings *earnings.Service
	loc      *time.Location
	now      func() time.Time
}

func NewEarningsHandler(svc *earnings.Service, loc *time.Location) *EarningsHandler {
	return &EarningsHandler{earnings: svc, loc: loc, now: time.Now}
}

// Get serves ?period=day|week|month|year&granularity=...&anchor=YYYY-MM-DD.
// Drivers may only read their own earnings.
func (h *EarningsHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if id != callerID(c) {
		writeError(c, http.StatusForbidden, "forbidden: earnings are private to the driver")
		return
	}
	period, err := earnings.ParsePeriod(c.DefaultQuery("period", string(earnings.PeriodWeek)))
	if err != nil {
		writeAppError(c, err)
		return
	}
	var gran earnings.Granularity
	if v := c.Query("granularity"); v != "" {
		if gran, err = earnings.ParseGranularity(v, period); err != nil {
			writeAppError(c, err)
			return
		}
	}
	anchor, err := h.anchor(c.Query("anchor"))
	if err != nil {
		writeAppError(c, err)
		return
	}
	report, err := h.earnings.GetDriverEarnings(c.Request.Context(), earnings.Query{
		DriverID:    id,
		Period:      period,
		Anchor:      anchor,
		Granularity: gran,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, report)
}

func (h *EarningsHandler) anchor(v string) (time.Time, error) {
	if v == "" {
		return h.now(), nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, h.loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Time{}, errInvalidAnchor
}
