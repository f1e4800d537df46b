package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"campusride/internal/apperr"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodGet, "/ping", "204"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues(http.MethodGet, "/ping", "204"))

	if after-before != 1 {
		t.Fatalf("expected one counted request, got %v", after-before)
	}
	if testutil.ToFloat64(RequestsInFlight) != 0 {
		t.Fatal("in-flight gauge should return to zero")
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":        nil,
		"conflict":  apperr.Conflict("booking already matched"),
		"not_found": apperr.NotFound("offer"),
		"unknown":   http.ErrHandlerTimeout,
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %q, want %q", err, got, want)
		}
	}
}
