package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"campusride/internal/apperr"
	"campusride/internal/modules/booking"
)

func TestIsValidID(t *testing.T) {
	cases := map[string]bool{
		"":                                     false,
		"abc123":                               true,
		"0b8f8c1e-3f4a-4c55-9a77-4d2f7e1f2b10": true,
		"Zx9_firebaseUid":                      true,
		"../etc":                               false,
		"has space":                            false,
	}
	for in, want := range cases {
		assert.Equal(t, want, isValidID(in), in)
	}
}

func TestWriteAppErrorMapsKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{booking.ErrMissingCoordinates, http.StatusBadRequest},
		{booking.ErrNotOwner, http.StatusForbidden},
		{booking.ErrNotFound, http.StatusNotFound},
		{apperr.Wrap(booking.ErrIllegalTransition, errors.New("PENDING -> COMPLETED")), http.StatusConflict},
		{apperr.Transient(errors.New("deadline exceeded")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
		writeAppError(c, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}
