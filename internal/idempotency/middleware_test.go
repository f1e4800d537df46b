package idempotency

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memReserver struct {
	mu      sync.Mutex
	records map[string]Record
	err     error
}

func newMemReserver() *memReserver {
	return &memReserver{records: make(map[string]Record)}
}

func (m *memReserver) Reserve(_ context.Context, key string) (bool, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, nil, m.err
	}
	if rec, ok := m.records[key]; ok {
		return false, &rec, nil
	}
	m.records[key] = Record{State: StatePending}
	return true, nil, nil
}

func (m *memReserver) Complete(_ context.Context, key string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.State = StateCompleted
	m.records[key] = rec
	return nil
}

func (m *memReserver) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func newTestEngine(store Reserver, calls *int, status *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(store, func(c *gin.Context) string { return c.GetHeader("X-Test-UID") }))
	handler := func(c *gin.Context) {
		*calls++
		c.String(*status, "created-"+strconv.Itoa(*calls))
	}
	r.POST("/bookings", handler)
	r.GET("/bookings", handler)
	return r
}

func send(r *gin.Engine, method, key, uid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/bookings", nil)
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	req.Header.Set("X-Test-UID", uid)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareReplaysCompletedResponse(t *testing.T) {
	calls, status := 0, http.StatusCreated
	r := newTestEngine(newMemReserver(), &calls, &status)

	first := send(r, http.MethodPost, "abc", "u1")
	second := send(r, http.MethodPost, "abc", "u1")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplay))
	assert.Empty(t, first.Header().Get(HeaderReplay))
}

func TestMiddlewareScopesKeysByCaller(t *testing.T) {
	calls, status := 0, http.StatusCreated
	r := newTestEngine(newMemReserver(), &calls, &status)

	send(r, http.MethodPost, "abc", "u1")
	w := send(r, http.MethodPost, "abc", "u2")
	assert.Equal(t, 2, calls)
	assert.Equal(t, "created-2", w.Body.String())
}

func TestMiddlewareRejectsInFlightKey(t *testing.T) {
	store := newMemReserver()
	store.records["u1:POST:/bookings:abc"] = Record{State: StatePending}
	calls, status := 0, http.StatusCreated
	r := newTestEngine(store, &calls, &status)

	w := send(r, http.MethodPost, "abc", "u1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
}

func TestMiddlewareReleasesOnServerError(t *testing.T) {
	store := newMemReserver()
	calls, status := 0, http.StatusServiceUnavailable
	r := newTestEngine(store, &calls, &status)

	send(r, http.MethodPost, "abc", "u1")
	status = http.StatusCreated
	w := send(r, http.MethodPost, "abc", "u1")

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestMiddlewareReleasesWhenHandlerPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemReserver()
	calls := 0
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Middleware(store, func(c *gin.Context) string { return c.GetHeader("X-Test-UID") }))
	r.POST("/bookings", func(c *gin.Context) {
		calls++
		if calls == 1 {
			panic("nil booking")
		}
		c.String(http.StatusCreated, "created")
	})

	first := send(r, http.MethodPost, "k1", "u1")
	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Empty(t, store.records, "key must not stay pending")

	second := send(r, http.MethodPost, "k1", "u1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 2, calls)
	assert.Equal(t, StateCompleted, store.records["u1:POST:/bookings:k1"].State)
}

func TestMiddlewareIgnoresSafeMethodsAndMissingKey(t *testing.T) {
	store := newMemReserver()
	calls, status := 0, http.StatusOK
	r := newTestEngine(store, &calls, &status)

	send(r, http.MethodGet, "abc", "u1")
	send(r, http.MethodGet, "abc", "u1")
	send(r, http.MethodPost, "", "u1")
	send(r, http.MethodPost, "", "u1")
	assert.Equal(t, 4, calls)
	assert.Empty(t, store.records)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	store := newMemReserver()
	store.err = errors.New("redis down")
	calls, status := 0, http.StatusCreated
	r := newTestEngine(store, &calls, &status)

	w := send(r, http.MethodPost, "abc", "u1")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}
