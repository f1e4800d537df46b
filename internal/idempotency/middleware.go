// README: gin middleware that makes mutating requests carrying Idempotency-Key safe to retry.
package idempotency

import (
	"bytes"
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	HeaderKey    = "Idempotency-Key"
	HeaderReplay = "Idempotent-Replayed"
	maxKeyLength = 128
)

// Reserver is implemented by *Store.
type Reserver interface {
	Reserve(ctx context.Context, key string) (bool, *Record, error)
	Complete(ctx context.Context, key string, rec Record) error
	Release(ctx context.Context, key string) error
}

// Middleware scopes keys by caller, method and path. Requests without the
// header, and safe methods, pass through. Store failures fail open.
func Middleware(store Reserver, caller func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(HeaderKey)
		if header == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		if len(header) > maxKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "idempotency key too long"})
			return
		}
		ctx := c.Request.Context()
		key := caller(c) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + header

		reserved, existing, err := store.Reserve(ctx, key)
		if err != nil {
			log.Printf("idempotency: reserve %s: %v", key, err)
			c.Next()
			return
		}
		if !reserved {
			if existing.State != StateCompleted {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this idempotency key is in progress"})
				return
			}
			c.Header(HeaderReplay, "true")
			c.Data(existing.Status, existing.ContentType, []byte(existing.Body))
			c.Abort()
			return
		}

		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		// A panicking handler releases the key before the panic moves on to recovery.
		defer func() {
			ctx := context.WithoutCancel(ctx)
			if p := recover(); p != nil {
				release(ctx, store, key)
				panic(p)
			}
			status := rec.Status()
			if status >= http.StatusInternalServerError {
				release(ctx, store, key)
				return
			}
			err := store.Complete(ctx, key, Record{
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.String(),
			})
			if err != nil {
				log.Printf("idempotency: complete %s: %v", key, err)
			}
		}()
		c.Next()
	}
}

func release(ctx context.Context, store Reserver, key string) {
	if err := store.Release(ctx, key); err != nil {
		log.Printf("idempotency: release %s: %v", key, err)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}
