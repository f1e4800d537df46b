// README: Idempotency key reservations and stored responses in Redis.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// Record is what a key holds: a pending marker or a finished response.
type Record struct {
	State       State  `json:"state"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        string `json:"body,omitempty"`
}

var pendingMarker = mustMarshal(Record{State: StatePending})

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(redis *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: redis, ttl: ttl}
}

// Reserve claims key. When the key already exists the stored record is
// returned with reserved=false.
func (s *Store) Reserve(ctx context.Context, key string) (reserved bool, existing *Record, err error) {
	ok, err := s.redis.SetNX(ctx, keyPrefix+key, pendingMarker, s.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}
	raw, err := s.redis.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		// Released between the two calls; treat as still in flight.
		return false, &Record{State: StatePending}, nil
	}
	if err != nil {
		return false, nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return false, nil, err
	}
	return false, &rec, nil
}

func (s *Store) Complete(ctx context.Context, key string, rec Record) error {
	rec.State = StateCompleted
	return s.redis.Set(ctx, keyPrefix+key, mustMarshal(rec), s.ttl).Err()
}

// Release forgets a reservation so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.redis.Del(ctx, keyPrefix+key).Err()
}

func mustMarshal(rec Record) string {
	raw, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	return string(raw)
}
