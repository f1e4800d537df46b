// README: Document store contract shared by all coordinator modules (create/get/query/transaction/watch).
package docstore

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
	ErrClosed        = errors.New("docstore: subscription closed")
)

// Snapshot is a read-only view of one document at a point in time.
type Snapshot interface {
	ID() string
	Exists() bool
	DataTo(dst any) error
}

type Filter struct {
	Field string
	Op    string // "==" or "in"
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

func From(collection string) Query {
	return Query{Collection: collection}
}

func (q Query) Where(field, op string, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Tx is the view handed to RunTransaction callbacks. All reads must happen
// before the first write, matching Firestore's transaction model.
type Tx interface {
	Get(collection, id string, dst any) error
	Query(q Query) ([]Snapshot, error)
	Create(collection, id string, doc any) error
	Set(collection, id string, doc any) error
	Delete(collection, id string) error
}

type Store interface {
	Get(ctx context.Context, collection, id string, dst any) error
	Documents(ctx context.Context, q Query) ([]Snapshot, error)
	Create(ctx context.Context, collection, id string, doc any) error
	Set(ctx context.Context, collection, id string, doc any) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	WatchDoc(ctx context.Context, collection, id string) (*Subscription, error)
	WatchQuery(ctx context.Context, q Query) (*Subscription, error)
}

// Path joins collection and document ids into a slash separated path,
// e.g. Path("bookings", id, "offers").
func Path(parts ...string) string {
	return strings.Join(parts, "/")
}

// DecodeAll decodes every existing snapshot into T.
func DecodeAll[T any](snaps []Snapshot) ([]T, error) {
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var v T
		if err := snap.DataTo(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Event carries the full result set of a watched document or query.
type Event struct {
	Docs []Snapshot
	Err  error
}

// Subscription delivers snapshot events until Close is called or the
// context passed to Watch* is done. Close is safe to call more than once
// and returns only after the producer has released its resources.
type Subscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newSubscription(parent context.Context) (*Subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		events: make(chan Event),
		cancel: cancel,
		done:   make(chan struct{}),
	}, ctx
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// send delivers ev unless the subscription is shutting down.
func (s *Subscription) send(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) finish() {
	close(s.events)
	close(s.done)
}

// Stream is a typed view over a Subscription.
type Stream[T any] struct {
	sub *Subscription
}

func NewStream[T any](sub *Subscription) *Stream[T] {
	return &Stream[T]{sub: sub}
}

// Next blocks for the next snapshot and decodes it. It returns ErrClosed once
// the underlying subscription has ended.
func (s *Stream[T]) Next(ctx context.Context) ([]T, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-s.sub.Events():
		if !ok {
			return nil, ErrClosed
		}
		if ev.Err != nil {
			return nil, ev.Err
		}
		return DecodeAll[T](ev.Docs)
	}
}

func (s *Stream[T]) Close() {
	s.sub.Close()
}
