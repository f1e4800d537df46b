// README: Firestore-backed document store (production realtime store).
package docstore

import (
	"context"
	"errors"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"campusride/internal/apperr"
)

type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

type fsSnapshot struct {
	snap *firestore.DocumentSnapshot
}

func (s fsSnapshot) ID() string   { return s.snap.Ref.ID }
func (s fsSnapshot) Exists() bool { return s.snap.Exists() }

func (s fsSnapshot) DataTo(dst any) error {
	if !s.snap.Exists() {
		return ErrNotFound
	}
	return s.snap.DataTo(dst)
}

func wrapSnapshots(snaps []*firestore.DocumentSnapshot) []Snapshot {
	out := make([]Snapshot, len(snaps))
	for i, s := range snaps {
		out[i] = fsSnapshot{snap: s}
	}
	return out
}

// mapError translates gRPC status codes into docstore errors. Errors that do
// not carry a gRPC status (callback errors, context errors) pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyExists
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return apperr.Transient(err)
	}
}

func (f *Firestore) build(q Query) firestore.Query {
	fq := f.client.Collection(q.Collection).Query
	for _, flt := range q.Filters {
		fq = fq.Where(flt.Field, flt.Op, flt.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

func (f *Firestore) Get(ctx context.Context, collection, id string, dst any) error {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return mapError(err)
	}
	return snap.DataTo(dst)
}

func (f *Firestore) Documents(ctx context.Context, q Query) ([]Snapshot, error) {
	snaps, err := f.build(q).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return wrapSnapshots(snaps), nil
}

func (f *Firestore) Create(ctx context.Context, collection, id string, doc any) error {
	_, err := f.client.Collection(collection).Doc(id).Create(ctx, doc)
	return mapError(err)
}

func (f *Firestore) Set(ctx context.Context, collection, id string, doc any) error {
	_, err := f.client.Collection(collection).Doc(id).Set(ctx, doc)
	return mapError(err)
}

func (f *Firestore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, &fsTx{f: f, tx: tx})
	})
	return mapError(err)
}

type fsTx struct {
	f  *Firestore
	tx *firestore.Transaction
}

func (t *fsTx) Get(collection, id string, dst any) error {
	snap, err := t.tx.Get(t.f.client.Collection(collection).Doc(id))
	if err != nil {
		return mapError(err)
	}
	return snap.DataTo(dst)
}

func (t *fsTx) Query(q Query) ([]Snapshot, error) {
	snaps, err := t.tx.Documents(t.f.build(q)).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	return wrapSnapshots(snaps), nil
}

func (t *fsTx) Create(collection, id string, doc any) error {
	return mapError(t.tx.Create(t.f.client.Collection(collection).Doc(id), doc))
}

func (t *fsTx) Set(collection, id string, doc any) error {
	return mapError(t.tx.Set(t.f.client.Collection(collection).Doc(id), doc))
}

func (t *fsTx) Delete(collection, id string) error {
	return mapError(t.tx.Delete(t.f.client.Collection(collection).Doc(id)))
}

func (f *Firestore) WatchDoc(ctx context.Context, collection, id string) (*Subscription, error) {
	sub, ctx := newSubscription(ctx)
	it := f.client.Collection(collection).Doc(id).Snapshots(ctx)
	go func() {
		defer sub.finish()
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil && snap != nil && status.Code(err) == codes.NotFound {
				err = nil
			}
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("docstore: watch %s/%s ended: %v", collection, id, err)
					sub.send(ctx, Event{Err: mapError(err)})
				}
				return
			}
			if !sub.send(ctx, Event{Docs: []Snapshot{fsSnapshot{snap: snap}}}) {
				return
			}
		}
	}()
	return sub, nil
}

func (f *Firestore) WatchQuery(ctx context.Context, q Query) (*Subscription, error) {
	sub, ctx := newSubscription(ctx)
	it := f.build(q).Snapshots(ctx)
	go func() {
		defer sub.finish()
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					log.Printf("docstore: watch query %s ended: %v", q.Collection, err)
					sub.send(ctx, Event{Err: mapError(err)})
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				if !sub.send(ctx, Event{Err: mapError(err)}) {
					return
				}
				continue
			}
			if !sub.send(ctx, Event{Docs: wrapSnapshots(snaps)}) {
				return
			}
		}
	}()
	return sub, nil
}
