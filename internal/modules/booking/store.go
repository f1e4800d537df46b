// README: Booking store backed by the realtime document store.
package booking

import (
	"context"
	"errors"

	"campusride/internal/docstore"
	"campusride/internal/types"
)

const (
	CollectionBookings = "bookings"
	collectionActive   = "active_bookings"
)

type Store struct {
	docs docstore.Store
}

func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

func (s *Store) Docs() docstore.Store {
	return s.docs
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	var b Booking
	if err := s.docs.Get(ctx, CollectionBookings, string(id), &b); err != nil {
		return nil, mapNotFound(err)
	}
	return &b, nil
}

// GetTx reads a booking inside a transaction.
func (s *Store) GetTx(tx docstore.Tx, id types.ID) (*Booking, error) {
	var b Booking
	if err := tx.Get(CollectionBookings, string(id), &b); err != nil {
		return nil, mapNotFound(err)
	}
	return &b, nil
}

func (s *Store) putTx(tx docstore.Tx, b *Booking) error {
	return tx.Set(CollectionBookings, string(b.ID), b)
}

func (s *Store) createTx(tx docstore.Tx, b *Booking) error {
	return tx.Create(CollectionBookings, string(b.ID), b)
}

func (s *Store) markerTx(tx docstore.Tx, customerID types.ID) (*activeMarker, error) {
	var m activeMarker
	err := tx.Get(collectionActive, string(customerID), &m)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) marker(ctx context.Context, customerID types.ID) (*activeMarker, error) {
	var m activeMarker
	err := s.docs.Get(ctx, collectionActive, string(customerID), &m)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) setMarkerTx(tx docstore.Tx, m *activeMarker) error {
	return tx.Set(collectionActive, string(m.CustomerID), m)
}

func (s *Store) deleteMarkerTx(tx docstore.Tx, customerID types.ID) error {
	return tx.Delete(collectionActive, string(customerID))
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	return s.docs.RunTransaction(ctx, fn)
}

func (s *Store) list(ctx context.Context, q docstore.Query) ([]Booking, error) {
	snaps, err := s.docs.Documents(ctx, q)
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[Booking](snaps)
}

func openQuery() docstore.Query {
	return docstore.From(CollectionBookings).
		Where("status", "in", []string{string(StatusPending), string(StatusOffered)}).
		Order("createdAt", false)
}

func (s *Store) ListOpen(ctx context.Context) ([]Booking, error) {
	return s.list(ctx, openQuery())
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID, status Status) ([]Booking, error) {
	return s.list(ctx, docstore.From(CollectionBookings).
		Where("driverId", "==", string(driverID)).
		Where("status", "==", string(status)))
}

func (s *Store) ListByCustomer(ctx context.Context, customerID types.ID) ([]Booking, error) {
	return s.list(ctx, docstore.From(CollectionBookings).
		Where("customerId", "==", string(customerID)).
		Order("createdAt", true))
}

func (s *Store) Watch(ctx context.Context, id types.ID) (*docstore.Stream[Booking], error) {
	sub, err := s.docs.WatchDoc(ctx, CollectionBookings, string(id))
	if err != nil {
		return nil, err
	}
	return docstore.NewStream[Booking](sub), nil
}

func (s *Store) WatchOpen(ctx context.Context) (*docstore.Stream[Booking], error) {
	sub, err := s.docs.WatchQuery(ctx, openQuery())
	if err != nil {
		return nil, err
	}
	return docstore.NewStream[Booking](sub), nil
}

func mapNotFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
