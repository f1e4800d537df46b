// README: Matching store backed by Redis GEO and sets.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

const (
	driverGeoKey      = "matching:drivers"
	dispatchKeyFormat = "matching:booking:%s:dispatched_at"
	notifiedKeyFormat = "matching:booking:%s:notified"
)

type Store struct {
	redis *redis.Client
	now   func() time.Time
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis, now: time.Now}
}

func (s *Store) SetDriverLocation(ctx context.Context, a Availability) error {
	err := s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(a.DriverID),
		Longitude: a.Position.Lng,
		Latitude:  a.Position.Lat,
	}).Err()
	return apperr.Transient(err)
}

func (s *Store) RemoveDriver(ctx context.Context, id types.ID) error {
	return apperr.Transient(s.redis.ZRem(ctx, driverGeoKey, string(id)).Err())
}

// NearbyDrivers returns up to limit drivers within radiusKm of p, closest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      limit,
	}).Result()
	if err != nil {
		return nil, apperr.Transient(err)
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// ClaimDispatch marks a booking as dispatched. It reports false when another
// caller already claimed it.
func (s *Store) ClaimDispatch(ctx context.Context, bookingID types.ID) (bool, error) {
	ok, err := s.redis.SetNX(ctx, dispatchedAtKey(bookingID), s.now().UTC().Format(time.RFC3339), keyTTL).Result()
	if err != nil {
		return false, apperr.Transient(err)
	}
	return ok, nil
}

// RecordNotified stores the set of drivers told about a booking.
func (s *Store) RecordNotified(ctx context.Context, bookingID types.ID, driverIDs []types.ID) error {
	if len(driverIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(driverIDs))
	for i, d := range driverIDs {
		members[i] = string(d)
	}
	key := notifiedKey(bookingID)
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return apperr.Transient(err)
}

func (s *Store) NotifiedDrivers(ctx context.Context, bookingID types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(bookingID)).Result()
	if err != nil {
		return nil, apperr.Transient(err)
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func dispatchedAtKey(bookingID types.ID) string {
	return fmt.Sprintf(dispatchKeyFormat, string(bookingID))
}

func notifiedKey(bookingID types.ID) string {
	return fmt.Sprintf(notifiedKeyFormat, string(bookingID))
}
