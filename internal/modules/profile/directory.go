// README: Profile directory backed by the realtime store with a Redis read-through cache.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"campusride/internal/apperr"
	"campusride/internal/docstore"
	"campusride/internal/types"
)

const (
	CollectionUsers = "users"
	cacheKeyPrefix  = "profile:"
)

var (
	ErrNotFound    = apperr.NotFound("profile")
	ErrInvalidRole = apperr.Validation("role must be customer or driver")
	ErrMissingName = apperr.Validation("name is required")
)

type Directory struct {
	docs  docstore.Store
	cache *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewDirectory returns a directory. cache may be nil to disable caching.
func NewDirectory(docs docstore.Store, cache *redis.Client, ttl time.Duration) *Directory {
	return &Directory{docs: docs, cache: cache, ttl: ttl, now: time.Now}
}

func cacheKey(uid types.ID) string {
	return cacheKeyPrefix + string(uid)
}

// Lookup returns the profile for uid. Cache failures fall through to the
// store and never fail the lookup.
func (d *Directory) Lookup(ctx context.Context, uid types.ID) (*Profile, error) {
	if p, ok := d.cached(ctx, uid); ok {
		return p, nil
	}
	var p Profile
	if err := d.docs.Get(ctx, CollectionUsers, string(uid), &p); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.fill(ctx, &p)
	return &p, nil
}

func (d *Directory) cached(ctx context.Context, uid types.ID) (*Profile, bool) {
	if d.cache == nil {
		return nil, false
	}
	raw, err := d.cache.Get(ctx, cacheKey(uid)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("profile: cache get %s: %v", uid, err)
		}
		return nil, false
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("profile: cache decode %s: %v", uid, err)
		return nil, false
	}
	return &p, true
}

func (d *Directory) fill(ctx context.Context, p *Profile) {
	if d.cache == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, cacheKey(p.UID), raw, d.ttl).Err(); err != nil {
		log.Printf("profile: cache set %s: %v", p.UID, err)
	}
}

// DisplayName returns the profile name, or the uid when no profile exists.
func (d *Directory) DisplayName(ctx context.Context, uid types.ID) string {
	p, err := d.Lookup(ctx, uid)
	if err != nil || p.Name == "" {
		return string(uid)
	}
	return p.Name
}

type SaveCommand struct {
	UID      types.ID
	Name     string
	Phone    string
	Role     Role
	FCMToken string
}

func (d *Directory) Save(ctx context.Context, cmd SaveCommand) (*Profile, error) {
	p := &Profile{
		UID:       cmd.UID,
		Name:      strings.TrimSpace(cmd.Name),
		Phone:     strings.TrimSpace(cmd.Phone),
		Role:      cmd.Role,
		FCMToken:  cmd.FCMToken,
		UpdatedAt: d.now(),
	}
	if p.Name == "" {
		return nil, ErrMissingName
	}
	if !p.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := d.docs.Set(ctx, CollectionUsers, string(p.UID), p); err != nil {
		return nil, err
	}
	d.invalidate(ctx, p.UID)
	return p, nil
}

func (d *Directory) invalidate(ctx context.Context, uid types.ID) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Del(ctx, cacheKey(uid)).Err(); err != nil {
		log.Printf("profile: cache del %s: %v", uid, err)
	}
}
