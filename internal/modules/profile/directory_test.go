package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusride/internal/docstore"
)

var fixed = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func TestLookupReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	db, mock := redismock.NewClientMock()
	dir := NewDirectory(mem, db, 10*time.Minute)

	p := Profile{UID: "u1", Name: "Aina", Phone: "+60123456789", Role: RoleDriver, UpdatedAt: fixed}
	require.NoError(t, mem.Set(ctx, CollectionUsers, "u1", p))
	raw, err := json.Marshal(&p)
	require.NoError(t, err)

	mock.ExpectGet("profile:u1").RedisNil()
	mock.ExpectSet("profile:u1", raw, 10*time.Minute).SetVal("OK")

	got, err := dir.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Aina", got.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupServesFromCache(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	dir := NewDirectory(docstore.NewMemory(), db, time.Minute)

	raw, err := json.Marshal(&Profile{UID: "u2", Name: "Hafiz", Role: RoleCustomer})
	require.NoError(t, err)
	mock.ExpectGet("profile:u2").SetVal(string(raw))

	got, err := dir.Lookup(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, "Hafiz", got.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupSurvivesCacheFailure(t *testing.T) {
	ctx := context.Background()
	mem := docstore.NewMemory()
	db, mock := redismock.NewClientMock()
	dir := NewDirectory(mem, db, time.Minute)
	require.NoError(t, mem.Set(ctx, CollectionUsers, "u3", Profile{UID: "u3", Name: "Mei", Role: RoleCustomer}))

	mock.ExpectGet("profile:u3").SetErr(errors.New("connection refused"))
	// the cache fill is not expected either; the mock fails it and Lookup ignores that

	got, err := dir.Lookup(ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, "Mei", got.Name)
}

func TestLookupMissingProfile(t *testing.T) {
	dir := NewDirectory(docstore.NewMemory(), nil, time.Minute)
	_, err := dir.Lookup(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "ghost", dir.DisplayName(context.Background(), "ghost"))
}

func TestSaveValidatesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	dir := NewDirectory(docstore.NewMemory(), db, time.Minute)

	_, err := dir.Save(ctx, SaveCommand{UID: "u4", Name: " ", Role: RoleDriver})
	assert.ErrorIs(t, err, ErrMissingName)
	_, err = dir.Save(ctx, SaveCommand{UID: "u4", Name: "Ravi", Role: "admin"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	mock.ExpectDel("profile:u4").SetVal(1)
	p, err := dir.Save(ctx, SaveCommand{UID: "u4", Name: " Ravi ", Phone: "0123", Role: RoleDriver, FCMToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "Ravi", p.Name)
	assert.NoError(t, mock.ExpectationsWereMet())

	dir.cache = nil
	got, err := dir.Lookup(ctx, "u4")
	require.NoError(t, err)
	assert.Equal(t, "tok", got.FCMToken)
}
