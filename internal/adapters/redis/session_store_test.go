package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

func testRecord(now time.Time) domainauth.PhoneSessionRecord {
	return domainauth.NewPhoneSessionRecord(
		domainauth.Principal{
			ID:          domainauth.PhonePrincipalID("919876543210"),
			PhoneNumber: "919876543210",
			Role:        domainauth.RoleUser,
		},
		domainauth.Profile{
			UID:         domainauth.PhonePrincipalID("919876543210"),
			PhoneNumber: "919876543210",
			DisplayName: "Asha Rao",
			UserType:    domainauth.RoleUser,
		},
		now,
	)
}

func TestSessionStore_SaveAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client, "owner-1")
	ctx := context.Background()

	rec := testRecord(time.Now())
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.User.ID, got.User.ID)
	assert.Equal(t, "Asha Rao", got.Profile.DisplayName)
	assert.Equal(t, rec.IssuedAt, got.IssuedAt)
	assert.Equal(t, rec.Timestamp, got.Timestamp)
}

func TestSessionStore_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client, "owner-missing")

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)
}

func TestSessionStore_Clear(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client, "owner-2")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testRecord(time.Now())))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)
}

func TestSessionStore_SaveExpiredRecordRejected(t *testing.T) {
	client := setupTestRedis(t)
	store := NewSessionStore(client, "owner-3")

	rec := testRecord(time.Now().Add(-domainauth.SessionTTL - time.Hour))
	err := store.Save(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestSessionStore_OwnersAreIsolated(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	a := NewSessionStore(client, "owner-a")
	b := NewSessionStore(client, "owner-b")

	require.NoError(t, a.Save(ctx, testRecord(time.Now())))

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)
}
