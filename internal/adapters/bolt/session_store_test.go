package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := bbolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func freshRecord(now time.Time) domainauth.PhoneSessionRecord {
	uid := domainauth.PhonePrincipalID("919876543210")
	return domainauth.NewPhoneSessionRecord(
		domainauth.Principal{ID: uid, PhoneNumber: "919876543210", Role: domainauth.RoleUser},
		domainauth.Profile{UID: uid, PhoneNumber: "919876543210", UserType: domainauth.RoleUser},
		now,
	)
}

func TestSessionStore_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db, "owner-1")
	ctx := context.Background()

	rec := freshRecord(time.Now())
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.User.ID, got.User.ID)
	assert.Equal(t, rec.IssuedAt, got.IssuedAt)
	assert.Equal(t, rec.Timestamp, got.Timestamp)
}

func TestSessionStore_LoadMissing(t *testing.T) {
	store := NewSessionStore(openTestDB(t), "owner-1")

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)
}

func TestSessionStore_Clear(t *testing.T) {
	store := NewSessionStore(openTestDB(t), "owner-1")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, freshRecord(time.Now())))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)
}

func TestSessionStore_ClearWithoutBucketIsNoop(t *testing.T) {
	store := NewSessionStore(openTestDB(t), "owner-1")
	assert.NoError(t, store.Clear(context.Background()))
}

func TestSessionStore_ExpiredRecordDeletedOnLoad(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db, "owner-1")
	ctx := context.Background()

	stale := freshRecord(time.Now().Add(-domainauth.SessionTTL - time.Hour))
	require.NoError(t, store.Save(ctx, stale))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)

	// The stale blob is gone, not just masked.
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		require.NotNil(t, b)
		assert.Nil(t, b.Get([]byte("owner-1")))
		return nil
	})
	require.NoError(t, err)
}

func TestSessionStore_OwnersAreIsolated(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := NewSessionStore(db, "owner-a")
	b := NewSessionStore(db, "owner-b")

	require.NoError(t, a.Save(ctx, freshRecord(time.Now())))

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoSessionRecord)
}

func TestSessionStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	store, err := NewSessionStoreFromFile(path, "owner-1", nil)
	require.NoError(t, err)
	rec := freshRecord(time.Now())
	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Close())

	reopened, err := NewSessionStoreFromFile(path, "owner-1", nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.User.ID, got.User.ID)
}
