// Package bolt provides a file-backed session store for clients that keep
// their phone session durable across process restarts without a Redis
// dependency, such as CLI tooling and kiosk installs.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"go.etcd.io/bbolt"
)

var sessionBucket = []byte("phone_sessions")

// SessionStore persists phone-session records in a BBolt database, one record
// per owner key.
type SessionStore struct {
	db    *bbolt.DB
	owner []byte
}

// NewSessionStore returns a session store scoped to the given owner ID.
func NewSessionStore(db *bbolt.DB, ownerID string) *SessionStore {
	return &SessionStore{db: db, owner: []byte(ownerID)}
}

// NewSessionStoreFromFile opens a BBolt database at the given path and returns
// a store scoped to ownerID. The caller owns closing it.
func NewSessionStoreFromFile(path, ownerID string, options *bbolt.Options) (*SessionStore, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewSessionStore(db, ownerID), nil
}

// Close closes the underlying BBolt database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Load returns the persisted record for this owner. An expired record is
// deleted on read and reported as missing.
func (s *SessionStore) Load(ctx context.Context) (domainauth.PhoneSessionRecord, error) {
	var rec domainauth.PhoneSessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return domainauth.ErrNoSessionRecord
		}
		data := b.Get(s.owner)
		if data == nil {
			return domainauth.ErrNoSessionRecord
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return domainauth.PhoneSessionRecord{}, err
	}

	if rec.Expired(time.Now()) {
		if clearErr := s.Clear(ctx); clearErr != nil {
			return domainauth.PhoneSessionRecord{}, fmt.Errorf("cleanup expired record: %w", clearErr)
		}
		return domainauth.PhoneSessionRecord{}, domainauth.ErrNoSessionRecord
	}
	return rec, nil
}

// Save overwrites the stored record for this owner.
func (s *SessionStore) Save(_ context.Context, rec domainauth.PhoneSessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		return b.Put(s.owner, data)
	})
}

// Clear deletes the stored record for this owner.
func (s *SessionStore) Clear(context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return nil
		}
		return b.Delete(s.owner)
	})
}
