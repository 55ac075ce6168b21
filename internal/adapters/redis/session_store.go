package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// SessionStore persists the phone-session record for a single owner. Each
// instance is scoped to one owner key; construct one per client session.
// Redis TTL mirrors the record's own expiry, with a read-time check as backup.
type SessionStore struct {
	client redis.UniversalClient
	key    string
}

// NewSessionStore creates a session store scoped to the given owner ID.
func NewSessionStore(client redis.UniversalClient, ownerID string) *SessionStore {
	return &SessionStore{client: client, key: "phone_session:" + ownerID}
}

// Load returns the persisted record, or domainauth.ErrNoSessionRecord when
// nothing is stored. A record found past its TTL is deleted and reported as
// missing.
func (s *SessionStore) Load(ctx context.Context) (domainauth.PhoneSessionRecord, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.PhoneSessionRecord{}, domainauth.ErrNoSessionRecord
		}
		return domainauth.PhoneSessionRecord{}, fmt.Errorf("redis get: %w", err)
	}

	var rec domainauth.PhoneSessionRecord
	if unmarshalErr := json.Unmarshal([]byte(data), &rec); unmarshalErr != nil {
		return domainauth.PhoneSessionRecord{}, fmt.Errorf("unmarshal session record: %w", unmarshalErr)
	}

	// Redis TTL should have evicted this already, but be defensive.
	if rec.Expired(time.Now()) {
		if delErr := s.Clear(ctx); delErr != nil {
			return domainauth.PhoneSessionRecord{}, fmt.Errorf("cleanup expired record: %w", delErr)
		}
		return domainauth.PhoneSessionRecord{}, domainauth.ErrNoSessionRecord
	}
	return rec, nil
}

// Save overwrites the stored record and refreshes its TTL.
func (s *SessionStore) Save(ctx context.Context, rec domainauth.PhoneSessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	ttl := time.Until(time.UnixMilli(rec.Timestamp).Add(domainauth.SessionTTL))
	if ttl <= 0 {
		return errors.New("session record is expired")
	}
	return s.client.Set(ctx, s.key, data, ttl).Err()
}

// Clear deletes the stored record.
func (s *SessionStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
