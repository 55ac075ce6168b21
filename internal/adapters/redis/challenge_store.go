package redis

// Package redis provides Redis-backed adapters for challenge and session
// persistence.

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// challengeRetention keeps redeemed and expired challenge records around long
// enough that replays get a precise error instead of "not found".
const challengeRetention = 24 * time.Hour

// ChallengeStore keeps one OTP challenge per phone number in a Redis hash.
// The hash layout makes the attempt counter a single HINCRBY, so concurrent
// verifications for the same number cannot lose an increment.
type ChallengeStore struct {
	client redis.UniversalClient
	prefix string
	clock  ports.Clock
}

// NewChallengeStore creates a challenge store with the default key prefix.
func NewChallengeStore(client redis.UniversalClient) *ChallengeStore {
	return &ChallengeStore{client: client, prefix: "otp:challenge:", clock: ports.SystemClock{}}
}

// NewChallengeStoreWithPrefix creates a challenge store with a custom prefix.
func NewChallengeStoreWithPrefix(client redis.UniversalClient, prefix string) *ChallengeStore {
	return &ChallengeStore{client: client, prefix: prefix, clock: ports.SystemClock{}}
}

// WithClock overrides the store's time source for the issuance window.
func (s *ChallengeStore) WithClock(clock ports.Clock) *ChallengeStore {
	s.clock = clock
	return s
}

func (s *ChallengeStore) key(phone domainauth.CanonicalPhone) string {
	return s.prefix + string(phone)
}

func (s *ChallengeStore) issuedKey(phone domainauth.CanonicalPhone) string {
	return s.prefix + "issued:" + string(phone)
}

// Put overwrites any prior challenge for the number.
func (s *ChallengeStore) Put(ctx context.Context, ch domainauth.Challenge) error {
	key := s.key(domainauth.CanonicalPhone(ch.PhoneNumber))

	fields := map[string]interface{}{
		"code":       ch.Code,
		"createdAt":  ch.CreatedAt.UnixMilli(),
		"expiresAt":  ch.ExpiresAt.UnixMilli(),
		"attempts":   ch.Attempts,
		"verified":   boolField(ch.Verified),
		"verifiedAt": int64(0),
	}
	if ch.VerifiedAt != nil {
		fields["verifiedAt"] = ch.VerifiedAt.UnixMilli()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, challengeRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Get returns the stored challenge for the number.
func (s *ChallengeStore) Get(ctx context.Context, phone domainauth.CanonicalPhone) (domainauth.Challenge, error) {
	fields, err := s.client.HGetAll(ctx, s.key(phone)).Result()
	if err != nil {
		return domainauth.Challenge{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return domainauth.Challenge{}, domainauth.ErrChallengeNotFound
	}
	return challengeFromFields(phone, fields)
}

// IncrementAttempts atomically bumps the attempt counter.
func (s *ChallengeStore) IncrementAttempts(ctx context.Context, phone domainauth.CanonicalPhone) (int, error) {
	n, err := s.client.HIncrBy(ctx, s.key(phone), "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return int(n), nil
}

// MarkVerified flips the record to verified at the given time.
func (s *ChallengeStore) MarkVerified(ctx context.Context, phone domainauth.CanonicalPhone, at time.Time) error {
	err := s.client.HSet(ctx, s.key(phone), map[string]interface{}{
		"verified":   1,
		"verifiedAt": at.UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// CountIssued reports how many issuances fall inside the rolling window,
// pruning aged-out entries as a side effect.
func (s *ChallengeStore) CountIssued(ctx context.Context, phone domainauth.CanonicalPhone, window time.Duration) (int, error) {
	key := s.issuedKey(phone)
	cutoff := s.clock.Now().Add(-window).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count issuances: %w", err)
	}
	return int(card.Val()), nil
}

// IncrementIssued records an issuance in a rolling-window sorted set and
// returns how many issuances, including this one, fall inside the window.
func (s *ChallengeStore) IncrementIssued(ctx context.Context, phone domainauth.CanonicalPhone, window time.Duration) (int, error) {
	key := s.issuedKey(phone)
	now := s.clock.Now()
	cutoff := now.Add(-window).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: now.UnixNano(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count issuance: %w", err)
	}
	return int(card.Val()), nil
}

func challengeFromFields(phone domainauth.CanonicalPhone, fields map[string]string) (domainauth.Challenge, error) {
	ch := domainauth.Challenge{
		PhoneNumber: string(phone),
		Code:        fields["code"],
	}

	createdAt, err := millisField(fields, "createdAt")
	if err != nil {
		return domainauth.Challenge{}, err
	}
	ch.CreatedAt = createdAt

	expiresAt, err := millisField(fields, "expiresAt")
	if err != nil {
		return domainauth.Challenge{}, err
	}
	ch.ExpiresAt = expiresAt

	if v := fields["attempts"]; v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil {
			return domainauth.Challenge{}, fmt.Errorf("parse attempts %q: %w", v, convErr)
		}
		ch.Attempts = n
	}
	ch.Verified = fields["verified"] == "1"
	if ch.Verified {
		at, vErr := millisField(fields, "verifiedAt")
		if vErr == nil && !at.IsZero() {
			ch.VerifiedAt = &at
		}
	}
	return ch, nil
}

func millisField(fields map[string]string, name string) (time.Time, error) {
	v := fields[name]
	if v == "" {
		return time.Time{}, errors.New("challenge record missing field " + name)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s %q: %w", name, v, err)
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
