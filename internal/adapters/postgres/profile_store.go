// Package postgres provides the PostgreSQL-backed profile store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// ErrPhoneNumberTaken is returned when an upsert would claim a phone number
// already bound to a different principal.
var ErrPhoneNumberTaken = errors.New("phone number already bound to another profile")

// ProfileStore provides database operations for principal profiles.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new profile store.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileColumns = `uid, email, display_name, phone_number, photo_url, user_type, created_at, updated_at`

func scanProfile(row pgx.Row) (domainauth.Profile, error) {
	var p domainauth.Profile
	err := row.Scan(
		&p.UID, &p.Email, &p.DisplayName, &p.PhoneNumber,
		&p.PhotoURL, &p.UserType, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainauth.Profile{}, domainauth.ErrProfileNotFound
		}
		return domainauth.Profile{}, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

// GetByUID retrieves a profile by principal ID.
func (s *ProfileStore) GetByUID(ctx context.Context, uid string) (domainauth.Profile, error) {
	if strings.TrimSpace(uid) == "" {
		return domainauth.Profile{}, domainauth.ErrProfileNotFound
	}
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE uid = $1`
	return scanProfile(s.pool.QueryRow(ctx, query, uid))
}

// GetByPhone retrieves a profile by canonical phone number.
func (s *ProfileStore) GetByPhone(ctx context.Context, phone domainauth.CanonicalPhone) (domainauth.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE phone_number = $1`
	return scanProfile(s.pool.QueryRow(ctx, query, string(phone)))
}

// GetRole returns the authoritative role for the principal.
func (s *ProfileStore) GetRole(ctx context.Context, uid string) (domainauth.Role, error) {
	var role domainauth.Role
	err := s.pool.QueryRow(ctx, `SELECT user_type FROM user_profiles WHERE uid = $1`, uid).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domainauth.ErrProfileNotFound
		}
		return "", fmt.Errorf("query role: %w", err)
	}
	return role, nil
}

// Upsert inserts the profile or updates the existing row for the same UID.
func (s *ProfileStore) Upsert(ctx context.Context, p domainauth.Profile) error {
	if strings.TrimSpace(p.UID) == "" {
		return errors.New("profile uid is required")
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	query := `
		INSERT INTO user_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (uid) DO UPDATE SET
			email        = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			phone_number = EXCLUDED.phone_number,
			photo_url    = EXCLUDED.photo_url,
			user_type    = EXCLUDED.user_type,
			updated_at   = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		p.UID, p.Email, p.DisplayName, p.PhoneNumber,
		p.PhotoURL, p.UserType, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrPhoneNumberTaken, p.PhoneNumber)
		}
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
