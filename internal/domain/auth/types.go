package auth

// Package auth contains domain-level types for the dual-mode identity model:
// principals authenticated through a federated identity provider and principals
// authenticated through the phone OTP flow. It is pure and free of
// framework/adapter concerns.

import (
	"time"

	"github.com/google/uuid"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// SessionTTL is how long a phone session stays valid without an extension.
const SessionTTL = 24 * time.Hour

// KeepAliveInterval is how often an active phone session is extended.
const KeepAliveInterval = 30 * time.Minute

// ChallengeTTL is how long an issued OTP challenge can be redeemed.
const ChallengeTTL = 10 * time.Minute

// MaxVerifyAttempts caps incorrect code submissions per challenge.
const MaxVerifyAttempts = 3

// phoneNamespace seeds deterministic principal IDs for phone-only accounts,
// so the same number always resolves to the same principal.
var phoneNamespace = uuid.MustParse("8b1dfd2c-17a4-4a98-9d3f-6e1f0a9b52c4")

// PhonePrincipalID derives the stable principal ID for a phone-only account.
func PhonePrincipalID(phone CanonicalPhone) string {
	return uuid.NewSHA1(phoneNamespace, []byte(phone)).String()
}

// Principal is the authenticated identity backing a session. It is sourced
// either from the federated provider (ID = provider subject) or synthesized
// for phone-only principals (ID = deterministic function of the phone number).
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Role        Role   `json:"role"`
}

// Identity is the raw authenticated principal returned by an identity
// provider. Adapters map provider-specific claims into this shape.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhoneNumber string
	PhotoURL    string
	Groups      []string
	ExpiresAt   time.Time
}

// Profile is the backing profile-store record for a principal. UserType is
// authoritative here and is re-fetched whenever the principal changes.
type Profile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	PhoneNumber string    `json:"phoneNumber,omitempty"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	UserType    Role      `json:"userType"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Complete reports whether the profile has been filled in past the minimal
// synthesized state a phone-only sign-in starts with.
func (p Profile) Complete() bool {
	return p.DisplayName != ""
}

// Principal projects the profile into a Principal value.
func (p Profile) Principal() Principal {
	return Principal{
		ID:          p.UID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		PhoneNumber: p.PhoneNumber,
		PhotoURL:    p.PhotoURL,
		Role:        p.UserType,
	}
}

// Challenge is a one-time-password challenge record, keyed by canonical phone
// number. At most one active challenge exists per number; a new issuance
// overwrites the prior record. A challenge is logically inert once expired or
// verified; it is never explicitly deleted.
type Challenge struct {
	PhoneNumber string     `json:"phoneNumber"`
	Code        string     `json:"code"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Attempts    int        `json:"attempts"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
}

// Expired reports whether the challenge can no longer be redeemed at now.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// SessionState identifies the variant of the unified session value.
type SessionState int

const (
	// StateInitializing means restoration has not yet resolved. No
	// authorization decision may be made in this state.
	StateInitializing SessionState = iota
	// StateNone means no principal is signed in.
	StateNone
	// StatePhone means the principal authenticated via the OTP flow and the
	// session carries its own locally tracked TTL.
	StatePhone
	// StateFederated means validity is delegated to the identity provider.
	StateFederated
)

// String implements fmt.Stringer for log output.
func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateNone:
		return "none"
	case StatePhone:
		return "phone"
	case StateFederated:
		return "federated"
	default:
		return "unknown"
	}
}

// Session is the unified runtime session value consumed by the rest of the
// application. Exactly one variant is active at a time; consumers switch on
// State instead of probing optional fields.
type Session struct {
	State     SessionState
	Principal Principal
	Profile   *Profile

	// RoleResolved is false while the authoritative role fetch is still in
	// flight. Callers that gate on role must treat an unresolved role as
	// "not yet admin", never as an error.
	RoleResolved bool

	// IssuedAt and LastExtendedAt are meaningful only for StatePhone.
	IssuedAt       time.Time
	LastExtendedAt time.Time
}

// Authenticated reports whether a principal is present.
func (s Session) Authenticated() bool {
	return s.State == StatePhone || s.State == StateFederated
}

// PhoneExpired reports whether a phone session has outlived its TTL at now.
// Always false for other variants.
func (s Session) PhoneExpired(now time.Time) bool {
	return s.State == StatePhone && now.Sub(s.LastExtendedAt) >= SessionTTL
}

// PhoneSessionRecord is the persisted phone-session blob. It is consumed on
// restoration, overwritten on keep-alive and sign-in, and deleted on sign-out
// or confirmed expiry. Timestamp is the last extension in epoch milliseconds.
type PhoneSessionRecord struct {
	User      Principal `json:"user"`
	Profile   Profile   `json:"userProfile"`
	IssuedAt  int64     `json:"issuedAt"`
	Timestamp int64     `json:"timestamp"`
}

// NewPhoneSessionRecord builds a fresh record for a principal signed in at now.
func NewPhoneSessionRecord(p Principal, profile Profile, now time.Time) PhoneSessionRecord {
	return PhoneSessionRecord{
		User:      p,
		Profile:   profile,
		IssuedAt:  now.UnixMilli(),
		Timestamp: now.UnixMilli(),
	}
}

// Expired reports whether the record's last extension is older than the TTL.
func (r PhoneSessionRecord) Expired(now time.Time) bool {
	return now.Sub(time.UnixMilli(r.Timestamp)) >= SessionTTL
}

// Session hydrates the phone-session variant from the record.
func (r PhoneSessionRecord) Session() Session {
	profile := r.Profile
	return Session{
		State:          StatePhone,
		Principal:      r.User,
		Profile:        &profile,
		RoleResolved:   true,
		IssuedAt:       time.UnixMilli(r.IssuedAt),
		LastExtendedAt: time.UnixMilli(r.Timestamp),
	}
}
