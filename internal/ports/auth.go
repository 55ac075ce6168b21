package ports

// Package ports defines interfaces (hexagonal ports) for authentication and
// session behavior. Implementations live in internal/adapters; orchestration
// in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// ChallengeStore persists OTP challenge records keyed by canonical phone
// number. Put overwrites any prior record for the number, which is what keeps
// at most one challenge active per phone.
type ChallengeStore interface {
	Put(ctx context.Context, ch domainauth.Challenge) error

	// Get returns the stored challenge, or domainauth.ErrChallengeNotFound
	// when no record exists for the number.
	Get(ctx context.Context, phone domainauth.CanonicalPhone) (domainauth.Challenge, error)

	// IncrementAttempts atomically bumps the attempt counter and returns the
	// new value, so concurrent verifications for the same number cannot lose
	// an increment.
	IncrementAttempts(ctx context.Context, phone domainauth.CanonicalPhone) (int, error)

	// MarkVerified flips the record to verified at the given time.
	MarkVerified(ctx context.Context, phone domainauth.CanonicalPhone, at time.Time) error

	// CountIssued reports how many issuances for the number fall inside the
	// rolling window, without recording a new one.
	CountIssued(ctx context.Context, phone domainauth.CanonicalPhone, window time.Duration) (int, error)

	// IncrementIssued counts an issuance against the rolling window for the
	// number and returns the total inside the window, including this one.
	IncrementIssued(ctx context.Context, phone domainauth.CanonicalPhone, window time.Duration) (int, error)
}

// SessionPersistence is the client-durable storage for one phone-session
// record. A store instance is scoped to a single session owner; Load returns
// domainauth.ErrNoSessionRecord when nothing is persisted.
type SessionPersistence interface {
	Load(ctx context.Context) (domainauth.PhoneSessionRecord, error)
	Save(ctx context.Context, rec domainauth.PhoneSessionRecord) error
	Clear(ctx context.Context) error
}

// ProfileStore reads and writes principal profile records. Lookups that find
// nothing return domainauth.ErrProfileNotFound.
type ProfileStore interface {
	GetByUID(ctx context.Context, uid string) (domainauth.Profile, error)
	GetByPhone(ctx context.Context, phone domainauth.CanonicalPhone) (domainauth.Profile, error)

	// GetRole returns the authoritative role for the principal.
	GetRole(ctx context.Context, uid string) (domainauth.Role, error)

	Upsert(ctx context.Context, p domainauth.Profile) error
}

// TemplateOTP is the message template for OTP delivery.
const TemplateOTP = "PHONE_VERIFICATION_OTP"

// Message is one outbound templated message.
type Message struct {
	To         domainauth.CanonicalPhone
	TemplateID string
	Vars       map[string]string
}

// MessageSender dispatches outbound messages. Content and templating are owned
// by the messaging collaborator, not by this service.
type MessageSender interface {
	Send(ctx context.Context, msg Message) (delivered bool, err error)
}

// FederatedObserver exposes the identity provider's sign-in state. Subscribe
// fires the callback once with the current state, then on every sign-in or
// sign-out transition, until the returned function is called.
type FederatedObserver interface {
	Subscribe(fn func(p *domainauth.Principal)) (unsubscribe func())
}

// FederatedSignOut terminates the provider-side session. Failures are
// reported but never block local sign-out.
type FederatedSignOut interface {
	SignOut(ctx context.Context) error
}

// BeginInput carries inputs for initiating a federated auth flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an
	// opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and
	// returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// Clock abstracts time so TTL and keep-alive logic are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time { return time.Now() }
