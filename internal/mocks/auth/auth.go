package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.ChallengeStore     = (*MemoryChallengeStore)(nil)
	_ ports.SessionPersistence = (*MemorySessionStore)(nil)
	_ ports.ProfileStore       = (*MemoryProfileStore)(nil)
	_ ports.MessageSender      = (*CapturingSender)(nil)
	_ ports.FederatedObserver  = (*ObserverStub)(nil)
	_ ports.FederatedSignOut   = (SignOutFunc)(nil)
	_ ports.AuthProvider       = (*MockAuthProvider)(nil)
	_ ports.RoleMapper         = (StaticRoleMapper{})
	_ ports.Clock              = (*FixedClock)(nil)
)

// FixedClock is a settable Clock for deterministic TTL and expiry tests.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a FixedClock pinned to t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the pinned time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set pins the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// MemoryChallengeStore is an in-memory challenge store for unit tests. The
// issuance window is tracked against the injected clock.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[domainauth.CanonicalPhone]domainauth.Challenge
	issues     map[domainauth.CanonicalPhone][]time.Time
	clock      ports.Clock

	// PutErr, GetErr force failures when set.
	PutErr error
	GetErr error
}

// NewMemoryChallengeStore creates an empty store driven by the given clock.
func NewMemoryChallengeStore(clock ports.Clock) *MemoryChallengeStore {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &MemoryChallengeStore{
		challenges: make(map[domainauth.CanonicalPhone]domainauth.Challenge),
		issues:     make(map[domainauth.CanonicalPhone][]time.Time),
		clock:      clock,
	}
}

func (m *MemoryChallengeStore) Put(_ context.Context, ch domainauth.Challenge) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.mu.Lock()
	m.challenges[domainauth.CanonicalPhone(ch.PhoneNumber)] = ch
	m.mu.Unlock()
	return nil
}

func (m *MemoryChallengeStore) Get(_ context.Context, phone domainauth.CanonicalPhone) (domainauth.Challenge, error) {
	if m.GetErr != nil {
		return domainauth.Challenge{}, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[phone]
	if !ok {
		return domainauth.Challenge{}, domainauth.ErrChallengeNotFound
	}
	return ch, nil
}

func (m *MemoryChallengeStore) IncrementAttempts(_ context.Context, phone domainauth.CanonicalPhone) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[phone]
	if !ok {
		return 0, domainauth.ErrChallengeNotFound
	}
	ch.Attempts++
	m.challenges[phone] = ch
	return ch.Attempts, nil
}

func (m *MemoryChallengeStore) MarkVerified(_ context.Context, phone domainauth.CanonicalPhone, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[phone]
	if !ok {
		return domainauth.ErrChallengeNotFound
	}
	ch.Verified = true
	ch.VerifiedAt = &at
	m.challenges[phone] = ch
	return nil
}

func (m *MemoryChallengeStore) CountIssued(_ context.Context, phone domainauth.CanonicalPhone, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pruneIssues(phone, window)), nil
}

func (m *MemoryChallengeStore) IncrementIssued(_ context.Context, phone domainauth.CanonicalPhone, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := append(m.pruneIssues(phone, window), m.clock.Now())
	m.issues[phone] = kept
	return len(kept), nil
}

// pruneIssues drops issuances older than the window. Callers hold m.mu.
func (m *MemoryChallengeStore) pruneIssues(phone domainauth.CanonicalPhone, window time.Duration) []time.Time {
	cutoff := m.clock.Now().Add(-window)
	kept := m.issues[phone][:0]
	for _, t := range m.issues[phone] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	m.issues[phone] = kept
	return kept
}

// Stored returns the challenge currently held for the phone, if any.
func (m *MemoryChallengeStore) Stored(phone domainauth.CanonicalPhone) (domainauth.Challenge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[phone]
	return ch, ok
}

// MemorySessionStore is an in-memory phone-session persistence for unit
// tests, with call counters for asserting write behavior.
type MemorySessionStore struct {
	mu      sync.Mutex
	record  domainauth.PhoneSessionRecord
	present bool

	SaveCalls  int
	ClearCalls int

	// LoadErr, SaveErr, ClearErr force failures when set.
	LoadErr  error
	SaveErr  error
	ClearErr error
}

// NewMemorySessionStore creates an empty persistence.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Seed pre-populates the persisted record.
func (m *MemorySessionStore) Seed(rec domainauth.PhoneSessionRecord) {
	m.mu.Lock()
	m.record = rec
	m.present = true
	m.mu.Unlock()
}

func (m *MemorySessionStore) Load(_ context.Context) (domainauth.PhoneSessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return domainauth.PhoneSessionRecord{}, m.LoadErr
	}
	if !m.present {
		return domainauth.PhoneSessionRecord{}, domainauth.ErrNoSessionRecord
	}
	return m.record, nil
}

func (m *MemorySessionStore) Save(_ context.Context, rec domainauth.PhoneSessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.record = rec
	m.present = true
	return nil
}

func (m *MemorySessionStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.record = domainauth.PhoneSessionRecord{}
	m.present = false
	return nil
}

// Stored returns the current record and whether one is present.
func (m *MemorySessionStore) Stored() (domainauth.PhoneSessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record, m.present
}

// MemoryProfileStore is an in-memory profile store for unit tests.
type MemoryProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domainauth.Profile

	// GetErr and RoleErr force lookup failures when set.
	GetErr  error
	RoleErr error
}

// NewMemoryProfileStore creates an empty profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]domainauth.Profile)}
}

func (m *MemoryProfileStore) GetByUID(_ context.Context, uid string) (domainauth.Profile, error) {
	if m.GetErr != nil {
		return domainauth.Profile{}, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return domainauth.Profile{}, domainauth.ErrProfileNotFound
	}
	return p, nil
}

func (m *MemoryProfileStore) GetByPhone(_ context.Context, phone domainauth.CanonicalPhone) (domainauth.Profile, error) {
	if m.GetErr != nil {
		return domainauth.Profile{}, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.PhoneNumber == phone.String() {
			return p, nil
		}
	}
	return domainauth.Profile{}, domainauth.ErrProfileNotFound
}

func (m *MemoryProfileStore) GetRole(_ context.Context, uid string) (domainauth.Role, error) {
	if m.RoleErr != nil {
		return "", m.RoleErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[uid]
	if !ok {
		return "", domainauth.ErrProfileNotFound
	}
	return p.UserType, nil
}

func (m *MemoryProfileStore) Upsert(_ context.Context, p domainauth.Profile) error {
	m.mu.Lock()
	m.profiles[p.UID] = p
	m.mu.Unlock()
	return nil
}

// CapturingSender records outbound messages instead of sending them.
type CapturingSender struct {
	mu       sync.Mutex
	messages []ports.Message

	// Undelivered makes Send report non-delivery; SendErr forces an error.
	Undelivered bool
	SendErr     error
}

// NewCapturingSender creates a sender that reports every message delivered.
func NewCapturingSender() *CapturingSender {
	return &CapturingSender{}
}

func (s *CapturingSender) Send(_ context.Context, msg ports.Message) (bool, error) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	if s.SendErr != nil {
		return false, s.SendErr
	}
	return !s.Undelivered, nil
}

// Messages returns a copy of everything sent so far.
func (s *CapturingSender) Messages() []ports.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastCode extracts the otp template variable from the most recent message.
func (s *CapturingSender) LastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1].Vars["otp"]
}

// ObserverStub simulates the identity provider's sign-in state feed and
// counts subscriptions, so tests can assert the phone-session short-circuit
// never touched the provider.
type ObserverStub struct {
	mu             sync.Mutex
	current        *domainauth.Principal
	subs           map[int]func(*domainauth.Principal)
	nextID         int
	SubscribeCalls int
}

// NewObserverStub starts in the signed-out state.
func NewObserverStub() *ObserverStub {
	return &ObserverStub{subs: make(map[int]func(*domainauth.Principal))}
}

// SetCurrent primes the state emitted at subscription time.
func (o *ObserverStub) SetCurrent(p *domainauth.Principal) {
	o.mu.Lock()
	o.current = p
	o.mu.Unlock()
}

func (o *ObserverStub) Subscribe(fn func(p *domainauth.Principal)) func() {
	o.mu.Lock()
	o.SubscribeCalls++
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	current := o.current
	o.mu.Unlock()

	fn(current)

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Emit pushes a transition to all subscribers.
func (o *ObserverStub) Emit(p *domainauth.Principal) {
	o.mu.Lock()
	o.current = p
	fns := make([]func(*domainauth.Principal), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

// SignOutFunc adapts a function to the FederatedSignOut port.
type SignOutFunc func(ctx context.Context) error

// SignOut implements ports.FederatedSignOut.
func (f SignOutFunc) SignOut(ctx context.Context) error { return f(ctx) }

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce
// handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	AuthURL         string
	DefaultIdentity domainauth.Identity

	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/auth",
		DefaultIdentity: domainauth.Identity{
			UID:         "mock-user-1",
			DisplayName: "Mock User",
			Email:       "mock.user@example.com",
			Groups:      []string{"users"},
			ExpiresAt:   time.Now().Add(time.Hour),
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}
	m.callCount++
	return m.AuthURL, fmt.Sprintf("state-%d", m.callCount), fmt.Sprintf("nonce-%d", m.callCount), nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	id := m.DefaultIdentity
	id.ExpiresAt = time.Now().Add(time.Hour)
	return id, nil
}

// StaticRoleMapper maps groups by simple string membership rules.
type StaticRoleMapper struct {
	AdminGroup string
}

// Map returns admin for members of the admin group, user otherwise.
func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	return domainauth.RoleUser
}
