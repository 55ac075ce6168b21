package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// fetchTimeout bounds the async profile and role round-trips started by a
// provider sign-in event.
const fetchTimeout = 15 * time.Second

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Persistence ports.SessionPersistence
	Observer    ports.FederatedObserver
	Profiles    ports.ProfileStore
	// ProviderSignOut is invoked on sign-out from a federated session.
	// Optional; errors are logged, never surfaced.
	ProviderSignOut ports.FederatedSignOut
	Clock           ports.Clock
	Logger          *slog.Logger
}

// SessionManager unifies the phone-session persistence and the federated
// observer into one session value. It owns the state machine
//
//	Initializing -> {NoSession, PhoneSession, FederatedSession}
//
// where the terminal states transition to each other only through explicit
// sign-out followed by a fresh authentication event. State changes are pushed
// to subscribers; nothing else mutates the session.
type SessionManager struct {
	persistence     ports.SessionPersistence
	observer        ports.FederatedObserver
	profiles        ports.ProfileStore
	providerSignOut ports.FederatedSignOut
	clock           ports.Clock
	logger          *slog.Logger

	restoreOnce sync.Once

	mu          sync.Mutex
	session     domainauth.Session
	subscribers map[int]func(domainauth.Session)
	nextSubID   int
	unsubscribe func()
}

// NewSessionManager constructs a manager in the Initializing state. Call
// Restore exactly once before evaluating any route access.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &SessionManager{
		persistence:     opts.Persistence,
		observer:        opts.Observer,
		profiles:        opts.Profiles,
		providerSignOut: opts.ProviderSignOut,
		clock:           clock,
		logger:          logger,
		session:         domainauth.Session{State: domainauth.StateInitializing},
		subscribers:     make(map[int]func(domainauth.Session)),
	}
}

// Restore resolves the persisted phone session or falls through to the
// federated observer. It runs its decision exactly once per manager lifetime;
// subsequent calls are no-ops.
//
// A valid, unexpired phone session wins outright and the federated observer is
// never subscribed: the two identity paths are mutually exclusive, so there is
// no point asking the provider when a local session is live. Otherwise any
// stale record is cleared and the observer's first emission resolves the
// Initializing state.
func (m *SessionManager) Restore(ctx context.Context) {
	m.restoreOnce.Do(func() {
		rec, err := m.persistence.Load(ctx)
		switch {
		case err == nil && !rec.Expired(m.clock.Now()):
			m.logger.Info("restored phone session", "principal", rec.User.ID)
			m.setSession(rec.Session())
			return

		case err == nil:
			// Present but past TTL.
			if cerr := m.persistence.Clear(ctx); cerr != nil {
				m.logger.Error("clear stale phone session", "error", cerr)
			}

		case errors.Is(err, domainauth.ErrNoSessionRecord):
			// Nothing persisted.

		default:
			// A read failure is treated as absence; the federated path can
			// still authenticate the client.
			m.logger.Error("load phone session", "error", errors.Join(domainauth.ErrStoreRead, err))
		}

		// Subscribe fires the callback synchronously with the current state,
		// and the callback takes m.mu; the subscription must be registered
		// without holding the lock.
		unsub := m.observer.Subscribe(m.onProviderChange)
		m.mu.Lock()
		m.unsubscribe = unsub
		m.mu.Unlock()
	})
}

// onProviderChange receives federated sign-in state, including the immediate
// emission at subscription time that resolves Initializing.
func (m *SessionManager) onProviderChange(p *domainauth.Principal) {
	if p == nil {
		m.mu.Lock()
		state := m.session.State
		m.mu.Unlock()
		// Phone sessions are not the provider's to revoke.
		if state == domainauth.StatePhone {
			return
		}
		m.setSession(domainauth.Session{State: domainauth.StateNone})
		return
	}

	principal := *p
	if principal.Role == "" {
		// Role is authoritative in the profile store; default until fetched.
		principal.Role = domainauth.RoleUser
	}

	m.mu.Lock()
	// A phone session ends only through explicit sign-out; a provider
	// sign-in event does not displace it.
	if m.session.State == domainauth.StatePhone {
		m.mu.Unlock()
		return
	}
	m.session = domainauth.Session{
		State:     domainauth.StateFederated,
		Principal: principal,
	}
	snapshot := m.session
	m.mu.Unlock()
	m.notify(snapshot)

	// Profile and role are two independent round-trips. They may land in
	// either order and each applies on its own; neither blocks the session
	// from being usable.
	go m.fetchProfile(principal.ID)
	go m.fetchRole(principal.ID)
}

func (m *SessionManager) fetchProfile(uid string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	profile, err := m.profiles.GetByUID(ctx, uid)
	if err != nil {
		// An authenticated principal with a degraded or absent profile is a
		// valid state; consumers handle the nil profile.
		m.logger.Warn("profile fetch failed", "uid", uid,
			"error", errors.Join(domainauth.ErrProfileFetchFailed, err))
		return
	}
	m.applyProfile(uid, profile)
}

func (m *SessionManager) fetchRole(uid string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	role, err := m.profiles.GetRole(ctx, uid)
	if err != nil {
		m.logger.Warn("role fetch failed", "uid", uid,
			"error", errors.Join(domainauth.ErrProfileFetchFailed, err))
		return
	}
	m.applyRole(uid, role)
}

// applyProfile merges a fetched profile into the current session. Role fields
// are left to applyRole; the two writers are last-write-wins per field.
func (m *SessionManager) applyProfile(uid string, profile domainauth.Profile) {
	m.mu.Lock()
	if !m.session.Authenticated() || m.session.Principal.ID != uid {
		m.mu.Unlock()
		return
	}
	p := profile
	m.session.Profile = &p
	if profile.DisplayName != "" {
		m.session.Principal.DisplayName = profile.DisplayName
	}
	if profile.Email != "" {
		m.session.Principal.Email = profile.Email
	}
	if profile.PhoneNumber != "" {
		m.session.Principal.PhoneNumber = profile.PhoneNumber
	}
	if profile.PhotoURL != "" {
		m.session.Principal.PhotoURL = profile.PhotoURL
	}
	snapshot := m.session
	m.mu.Unlock()
	m.notify(snapshot)
}

// applyRole records the authoritative role and marks it resolved.
func (m *SessionManager) applyRole(uid string, role domainauth.Role) {
	m.mu.Lock()
	if !m.session.Authenticated() || m.session.Principal.ID != uid {
		m.mu.Unlock()
		return
	}
	m.session.Principal.Role = role
	m.session.RoleResolved = true
	snapshot := m.session
	m.mu.Unlock()
	m.notify(snapshot)
}

// SignInPhone establishes a phone session after a successful OTP verification,
// persisting the record before the state transition so a crash between the two
// never loses an authenticated session.
func (m *SessionManager) SignInPhone(ctx context.Context, principal domainauth.Principal, profile domainauth.Profile) error {
	rec := domainauth.NewPhoneSessionRecord(principal, profile, m.clock.Now())
	if err := m.persistence.Save(ctx, rec); err != nil {
		return errors.Join(domainauth.ErrStoreWrite, err)
	}
	m.setSession(rec.Session())
	return nil
}

// SignOut clears the persisted phone session, best-effort terminates the
// provider session when the federated path was active, and transitions to
// NoSession. The local transition is unconditional: sign-out succeeds from the
// caller's perspective regardless of network reachability.
func (m *SessionManager) SignOut(ctx context.Context) {
	m.mu.Lock()
	state := m.session.State
	m.mu.Unlock()

	if err := m.persistence.Clear(ctx); err != nil {
		m.logger.Error("clear phone session", "error", err)
	}

	if state == domainauth.StateFederated && m.providerSignOut != nil {
		if err := m.providerSignOut.SignOut(ctx); err != nil {
			m.logger.Error("provider sign-out",
				"error", errors.Join(domainauth.ErrProviderSignOutFailed, err))
		}
	}

	m.setSession(domainauth.Session{State: domainauth.StateNone})
}

// Refresh re-fetches profile and role for the current principal. In phone mode
// the persisted record is rewritten with the refreshed profile and a fresh
// extension timestamp.
func (m *SessionManager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if !sess.Authenticated() {
		return nil
	}

	uid := sess.Principal.ID
	profile, perr := m.profiles.GetByUID(ctx, uid)
	if perr == nil {
		m.applyProfile(uid, profile)
	} else {
		m.logger.Warn("profile refresh failed", "uid", uid,
			"error", errors.Join(domainauth.ErrProfileFetchFailed, perr))
	}

	role, rerr := m.profiles.GetRole(ctx, uid)
	if rerr == nil {
		m.applyRole(uid, role)
	} else {
		m.logger.Warn("role refresh failed", "uid", uid,
			"error", errors.Join(domainauth.ErrProfileFetchFailed, rerr))
	}

	m.mu.Lock()
	sess = m.session
	m.mu.Unlock()
	if sess.State != domainauth.StatePhone {
		return nil
	}

	rec := domainauth.PhoneSessionRecord{
		User:      sess.Principal,
		IssuedAt:  sess.IssuedAt.UnixMilli(),
		Timestamp: m.clock.Now().UnixMilli(),
	}
	if sess.Profile != nil {
		rec.Profile = *sess.Profile
	}
	if err := m.persistence.Save(ctx, rec); err != nil {
		return errors.Join(domainauth.ErrStoreWrite, err)
	}
	m.mu.Lock()
	m.session.LastExtendedAt = time.UnixMilli(rec.Timestamp)
	m.mu.Unlock()
	return nil
}

// ExtendNow rewrites the persisted record with a fresh extension timestamp,
// preserving the original issue time. Pure liveness extension: the principal
// is not re-validated. No-op outside phone mode.
func (m *SessionManager) ExtendNow(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess.State != domainauth.StatePhone {
		return nil
	}

	rec := domainauth.PhoneSessionRecord{
		User:      sess.Principal,
		IssuedAt:  sess.IssuedAt.UnixMilli(),
		Timestamp: m.clock.Now().UnixMilli(),
	}
	if sess.Profile != nil {
		rec.Profile = *sess.Profile
	}
	if err := m.persistence.Save(ctx, rec); err != nil {
		return errors.Join(domainauth.ErrStoreWrite, err)
	}

	m.mu.Lock()
	// Only apply if still in phone mode; a concurrent sign-out wins.
	if m.session.State == domainauth.StatePhone {
		m.session.LastExtendedAt = time.UnixMilli(rec.Timestamp)
	}
	m.mu.Unlock()
	return nil
}

// RevalidateFocus re-reads the persisted extension timestamp and forces
// sign-out when the TTL has lapsed. This catches keep-alive timers that were
// suspended longer than the TTL. No-op outside phone mode.
func (m *SessionManager) RevalidateFocus(ctx context.Context) {
	m.mu.Lock()
	state := m.session.State
	m.mu.Unlock()
	if state != domainauth.StatePhone {
		return
	}

	rec, err := m.persistence.Load(ctx)
	switch {
	case errors.Is(err, domainauth.ErrNoSessionRecord):
		m.logger.Info("phone session record gone, signing out")
		m.SignOut(ctx)
	case err != nil:
		// Keep the session on a transient read failure; the next focus or
		// keep-alive tick will retry.
		m.logger.Error("focus revalidation read", "error", errors.Join(domainauth.ErrStoreRead, err))
	case rec.Expired(m.clock.Now()):
		m.logger.Info("phone session expired at focus", "principal", rec.User.ID)
		m.SignOut(ctx)
	}
}

// Current returns a snapshot of the session value.
func (m *SessionManager) Current() domainauth.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Subscribe registers a callback for session transitions and returns its
// removal function. The callback is not invoked with the current value;
// callers read Current first.
func (m *SessionManager) Subscribe(fn func(domainauth.Session)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Close detaches the federated observer subscription. Called at process
// teardown only; session-scoped timers are torn down by their owners.
func (m *SessionManager) Close() {
	m.mu.Lock()
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (m *SessionManager) setSession(sess domainauth.Session) {
	m.mu.Lock()
	m.session = sess
	m.mu.Unlock()
	m.notify(sess)
}

// notify invokes subscribers outside the lock so they can call back into the
// manager.
func (m *SessionManager) notify(sess domainauth.Session) {
	m.mu.Lock()
	fns := make([]func(domainauth.Session), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(sess)
	}
}
