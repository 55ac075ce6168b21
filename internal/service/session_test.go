package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	mocks "github.com/tiffinlabs/tiffin-auth/internal/mocks/auth"
)

type sessionFixture struct {
	manager     *SessionManager
	persistence *mocks.MemorySessionStore
	observer    *mocks.ObserverStub
	profiles    *mocks.MemoryProfileStore
	clock       *mocks.FixedClock
	signOutErr  error
	signOuts    int
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		persistence: mocks.NewMemorySessionStore(),
		observer:    mocks.NewObserverStub(),
		profiles:    mocks.NewMemoryProfileStore(),
		clock:       mocks.NewFixedClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.manager = NewSessionManager(SessionManagerOptions{
		Persistence: f.persistence,
		Observer:    f.observer,
		Profiles:    f.profiles,
		ProviderSignOut: mocks.SignOutFunc(func(context.Context) error {
			f.signOuts++
			return f.signOutErr
		}),
		Clock: f.clock,
	})
	t.Cleanup(f.manager.Close)
	return f
}

func phonePrincipal() domainauth.Principal {
	return domainauth.Principal{
		ID:          domainauth.PhonePrincipalID("919876543210"),
		PhoneNumber: "919876543210",
		Role:        domainauth.RoleUser,
	}
}

func phoneProfile() domainauth.Profile {
	return domainauth.Profile{
		UID:         domainauth.PhonePrincipalID("919876543210"),
		DisplayName: "Asha Rao",
		PhoneNumber: "919876543210",
		UserType:    domainauth.RoleUser,
	}
}

func TestRestore_ValidPhoneSessionShortCircuits(t *testing.T) {
	f := newSessionFixture(t)
	rec := domainauth.NewPhoneSessionRecord(phonePrincipal(), phoneProfile(), f.clock.Now())
	f.persistence.Seed(rec)

	f.clock.Advance(23 * time.Hour)
	f.manager.Restore(context.Background())

	sess := f.manager.Current()
	assert.Equal(t, domainauth.StatePhone, sess.State)
	assert.Equal(t, rec.User.ID, sess.Principal.ID)
	assert.True(t, sess.RoleResolved)
	assert.Equal(t, 0, f.observer.SubscribeCalls,
		"a live phone session must never consult the federated observer")
}

func TestRestore_ExpiredRecordClearedAndObserverConsulted(t *testing.T) {
	f := newSessionFixture(t)
	rec := domainauth.NewPhoneSessionRecord(phonePrincipal(), phoneProfile(), f.clock.Now())
	f.persistence.Seed(rec)

	f.clock.Advance(domainauth.SessionTTL + time.Minute)
	f.manager.Restore(context.Background())

	assert.Equal(t, 1, f.persistence.ClearCalls, "stale record must be removed")
	assert.Equal(t, 1, f.observer.SubscribeCalls)
	assert.Equal(t, domainauth.StateNone, f.manager.Current().State,
		"signed-out observer state resolves to no session")
}

func TestRestore_NoRecordResolvesThroughObserver(t *testing.T) {
	f := newSessionFixture(t)

	f.manager.Restore(context.Background())

	assert.Equal(t, 1, f.observer.SubscribeCalls)
	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
}

func TestRestore_SurvivesSynchronousObserverEmission(t *testing.T) {
	// The observer contract fires the callback inline from Subscribe; a
	// restore that held its own lock across the call would never return.
	f := newSessionFixture(t)

	done := make(chan struct{})
	go func() {
		f.manager.Restore(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("restore did not complete")
	}
	assert.Equal(t, 1, f.observer.SubscribeCalls)
	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
}

func TestRestore_RunsOnce(t *testing.T) {
	f := newSessionFixture(t)

	f.manager.Restore(context.Background())
	f.manager.Restore(context.Background())

	assert.Equal(t, 1, f.observer.SubscribeCalls)
}

func TestRestore_ReadFailureFallsThroughToObserver(t *testing.T) {
	f := newSessionFixture(t)
	f.persistence.LoadErr = assert.AnError

	f.manager.Restore(context.Background())

	assert.Equal(t, 1, f.observer.SubscribeCalls)
	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
}

func TestProviderSignIn_SessionUsableBeforeRoleResolves(t *testing.T) {
	f := newSessionFixture(t)
	// No profile seeded: both fetches will fail and the session must still
	// be authenticated with the default role, unresolved.
	f.manager.Restore(context.Background())

	f.observer.Emit(&domainauth.Principal{ID: "fed-1", Email: "a@example.com"})

	sess := f.manager.Current()
	assert.Equal(t, domainauth.StateFederated, sess.State)
	assert.Equal(t, "fed-1", sess.Principal.ID)
	assert.Equal(t, domainauth.RoleUser, sess.Principal.Role, "role defaults to user until fetched")
	assert.False(t, sess.RoleResolved)
}

func TestProviderSignIn_ProfileAndRoleApplyIndependently(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.profiles.Upsert(context.Background(), domainauth.Profile{
		UID:         "fed-1",
		DisplayName: "Meera Pillai",
		UserType:    domainauth.RoleAdmin,
	}))
	f.manager.Restore(context.Background())

	f.observer.Emit(&domainauth.Principal{ID: "fed-1"})

	require.Eventually(t, func() bool {
		sess := f.manager.Current()
		return sess.RoleResolved && sess.Profile != nil
	}, time.Second, 5*time.Millisecond)

	sess := f.manager.Current()
	assert.Equal(t, domainauth.RoleAdmin, sess.Principal.Role)
	assert.Equal(t, "Meera Pillai", sess.Principal.DisplayName)
}

func TestProviderSignInEventDoesNotDisplacePhoneSession(t *testing.T) {
	f := newSessionFixture(t)
	f.manager.Restore(context.Background())
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))

	f.observer.Emit(&domainauth.Principal{ID: "fed-1", Email: "a@example.com"})

	sess := f.manager.Current()
	assert.Equal(t, domainauth.StatePhone, sess.State)
	assert.Equal(t, phonePrincipal().ID, sess.Principal.ID)
	_, ok := f.persistence.Stored()
	assert.True(t, ok, "the persisted phone record must survive the ignored event")
}

func TestProviderSignOutEventClearsFederatedSession(t *testing.T) {
	f := newSessionFixture(t)
	f.manager.Restore(context.Background())
	f.observer.Emit(&domainauth.Principal{ID: "fed-1"})
	require.Equal(t, domainauth.StateFederated, f.manager.Current().State)

	f.observer.Emit(nil)

	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
}

func TestSignInPhone_PersistsBeforeTransition(t *testing.T) {
	f := newSessionFixture(t)

	err := f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile())
	require.NoError(t, err)

	sess := f.manager.Current()
	assert.Equal(t, domainauth.StatePhone, sess.State)
	assert.True(t, sess.RoleResolved)

	rec, ok := f.persistence.Stored()
	require.True(t, ok)
	assert.Equal(t, sess.Principal.ID, rec.User.ID)
	assert.Equal(t, f.clock.Now().UnixMilli(), rec.Timestamp)
}

func TestSignInPhone_StoreWriteFailureSurfaces(t *testing.T) {
	f := newSessionFixture(t)
	f.persistence.SaveErr = assert.AnError

	err := f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile())
	assert.ErrorIs(t, err, domainauth.ErrStoreWrite)
	assert.NotEqual(t, domainauth.StatePhone, f.manager.Current().State)
}

func TestSignOut_PhoneSessionClearsPersistence(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))

	f.manager.SignOut(context.Background())

	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
	_, ok := f.persistence.Stored()
	assert.False(t, ok)
	assert.Equal(t, 0, f.signOuts, "phone sign-out never calls the provider")
}

func TestSignOut_OfflineProviderStillSignsOutLocally(t *testing.T) {
	f := newSessionFixture(t)
	f.manager.Restore(context.Background())
	f.observer.Emit(&domainauth.Principal{ID: "fed-1"})
	f.signOutErr = assert.AnError

	f.manager.SignOut(context.Background())

	assert.Equal(t, 1, f.signOuts)
	assert.Equal(t, domainauth.StateNone, f.manager.Current().State,
		"local sign-out is unconditional even when the provider call fails")
	_, ok := f.persistence.Stored()
	assert.False(t, ok)
}

func TestExtendNow_PreservesIssuedAt(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))
	issued := f.manager.Current().IssuedAt

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.manager.ExtendNow(context.Background()))

	rec, ok := f.persistence.Stored()
	require.True(t, ok)
	assert.Equal(t, issued.UnixMilli(), rec.IssuedAt)
	assert.Equal(t, f.clock.Now().UnixMilli(), rec.Timestamp)
	assert.Equal(t, f.clock.Now().UnixMilli(), f.manager.Current().LastExtendedAt.UnixMilli())
}

func TestExtendNow_NoopOutsidePhoneMode(t *testing.T) {
	f := newSessionFixture(t)
	f.manager.Restore(context.Background())

	require.NoError(t, f.manager.ExtendNow(context.Background()))
	assert.Equal(t, 0, f.persistence.SaveCalls)
}

func TestRevalidateFocus_InsideTTLKeepsSession(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))

	f.clock.Advance(23*time.Hour + 59*time.Minute)
	f.manager.RevalidateFocus(context.Background())

	assert.Equal(t, domainauth.StatePhone, f.manager.Current().State)
}

func TestRevalidateFocus_PastTTLForcesSignOut(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))

	f.clock.Advance(24*time.Hour + time.Minute)
	f.manager.RevalidateFocus(context.Background())

	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
	_, ok := f.persistence.Stored()
	assert.False(t, ok)
}

func TestRevalidateFocus_KeepAliveExtensionPreventsSignOut(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))

	// An extension 23h in resets the clock; focus 23h59m after the original
	// sign-in is then well inside the TTL again.
	f.clock.Advance(23 * time.Hour)
	require.NoError(t, f.manager.ExtendNow(context.Background()))
	f.clock.Advance(59 * time.Minute)
	f.manager.RevalidateFocus(context.Background())

	assert.Equal(t, domainauth.StatePhone, f.manager.Current().State)
}

func TestRevalidateFocus_MissingRecordForcesSignOut(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))
	require.NoError(t, f.persistence.Clear(context.Background()))

	f.manager.RevalidateFocus(context.Background())

	assert.Equal(t, domainauth.StateNone, f.manager.Current().State)
}

func TestRevalidateFocus_TransientReadErrorKeepsSession(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))
	f.persistence.LoadErr = assert.AnError

	f.manager.RevalidateFocus(context.Background())

	assert.Equal(t, domainauth.StatePhone, f.manager.Current().State)
}

func TestRefresh_PhoneModeRewritesRecord(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.SignInPhone(ctx, phonePrincipal(), phoneProfile()))
	issued := f.manager.Current().IssuedAt

	updated := phoneProfile()
	updated.DisplayName = "Asha R."
	updated.UserType = domainauth.RoleAdmin
	require.NoError(t, f.profiles.Upsert(ctx, updated))

	f.clock.Advance(time.Hour)
	require.NoError(t, f.manager.Refresh(ctx))

	sess := f.manager.Current()
	assert.Equal(t, "Asha R.", sess.Principal.DisplayName)
	assert.Equal(t, domainauth.RoleAdmin, sess.Principal.Role)

	rec, ok := f.persistence.Stored()
	require.True(t, ok)
	assert.Equal(t, issued.UnixMilli(), rec.IssuedAt)
	assert.Equal(t, f.clock.Now().UnixMilli(), rec.Timestamp)
	assert.Equal(t, "Asha R.", rec.Profile.DisplayName)
}

func TestSubscribe_NotifiedOnTransitions(t *testing.T) {
	f := newSessionFixture(t)
	var states []domainauth.SessionState
	unsub := f.manager.Subscribe(func(s domainauth.Session) {
		states = append(states, s.State)
	})
	defer unsub()

	require.NoError(t, f.manager.SignInPhone(context.Background(), phonePrincipal(), phoneProfile()))
	f.manager.SignOut(context.Background())

	require.Len(t, states, 2)
	assert.Equal(t, domainauth.StatePhone, states[0])
	assert.Equal(t, domainauth.StateNone, states[1])
}
