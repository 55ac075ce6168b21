package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	mocks "github.com/tiffinlabs/tiffin-auth/internal/mocks/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
	"github.com/tiffinlabs/tiffin-auth/internal/service"
)

const adminGroup = "tiffin-admins"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// routerFixture wires a full router against in-memory collaborators.
type routerFixture struct {
	handler  http.Handler
	hub      *SessionHub
	clock    *mocks.FixedClock
	provider *mocks.MockAuthProvider
	profiles *mocks.MemoryProfileStore
	sender   *mocks.CapturingSender

	mu     sync.Mutex
	stores map[string]*mocks.MemorySessionStore
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		clock:    mocks.NewFixedClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)),
		provider: mocks.NewMockAuthProvider(),
		profiles: mocks.NewMemoryProfileStore(),
		sender:   mocks.NewCapturingSender(),
		stores:   make(map[string]*mocks.MemorySessionStore),
	}
	f.hub = NewSessionHub(SessionHubDeps{
		NewPersistence:  f.persistenceFor,
		Profiles:        f.profiles,
		ProviderSignOut: mocks.SignOutFunc(func(context.Context) error { return nil }),
		Clock:           f.clock,
		Logger:          testLogger(),
	})
	t.Cleanup(f.hub.Close)

	otp := service.NewOTPService(service.OTPServiceOptions{
		Challenges: mocks.NewMemoryChallengeStore(f.clock),
		Profiles:   f.profiles,
		Sender:     f.sender,
		Clock:      f.clock,
		Logger:     testLogger(),
	})
	profileSvc := service.NewProfileService(service.ProfileServiceOptions{
		Profiles: f.profiles,
		Clock:    f.clock,
		Logger:   testLogger(),
	})

	f.handler = NewRouter(RouterServices{
		Hub:          f.hub,
		OTP:          otp,
		Profiles:     profileSvc,
		Provider:     f.provider,
		Roles:        mocks.StaticRoleMapper{AdminGroup: adminGroup},
		ProfileStore: f.profiles,
		Guard:        service.NewRouteGuard(),
		Logger:       testLogger(),
	})
	return f
}

func (f *routerFixture) persistenceFor(ownerID string) ports.SessionPersistence {
	f.mu.Lock()
	defer f.mu.Unlock()
	store, ok := f.stores[ownerID]
	if !ok {
		store = mocks.NewMemorySessionStore()
		f.stores[ownerID] = store
	}
	return store
}

// testClient replays cookies across requests like a browser would.
type testClient struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newTestClient(t *testing.T, handler http.Handler) *testClient {
	t.Helper()
	return &testClient{t: t, handler: handler, cookies: make(map[string]*http.Cookie)}
}

func (c *testClient) do(method, path string, body any, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	c.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	for _, mod := range mods {
		mod(req)
	}

	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)

	for _, ck := range rr.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestRouter_MintsOwnerCookieOnFirstContact(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/auth/session", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, client.cookies, ownerCookie)
	assert.NotEmpty(t, client.cookies[ownerCookie].Value)

	body := decodeBody(t, rr)
	assert.Equal(t, "none", body["state"])
	assert.Equal(t, false, body["authenticated"])
}

func TestRouter_PhoneSignInFlow(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodPost, "/auth/otp/request", map[string]string{"phone": "98765 43210"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	code := f.sender.LastCode()
	require.Len(t, code, 6)

	rr = client.do(http.MethodPost, "/auth/otp/verify", map[string]string{"phone": "9876543210", "code": code})
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "phone", body["state"])
	assert.Equal(t, true, body["authenticated"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "919876543210", user["phoneNumber"])
	assert.Equal(t, "user", user["role"])

	// The session must survive across requests via the owner cookie.
	rr = client.do(http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "phone", decodeBody(t, rr)["state"])
}

func TestRouter_LogoutEndsPhoneSession(t *testing.T) {
	f := newRouterFixture(t)
	client := signedInPhoneClient(t, f)

	rr := client.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "signed_out", decodeBody(t, rr)["status"])

	rr = client.do(http.MethodGet, "/auth/session", nil)
	assert.Equal(t, "none", decodeBody(t, rr)["state"])
}

func TestRouter_PhoneSessionSurvivesHubEviction(t *testing.T) {
	f := newRouterFixture(t)
	client := signedInPhoneClient(t, f)

	f.clock.Advance(time.Hour)
	require.Equal(t, 1, f.hub.EvictIdle(time.Minute))
	require.Equal(t, 0, f.hub.Len())

	rr := client.do(http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "phone", decodeBody(t, rr)["state"],
		"evicting the live manager must not lose the persisted session")
}

func TestRouter_GuardedRouteAdmitsPhoneUser(t *testing.T) {
	f := newRouterFixture(t)
	client := signedInPhoneClient(t, f)

	rr := client.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeBody(t, rr)["authenticated"])
}

func TestRouter_AdminRouteDeniesPhoneUser(t *testing.T) {
	f := newRouterFixture(t)
	client := signedInPhoneClient(t, f)

	rr := client.do(http.MethodGet, "/api/admin/sessions", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "insufficient_permissions", body["error"])
	assert.Equal(t, "/", body["redirect_to"])
}

func TestRouter_GuardedRouteRejectsAnonymous(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "authentication_required", body["error"])
	assert.Equal(t, "/login", body["redirect_to"])
}

// signedInPhoneClient runs the full OTP flow and returns an authenticated
// client.
func signedInPhoneClient(t *testing.T, f *routerFixture) *testClient {
	t.Helper()
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodPost, "/auth/otp/request", map[string]string{"phone": "9876543210"})
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = client.do(http.MethodPost, "/auth/otp/verify", map[string]string{
		"phone": "9876543210",
		"code":  f.sender.LastCode(),
	})
	require.Equal(t, http.StatusOK, rr.Code)
	return client
}
