package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

func TestLogin_RedirectsToProviderWithFlowCookies(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/auth/login?redirect_uri=/orders", nil)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, f.provider.AuthURL, rr.Header().Get("Location"))

	require.Contains(t, client.cookies, "oauth_state")
	require.Contains(t, client.cookies, "oauth_nonce")
	require.Contains(t, client.cookies, "oauth_redirect")
	assert.Equal(t, "/orders", client.cookies["oauth_redirect"].Value)
	assert.True(t, client.cookies["oauth_state"].HttpOnly)
}

func TestLogin_RejectsAbsoluteRedirect(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/auth/login?redirect_uri=https://evil.example/phish", nil)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/", client.cookies["oauth_redirect"].Value)
}

func TestCallback_MissingParams(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/auth/callback?code=abc", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_callback", decodeBody(t, rr)["error"])
}

func TestCallback_StateMismatch(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	rr := client.do(http.MethodGet, "/auth/login", nil)
	require.Equal(t, http.StatusFound, rr.Code)

	rr = client.do(http.MethodGet, "/auth/callback?code=abc&state=forged", nil)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_state", decodeBody(t, rr)["error"])
}

func TestCallback_EstablishesFederatedSession(t *testing.T) {
	f := newRouterFixture(t)
	client := federatedClient(t, f, "/orders")

	rr := client.do(http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "federated", body["state"])
	assert.Equal(t, true, body["authenticated"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, f.provider.DefaultIdentity.UID, user["id"])
	assert.Equal(t, "user", user["role"])
}

func TestCallback_ClearsFlowCookiesAndHonorsRedirect(t *testing.T) {
	f := newRouterFixture(t)
	client := newTestClient(t, f.handler)

	client.do(http.MethodGet, "/auth/login?redirect_uri=/orders", nil)
	state := client.cookies["oauth_state"].Value

	rr := client.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "/orders", rr.Header().Get("Location"))
	assert.NotContains(t, client.cookies, "oauth_state")
	assert.NotContains(t, client.cookies, "oauth_nonce")
	assert.NotContains(t, client.cookies, "oauth_redirect")
}

func TestCallback_AdminGroupMapsToAdminRole(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.DefaultIdentity.Groups = []string{"users", adminGroup}
	client := federatedClient(t, f, "")

	rr := client.do(http.MethodGet, "/api/admin/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "admin", user["role"])
}

func TestCallback_MirrorsIdentityIntoProfileStore(t *testing.T) {
	f := newRouterFixture(t)
	client := federatedClient(t, f, "")
	_ = client

	profile, err := f.profiles.GetByUID(context.Background(), f.provider.DefaultIdentity.UID)
	require.NoError(t, err)
	assert.Equal(t, f.provider.DefaultIdentity.Email, profile.Email)
	assert.Equal(t, f.provider.DefaultIdentity.DisplayName, profile.DisplayName)
	assert.Equal(t, domainauth.RoleUser, profile.UserType)
}

func TestCallback_ExistingRoleWinsOverGroupMapping(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.profiles.Upsert(context.Background(), domainauth.Profile{
		UID:      f.provider.DefaultIdentity.UID,
		UserType: domainauth.RoleAdmin,
	}))

	client := federatedClient(t, f, "")

	rr := client.do(http.MethodGet, "/api/admin/sessions", nil)
	require.Equal(t, http.StatusOK, rr.Code,
		"the stored role is authoritative even when provider groups say otherwise")
}

func TestCallback_ExchangeFailure(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.ExchangeFunc = func(context.Context, ports.ExchangeInput) (domainauth.Identity, error) {
		return domainauth.Identity{}, assert.AnError
	}
	client := newTestClient(t, f.handler)

	client.do(http.MethodGet, "/auth/login", nil)
	state := client.cookies["oauth_state"].Value

	rr := client.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "login_completion_failed", decodeBody(t, rr)["error"])
}

func TestLogout_FederatedSessionSignsOut(t *testing.T) {
	f := newRouterFixture(t)
	client := federatedClient(t, f, "")

	rr := client.do(http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = client.do(http.MethodGet, "/auth/session", nil)
	assert.Equal(t, "none", decodeBody(t, rr)["state"])
}

func TestFocus_ReturnsCurrentSession(t *testing.T) {
	f := newRouterFixture(t)
	client := signedInPhoneClient(t, f)

	rr := client.do(http.MethodPost, "/auth/session/focus", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "phone", decodeBody(t, rr)["state"])
}

func TestFocus_SignsOutExpiredPhoneSession(t *testing.T) {
	f := newRouterFixture(t)
	client := signedInPhoneClient(t, f)

	f.clock.Advance(domainauth.SessionTTL + time.Minute)
	rr := client.do(http.MethodPost, "/auth/session/focus", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "none", decodeBody(t, rr)["state"])
}

func TestSafeRedirectPath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "/"},
		{"relative", "/orders", "/orders"},
		{"relative with query", "/orders?tab=open", "/orders?tab=open"},
		{"absolute", "https://evil.example/x", "/"},
		{"scheme relative", "//evil.example/x", "/"},
		{"no leading slash", "orders", "/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, safeRedirectPath(tc.in))
		})
	}
}

// federatedClient completes the full login round trip and returns an
// authenticated client.
func federatedClient(t *testing.T, f *routerFixture, redirectURI string) *testClient {
	t.Helper()
	client := newTestClient(t, f.handler)

	path := "/auth/login"
	if redirectURI != "" {
		path += "?redirect_uri=" + redirectURI
	}
	rr := client.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusFound, rr.Code)

	state := client.cookies["oauth_state"].Value
	rr = client.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
	require.Equal(t, http.StatusFound, rr.Code)

	waitForRoleResolved(t, client)
	return client
}

// waitForRoleResolved polls the session endpoint until the background role
// fetch lands, so guard assertions never race it.
func waitForRoleResolved(t *testing.T, client *testClient) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rr := client.do(http.MethodGet, "/auth/session", nil)
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err == nil {
			if resolved, _ := body["roleResolved"].(bool); resolved {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("role was never resolved")
}
