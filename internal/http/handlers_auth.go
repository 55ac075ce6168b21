package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// AuthHandlers provides HTTP handlers for the federated sign-in flow and for
// session introspection.
type AuthHandlers struct {
	Provider     ports.AuthProvider
	Roles        ports.RoleMapper
	Profiles     ports.ProfileStore
	CookieDomain string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login initiates the federated flow.
// GET /auth/login?redirect_uri=<optional_relative_path>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	authURL, state, nonce, err := h.Provider.Begin(r.Context(), ports.BeginInput{RedirectURL: redirectURI})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     errors.New("could not start the sign-in flow"),
		})
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: state, Nonce: nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the federated flow and feeds the client's federated
// broker, which transitions the session manager.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_callback",
			Err:     errors.New("code and state parameters are required"),
		})
		return
	}

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie("oauth_nonce")
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce"),
		})
		return
	}

	identity, err := h.Provider.Exchange(r.Context(), ports.ExchangeInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "token exchange failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "login_completion_failed",
			Err:     errors.New("sign-in could not be completed"),
		})
		return
	}

	role := h.resolveRole(r, identity)
	h.upsertProfile(r, identity, role)

	cs, ok := ClientSessionFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "internal",
			Err:     errors.New("no client session on request"),
		})
		return
	}
	cs.Broker.SignedIn(principalFrom(identity, role))

	h.clearCookie(w, r, "oauth_state")
	h.clearCookie(w, r, "oauth_nonce")

	redirectURI := "/"
	if c, cerr := r.Cookie("oauth_redirect"); cerr == nil {
		redirectURI = safeRedirectPath(c.Value)
	}
	h.clearCookie(w, r, "oauth_redirect")
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// resolveRole prefers the profile store's authoritative role, falling back to
// the group mapping for first-time principals.
func (h *AuthHandlers) resolveRole(r *http.Request, identity domainauth.Identity) domainauth.Role {
	if existing, err := h.Profiles.GetRole(r.Context(), identity.UID); err == nil {
		return existing
	}
	return h.Roles.Map(identity.Groups)
}

// upsertProfile mirrors provider claims into the profile store. Best effort;
// the session proceeds on the claims alone if the write fails.
func (h *AuthHandlers) upsertProfile(r *http.Request, identity domainauth.Identity, role domainauth.Role) {
	profile, err := h.Profiles.GetByUID(r.Context(), identity.UID)
	if err != nil {
		profile = domainauth.Profile{UID: identity.UID, UserType: role, CreatedAt: time.Now()}
	}
	profile.Email = identity.Email
	profile.DisplayName = identity.DisplayName
	if identity.PhoneNumber != "" {
		profile.PhoneNumber = identity.PhoneNumber
	}
	profile.PhotoURL = identity.PhotoURL
	profile.UpdatedAt = time.Now()

	if uerr := h.Profiles.Upsert(r.Context(), profile); uerr != nil {
		h.logger().WarnContext(r.Context(), "mirror provider profile failed",
			"uid", identity.UID, "error", uerr)
	}
}

// Logout terminates the session for this client.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cs, ok := ClientSessionFromContext(r.Context()); ok {
		cs.Manager.SignOut(r.Context())
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Session returns the current session snapshot.
// GET /auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, sessionPayload(SessionFromContext(r.Context())))
}

// Focus forces an expiry revalidation, for clients reporting a return to
// foreground.
// POST /auth/session/focus.
func (h *AuthHandlers) Focus(w http.ResponseWriter, r *http.Request) {
	if cs, ok := ClientSessionFromContext(r.Context()); ok {
		cs.Manager.RevalidateFocus(r.Context())
	}
	WriteJSON(w, http.StatusOK, sessionPayload(SessionFromContext(r.Context())))
}

// sessionPayload shapes the introspection response. The plaintext of codes,
// persisted records, and provider tokens never appears here.
func sessionPayload(sess domainauth.Session) map[string]any {
	payload := map[string]any{
		"state":         sess.State.String(),
		"authenticated": sess.Authenticated(),
	}
	if !sess.Authenticated() {
		return payload
	}

	payload["roleResolved"] = sess.RoleResolved
	payload["user"] = map[string]any{
		"id":          sess.Principal.ID,
		"email":       sess.Principal.Email,
		"displayName": sess.Principal.DisplayName,
		"phoneNumber": sess.Principal.PhoneNumber,
		"photoURL":    sess.Principal.PhotoURL,
		"role":        sess.Principal.Role,
	}
	if sess.Profile != nil {
		payload["profileComplete"] = sess.Profile.Complete()
	}
	if sess.State == domainauth.StatePhone {
		payload["issuedAt"] = sess.IssuedAt.UnixMilli()
		payload["lastExtendedAt"] = sess.LastExtendedAt.UnixMilli()
	}
	return payload
}

func principalFrom(identity domainauth.Identity, role domainauth.Role) domainauth.Principal {
	return domainauth.Principal{
		ID:          identity.UID,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		PhoneNumber: identity.PhoneNumber,
		PhotoURL:    identity.PhotoURL,
		Role:        role,
	}
}

// safeRedirectPath admits only relative paths, defaulting to root.
func safeRedirectPath(raw string) string {
	if raw == "" {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return "/"
	}
	return raw
}

// oauthCookieParams groups values needed to set the OAuth flow cookies.
type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores state, nonce, and the post-login redirect in secure
// cookies for the callback to verify.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	const flowTTL = 10 * time.Minute

	for name, value := range map[string]string{
		"oauth_state":    p.State,
		"oauth_nonce":    p.Nonce,
		"oauth_redirect": p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   isSecure,
			MaxAge:   int(flowTTL.Seconds()),
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// clearCookie expires a cookie, mirroring the attributes used when setting it.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
