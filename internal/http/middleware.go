package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tiffinlabs/tiffin-auth/internal/service"
)

// ownerCookie identifies the session owner across requests. The cookie value
// is opaque; all session state lives server-side, keyed by it.
const ownerCookie = "sid"

// ownerCookieMaxAge outlives the phone-session TTL so an expired session is
// cleaned up by restoration, not by silent cookie loss.
const ownerCookieMaxAge = 30 * 24 * time.Hour

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WithSession returns a middleware that resolves the session owner cookie,
// minting one for first-time clients, and attaches the owner's client session
// to the request context.
func WithSession(hub *SessionHub) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := ""
			if c, err := r.Cookie(ownerCookie); err == nil && c.Value != "" {
				ownerID = c.Value
			}
			if ownerID == "" {
				ownerID = uuid.NewString()
				setOwnerCookie(w, r, ownerID)
			}

			cs := hub.Get(r.Context(), ownerID)
			ctx := SetClientSessionInContext(r.Context(), cs)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth returns a middleware that admits only authenticated sessions.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !SessionFromContext(r.Context()).Authenticated() {
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     errors.New("authentication required"),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard returns a middleware that applies the route-guard decision table to
// the request's session.
//
// Hold maps to 503 with Retry-After so clients re-poll instead of being
// bounced to a login page mid-restoration. Redirect maps to a real redirect
// for browser navigations and to 401/403 with a redirect_to hint for API
// clients.
func Guard(guard service.RouteGuard, rule service.AccessRule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			result := guard.Evaluate(sess, rule)

			switch result.Decision {
			case service.DecisionAllow:
				next.ServeHTTP(w, r)

			case service.DecisionHold:
				w.Header().Set("Retry-After", "1")
				WriteError(w, ErrorParams{
					Code:    http.StatusServiceUnavailable,
					ErrCode: "session_pending",
					Err:     errors.New("session is still resolving, retry shortly"),
				})

			case service.DecisionRedirect:
				if wantsHTML(r) {
					http.Redirect(w, r, result.RedirectTo, http.StatusFound)
					return
				}
				code := http.StatusForbidden
				errCode := "insufficient_permissions"
				if !sess.Authenticated() {
					code = http.StatusUnauthorized
					errCode = "authentication_required"
				}
				WriteJSON(w, code, map[string]string{
					"error":       errCode,
					"redirect_to": result.RedirectTo,
				})
			}
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func setOwnerCookie(w http.ResponseWriter, r *http.Request, ownerID string) {
	isSecure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	http.SetCookie(w, &http.Cookie{
		Name:     ownerCookie,
		Value:    ownerID,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   int(ownerCookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}
