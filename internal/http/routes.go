package httpx

import (
	"log/slog"
	"net/http"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
	"github.com/tiffinlabs/tiffin-auth/internal/service"
)

// RouterServices holds all the collaborators needed by the HTTP router.
type RouterServices struct {
	Hub      *SessionHub
	OTP      *service.OTPService
	Profiles *service.ProfileService

	Provider     ports.AuthProvider
	Roles        ports.RoleMapper
	ProfileStore ports.ProfileStore

	Guard        service.RouteGuard
	CookieDomain string
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router with session middleware.
func NewRouter(services RouterServices) http.Handler {
	if services.Logger == nil {
		services.Logger = slog.Default()
	}

	mux := http.NewServeMux()

	otpHandlers := &OTPHandlers{OTP: services.OTP, Logger: services.Logger}
	authHandlers := &AuthHandlers{
		Provider:     services.Provider,
		Roles:        services.Roles,
		Profiles:     services.ProfileStore,
		CookieDomain: services.CookieDomain,
		Logger:       services.Logger,
	}
	profileHandlers := &ProfileHandlers{Profiles: services.Profiles, Logger: services.Logger}

	registerOTPRoutes(mux, otpHandlers)
	registerAuthRoutes(mux, authHandlers, profileHandlers)
	registerGuardedRoutes(mux, authHandlers, services.Guard)
	mux.HandleFunc("GET /health", Health)
	mux.HandleFunc("HEAD /health", Health)

	var handler http.Handler = mux
	handler = WithSession(services.Hub)(handler)
	handler = Logging(services.Logger)(handler)
	handler = Recover(services.Logger)(handler)
	return handler
}

func registerOTPRoutes(mux *http.ServeMux, h *OTPHandlers) {
	mux.HandleFunc("POST /auth/otp/request", h.Request)
	mux.HandleFunc("POST /auth/otp/verify", h.Verify)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, p *ProfileHandlers) {
	mux.HandleFunc("GET /auth/login", h.Login)
	mux.HandleFunc("GET /auth/callback", h.Callback)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/session", h.Session)
	mux.HandleFunc("POST /auth/session/focus", h.Focus)
	mux.Handle("POST /auth/profile", RequireAuth()(http.HandlerFunc(p.Complete)))
}

// registerGuardedRoutes wires the routes whose access goes through the guard
// decision table rather than a bare authentication check.
func registerGuardedRoutes(mux *http.ServeMux, h *AuthHandlers, guard service.RouteGuard) {
	anyAuthenticated := Guard(guard, service.AccessRule{})
	adminOnly := Guard(guard, service.AccessRule{AllowedRoles: []domainauth.Role{domainauth.RoleAdmin}})

	mux.Handle("GET /api/me", anyAuthenticated(http.HandlerFunc(h.Session)))
	mux.Handle("GET /api/admin/sessions", adminOnly(http.HandlerFunc(h.Session)))
}
