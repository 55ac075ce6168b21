package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for federated authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"tiffin-auth"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"tiffin-auth"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	IssuerURL    string `env:"ISSUER_URL"`
	LogoutURL    string `env:"LOGOUT_URL"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID      string   `env:"USER_ID"      envDefault:"dev-user"`
	Email       string   `env:"EMAIL"        envDefault:"dev@example.com"`
	DisplayName string   `env:"DISPLAY_NAME" envDefault:"Dev User"`
	Groups      []string `env:"GROUPS"       envDefault:"admins"          envSeparator:";"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// AdminGroup is the provider group whose members get the admin role.
	AdminGroup string `env:"ADMIN_GROUP" envDefault:"tiffin-admins"`
}

// SessionStore selects the phone-session persistence backend.
type SessionStore string

const (
	// SessionStoreRedis persists phone-session records in Redis.
	SessionStoreRedis SessionStore = "redis"
	// SessionStoreBolt persists phone-session records in a local bbolt file.
	SessionStoreBolt SessionStore = "bolt"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStore.
func (s *SessionStore) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "redis", "bolt":
		*s = SessionStore(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStore: %q (valid options: redis, bolt)", v)
	}
}

// SessionConfig groups session lifecycle configuration.
type SessionConfig struct {
	// Store selects the persistence backend for phone-session records.
	Store SessionStore `env:"SESSION_STORE" envDefault:"redis"`

	// BoltPath is the bbolt database file, used when Store=bolt.
	BoltPath string `env:"SESSION_BOLT_PATH" envDefault:"tiffin-auth-sessions.db"`

	// EvictInterval is how often idle in-memory client sessions are swept.
	EvictInterval time.Duration `env:"SESSION_EVICT_INTERVAL" envDefault:"5m"`

	// IdleTTL is how long a client session may sit untouched before its
	// in-memory manager is released. The persisted record is unaffected.
	IdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.EvictInterval < time.Minute {
		s.EvictInterval = time.Minute
	}
	if s.IdleTTL < 5*time.Minute {
		s.IdleTTL = 5 * time.Minute
	}
}

// SMSConfig contains SMS gateway configuration.
type SMSConfig struct {
	BaseURL  string        `env:"BASE_URL"  envDefault:"http://localhost:9090"`
	APIKey   string        `env:"API_KEY"   envDefault:""`
	SenderID string        `env:"SENDER_ID" envDefault:"TIFFIN"`
	Timeout  time.Duration `env:"TIMEOUT"   envDefault:"10s"`
}

// Sanitize applies guardrails to SMS configuration values.
func (s *SMSConfig) Sanitize() {
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Second
	}
}
