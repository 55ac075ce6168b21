package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tiffinlabs/tiffin-auth/config"
	"github.com/tiffinlabs/tiffin-auth/internal/adapters/devauth"
	"github.com/tiffinlabs/tiffin-auth/internal/adapters/oidc"
	"github.com/tiffinlabs/tiffin-auth/internal/adapters/sms"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

// BuildAuthProvider creates the identity provider for the configured auth
// mode. The returned sign-out hook terminates the provider-side session.
//
//nolint:ireturn // the provider is consumed through its ports.
func BuildAuthProvider(cfg config.AuthConfig, logger *slog.Logger) (ports.AuthProvider, ports.FederatedSignOut, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			UID:         cfg.DevAuth.UserID,
			Email:       cfg.DevAuth.Email,
			DisplayName: cfg.DevAuth.DisplayName,
			Groups:      cfg.DevAuth.Groups,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create dev auth provider: %w", err)
		}
		if logger != nil {
			logger.Warn("mock auth enabled; do not use in production", "uid", cfg.DevAuth.UserID)
		}
		return prov, prov, nil

	case config.AuthModeOAuth:
		oauth := cfg.OAuth
		if oauth.IssuerURL == "" || oauth.ClientID == "" || oauth.ClientSecret == "" {
			return nil, nil, errors.New("oauth mode requires OAUTH_ISSUER_URL, OAUTH_CLIENT_ID, and OAUTH_CLIENT_SECRET")
		}
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:     oauth.ClientID,
			ClientSecret: oauth.ClientSecret,
			RedirectURL:  oauth.RedirectURL,
			Scope:        oauth.Scope,
			IssuerURL:    oauth.IssuerURL,
			LogoutURL:    oauth.LogoutURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create OIDC provider: %w", err)
		}
		return prov, prov, nil

	default:
		return nil, nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// BuildMessageSender creates the OTP delivery channel. Without gateway
// credentials, development mode falls back to logging the message; production
// refuses to start.
//
//nolint:ireturn // the sender is consumed through its port.
func BuildMessageSender(cfg config.SMSConfig, isDev bool, logger *slog.Logger) (ports.MessageSender, error) {
	if cfg.APIKey == "" {
		if !isDev {
			return nil, errors.New("SMS_API_KEY is required outside development mode")
		}
		if logger != nil {
			logger.Warn("no SMS gateway configured; OTP codes will be written to the log")
		}
		return sms.NewLogSender(logger), nil
	}

	client, err := sms.NewClient(sms.Config{
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		SenderID: cfg.SenderID,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create sms client: %w", err)
	}
	return client, nil
}
