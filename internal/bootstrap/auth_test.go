package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tiffinlabs/tiffin-auth/config"
	"github.com/tiffinlabs/tiffin-auth/internal/adapters/sms"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
)

func TestBuildAuthProvider_MockMode(t *testing.T) {
	provider, signOut, err := BuildAuthProvider(config.AuthConfig{
		Mode: config.AuthModeMock,
		DevAuth: config.DevAuthConfig{
			UserID:      "dev-user",
			Email:       "dev@example.com",
			DisplayName: "Dev User",
			Groups:      []string{"admins"},
		},
	}, nil)

	require.NoError(t, err)
	require.NotNil(t, provider)
	require.NotNil(t, signOut)

	_, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)
	assert.NotEmpty(t, state)
	assert.NotEmpty(t, nonce)

	identity, err := provider.Exchange(context.Background(), ports.ExchangeInput{Code: "dev", State: state, Nonce: nonce})
	require.NoError(t, err)
	assert.Equal(t, "dev-user", identity.UID)
}

func TestBuildAuthProvider_OAuthRequiresConfig(t *testing.T) {
	_, _, err := BuildAuthProvider(config.AuthConfig{
		Mode:  config.AuthModeOAuth,
		OAuth: config.OAuthConfig{ClientID: "tiffin-auth"},
	}, nil)

	assert.Error(t, err)
}

func TestBuildAuthProvider_UnknownMode(t *testing.T) {
	_, _, err := BuildAuthProvider(config.AuthConfig{Mode: "saml"}, nil)
	assert.Error(t, err)
}

func TestBuildMessageSender_DevFallsBackToLog(t *testing.T) {
	sender, err := BuildMessageSender(config.SMSConfig{}, true, nil)

	require.NoError(t, err)
	assert.IsType(t, &sms.LogSender{}, sender)
}

func TestBuildMessageSender_ProductionRequiresAPIKey(t *testing.T) {
	_, err := BuildMessageSender(config.SMSConfig{}, false, nil)
	assert.Error(t, err)
}

func TestBuildMessageSender_GatewayClient(t *testing.T) {
	sender, err := BuildMessageSender(config.SMSConfig{
		BaseURL: "http://localhost:9090",
		APIKey:  "key",
	}, false, nil)

	require.NoError(t, err)
	assert.IsType(t, &sms.Client{}, sender)
}
