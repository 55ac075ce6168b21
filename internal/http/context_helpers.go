package httpx

import (
	"context"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// clientSessionKey is an unexported context key type to avoid collisions
// across packages. Centralized here so all handlers and middleware share it.
type clientSessionKey struct{}

// SetClientSessionInContext returns a child context carrying the client
// session. A nil session returns ctx unchanged.
func SetClientSessionInContext(ctx context.Context, cs *ClientSession) context.Context {
	if cs == nil {
		return ctx
	}
	return context.WithValue(ctx, clientSessionKey{}, cs)
}

// ClientSessionFromContext returns the client session and whether one is
// attached to the request.
func ClientSessionFromContext(ctx context.Context) (*ClientSession, bool) {
	if cs, ok := ctx.Value(clientSessionKey{}).(*ClientSession); ok && cs != nil {
		return cs, true
	}
	return nil, false
}

// SessionFromContext returns the current session snapshot for the request, or
// a NoSession value when no client session is attached.
func SessionFromContext(ctx context.Context) domainauth.Session {
	if cs, ok := ClientSessionFromContext(ctx); ok {
		return cs.Manager.Current()
	}
	return domainauth.Session{State: domainauth.StateNone}
}
