package httpx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tiffinlabs/tiffin-auth/internal/ports"
	"github.com/tiffinlabs/tiffin-auth/internal/service"
)

// ClientSession bundles one client's session manager with the federated
// broker its OAuth callback feeds.
type ClientSession struct {
	Manager *service.SessionManager
	Broker  *service.FederatedBroker

	lastSeen time.Time
	stop     context.CancelFunc
}

// SessionHubDeps groups the collaborators a hub needs to build per-client
// session managers.
type SessionHubDeps struct {
	// NewPersistence returns the durable phone-session store scoped to one
	// session owner.
	NewPersistence func(ownerID string) ports.SessionPersistence

	Profiles        ports.ProfileStore
	ProviderSignOut ports.FederatedSignOut
	Clock           ports.Clock

	// KeepAliveInterval overrides the phone-session extension cadence.
	// Zero uses the default.
	KeepAliveInterval time.Duration

	Logger *slog.Logger
}

// SessionHub keys live client sessions by the opaque session-owner cookie.
// Each owner gets its own manager whose restoration runs once, on first
// contact; subsequent requests reuse the live manager. The hub also owns a
// keep-alive runner per client session so active phone sessions keep their
// persisted record extended.
type SessionHub struct {
	deps SessionHubDeps

	mu      sync.Mutex
	clients map[string]*ClientSession
}

// NewSessionHub constructs an empty hub.
func NewSessionHub(deps SessionHubDeps) *SessionHub {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = ports.SystemClock{}
	}
	return &SessionHub{deps: deps, clients: make(map[string]*ClientSession)}
}

// Get returns the client session for the owner, creating and restoring it on
// first contact.
func (h *SessionHub) Get(ctx context.Context, ownerID string) *ClientSession {
	h.mu.Lock()
	cs, ok := h.clients[ownerID]
	if ok {
		cs.lastSeen = h.deps.Clock.Now()
		h.mu.Unlock()
		return cs
	}

	broker := service.NewFederatedBroker()
	manager := service.NewSessionManager(service.SessionManagerOptions{
		Persistence:     h.deps.NewPersistence(ownerID),
		Observer:        broker,
		Profiles:        h.deps.Profiles,
		ProviderSignOut: h.deps.ProviderSignOut,
		Clock:           h.deps.Clock,
		Logger:          h.deps.Logger,
	})
	runCtx, stop := context.WithCancel(context.Background())
	cs = &ClientSession{Manager: manager, Broker: broker, lastSeen: h.deps.Clock.Now(), stop: stop}
	h.clients[ownerID] = cs
	h.mu.Unlock()

	keepAlive := service.NewKeepAlive(manager, h.deps.KeepAliveInterval, h.deps.Logger)
	go func() {
		if err := keepAlive.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			h.deps.Logger.Error("keep-alive runner stopped", "owner", ownerID, "error", err)
		}
	}()

	// Restore outside the hub lock; it may hit the persistence backend.
	manager.Restore(ctx)
	return cs
}

// EvictIdle closes and drops client sessions not touched within keep. The
// persisted phone-session record survives eviction; the next request restores
// it into a fresh manager.
func (h *SessionHub) EvictIdle(keep time.Duration) int {
	cutoff := h.deps.Clock.Now().Add(-keep)

	h.mu.Lock()
	var evicted []*ClientSession
	for id, cs := range h.clients {
		if cs.lastSeen.Before(cutoff) {
			evicted = append(evicted, cs)
			delete(h.clients, id)
		}
	}
	h.mu.Unlock()

	for _, cs := range evicted {
		cs.stop()
		cs.Manager.Close()
	}
	return len(evicted)
}

// Len reports the number of live client sessions.
func (h *SessionHub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops every live client session and its keep-alive runner.
func (h *SessionHub) Close() {
	h.mu.Lock()
	clients := make([]*ClientSession, 0, len(h.clients))
	for _, cs := range h.clients {
		clients = append(clients, cs)
	}
	h.clients = make(map[string]*ClientSession)
	h.mu.Unlock()

	for _, cs := range clients {
		cs.stop()
		cs.Manager.Close()
	}
}

// RunEviction periodically evicts idle client sessions until ctx is canceled.
func (h *SessionHub) RunEviction(ctx context.Context, interval, keep time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := h.EvictIdle(keep); n > 0 {
				h.deps.Logger.Info("evicted idle client sessions", "count", n)
			}
		}
	}
}
