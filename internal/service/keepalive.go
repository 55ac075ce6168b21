package service

import (
	"context"
	"log/slog"
	"time"

	domainauth "github.com/tiffinlabs/tiffin-auth/internal/domain/auth"
)

// KeepAlive periodically extends the persisted phone session while one is
// active. It is pure liveness extension; it never re-validates the principal.
type KeepAlive struct {
	manager  *SessionManager
	interval time.Duration
	logger   *slog.Logger
}

// NewKeepAlive constructs a keep-alive runner. A zero interval uses the
// default extension cadence.
func NewKeepAlive(manager *SessionManager, interval time.Duration, logger *slog.Logger) *KeepAlive {
	if interval <= 0 {
		interval = domainauth.KeepAliveInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KeepAlive{manager: manager, interval: interval, logger: logger}
}

// Run drives the extension ticker until ctx is canceled. The ticker exists
// only while the session is in phone mode: it starts on the transition into
// phone mode and is torn down the moment the session leaves it.
func (k *KeepAlive) Run(ctx context.Context) error {
	states := make(chan domainauth.Session, 16)
	unsubscribe := k.manager.Subscribe(func(s domainauth.Session) {
		select {
		case states <- s:
		default:
			// A full buffer means older transitions are stale anyway; the
			// latest state is re-read on the next tick.
		}
	})
	defer unsubscribe()

	var ticker *time.Ticker
	var tick <-chan time.Time
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tick = nil
		}
	}
	defer stop()

	apply := func(s domainauth.Session) {
		if s.State == domainauth.StatePhone && ticker == nil {
			ticker = time.NewTicker(k.interval)
			tick = ticker.C
		} else if s.State != domainauth.StatePhone {
			stop()
		}
	}
	apply(k.manager.Current())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-states:
			apply(s)
		case <-tick:
			if err := k.manager.ExtendNow(ctx); err != nil {
				// A lost tick is acceptable; the TTL margin absorbs it.
				k.logger.Error("keep-alive extension failed", "error", err)
			}
		}
	}
}

// FocusRevalidator forces an expiry check whenever the client regains
// foreground focus, guarding against keep-alive timers that were suspended
// past the session TTL.
type FocusRevalidator struct {
	manager *SessionManager
}

// NewFocusRevalidator constructs a revalidator bound to the manager.
func NewFocusRevalidator(manager *SessionManager) *FocusRevalidator {
	return &FocusRevalidator{manager: manager}
}

// Run consumes focus events until ctx is canceled or the channel closes.
func (f *FocusRevalidator) Run(ctx context.Context, focus <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-focus:
			if !ok {
				return nil
			}
			f.manager.RevalidateFocus(ctx)
		}
	}
}

// OnFocus handles a single focus event; used by callers that deliver focus
// signals as direct calls rather than through a channel.
func (f *FocusRevalidator) OnFocus(ctx context.Context) {
	f.manager.RevalidateFocus(ctx)
}
