package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tiffinlabs/tiffin-auth/config"
	"github.com/tiffinlabs/tiffin-auth/internal/adapters/authroles"
	boltadapter "github.com/tiffinlabs/tiffin-auth/internal/adapters/bolt"
	"github.com/tiffinlabs/tiffin-auth/internal/adapters/postgres"
	redisadapter "github.com/tiffinlabs/tiffin-auth/internal/adapters/redis"
	httpx "github.com/tiffinlabs/tiffin-auth/internal/http"
	"github.com/tiffinlabs/tiffin-auth/internal/ports"
	"github.com/tiffinlabs/tiffin-auth/internal/service"
	bbolt "go.etcd.io/bbolt"
)

// ServiceDeps groups the shared infrastructure the application is built on.
type ServiceDeps struct {
	Config      *config.AppConfig
	Pool        *pgxpool.Pool
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// App is the assembled application: the HTTP handler plus the session hub
// whose eviction loop the caller runs.
type App struct {
	Handler http.Handler
	Hub     *httpx.SessionHub

	cleanup []func() error
}

// Close releases resources owned by the app (the bolt store, when used).
func (a *App) Close() error {
	var errs []error
	for _, fn := range a.cleanup {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewApp wires adapters, services, and the router from configuration.
func NewApp(deps ServiceDeps) (*App, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	profiles := postgres.NewProfileStore(deps.Pool)
	challenges := redisadapter.NewChallengeStore(deps.RedisClient)

	sender, err := BuildMessageSender(cfg.SMS, cfg.IsDev, logger)
	if err != nil {
		return nil, err
	}
	provider, providerSignOut, err := BuildAuthProvider(cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	newPersistence, closePersistence, err := buildSessionPersistence(cfg.Session, deps.RedisClient)
	if err != nil {
		return nil, err
	}

	hub := httpx.NewSessionHub(httpx.SessionHubDeps{
		NewPersistence:  newPersistence,
		Profiles:        profiles,
		ProviderSignOut: providerSignOut,
		Logger:          logger,
	})

	otp := service.NewOTPService(service.OTPServiceOptions{
		Challenges: challenges,
		Profiles:   profiles,
		Sender:     sender,
		Logger:     logger,
	})
	profileSvc := service.NewProfileService(service.ProfileServiceOptions{
		Profiles: profiles,
		Logger:   logger,
	})

	handler := httpx.NewRouter(httpx.RouterServices{
		Hub:          hub,
		OTP:          otp,
		Profiles:     profileSvc,
		Provider:     provider,
		Roles:        authroles.StaticRoleMapper{AdminGroup: cfg.Auth.AdminGroup},
		ProfileStore: profiles,
		Guard:        service.NewRouteGuard(),
		CookieDomain: cfg.HTTP.CookieDomain,
		Logger:       logger,
	})

	return &App{
		Handler: handler,
		Hub:     hub,
		cleanup: []func() error{
			func() error { hub.Close(); return nil },
			closePersistence,
		},
	}, nil
}

// buildSessionPersistence returns the per-owner phone-session store factory
// for the configured backend, plus a close function for backend resources.
func buildSessionPersistence(
	cfg config.SessionConfig,
	client redis.UniversalClient,
) (func(ownerID string) ports.SessionPersistence, func() error, error) {
	switch cfg.Store {
	case config.SessionStoreBolt:
		db, err := bbolt.Open(cfg.BoltPath, 0o600, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("open session store %s: %w", cfg.BoltPath, err)
		}
		factory := func(ownerID string) ports.SessionPersistence {
			return boltadapter.NewSessionStore(db, ownerID)
		}
		return factory, db.Close, nil

	default:
		factory := func(ownerID string) ports.SessionPersistence {
			return redisadapter.NewSessionStore(client, ownerID)
		}
		return factory, func() error { return nil }, nil
	}
}
