package testutil

// Package testutil provides shared helpers for integration tests that need
// live Redis or PostgreSQL. Tests are skipped when the backing service is not
// reachable, unless TEST_REQUIRE_INFRA forces a hard failure.

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/tiffinlabs/tiffin-auth/internal/migrate"
)

// TestingTB covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...interface{})
	Skipf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	Logf(format string, args ...interface{})
	Cleanup(func())
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func requireInfra() bool { return envBool("TEST_REQUIRE_INFRA") }

// GetTestRedisAddr returns a reachable Redis address for tests, trying the
// env override first, then the common local/CI addresses.
func GetTestRedisAddr(t TestingTB) (string, bool) {
	t.Helper()

	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return probeRedis(t, addr)
	}
	for _, candidate := range []string{"localhost:6379", "redis:6379"} {
		if addr, ok := probeRedis(t, candidate); ok {
			return addr, true
		}
	}
	return "localhost:6379", false
}

func probeRedis(t TestingTB, addr string) (string, bool) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis probe client: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Logf("Redis not available at %s: %v", addr, err)
		return addr, false
	}
	return addr, true
}

// SetupTestRedis returns a client bound to a flushed test database. The test
// is skipped when Redis is unreachable.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr, ok := GetTestRedisAddr(t)
	if !ok {
		if requireInfra() {
			t.Fatal("Redis not available for testing")
		}
		t.Skip("Redis not available for testing")
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   15, // dedicated test DB so FlushDB never touches real data
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client: %v", cerr)
		}
		if requireInfra() {
			t.Fatalf("Redis not available for testing at %s: %v", addr, err)
		}
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	})
	return client
}

// TestDBConfig holds connection settings for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads the TEST_DB_* env vars with local defaults.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOrDefault("TEST_DB_HOST", "localhost"),
		Port:     envOrDefault("TEST_DB_PORT", "5432"),
		User:     envOrDefault("TEST_DB_USER", "tiffin"),
		Password: envOrDefault("TEST_DB_PASSWORD", "tiffin"),
		DBName:   envOrDefault("TEST_DB_NAME", "tiffin_auth_test"),
	}
}

func (c TestDBConfig) dsn() string {
	hostPort := net.JoinHostPort(c.Host, c.Port)
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.User, c.Password, hostPort, c.DBName)
}

// SetupTestPool connects to the test database, applies the embedded
// migrations, and truncates prior test rows. Skipped when PostgreSQL is
// unreachable.
func SetupTestPool(t TestingTB) *pgxpool.Pool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, DefaultTestDBConfig().dsn())
	if err != nil {
		if requireInfra() {
			t.Fatal("Test database not available:", err)
		}
		t.Skip("Test database not available:", err)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		if requireInfra() {
			t.Fatal("Test database not available:", pingErr)
		}
		t.Skip("Test database not available:", pingErr)
	}

	if err := migrate.Run(ctx, pool); err != nil {
		pool.Close()
		t.Fatal("Failed to apply migrations:", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE user_profiles"); err != nil {
		pool.Close()
		t.Fatal("Failed to clean up user_profiles:", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// TestTime returns a fixed time for deterministic tests.
func TestTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
