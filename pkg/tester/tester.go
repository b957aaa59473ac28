// Package tester starts throwaway Postgres and Redis containers for
// integration tests. Tests using it are skipped under -short and when no
// container runtime is reachable.
package tester

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 2 * time.Minute

// SkipIfShort skips integration tests under -short.
func SkipIfShort(t testing.TB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// StartPostgres starts a Postgres container, waits until it accepts
// connections and runs migration on it. The container is terminated when the
// test finishes.
func StartPostgres(t testing.TB, migration func(db *sql.DB) error) *sql.DB {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "test_db",
			"POSTGRES_USER":     "test_user",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}
	container := start(ctx, t, req)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get Postgres host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get Postgres port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test_user password=test_password dbname=test_db sslmode=disable",
		host, port.Port())
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to connect to Postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := waitForPostgres(ctx, db); err != nil {
		t.Fatalf("postgres not ready: %v", err)
	}
	if migration != nil {
		if err := migration(db); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}
	return db
}

// StartRedis starts a Redis container and returns its host:port address.
func StartRedis(t testing.TB) string {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	container := start(ctx, t, req)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get Redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get Redis port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func start(ctx context.Context, t testing.TB, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("container runtime unavailable (%s): %v", req.Image, err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s container: %v", req.Image, err)
		}
	})
	return container
}

// waitForPostgres pings the DB until it is ready or ctx expires.
func waitForPostgres(ctx context.Context, db *sql.DB) error {
	for {
		if err := db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for Postgres to be ready: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}
