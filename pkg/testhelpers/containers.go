// Package testhelpers provides shared fixtures for integration tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/database"
)

// RegistryTestImage is the PostgreSQL image used for registry integration tests.
const RegistryTestImage = "postgres:16-alpine"

// RegistryDB holds a shared registry container with migrations applied.
// Use this for testing repositories against a real database.
type RegistryDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedRegistryDB     *RegistryDB
	sharedRegistryDBOnce sync.Once
	sharedRegistryDBErr  error
)

// GetRegistryDB returns a shared PostgreSQL container for integration tests.
// The container is created once, migrated, and reused across all tests in
// the run.
func GetRegistryDB(t *testing.T) *RegistryDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedRegistryDBOnce.Do(func() {
		sharedRegistryDB, sharedRegistryDBErr = setupRegistryDB()
	})

	if sharedRegistryDBErr != nil {
		t.Fatalf("Failed to setup registry database: %v", sharedRegistryDBErr)
	}

	return sharedRegistryDB
}

func setupRegistryDB() (*RegistryDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        RegistryTestImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "prepflow_engine_test",
			"POSTGRES_USER":     "prepflow",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The image logs readiness twice: once for the init run, once for
		// the real server.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start registry container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://prepflow:test_password@%s:%s/prepflow_engine_test?sslmode=disable",
		host, port.Port())

	// Connect with retry; the server can still be settling right after the
	// ready log.
	var db *database.DB
	for i := 0; i < 10; i++ {
		db, err = database.NewConnection(ctx, &database.PoolConfig{
			URL:            connStr,
			MaxConnections: 5,
		})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	path, err := migrationsPath()
	if err != nil {
		return nil, err
	}

	if err := database.RunMigrations(sqlDB, path, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &RegistryDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// migrationsPath walks up from the working directory to the repository's
// migrations directory, so tests resolve it from any package.
func migrationsPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	start := dir
	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no migrations directory found above %s", start)
		}
		dir = parent
	}
}
