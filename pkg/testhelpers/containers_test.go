//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestRegistryDB_Connection(t *testing.T) {
	registry := GetRegistryDB(t)

	ctx := context.Background()

	// Verify migrations created the registry tables
	var tableCount int
	err := registry.DB.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name LIKE 'engine_%'").
		Scan(&tableCount)
	if err != nil {
		t.Fatalf("failed to count tables: %v", err)
	}

	if tableCount != 2 {
		t.Errorf("expected 2 registry tables, got %d", tableCount)
	}
}

func TestRegistryDB_MigrationsRecorded(t *testing.T) {
	registry := GetRegistryDB(t)

	ctx := context.Background()

	var version int
	var dirty bool
	err := registry.DB.Pool.QueryRow(ctx,
		"SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	if err != nil {
		t.Fatalf("failed to read schema_migrations: %v", err)
	}

	if version != 2 {
		t.Errorf("expected migration version 2, got %d", version)
	}
	if dirty {
		t.Error("migrations left the schema dirty")
	}
}
