// Package datasource loads input datasets from external databases. Each
// dialect lives in its own subpackage and registers a factory at init
// time; callers resolve adapters through the registry by source type.
package datasource

import (
	"context"

	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
)

// Adapter reads tables from one configured database source.
// Each adapter owns its connections and must be closed when done.
type Adapter interface {
	// Type returns the registry key for this adapter ("postgres", "mssql").
	Type() string

	// TestConnection verifies the source is reachable with valid
	// credentials and that the configured database answers queries.
	TestConnection(ctx context.Context) error

	// FetchTable loads the named table into memory with every cell
	// rendered as text. The name may carry one schema qualifier and is
	// vetted before any statement references it. A limit of 0 fetches all
	// rows.
	FetchTable(ctx context.Context, table string, limit int) (*dataset.Table, error)

	// ListTables names the base tables visible to the configured user,
	// sorted alphabetically.
	ListTables(ctx context.Context) ([]string, error)

	// Close releases the underlying connections.
	Close() error
}
