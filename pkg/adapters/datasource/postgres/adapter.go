// Package postgres reads input datasets from PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/adapters/datasource"
	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/logging"
	enginesql "github.com/prepflow-inc/prepflow-engine/pkg/sql"
)

const defaultPort = 5432

// Adapter provides PostgreSQL connectivity.
type Adapter struct {
	cfg    *config.SourceConfig
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ datasource.Adapter = (*Adapter)(nil)

// buildConnString builds a PostgreSQL URL with proper escaping.
// User-provided fields must be URL-escaped to handle special characters in
// passwords (e.g., @, /, #, ?) that would otherwise break URL parsing.
func buildConnString(cfg *config.SourceConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		port,
		url.QueryEscape(cfg.Database),
		sslMode,
	)
}

// New creates a PostgreSQL adapter. The pool connects lazily; use
// TestConnection to verify credentials before fetching.
func New(cfg *config.SourceConfig, logger *zap.Logger) (*Adapter, error) {
	connStr := buildConnString(cfg)
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	log := logger.Named("postgres")
	log.Debug("Opened source pool",
		zap.String("dsn", logging.SanitizeConnectionString(connStr)))

	return &Adapter{
		cfg:    cfg,
		pool:   pool,
		logger: log,
	}, nil
}

// Type returns the registry key for this adapter.
func (a *Adapter) Type() string { return "postgres" }

// TestConnection verifies the database is reachable with valid
// credentials. It checks server connectivity, database access, and that
// the configured database is the one actually answering.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB, a.cfg.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.cfg.Database, currentDB)
	}

	return nil
}

// FetchTable loads the named table with every cell cast to text
// server-side, so the dataset layer sees exactly what the database would
// print. The schema defaults to public.
func (a *Adapter) FetchTable(ctx context.Context, table string, limit int) (*dataset.Table, error) {
	if err := enginesql.VetIdentifier(table); err != nil {
		return nil, err
	}
	schema, name := enginesql.SplitQualified(table)
	if schema == "" {
		schema = "public"
	}

	columns, err := a.tableColumns(ctx, schema, name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, apperrors.ErrNotFound)
	}

	selects := make([]string, len(columns))
	for i, col := range columns {
		selects[i] = pgx.Identifier{col}.Sanitize() + "::text"
	}
	query := fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(selects, ", "), pgx.Identifier{schema, name}.Sanitize())

	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	a.logger.Debug("Fetching table", zap.String("query", logging.SanitizeQuery(query)))
	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()

	t := dataset.NewTable(name, columns)
	values := make([]*string, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(dataset.Row, len(columns))
		for i, col := range columns {
			if values[i] != nil {
				row[col] = *values[i]
			} else {
				row[col] = ""
			}
		}
		t.AppendRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}

	a.logger.Info("Fetched table",
		zap.String("table", table),
		zap.Int("columns", len(columns)),
		zap.Int("rows", t.RowCount()))
	return t, nil
}

// tableColumns returns the table's column names in ordinal order.
func (a *Adapter) tableColumns(ctx context.Context, schema, table string) ([]string, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// ListTables names the base tables visible to the configured user. Tables
// outside public are schema-qualified.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		if schema == "public" {
			tables = append(tables, name)
		} else {
			tables = append(tables, schema+"."+name)
		}
	}
	return tables, rows.Err()
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}
