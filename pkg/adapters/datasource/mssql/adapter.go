// Package mssql reads input datasets from Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/adapters/datasource"
	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/logging"
	sqlvet "github.com/prepflow-inc/prepflow-engine/pkg/sql"
)

const defaultPort = 1433

// Adapter provides SQL Server connectivity using SQL authentication.
type Adapter struct {
	cfg    *config.SourceConfig
	db     *sql.DB
	logger *zap.Logger
}

var _ datasource.Adapter = (*Adapter)(nil)

// buildConnString builds a sqlserver:// URL. User-provided fields are
// URL-escaped so special characters in passwords survive parsing.
func buildConnString(cfg *config.SourceConfig) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		port,
		query.Encode(),
	)
}

// New creates a SQL Server adapter. The connection opens lazily; use
// TestConnection to verify credentials before fetching.
func New(cfg *config.SourceConfig, logger *zap.Logger) (*Adapter, error) {
	connStr := buildConnString(cfg)
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver connection: %w", err)
	}

	log := logger.Named("mssql")
	log.Debug("Opened source connection",
		zap.String("dsn", logging.SanitizeConnectionString(connStr)))

	return &Adapter{
		cfg:    cfg,
		db:     db,
		logger: log,
	}, nil
}

// Type returns the registry key for this adapter.
func (a *Adapter) Type() string { return "mssql" }

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	return nil
}

// FetchTable loads the named table with every cell cast to NVARCHAR
// server-side. The schema defaults to dbo.
func (a *Adapter) FetchTable(ctx context.Context, table string, limit int) (*dataset.Table, error) {
	if err := sqlvet.VetIdentifier(table); err != nil {
		return nil, err
	}
	schema, name := sqlvet.SplitQualified(table)
	if schema == "" {
		schema = "dbo"
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
		selects[i] = fmt.Sprintf("CAST(%s AS NVARCHAR(MAX)) AS %s", quoteName(col), quoteName(col))
	}

	var query string
	var args []any
	if limit > 0 {
		query = fmt.Sprintf("SELECT TOP (@p1) %s FROM %s.%s",
			strings.Join(selects, ", "), quoteName(schema), quoteName(name))
		args = append(args, limit)
	} else {
		query = fmt.Sprintf("SELECT %s FROM %s.%s",
			strings.Join(selects, ", "), quoteName(schema), quoteName(name))
	}

	a.logger.Debug("Fetching table", zap.String("query", logging.SanitizeQuery(query)))
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	defer rows.Close()

	t := dataset.NewTable(name, columns)
	values := make([]sql.NullString, len(columns))
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
			if values[i].Valid {
				row[col] = values[i].String
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
	rows, err := a.db.QueryContext(ctx, `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, schema, table)
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
// outside dbo are schema-qualified.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT TABLE_SCHEMA, TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_SCHEMA, TABLE_NAME`)
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
		if schema == "dbo" {
			tables = append(tables, name)
		} else {
			tables = append(tables, schema+"."+name)
		}
	}
	return tables, rows.Err()
}

// Close releases the database connection.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// quoteName escapes an identifier the way QUOTENAME() does: square
// brackets with ] doubled.
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}
