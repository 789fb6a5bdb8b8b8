// cleanup-test-runs removes test-like runs from the run registry.
//
// Test patterns matched against dataset_name (case-insensitive):
// - ^test (starts with "test")
// - test$ (ends with "test")
// - ^debug (debug prefix)
// - ^dummy (dummy prefix)
// - ^sample (sample prefix)
// - ^example (example prefix)
// - ^demo (demo prefix)
// - ^scratch (scratch prefix)
// - \d{4}$ (ends with 4 digits, e.g., "orders2026")
//
// Deleting a run cascades to its recorded decisions.
//
// Usage: go run ./scripts/cleanup-test-runs
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-dry-run   Show what would be deleted without actually deleting (default: true)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
)

// testRunPatterns defines regex patterns to identify test runs. These are
// used with PostgreSQL's ~* (case-insensitive regex) operator.
var testRunPatterns = []string{
	`^test`,    // Starts with "test"
	`test$`,    // Ends with "test"
	`^debug`,   // Debug prefix
	`^dummy`,   // Dummy prefix
	`^sample`,  // Sample prefix
	`^example`, // Example prefix
	`^demo`,    // Demo prefix
	`^scratch`, // Scratch prefix
	`\d{4}$`,   // Ends with 4 digits (year-like suffix)
}

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	flag.Parse()

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete runs")
		fmt.Println()
	}

	totalDeleted := 0
	for _, pattern := range testRunPatterns {
		count, err := cleanupTestRuns(ctx, conn, pattern, *dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning pattern %q: %v\n", pattern, err)
			os.Exit(1)
		}
		totalDeleted += count
	}

	if *dryRun {
		fmt.Printf("\nTotal runs that would be deleted: %d\n", totalDeleted)
	} else {
		fmt.Printf("\nTotal runs deleted: %d\n", totalDeleted)
	}
}

// cleanupTestRuns deletes registry runs whose dataset name matches the given
// regex pattern. If dryRun is true, it only shows what would be deleted.
func cleanupTestRuns(ctx context.Context, conn *pgx.Conn, pattern string, dryRun bool) (int, error) {
	if dryRun {
		// Show what would be deleted
		rows, err := conn.Query(ctx, `
			SELECT r.dataset_name, r.phase, r.started_at::date::text,
			       (SELECT COUNT(*) FROM engine_hitl_decisions d WHERE d.run_id = r.id)
			FROM engine_workflow_runs r
			WHERE r.dataset_name ~* $1
			ORDER BY r.started_at DESC
		`, pattern)
		if err != nil {
			return 0, fmt.Errorf("query failed: %w", err)
		}
		defer rows.Close()

		var count int
		for rows.Next() {
			var datasetName, phase, startedAt string
			var decisions int64
			if err := rows.Scan(&datasetName, &phase, &startedAt, &decisions); err != nil {
				return 0, fmt.Errorf("scan failed: %w", err)
			}
			count++
			fmt.Printf("  [%s] %q phase=%s started=%s (%d decisions)\n", pattern, datasetName, phase, startedAt, decisions)
		}
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("rows iteration failed: %w", err)
		}

		if count == 0 {
			fmt.Printf("  [%s] No matching runs\n", pattern)
		}
		return count, nil
	}

	// Actually delete; decisions go with the run via ON DELETE CASCADE
	result, err := conn.Exec(ctx, `
		DELETE FROM engine_workflow_runs
		WHERE dataset_name ~* $1
	`, pattern)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	count := int(result.RowsAffected())
	fmt.Printf("Deleted %d runs matching pattern: %s\n", count, pattern)
	return count, nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "postgres")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "prepflow_engine")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
