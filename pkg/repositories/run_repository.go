package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/database"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// RunRepository provides data access for the run registry.
type RunRepository interface {
	Create(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error)
	Update(ctx context.Context, run *models.WorkflowRun) error
	List(ctx context.Context, filters models.RunFilters) ([]*models.WorkflowRun, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type runRepository struct {
	db *database.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *database.DB) RunRepository {
	return &runRepository{db: db}
}

var _ RunRepository = (*runRepository)(nil)

func (r *runRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO engine_workflow_runs (
			id, dataset_name, source_type, phase, seed,
			total_records, rule_count, decision_count,
			started_at, finished_at, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Pool.Exec(ctx, query,
		run.ID, run.DatasetName, run.SourceType, run.Phase, run.Seed,
		run.TotalRecords, run.RuleCount, run.DecisionCount,
		run.StartedAt, run.FinishedAt, run.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

func (r *runRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkflowRun, error) {
	query := `
		SELECT id, dataset_name, source_type, phase, seed,
		       total_records, rule_count, decision_count,
		       started_at, finished_at, failure_reason
		FROM engine_workflow_runs
		WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, id)
	run, err := scanRunRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

func (r *runRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	query := `
		UPDATE engine_workflow_runs
		SET phase = $2, total_records = $3, rule_count = $4,
		    decision_count = $5, finished_at = $6, failure_reason = $7,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query,
		run.ID, run.Phase, run.TotalRecords, run.RuleCount,
		run.DecisionCount, run.FinishedAt, run.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", run.ID, apperrors.ErrNotFound)
	}

	return nil
}

func (r *runRepository) List(ctx context.Context, filters models.RunFilters) ([]*models.WorkflowRun, int, error) {
	limit, offset := normalizePageParams(filters.Limit, filters.Offset)

	conditions := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filters.Phase != "" {
		conditions = append(conditions, fmt.Sprintf("phase = $%d", argIdx))
		args = append(args, filters.Phase)
		argIdx++
	}
	if filters.SourceType != "" {
		conditions = append(conditions, fmt.Sprintf("source_type = $%d", argIdx))
		args = append(args, filters.SourceType)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	// Count
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM engine_workflow_runs WHERE %s`, where)
	var total int
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	// Data
	dataQuery := fmt.Sprintf(`
		SELECT id, dataset_name, source_type, phase, seed,
		       total_records, rule_count, decision_count,
		       started_at, finished_at, failure_reason
		FROM engine_workflow_runs
		WHERE %s
		ORDER BY started_at DESC
		LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.WorkflowRun
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, total, nil
}

func (r *runRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM engine_workflow_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, apperrors.ErrNotFound)
	}

	return nil
}

func scanRunRow(row pgx.Row) (*models.WorkflowRun, error) {
	var run models.WorkflowRun

	err := row.Scan(
		&run.ID, &run.DatasetName, &run.SourceType, &run.Phase, &run.Seed,
		&run.TotalRecords, &run.RuleCount, &run.DecisionCount,
		&run.StartedAt, &run.FinishedAt, &run.FailureReason,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return &run, nil
}

// normalizePageParams ensures limit and offset are within reasonable bounds.
func normalizePageParams(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
