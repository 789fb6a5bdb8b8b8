package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/prepflow-inc/prepflow-engine/pkg/database"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// DecisionRepository provides data access for the decision audit log.
type DecisionRepository interface {
	CreateBatch(ctx context.Context, runID uuid.UUID, decisions []models.HITLDecision) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.HITLDecision, error)
	CountByRule(ctx context.Context, ruleID string) (int, error)
}

type decisionRepository struct {
	db *database.DB
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(db *database.DB) DecisionRepository {
	return &decisionRepository{db: db}
}

var _ DecisionRepository = (*decisionRepository)(nil)

func (r *decisionRepository) CreateBatch(ctx context.Context, runID uuid.UUID, decisions []models.HITLDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	// Use COPY for efficient batch insert
	columns := []string{"id", "run_id", "rule_id", "question", "answer", "decided_at"}

	rows := make([][]any, len(decisions))
	for i, d := range decisions {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}

		questionJSON, err := json.Marshal(d.Question)
		if err != nil {
			return fmt.Errorf("failed to marshal question: %w", err)
		}
		answerJSON, err := json.Marshal(d.Answer)
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}

		rows[i] = []any{d.ID, runID, d.RuleID, questionJSON, answerJSON, d.DecidedAt}
	}

	_, err := r.db.Pool.CopyFrom(
		ctx,
		pgx.Identifier{"engine_hitl_decisions"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to batch create decisions: %w", err)
	}

	return nil
}

func (r *decisionRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.HITLDecision, error) {
	query := `
		SELECT id, rule_id, question, answer, decided_at
		FROM engine_hitl_decisions
		WHERE run_id = $1
		ORDER BY decided_at, id`

	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.HITLDecision
	for rows.Next() {
		decision, err := scanDecisionRow(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *decision)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}

	return decisions, nil
}

// CountByRule reports how often a rule identity has been decided across all
// recorded runs. Rule IDs are content-derived, so the count spans datasets
// that produced the same rule.
func (r *decisionRepository) CountByRule(ctx context.Context, ruleID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM engine_hitl_decisions WHERE rule_id = $1`, ruleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count decisions for rule: %w", err)
	}
	return count, nil
}

func scanDecisionRow(row pgx.Row) (*models.HITLDecision, error) {
	var decision models.HITLDecision
	var questionJSON, answerJSON []byte

	err := row.Scan(
		&decision.ID,
		&decision.RuleID,
		&questionJSON,
		&answerJSON,
		&decision.DecidedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	if err := json.Unmarshal(questionJSON, &decision.Question); err != nil {
		return nil, fmt.Errorf("failed to unmarshal question: %w", err)
	}
	if err := json.Unmarshal(answerJSON, &decision.Answer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answer: %w", err)
	}

	return &decision, nil
}
