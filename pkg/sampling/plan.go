// Package sampling draws the progressively larger samples the discovery
// stages run against. Sampling is deterministic for a given seed, so a run
// can be replayed exactly.
package sampling

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Plan is a validated sampling schedule: metered stages with strictly
// increasing fractions, closed by one full-dataset stage.
type Plan struct {
	Stages []models.StageConfig `yaml:"stages"`
}

// DefaultPlan returns the standard five-stage schedule.
func DefaultPlan() *Plan {
	return &Plan{Stages: models.DefaultStagePlan()}
}

// LoadPlan reads a custom schedule from a YAML file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the schedule invariants: at least two stages, numbers
// sequential from 1, fractions strictly increasing, and a final fraction of
// exactly 1.0 so the bulk stage always covers the whole dataset.
func (p *Plan) Validate() error {
	if len(p.Stages) < 2 {
		return fmt.Errorf("%w: need at least one metered stage and one bulk stage, got %d", apperrors.ErrInvalidSamplingPlan, len(p.Stages))
	}

	for i, s := range p.Stages {
		if s.Number != i+1 {
			return fmt.Errorf("%w: stage numbers must run 1..%d, position %d has number %d", apperrors.ErrInvalidSamplingPlan, len(p.Stages), i+1, s.Number)
		}
		if s.Fraction <= 0 || s.Fraction > 1 {
			return fmt.Errorf("%w: stage %d fraction %v outside (0, 1]", apperrors.ErrInvalidSamplingPlan, s.Number, s.Fraction)
		}
		if i > 0 && s.Fraction <= p.Stages[i-1].Fraction {
			return fmt.Errorf("%w: stage %d fraction %v does not increase over stage %d", apperrors.ErrInvalidSamplingPlan, s.Number, s.Fraction, s.Number-1)
		}
	}

	final := p.Stages[len(p.Stages)-1]
	if final.Fraction != 1.0 {
		return fmt.Errorf("%w: final stage fraction must be 1.0, got %v", apperrors.ErrInvalidSamplingPlan, final.Fraction)
	}

	return nil
}

// MeteredStages returns every stage before the bulk stage.
func (p *Plan) MeteredStages() []models.StageConfig {
	return p.Stages[:len(p.Stages)-1]
}

// BulkStage returns the final full-dataset stage.
func (p *Plan) BulkStage() models.StageConfig {
	return p.Stages[len(p.Stages)-1]
}

// Stage returns the stage with the given number.
func (p *Plan) Stage(number int) (models.StageConfig, error) {
	if number < 1 || number > len(p.Stages) {
		return models.StageConfig{}, fmt.Errorf("%w: no stage %d", apperrors.ErrInvalidSamplingPlan, number)
	}
	return p.Stages[number-1], nil
}
