package sampling

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Result is one drawn sample. The sample table shares row references with
// the source; stages treat samples as read-only.
type Result struct {
	Table     *dataset.Table
	Stage     int
	Requested int
	// Exhausted is set when the computed size reached the whole dataset and
	// the sample degenerated to a full pass.
	Exhausted bool
}

// Engine draws samples for the schedule's stages.
type Engine interface {
	// Sample draws the stage's sample from the table. Uniform without
	// replacement by default; proportional per stratum when a stratify
	// column is configured. Idempotent for a given seed and stage.
	Sample(t *dataset.Table, stage models.StageConfig, seed int64) (*Result, error)
}

type engine struct {
	stratifyColumn string
	logger         *zap.Logger
}

var _ Engine = (*engine)(nil)

// NewEngine creates a sampling engine. An empty stratifyColumn selects
// uniform sampling.
func NewEngine(stratifyColumn string, logger *zap.Logger) Engine {
	return &engine{
		stratifyColumn: stratifyColumn,
		logger:         logger.Named("sampling"),
	}
}

func (e *engine) Sample(t *dataset.Table, stage models.StageConfig, seed int64) (*Result, error) {
	n := t.RowCount()
	if n == 0 {
		return nil, apperrors.ErrEmptyDataset
	}

	size := sampleSize(n, stage.Fraction)
	if size >= n {
		full := &dataset.Table{Name: t.Name, Columns: t.Columns, Rows: t.Rows}
		return &Result{Table: full, Stage: stage.Number, Requested: size, Exhausted: true}, nil
	}

	// Per-stage stream so stages draw independent samples from one run seed
	rng := rand.New(rand.NewSource(seed + int64(stage.Number)))

	var indices []int
	var err error
	if e.stratifyColumn != "" {
		indices, err = e.stratifiedIndices(t, stage.Fraction, rng)
		if err != nil {
			return nil, err
		}
	} else {
		indices = rng.Perm(n)[:size]
	}

	// Preserve source row order within the sample
	sort.Ints(indices)

	sample := &dataset.Table{
		Name:    t.Name,
		Columns: t.Columns,
		Rows:    make([]dataset.Row, len(indices)),
	}
	for i, idx := range indices {
		sample.Rows[i] = t.Rows[idx]
	}

	e.logger.Debug("drew sample",
		zap.Int("stage", stage.Number),
		zap.Int("rows", len(indices)),
		zap.Bool("stratified", e.stratifyColumn != ""))

	return &Result{Table: sample, Stage: stage.Number, Requested: size, Exhausted: false}, nil
}

// stratifiedIndices samples proportionally within each distinct value of the
// stratify column. Every represented value contributes at least one row, so
// rare strata survive even the smallest stage.
func (e *engine) stratifiedIndices(t *dataset.Table, fraction float64, rng *rand.Rand) ([]int, error) {
	if !t.HasColumn(e.stratifyColumn) {
		return nil, fmt.Errorf("stratify column %q: %w", e.stratifyColumn, apperrors.ErrColumnNotFound)
	}

	groups := make(map[string][]int)
	order := make([]string, 0)
	for i, row := range t.Rows {
		v := row[e.stratifyColumn]
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], i)
	}

	var indices []int
	for _, v := range order {
		group := groups[v]
		size := sampleSize(len(group), fraction)
		perm := rng.Perm(len(group))
		for _, p := range perm[:size] {
			indices = append(indices, group[p])
		}
	}
	return indices, nil
}

// sampleSize rounds the stage fraction up to whole rows, never below one.
func sampleSize(n int, fraction float64) int {
	size := int(math.Ceil(fraction * float64(n)))
	if size < 1 {
		size = 1
	}
	return size
}
