// Package transform applies approved preprocessing rules to a complete
// dataset during the bulk stage.
package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/discovery"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Stats summarizes what one bulk application did to the dataset.
type Stats struct {
	RowsIn            int64 `json:"rows_in"`
	RowsOut           int64 `json:"rows_out"`
	CellsFilled       int64 `json:"cells_filled"`
	CellsClamped      int64 `json:"cells_clamped"`
	CellsMapped       int64 `json:"cells_mapped"`
	RowsRemoved       int64 `json:"rows_removed"`
	DuplicatesRemoved int64 `json:"duplicates_removed"`
	ColumnsDropped    int64 `json:"columns_dropped"`
	RulesApplied      int   `json:"rules_applied"`
}

// Applier applies approved rules to the entire dataset.
type Applier interface {
	// Apply returns a transformed copy of the dataset, exception records for
	// issues no approved rule covered, and application stats. The input
	// table is never mutated. Row indexes in exceptions refer to the input
	// row order.
	Apply(ds *dataset.Table, rules []*models.PreprocessingRule) (*dataset.Table, []models.ExceptionRecord, Stats)
}

type applier struct {
	logger *zap.Logger
}

// NewApplier creates a bulk rule applier.
func NewApplier(logger *zap.Logger) Applier {
	return &applier{logger: logger.Named("transform")}
}

var _ Applier = (*applier)(nil)

func (a *applier) Apply(ds *dataset.Table, rules []*models.PreprocessingRule) (*dataset.Table, []models.ExceptionRecord, Stats) {
	out := ds.Clone()
	stats := Stats{RowsIn: int64(ds.RowCount())}

	var approved []*models.PreprocessingRule
	for _, r := range rules {
		if r.IsApproved {
			approved = append(approved, r)
		}
	}
	stats.RulesApplied = len(approved)

	exceptions := newExceptionSet()
	removeRow := make(map[int]bool)

	// Column-level drops change the schema, so they go first.
	for _, rule := range byKind(approved, models.RuleKindConstantColumn) {
		if rule.Transformation != models.TransformDropColumn {
			continue
		}
		if out.HasColumn(rule.PrimaryColumn()) {
			out.DropColumn(rule.PrimaryColumn())
			stats.ColumnsDropped++
		}
	}

	// Cell-level strategies next; they never reorder or remove rows.
	coveredMissing := make(map[string]bool)
	for _, rule := range byKind(approved, models.RuleKindMissingValues) {
		col := rule.PrimaryColumn()
		if !out.HasColumn(col) {
			continue
		}
		coveredMissing[col] = true
		a.applyMissing(out, rule, removeRow, exceptions, &stats)
	}

	for _, rule := range byKind(approved, models.RuleKindOutliers) {
		if !out.HasColumn(rule.PrimaryColumn()) {
			continue
		}
		a.applyOutliers(out, rule, removeRow, exceptions, &stats)
	}

	for _, rule := range byKind(approved, models.RuleKindUnknownCategories) {
		if !out.HasColumn(rule.PrimaryColumn()) {
			continue
		}
		a.applyDrift(out, rule, removeRow, &stats)
	}

	// A missing cell in a surviving row that no approved rule covers is an
	// exception, never a silent pass-through.
	for i, row := range out.Rows {
		if removeRow[i] {
			continue
		}
		for _, col := range out.Columns {
			if coveredMissing[col] {
				continue
			}
			if dataset.IsMissing(row[col]) {
				exceptions.add(models.ExceptionRecord{
					RowIndex: i,
					Column:   col,
					Value:    row[col],
					Reason:   "missing value matched no approved rule",
				})
			}
		}
	}

	// Deduplication runs last, on post-fill content.
	dedupe := false
	for _, rule := range byKind(approved, models.RuleKindDuplicateRows) {
		if rule.Transformation == models.TransformDropDuplicates {
			dedupe = true
		}
	}

	seen := make(map[string]bool)
	result := dataset.NewTable(out.Name, out.Columns)
	for i, row := range out.Rows {
		if removeRow[i] {
			stats.RowsRemoved++
			continue
		}
		if dedupe {
			key := out.RowKey(row)
			if seen[key] {
				stats.DuplicatesRemoved++
				continue
			}
			seen[key] = true
		}
		result.AppendRow(row)
	}
	stats.RowsOut = int64(result.RowCount())

	a.logger.Info("Bulk application finished",
		zap.Int64("rows_in", stats.RowsIn),
		zap.Int64("rows_out", stats.RowsOut),
		zap.Int64("cells_filled", stats.CellsFilled),
		zap.Int64("cells_clamped", stats.CellsClamped),
		zap.Int64("cells_mapped", stats.CellsMapped),
		zap.Int64("rows_removed", stats.RowsRemoved),
		zap.Int64("duplicates_removed", stats.DuplicatesRemoved),
		zap.Int("exceptions", len(exceptions.records)),
		zap.Int("rules_applied", stats.RulesApplied))

	return result, exceptions.sorted(), stats
}

// applyMissing fills or marks rows for one approved missing-values rule.
func (a *applier) applyMissing(out *dataset.Table, rule *models.PreprocessingRule, removeRow map[int]bool, exceptions *exceptionSet, stats *Stats) {
	col := rule.PrimaryColumn()

	var fill string
	switch rule.Transformation {
	case models.TransformFillMean, models.TransformFillMedian, models.TransformFillMode:
		profile, profileExceptions := discovery.ProfileColumn(out, col)
		for _, ex := range profileExceptions {
			exceptions.add(ex)
		}
		switch rule.Transformation {
		case models.TransformFillMean:
			fill = formatNumber(discovery.RoundTo(profile.Mean(), 4))
		case models.TransformFillMedian:
			fill = formatNumber(discovery.RoundTo(profile.Median(), 4))
		case models.TransformFillMode:
			fill = profile.MostCommon
		}
	case models.TransformFillConstant:
		fill = rule.FillValue
	case models.TransformRemoveRow, models.TransformDropRow:
		for i, row := range out.Rows {
			if dataset.IsMissing(row[col]) {
				removeRow[i] = true
			}
		}
		return
	case models.TransformKeepAsIs:
		return
	default:
		return
	}

	for _, row := range out.Rows {
		if dataset.IsMissing(row[col]) {
			row[col] = fill
			stats.CellsFilled++
		}
	}
}

// applyOutliers clamps or marks rows using the fence learned during
// discovery, not a fence recomputed on the full dataset.
func (a *applier) applyOutliers(out *dataset.Table, rule *models.PreprocessingRule, removeRow map[int]bool, exceptions *exceptionSet, stats *Stats) {
	detail := rule.Detail.Outlier
	if detail == nil || rule.Transformation == models.TransformKeepAsIs {
		return
	}
	col := rule.PrimaryColumn()

	for i, row := range out.Rows {
		raw := row[col]
		if dataset.IsMissing(raw) {
			continue
		}
		v, err := cast.ToFloat64E(strings.TrimSpace(raw))
		if err != nil {
			exceptions.add(models.ExceptionRecord{
				RowIndex: i,
				Column:   col,
				Value:    raw,
				Reason:   "unparseable numeric value",
			})
			continue
		}
		if v >= detail.LowerBound && v <= detail.UpperBound {
			continue
		}

		switch rule.Transformation {
		case models.TransformClampToBound:
			if v < detail.LowerBound {
				row[col] = formatNumber(detail.LowerBound)
			} else {
				row[col] = formatNumber(detail.UpperBound)
			}
			stats.CellsClamped++
		case models.TransformRemoveRow, models.TransformDropRow:
			removeRow[i] = true
		}
	}
}

// applyDrift maps or marks rows whose value is outside the known baseline.
func (a *applier) applyDrift(out *dataset.Table, rule *models.PreprocessingRule, removeRow map[int]bool, stats *Stats) {
	detail := rule.Detail.Drift
	if detail == nil || rule.Transformation == models.TransformKeepAsIs {
		return
	}
	col := rule.PrimaryColumn()

	known := make(map[string]bool, len(detail.KnownValues))
	for _, v := range detail.KnownValues {
		known[v] = true
	}

	for i, row := range out.Rows {
		raw := row[col]
		if dataset.IsMissing(raw) || known[strings.TrimSpace(raw)] {
			continue
		}

		switch rule.Transformation {
		case models.TransformMapToOther:
			mapped := rule.FillValue
			if mapped == "" {
				mapped = "other"
			}
			row[col] = mapped
			stats.CellsMapped++
		case models.TransformDropRow, models.TransformRemoveRow:
			removeRow[i] = true
		}
	}
}

// byKind filters rules preserving ledger order.
func byKind(rules []*models.PreprocessingRule, kind models.RuleKind) []*models.PreprocessingRule {
	var out []*models.PreprocessingRule
	for _, r := range rules {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// formatNumber renders a float without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ============================================================================
// Exception collection
// ============================================================================

// exceptionSet deduplicates exception records; the same cell can surface
// from several passes over a column.
type exceptionSet struct {
	records []models.ExceptionRecord
	seen    map[string]bool
}

func newExceptionSet() *exceptionSet {
	return &exceptionSet{seen: make(map[string]bool)}
}

func (s *exceptionSet) add(ex models.ExceptionRecord) {
	key := fmt.Sprintf("%d|%s|%s", ex.RowIndex, ex.Column, ex.Reason)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.records = append(s.records, ex)
}

// sorted returns exceptions ordered by row, then column.
func (s *exceptionSet) sorted() []models.ExceptionRecord {
	out := make([]models.ExceptionRecord, len(s.records))
	copy(out, s.records)
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowIndex != out[j].RowIndex {
			return out[i].RowIndex < out[j].RowIndex
		}
		return out[i].Column < out[j].Column
	})
	return out
}
