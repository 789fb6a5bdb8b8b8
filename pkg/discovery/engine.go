package discovery

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Engine discovers rules from samples and re-validates them as later,
// larger samples arrive. One engine serves one run: it owns the run's rule
// ledger and the category sets seen so far.
type Engine interface {
	// DiscoverRules profiles the sample and returns the rules first seen in
	// it. Rediscovered issues merge evidence into the existing ledger entry
	// instead of creating a duplicate. The exception list covers cells the
	// profilers could not parse.
	DiscoverRules(sample *dataset.Table, stage int) ([]*models.PreprocessingRule, []models.ExceptionRecord, error)

	// ValidateRules re-checks every ledger rule's trigger condition against
	// the sample.
	ValidateRules(sample *dataset.Table, stage int) ([]models.ValidationResult, error)

	// Rules returns the ledger in discovery order.
	Rules() []*models.PreprocessingRule

	// Rule returns the ledger entry with the given ID.
	Rule(id string) (*models.PreprocessingRule, bool)
}

type engine struct {
	cfg    config.DiscoveryConfig
	logger *zap.Logger

	rules     map[string]*models.PreprocessingRule
	ruleOrder []string
	// knownCategories accumulates the distinct values seen per categorical
	// column across all samples so far.
	knownCategories map[string]map[string]struct{}
}

var _ Engine = (*engine)(nil)

// NewEngine creates a discovery engine for one run.
func NewEngine(cfg config.DiscoveryConfig, logger *zap.Logger) Engine {
	return &engine{
		cfg:             cfg,
		logger:          logger.Named("discovery"),
		rules:           make(map[string]*models.PreprocessingRule),
		knownCategories: make(map[string]map[string]struct{}),
	}
}

func (e *engine) DiscoverRules(sample *dataset.Table, stage int) ([]*models.PreprocessingRule, []models.ExceptionRecord, error) {
	if sample.RowCount() == 0 {
		return nil, nil, nil
	}

	var candidates []*models.PreprocessingRule
	var exceptions []models.ExceptionRecord

	// Columns in table order keeps discovery, and therefore the question
	// queue, deterministic.
	for _, col := range sample.Columns {
		profile, exc := ProfileColumn(sample, col)
		exceptions = append(exceptions, exc...)

		if r := e.detectMissingValues(profile); r != nil {
			candidates = append(candidates, r)
		}
		if r := e.detectOutliers(profile); r != nil {
			candidates = append(candidates, r)
		}
		if r := e.detectConstantColumn(profile); r != nil {
			candidates = append(candidates, r)
		}
		if r := e.detectCategoryDrift(profile, sample.RowCount()); r != nil {
			candidates = append(candidates, r)
		}
	}

	if r := e.detectDuplicateRows(sample); r != nil {
		candidates = append(candidates, r)
	}

	newRules := make([]*models.PreprocessingRule, 0)
	for _, c := range candidates {
		existing, ok := e.rules[c.ID]
		if ok {
			mergeEvidence(existing, c)
			continue
		}
		c.FirstSeenStage = stage
		c.CreatedAt = time.Now().UTC()
		e.rules[c.ID] = c
		e.ruleOrder = append(e.ruleOrder, c.ID)
		newRules = append(newRules, c)
	}

	e.logger.Debug("discovery pass complete",
		zap.Int("stage", stage),
		zap.Int("sample_rows", sample.RowCount()),
		zap.Int("new_rules", len(newRules)),
		zap.Int("total_rules", len(e.rules)),
		zap.Int("exceptions", len(exceptions)))

	return newRules, exceptions, nil
}

func (e *engine) ValidateRules(sample *dataset.Table, stage int) ([]models.ValidationResult, error) {
	results := make([]models.ValidationResult, 0, len(e.ruleOrder))
	for _, id := range e.ruleOrder {
		rule := e.rules[id]
		valid, matches, err := e.checkRule(rule, sample)
		if err != nil {
			return nil, fmt.Errorf("validate rule %s: %w", id, err)
		}
		results = append(results, models.ValidationResult{
			RuleID:     id,
			Stage:      stage,
			IsValid:    valid,
			MatchCount: matches,
		})
	}
	return results, nil
}

func (e *engine) Rules() []*models.PreprocessingRule {
	out := make([]*models.PreprocessingRule, 0, len(e.ruleOrder))
	for _, id := range e.ruleOrder {
		out = append(out, e.rules[id])
	}
	return out
}

func (e *engine) Rule(id string) (*models.PreprocessingRule, bool) {
	r, ok := e.rules[id]
	return r, ok
}

// ============================================================================
// Detectors
// ============================================================================

func (e *engine) detectMissingValues(p *ColumnProfile) *models.PreprocessingRule {
	if p.MissingRatio < e.cfg.MissingFloor || p.MissingCount == 0 {
		return nil
	}

	strategies := []string{string(models.TransformFillMode), string(models.TransformFillConstant), string(models.TransformRemoveRow)}
	if p.IsNumeric {
		strategies = []string{string(models.TransformFillMean), string(models.TransformFillMedian), string(models.TransformFillConstant), string(models.TransformRemoveRow)}
	}

	return &models.PreprocessingRule{
		ID:              models.ComputeRuleID(models.RuleKindMissingValues, []string{p.Name}),
		Kind:            models.RuleKindMissingValues,
		Columns:         []string{p.Name},
		MatchCount:      p.MissingCount,
		AffectedPercent: p.MissingRatio * 100,
		RequiresHITL:    true,
		Detail: models.RuleDetail{
			Missing: &models.MissingValueDetail{
				MissingCount: p.MissingCount,
				MissingRatio: p.MissingRatio,
				IsNumeric:    p.IsNumeric,
				Strategies:   strategies,
			},
		},
	}
}

// minOutlierValues is the smallest numeric sample where quartile fences
// mean anything.
const minOutlierValues = 20

func (e *engine) detectOutliers(p *ColumnProfile) *models.PreprocessingRule {
	if !p.IsNumeric || len(p.Values) < minOutlierValues {
		return nil
	}

	q1, q3 := p.Quartiles()
	iqr := q3 - q1
	if iqr == 0 {
		return nil
	}

	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	var out int64
	for _, v := range p.Values {
		if v < lower || v > upper {
			out++
		}
	}
	ratio := float64(out) / float64(len(p.Values))
	if ratio < e.cfg.OutlierFloor || out == 0 {
		return nil
	}

	severe := ratio > e.cfg.OutlierSeverity
	return &models.PreprocessingRule{
		ID:               models.ComputeRuleID(models.RuleKindOutliers, []string{p.Name}),
		Kind:             models.RuleKindOutliers,
		Columns:          []string{p.Name},
		MatchCount:       out,
		AffectedPercent:  ratio * 100,
		RequiresHITL:     severe,
		IsAutoResolvable: !severe,
		Detail: models.RuleDetail{
			Outlier: &models.OutlierDetail{
				LowerBound:    lower,
				UpperBound:    upper,
				Q1:            q1,
				Q3:            q3,
				OutOfBoundPct: ratio * 100,
			},
		},
	}
}

func (e *engine) detectConstantColumn(p *ColumnProfile) *models.PreprocessingRule {
	if !p.IsConstant() {
		return nil
	}

	return &models.PreprocessingRule{
		ID:               models.ComputeRuleID(models.RuleKindConstantColumn, []string{p.Name}),
		Kind:             models.RuleKindConstantColumn,
		Columns:          []string{p.Name},
		MatchCount:       p.TotalCount,
		AffectedPercent:  100,
		IsAutoResolvable: true,
		Detail: models.RuleDetail{
			Constant: &models.ConstantColumnDetail{Value: p.ConstantValue()},
		},
	}
}

// detectCategoryDrift compares a categorical column's distinct values with
// everything earlier samples showed. The first sight of a column only seeds
// the known set; a rule needs an earlier baseline to drift from.
func (e *engine) detectCategoryDrift(p *ColumnProfile, sampleRows int) *models.PreprocessingRule {
	if p.IsNumeric || p.DistinctCount == 0 {
		return nil
	}
	if p.DistinctCount > int64(e.cfg.CategoricalMaxDistinct) {
		return nil
	}
	if float64(p.DistinctCount) > e.cfg.CategoricalMaxRatio*float64(sampleRows) {
		return nil
	}

	known, seen := e.knownCategories[p.Name]
	if !seen {
		known = make(map[string]struct{}, len(p.Distinct))
		for v := range p.Distinct {
			known[v] = struct{}{}
		}
		e.knownCategories[p.Name] = known
		return nil
	}

	var newValues []string
	for v := range p.Distinct {
		if _, ok := known[v]; !ok {
			newValues = append(newValues, v)
		}
	}
	if len(newValues) == 0 {
		return nil
	}

	knownValues := make([]string, 0, len(known))
	for v := range known {
		knownValues = append(knownValues, v)
	}
	sort.Strings(knownValues)
	sort.Strings(newValues)

	var matches int64
	for _, v := range newValues {
		matches += p.Distinct[v]
	}

	for _, v := range newValues {
		known[v] = struct{}{}
	}

	nonMissing := p.TotalCount - p.MissingCount
	var affected float64
	if nonMissing > 0 {
		affected = float64(matches) / float64(nonMissing) * 100
	}

	return &models.PreprocessingRule{
		ID:              models.ComputeRuleID(models.RuleKindUnknownCategories, []string{p.Name}),
		Kind:            models.RuleKindUnknownCategories,
		Columns:         []string{p.Name},
		MatchCount:      matches,
		AffectedPercent: affected,
		RequiresHITL:    true,
		Detail: models.RuleDetail{
			Drift: &models.CategoryDriftDetail{
				KnownValues: knownValues,
				NewValues:   newValues,
			},
		},
	}
}

func (e *engine) detectDuplicateRows(sample *dataset.Table) *models.PreprocessingRule {
	seen := make(map[string]int64, sample.RowCount())
	for _, row := range sample.Rows {
		seen[sample.RowKey(row)]++
	}

	var dupes int64
	for _, c := range seen {
		if c > 1 {
			dupes += c - 1
		}
	}
	if dupes < e.cfg.DuplicateFloor || dupes == 0 {
		return nil
	}

	return &models.PreprocessingRule{
		ID:               models.ComputeRuleID(models.RuleKindDuplicateRows, nil),
		Kind:             models.RuleKindDuplicateRows,
		Columns:          nil,
		MatchCount:       dupes,
		AffectedPercent:  float64(dupes) / float64(sample.RowCount()) * 100,
		IsAutoResolvable: true,
		Detail: models.RuleDetail{
			Duplicates: &models.DuplicateRowsDetail{
				DuplicateCount: dupes,
				DistinctGroups: int64(len(seen)),
			},
		},
	}
}

// ============================================================================
// Validation
// ============================================================================

// checkRule re-evaluates a rule's trigger condition on a fresh sample.
// Outlier rules apply the bounds learned at discovery rather than refitting,
// so validation measures whether the learned rule still predicts.
func (e *engine) checkRule(rule *models.PreprocessingRule, sample *dataset.Table) (bool, int64, error) {
	switch rule.Kind {
	case models.RuleKindMissingValues:
		p, _ := ProfileColumn(sample, rule.PrimaryColumn())
		return p.MissingRatio >= e.cfg.MissingFloor && p.MissingCount > 0, p.MissingCount, nil

	case models.RuleKindOutliers:
		d := rule.Detail.Outlier
		if d == nil {
			return false, 0, fmt.Errorf("outlier rule %s has no bounds", rule.ID)
		}
		p, _ := ProfileColumn(sample, rule.PrimaryColumn())
		if len(p.Values) == 0 {
			return false, 0, nil
		}
		var out int64
		for _, v := range p.Values {
			if v < d.LowerBound || v > d.UpperBound {
				out++
			}
		}
		ratio := float64(out) / float64(len(p.Values))
		return out > 0 && ratio >= e.cfg.OutlierFloor, out, nil

	case models.RuleKindUnknownCategories:
		d := rule.Detail.Drift
		if d == nil {
			return false, 0, fmt.Errorf("drift rule %s has no value sets", rule.ID)
		}
		p, _ := ProfileColumn(sample, rule.PrimaryColumn())
		var matches int64
		for _, v := range d.NewValues {
			matches += p.Distinct[v]
		}
		return matches > 0, matches, nil

	case models.RuleKindDuplicateRows:
		seen := make(map[string]int64, sample.RowCount())
		for _, row := range sample.Rows {
			seen[sample.RowKey(row)]++
		}
		var dupes int64
		for _, c := range seen {
			if c > 1 {
				dupes += c - 1
			}
		}
		return dupes >= e.cfg.DuplicateFloor && dupes > 0, dupes, nil

	case models.RuleKindConstantColumn:
		if !sample.HasColumn(rule.PrimaryColumn()) {
			return false, 0, nil
		}
		p, _ := ProfileColumn(sample, rule.PrimaryColumn())
		return p.IsConstant(), p.TotalCount, nil

	default:
		return false, 0, fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

// mergeEvidence folds a candidate's fresher, larger-sample evidence into
// the ledger entry. Identity, approval state, and first-seen stage survive.
func mergeEvidence(existing, candidate *models.PreprocessingRule) {
	existing.MatchCount = candidate.MatchCount
	existing.AffectedPercent = candidate.AffectedPercent
	mergeDetail(existing, candidate)
}

func mergeDetail(existing, candidate *models.PreprocessingRule) {
	switch existing.Kind {
	case models.RuleKindUnknownCategories:
		// Drift accumulates: union the new values, keep the original baseline
		ed, cd := existing.Detail.Drift, candidate.Detail.Drift
		if ed == nil || cd == nil {
			return
		}
		set := make(map[string]struct{}, len(ed.NewValues)+len(cd.NewValues))
		for _, v := range ed.NewValues {
			set[v] = struct{}{}
		}
		for _, v := range cd.NewValues {
			set[v] = struct{}{}
		}
		merged := make([]string, 0, len(set))
		for v := range set {
			merged = append(merged, v)
		}
		sort.Strings(merged)
		ed.NewValues = merged
	default:
		existing.Detail = candidate.Detail
	}
}
