// Package confidence scores rules from their validation history and decides
// when discovery has converged.
package confidence

import (
	"time"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Calculator accumulates per-rule validation outcomes across stages and
// produces the convergence report. One calculator serves one run.
//
// Evidence is counted in rows, not stages: a rule validated against a
// 2,500-row sample earns 2,500 units of support. Stage samples grow with
// each stage, so later stages dominate the score exactly in proportion to
// how much data they saw.
type Calculator interface {
	// Update folds one stage's validation results into the hit/miss
	// ledger and advances the new-rule stability counter. sampleSize is
	// the number of rows the stage validated against.
	Update(results []models.ValidationResult, newRuleCount, sampleSize int)

	// Confidence returns the rule's smoothed validation success rate,
	// always strictly between 0 and 1.
	Confidence(ruleID string) float64

	// MeanConfidence refreshes every rule's Confidence field and returns
	// their mean. An empty rule set has mean 0.
	MeanConfidence(rules []*models.PreprocessingRule) float64

	// SamplesSinceLastNewRule returns how many rows have been sampled
	// since the last stage that discovered a rule.
	SamplesSinceLastNewRule() int

	// Report builds the convergence report for the current ledger.
	Report(rules []*models.PreprocessingRule) *models.ConvergenceReport
}

type calculator struct {
	cfg    config.ConvergenceConfig
	logger *zap.Logger

	hits                map[string]int
	misses              map[string]int
	samplesSinceNewRule int
}

var _ Calculator = (*calculator)(nil)

// NewCalculator creates a confidence calculator for one run.
func NewCalculator(cfg config.ConvergenceConfig, logger *zap.Logger) Calculator {
	return &calculator{
		cfg:    cfg,
		logger: logger.Named("confidence"),
		hits:   make(map[string]int),
		misses: make(map[string]int),
	}
}

func (c *calculator) Update(results []models.ValidationResult, newRuleCount, sampleSize int) {
	if sampleSize < 1 {
		sampleSize = 1
	}

	for _, r := range results {
		if r.IsValid {
			c.hits[r.RuleID] += sampleSize
		} else {
			c.misses[r.RuleID] += sampleSize
		}
	}

	if newRuleCount > 0 {
		c.samplesSinceNewRule = 0
	} else {
		c.samplesSinceNewRule += sampleSize
	}

	c.logger.Debug("confidence updated",
		zap.Int("results", len(results)),
		zap.Int("new_rules", newRuleCount),
		zap.Int("sample_size", sampleSize),
		zap.Int("samples_since_new_rule", c.samplesSinceNewRule))
}

// Confidence applies Laplace smoothing, (hits+1)/(hits+misses+2), so a rule
// with no history scores 0.5 and no amount of evidence reaches exactly 0
// or 1.
func (c *calculator) Confidence(ruleID string) float64 {
	h, m := c.hits[ruleID], c.misses[ruleID]
	return float64(h+1) / float64(h+m+2)
}

func (c *calculator) MeanConfidence(rules []*models.PreprocessingRule) float64 {
	if len(rules) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rules {
		r.Confidence = c.Confidence(r.ID)
		sum += r.Confidence
	}
	return sum / float64(len(rules))
}

func (c *calculator) SamplesSinceLastNewRule() int {
	return c.samplesSinceNewRule
}

func (c *calculator) Report(rules []*models.PreprocessingRule) *models.ConvergenceReport {
	mean := c.MeanConfidence(rules)
	stable := mean >= c.cfg.ConfidenceThreshold &&
		c.samplesSinceNewRule >= c.cfg.StabilityWindow

	var unresolved int
	for _, r := range rules {
		if r.RequiresHITL && !r.IsApproved {
			unresolved++
		}
	}

	report := &models.ConvergenceReport{
		IsStable:                stable,
		OverallConfidence:       mean,
		SamplesSinceLastNewRule: c.samplesSinceNewRule,
		GeneratedAt:             time.Now().UTC(),
	}

	// review_strategy fires exactly when mean confidence is under the
	// threshold: the rules themselves are in doubt, so gathering
	// decisions about them would be premature. A clean dataset with no
	// rules has nothing left to doubt.
	switch {
	case len(rules) == 0:
		report.Recommendation = models.RecommendationReadyForBulk
	case mean < c.cfg.ConfidenceThreshold:
		report.Recommendation = models.RecommendationReviewStrategy
	case unresolved > 0:
		report.Recommendation = models.RecommendationProceedToHITL
	default:
		report.Recommendation = models.RecommendationReadyForBulk
	}

	c.logger.Info("convergence check",
		zap.Bool("stable", stable),
		zap.Float64("overall_confidence", mean),
		zap.Int("rules", len(rules)),
		zap.Int("unresolved_decisions", unresolved),
		zap.String("recommendation", string(report.Recommendation)))

	return report
}
