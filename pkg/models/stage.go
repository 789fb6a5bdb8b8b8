package models

import "time"

// ============================================================================
// Stage Configuration
// ============================================================================

// StageConfig describes one step of the progressive sampling schedule.
type StageConfig struct {
	Number   int     `json:"number" yaml:"number"`
	Fraction float64 `json:"fraction" yaml:"fraction"`
	Purpose  string  `json:"purpose" yaml:"purpose"`
}

// IsBulk returns true for the final full-dataset stage.
func (c StageConfig) IsBulk() bool {
	return c.Fraction >= 1.0
}

// DefaultStagePlan returns the standard five-stage schedule:
// four metered samples followed by the full dataset.
func DefaultStagePlan() []StageConfig {
	return []StageConfig{
		{Number: 1, Fraction: 0.001, Purpose: "initial discovery"},
		{Number: 2, Fraction: 0.005, Purpose: "rule validation"},
		{Number: 3, Fraction: 0.015, Purpose: "confidence building"},
		{Number: 4, Fraction: 0.025, Purpose: "convergence check"},
		{Number: 5, Fraction: 1.0, Purpose: "bulk processing"},
	}
}

// ============================================================================
// Stage Outcomes
// ============================================================================

// StageResult captures the outcome of one executed sampling stage.
// The orchestrator appends one per stage; the list is never rewritten.
type StageResult struct {
	Stage          int           `json:"stage"`
	SampleSize     int           `json:"sample_size"`
	NewRules       int           `json:"new_rules"`
	ValidatedRules int           `json:"validated_rules"`
	AvgConfidence  float64       `json:"avg_confidence"`
	HITLRequired   bool          `json:"hitl_required"`
	Duration       time.Duration `json:"duration"`
}

// ValidationResult records whether a previously discovered rule still
// triggers against a later sample. Ephemeral: consumed by the confidence
// calculator, not persisted.
type ValidationResult struct {
	RuleID     string `json:"rule_id"`
	Stage      int    `json:"stage"`
	IsValid    bool   `json:"is_valid"`
	MatchCount int64  `json:"match_count"`
}
