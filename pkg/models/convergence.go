package models

import "time"

// ============================================================================
// Convergence Recommendation
// ============================================================================

// Recommendation is the action the convergence check proposes after the
// metered stages have run.
type Recommendation string

const (
	// RecommendationReviewStrategy: confidence stayed below threshold through
	// the whole stage budget; the sampling strategy itself needs review.
	RecommendationReviewStrategy Recommendation = "review_strategy"

	// RecommendationProceedToHITL: rules are stable but some still need a
	// human decision before bulk processing.
	RecommendationProceedToHITL Recommendation = "proceed_to_hitl"

	// RecommendationReadyForBulk: rules are stable and every decision is in.
	RecommendationReadyForBulk Recommendation = "ready_for_bulk"
)

// ValidRecommendations contains all valid recommendation values.
var ValidRecommendations = []Recommendation{
	RecommendationReviewStrategy,
	RecommendationProceedToHITL,
	RecommendationReadyForBulk,
}

// IsValidRecommendation checks if the given recommendation is valid.
func IsValidRecommendation(r Recommendation) bool {
	for _, v := range ValidRecommendations {
		if v == r {
			return true
		}
	}
	return false
}

// ============================================================================
// Convergence Report
// ============================================================================

// ConvergenceReport summarizes rule stability after the metered stages.
// IsStable requires both the mean rule confidence to reach the configured
// threshold and no new rule to have appeared for the stability window.
type ConvergenceReport struct {
	IsStable                bool           `json:"is_stable"`
	OverallConfidence       float64        `json:"overall_confidence"`
	SamplesSinceLastNewRule int            `json:"samples_since_last_new_rule"`
	Recommendation          Recommendation `json:"recommendation"`
	GeneratedAt             time.Time      `json:"generated_at"`
}
