// Package models contains domain types for prepflow-engine.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ============================================================================
// Rule Kinds
// ============================================================================

// RuleKind identifies the class of data-quality issue a rule addresses.
type RuleKind string

const (
	RuleKindMissingValues     RuleKind = "missing_values"
	RuleKindOutliers          RuleKind = "outliers"
	RuleKindUnknownCategories RuleKind = "unknown_categories"
	RuleKindDuplicateRows     RuleKind = "duplicate_rows"
	RuleKindConstantColumn    RuleKind = "constant_column"
)

// ValidRuleKinds contains all valid rule kind values.
var ValidRuleKinds = []RuleKind{
	RuleKindMissingValues,
	RuleKindOutliers,
	RuleKindUnknownCategories,
	RuleKindDuplicateRows,
	RuleKindConstantColumn,
}

// IsValidRuleKind checks if the given kind is valid.
func IsValidRuleKind(k RuleKind) bool {
	for _, v := range ValidRuleKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ============================================================================
// Transformations
// ============================================================================

// Transformation names the concrete action a rule performs when applied to
// the full dataset during bulk processing.
type Transformation string

const (
	TransformFillMean       Transformation = "fill_mean"
	TransformFillMedian     Transformation = "fill_median"
	TransformFillMode       Transformation = "fill_mode"
	TransformFillConstant   Transformation = "fill_constant"
	TransformClampToBound   Transformation = "clamp_to_bound"
	TransformRemoveRow      Transformation = "remove_row"
	TransformMapToOther     Transformation = "map_to_other"
	TransformKeepAsIs       Transformation = "keep_as_is"
	TransformDropRow        Transformation = "drop_row"
	TransformDropDuplicates Transformation = "drop_duplicates"
	TransformDropColumn     Transformation = "drop_column"
)

// ValidTransformations contains all valid transformation values.
var ValidTransformations = []Transformation{
	TransformFillMean,
	TransformFillMedian,
	TransformFillMode,
	TransformFillConstant,
	TransformClampToBound,
	TransformRemoveRow,
	TransformMapToOther,
	TransformKeepAsIs,
	TransformDropRow,
	TransformDropDuplicates,
	TransformDropColumn,
}

// IsValidTransformation checks if the given transformation is valid.
func IsValidTransformation(t Transformation) bool {
	for _, v := range ValidTransformations {
		if v == t {
			return true
		}
	}
	return false
}

// DefaultTransformation returns the transformation applied automatically for
// kinds that resolve without a human decision. Returns false for kinds that
// always need a decision before a transformation is chosen.
func DefaultTransformation(k RuleKind) (Transformation, bool) {
	switch k {
	case RuleKindDuplicateRows:
		return TransformDropDuplicates, true
	case RuleKindConstantColumn:
		return TransformDropColumn, true
	case RuleKindOutliers:
		return TransformClampToBound, true
	default:
		return "", false
	}
}

// ============================================================================
// Per-Kind Detail Payloads
// ============================================================================

// MissingValueDetail carries evidence for a missing_values rule.
type MissingValueDetail struct {
	MissingCount int64    `json:"missing_count"`
	MissingRatio float64  `json:"missing_ratio"`
	IsNumeric    bool     `json:"is_numeric"`
	Strategies   []string `json:"strategies,omitempty"` // Candidate fill strategies, recommended first
}

// OutlierDetail carries evidence for an outliers rule. Bounds come from the
// 1.5x interquartile-range fence computed on the discovery sample.
type OutlierDetail struct {
	LowerBound    float64 `json:"lower_bound"`
	UpperBound    float64 `json:"upper_bound"`
	Q1            float64 `json:"q1"`
	Q3            float64 `json:"q3"`
	OutOfBoundPct float64 `json:"out_of_bound_pct"`
}

// CategoryDriftDetail carries evidence for an unknown_categories rule:
// values seen in a later, larger sample that were absent from every earlier
// sample of the same column.
type CategoryDriftDetail struct {
	KnownValues []string `json:"known_values"`
	NewValues   []string `json:"new_values"`
}

// DuplicateRowsDetail carries evidence for a duplicate_rows rule.
type DuplicateRowsDetail struct {
	DuplicateCount int64 `json:"duplicate_count"`
	DistinctGroups int64 `json:"distinct_groups"`
}

// ConstantColumnDetail carries evidence for a constant_column rule.
type ConstantColumnDetail struct {
	Value string `json:"value"`
}

// RuleDetail holds the kind-specific evidence for a rule. Exactly one field
// is populated, matching the rule's Kind.
type RuleDetail struct {
	Missing    *MissingValueDetail   `json:"missing,omitempty"`
	Outlier    *OutlierDetail        `json:"outlier,omitempty"`
	Drift      *CategoryDriftDetail  `json:"drift,omitempty"`
	Duplicates *DuplicateRowsDetail  `json:"duplicates,omitempty"`
	Constant   *ConstantColumnDetail `json:"constant,omitempty"`
}

// ============================================================================
// Preprocessing Rule
// ============================================================================

// PreprocessingRule is a discovered, validated data-quality finding together
// with the transformation that resolves it. Rules accumulate evidence across
// sampling stages; identity is stable under rediscovery (see ComputeRuleID).
type PreprocessingRule struct {
	ID               string         `json:"id"`
	Kind             RuleKind       `json:"kind"`
	Columns          []string       `json:"columns"`
	MatchCount       int64          `json:"match_count"`
	AffectedPercent  float64        `json:"affected_percent"`
	Confidence       float64        `json:"confidence"`
	RequiresHITL     bool           `json:"requires_hitl"`
	IsAutoResolvable bool           `json:"is_auto_resolvable"`
	IsApproved       bool           `json:"is_approved"`
	Transformation   Transformation `json:"transformation,omitempty"`
	FillValue        string         `json:"fill_value,omitempty"` // For fill_constant / map_to_other
	ApprovedBy       string         `json:"approved_by,omitempty"`
	FirstSeenStage   int            `json:"first_seen_stage"`
	CreatedAt        time.Time      `json:"created_at"`
	Detail           RuleDetail     `json:"detail"`
}

// ComputeRuleID derives a stable identifier from the rule kind and its
// column set. The same issue rediscovered at a later stage resolves to the
// same ID regardless of discovery order or column ordering.
// Returns the first 16 characters of the hex-encoded SHA256.
func ComputeRuleID(kind RuleKind, columns []string) string {
	sorted := make([]string, len(columns))
	copy(sorted, columns)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte(string(kind) + "|" + strings.Join(sorted, ",")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Approve marks the rule approved with the given transformation.
// Approval of a rule that requires a human decision must only happen through
// the decision log; callers outside the decision flow use AutoApprove.
func (r *PreprocessingRule) Approve(t Transformation, approvedBy string) {
	r.IsApproved = true
	r.Transformation = t
	r.ApprovedBy = approvedBy
}

// AutoApprove approves an auto-resolvable rule with its default
// transformation. Returns false when the rule is not auto-resolvable or has
// no default transformation.
func (r *PreprocessingRule) AutoApprove() bool {
	if !r.IsAutoResolvable || r.RequiresHITL {
		return false
	}
	t, ok := DefaultTransformation(r.Kind)
	if !ok {
		return false
	}
	r.Approve(t, "auto")
	return true
}

// PrimaryColumn returns the first column the rule applies to, or "" for
// whole-dataset rules such as duplicate_rows.
func (r *PreprocessingRule) PrimaryColumn() string {
	if len(r.Columns) == 0 {
		return ""
	}
	return r.Columns[0]
}
