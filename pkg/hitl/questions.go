package hitl

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// buildQuestion generates the decision question for a rule that requires
// human review. Returns nil for rule kinds that resolve automatically.
func buildQuestion(rule *models.PreprocessingRule) *models.HITLQuestion {
	switch rule.Kind {
	case models.RuleKindMissingValues:
		return questionForMissingValues(rule)
	case models.RuleKindOutliers:
		return questionForOutliers(rule)
	case models.RuleKindUnknownCategories:
		return questionForCategoryDrift(rule)
	default:
		return nil
	}
}

// questionForMissingValues asks which fill strategy to use. The option set
// depends on whether the column parsed as numeric.
func questionForMissingValues(rule *models.PreprocessingRule) *models.HITLQuestion {
	detail := rule.Detail.Missing
	if detail == nil {
		return nil
	}

	var options []models.HITLOption
	var recommended string
	if detail.IsNumeric {
		options = []models.HITLOption{
			{Key: "mean", Label: "Fill with the column mean", Tradeoff: "pulls the distribution toward its center", Transformation: models.TransformFillMean},
			{Key: "median", Label: "Fill with the column median", Tradeoff: "hides skew in the original values", Transformation: models.TransformFillMedian},
			{Key: "zero", Label: "Fill with the constant 0", Tradeoff: "distorts aggregates when 0 is not a neutral value", Transformation: models.TransformFillConstant, FillValue: "0"},
			{Key: "drop", Label: "Drop rows with a missing value", Tradeoff: fmt.Sprintf("loses %d rows", detail.MissingCount), Transformation: models.TransformRemoveRow},
		}
		recommended = "mean"
	} else {
		options = []models.HITLOption{
			{Key: "mode", Label: "Fill with the most common value", Tradeoff: "inflates the majority category", Transformation: models.TransformFillMode},
			{Key: "unknown", Label: "Fill with the constant \"unknown\"", Tradeoff: "introduces a synthetic category", Transformation: models.TransformFillConstant, FillValue: "unknown"},
			{Key: "drop", Label: "Drop rows with a missing value", Tradeoff: fmt.Sprintf("loses %d rows", detail.MissingCount), Transformation: models.TransformRemoveRow},
		}
		recommended = "mode"
	}

	return &models.HITLQuestion{
		ID:     uuid.New(),
		RuleID: rule.ID,
		Kind:   models.QuestionKindMultipleChoice,
		Text: fmt.Sprintf("Column '%s' has %d missing values (%.1f%% of sampled rows). How should they be filled?",
			rule.PrimaryColumn(), detail.MissingCount, detail.MissingRatio*100),
		Evidence: models.QuestionEvidence{
			MatchCount:      rule.MatchCount,
			AffectedPercent: rule.AffectedPercent,
		},
		Options:        options,
		RecommendedKey: recommended,
		Status:         models.QuestionStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// questionForOutliers asks how to treat values outside the quartile fence.
// Only severe outlier rules reach this point; mild ones auto-resolve to
// clamping.
func questionForOutliers(rule *models.PreprocessingRule) *models.HITLQuestion {
	detail := rule.Detail.Outlier
	if detail == nil {
		return nil
	}

	options := []models.HITLOption{
		{Key: "clamp", Label: fmt.Sprintf("Clamp values into [%.2f, %.2f]", detail.LowerBound, detail.UpperBound), Tradeoff: "compresses genuine extremes onto the fence", Transformation: models.TransformClampToBound},
		{Key: "remove", Label: "Drop rows with an out-of-range value", Tradeoff: fmt.Sprintf("loses %d rows", rule.MatchCount), Transformation: models.TransformRemoveRow},
		{Key: "keep", Label: "Keep values as they are", Tradeoff: "outliers continue to skew aggregates", Transformation: models.TransformKeepAsIs},
	}

	return &models.HITLQuestion{
		ID:     uuid.New(),
		RuleID: rule.ID,
		Kind:   models.QuestionKindMultipleChoice,
		Text: fmt.Sprintf("Column '%s' has %d values outside [%.2f, %.2f] (%.1f%% of sampled rows). How should out-of-range values be handled?",
			rule.PrimaryColumn(), rule.MatchCount, detail.LowerBound, detail.UpperBound, detail.OutOfBoundPct),
		Evidence: models.QuestionEvidence{
			MatchCount:      rule.MatchCount,
			AffectedPercent: rule.AffectedPercent,
		},
		Options:        options,
		RecommendedKey: "clamp",
		Status:         models.QuestionStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// questionForCategoryDrift asks whether values absent from earlier samples
// are legitimate. Yes keeps them; no folds them into "other".
func questionForCategoryDrift(rule *models.PreprocessingRule) *models.HITLQuestion {
	detail := rule.Detail.Drift
	if detail == nil {
		return nil
	}

	options := []models.HITLOption{
		{Key: "yes", Label: "Yes, keep them as valid categories", Transformation: models.TransformKeepAsIs},
		{Key: "no", Label: "No, map them to \"other\"", Tradeoff: "merges distinct values into one bucket", Transformation: models.TransformMapToOther, FillValue: "other"},
	}

	return &models.HITLQuestion{
		ID:     uuid.New(),
		RuleID: rule.ID,
		Kind:   models.QuestionKindYesNo,
		Text: fmt.Sprintf("Column '%s' has values not seen in earlier samples: %s. Known values: %s. Are the new values legitimate categories?",
			rule.PrimaryColumn(), formatValuesList(detail.NewValues), formatValuesList(detail.KnownValues)),
		Evidence: models.QuestionEvidence{
			MatchCount:      rule.MatchCount,
			AffectedPercent: rule.AffectedPercent,
			SampleValues:    detail.NewValues,
		},
		Options:        options,
		RecommendedKey: "yes",
		Status:         models.QuestionStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// confirmationQuestion is the final gate shown before the bulk stage runs
// against the full dataset. It references no rule.
func confirmationQuestion(datasetName string, approvedRules int, totalRows int64) *models.HITLQuestion {
	return &models.HITLQuestion{
		ID:   uuid.New(),
		Kind: models.QuestionKindYesNo,
		Text: fmt.Sprintf("Apply %d approved rules to all %d rows of '%s'?",
			approvedRules, totalRows, datasetName),
		Options: []models.HITLOption{
			{Key: "yes", Label: "Yes, run the bulk stage"},
			{Key: "no", Label: "No, stop before bulk processing"},
		},
		RecommendedKey: "yes",
		Status:         models.QuestionStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// formatValuesList formats a list of values for display in a question.
func formatValuesList(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}

	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("'%s'", v)
	}

	if len(quoted) <= 5 {
		return strings.Join(quoted, ", ")
	}

	// Truncate long lists
	return strings.Join(quoted[:5], ", ") + fmt.Sprintf(" (and %d more)", len(quoted)-5)
}
