package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Question Kind and Status
// ============================================================================

// QuestionKind distinguishes the two shapes of human-in-the-loop question.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "multiple_choice"
	QuestionKindYesNo          QuestionKind = "yes_no"
)

// QuestionStatus tracks a question through the pending queue.
type QuestionStatus string

const (
	QuestionStatusPending  QuestionStatus = "pending"
	QuestionStatusAnswered QuestionStatus = "answered"
	QuestionStatusSkipped  QuestionStatus = "skipped"
)

// ============================================================================
// Question Model
// ============================================================================

// QuestionEvidence is the sample-derived support shown alongside a question
// so the reviewer can judge without re-running anything.
type QuestionEvidence struct {
	MatchCount      int64    `json:"match_count"`
	AffectedPercent float64  `json:"affected_percent"`
	SampleValues    []string `json:"sample_values,omitempty"`
}

// HITLOption is one selectable resolution for a multiple-choice question.
// Tradeoff states the cost of picking it, not a justification for it.
// FillValue carries the constant for fill/map transformations that need one.
type HITLOption struct {
	Key            string         `json:"key"`
	Label          string         `json:"label"`
	Tradeoff       string         `json:"tradeoff,omitempty"`
	Transformation Transformation `json:"transformation"`
	FillValue      string         `json:"fill_value,omitempty"`
}

// HITLQuestion asks a human to resolve one discovered rule. Questions are
// generated deterministically from rule evidence; answering one mutates
// exactly the rule it references.
type HITLQuestion struct {
	ID             uuid.UUID        `json:"id"`
	RuleID         string           `json:"rule_id"`
	Kind           QuestionKind     `json:"kind"`
	Text           string           `json:"text"`
	Evidence       QuestionEvidence `json:"evidence"`
	Options        []HITLOption     `json:"options,omitempty"`
	RecommendedKey string           `json:"recommended_key,omitempty"`
	Status         QuestionStatus   `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
}

// OptionByKey returns the option with the given key.
func (q *HITLQuestion) OptionByKey(key string) (*HITLOption, bool) {
	for i := range q.Options {
		if q.Options[i].Key == key {
			return &q.Options[i], true
		}
	}
	return nil, false
}

// RecommendedOption returns the option the generator suggested as default,
// or nil when the question has no recommendation.
func (q *HITLQuestion) RecommendedOption() *HITLOption {
	if q.RecommendedKey == "" {
		return nil
	}
	opt, ok := q.OptionByKey(q.RecommendedKey)
	if !ok {
		return nil
	}
	return opt
}

// IsPending returns true if the question is awaiting an answer.
func (q *HITLQuestion) IsPending() bool {
	return q.Status == QuestionStatusPending
}

// ============================================================================
// Answers and Decisions
// ============================================================================

// HITLAnswer is the single response to a question. For multiple-choice
// questions SelectedKey names the chosen option; for yes/no questions
// Approved carries the verdict.
type HITLAnswer struct {
	QuestionID  uuid.UUID `json:"question_id"`
	SelectedKey string    `json:"selected_key,omitempty"`
	Approved    *bool     `json:"approved,omitempty"`
	AnsweredBy  string    `json:"answered_by"`
}

// HITLDecision is the immutable pairing of a question and its answer.
// Decisions are appended to the log before the question leaves the pending
// set and are never edited afterwards.
type HITLDecision struct {
	ID        uuid.UUID    `json:"id"`
	RuleID    string       `json:"rule_id"`
	Question  HITLQuestion `json:"question"`
	Answer    HITLAnswer   `json:"answer"`
	DecidedAt time.Time    `json:"decided_at"`
}

// NewDecision builds the immutable record for an answered question.
func NewDecision(q HITLQuestion, a HITLAnswer) HITLDecision {
	return HITLDecision{
		ID:        uuid.New(),
		RuleID:    q.RuleID,
		Question:  q,
		Answer:    a,
		DecidedAt: time.Now().UTC(),
	}
}
