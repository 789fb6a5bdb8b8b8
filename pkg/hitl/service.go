// Package hitl generates human-in-the-loop questions for discovered rules,
// collects answers through pluggable ports, and keeps the immutable decision
// log that authorizes rule approval.
package hitl

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// SkipKey is the reserved answer key that defers a question without
// resolving its rule. Skipped rules stay unapproved and keep gating the
// bulk stage.
const SkipKey = "skip"

// HITLWorkflowService owns the question queue and decision log for one run.
type HITLWorkflowService interface {
	// GenerateQuestions creates questions for rules that require a human
	// decision and don't have one yet. Returns only the newly created
	// questions, in discovery order.
	GenerateQuestions(rules []*models.PreprocessingRule) []*models.HITLQuestion

	// PendingQuestions returns questions still awaiting an answer.
	PendingQuestions() []*models.HITLQuestion

	// UnresolvedQuestions returns questions whose rule never got approved:
	// pending ones plus explicitly skipped ones.
	UnresolvedQuestions() []*models.HITLQuestion

	// ApplyAnswer records the exchange in the decision log and then approves
	// the referenced rule with the selected option's transformation. The
	// decision is appended before the question leaves the pending set.
	ApplyAnswer(question *models.HITLQuestion, answer *models.HITLAnswer, rule *models.PreprocessingRule) (*models.HITLDecision, error)

	// ResolvePending asks the port each pending question in order and applies
	// the answers. Returns the decisions recorded; on error the decisions
	// collected up to that point are preserved and returned.
	ResolvePending(ctx context.Context, port AnswerPort, ruleByID func(id string) (*models.PreprocessingRule, bool)) ([]*models.HITLDecision, error)

	// Decisions returns the decision log in the order exchanges happened.
	Decisions() []*models.HITLDecision

	// ConfirmBulk asks the final confirmation question before the bulk stage
	// when configured. Without a port, or with confirmation disabled, the
	// bulk stage proceeds unconfirmed.
	ConfirmBulk(ctx context.Context, port AnswerPort, datasetName string, approvedRules int, totalRows int64) (bool, error)
}

type hitlWorkflowService struct {
	cfg    *config.HITLConfig
	logger *zap.Logger

	questions []*models.HITLQuestion
	byRule    map[string]*models.HITLQuestion
	decisions []*models.HITLDecision
}

// NewHITLWorkflowService creates a HITL workflow service for a single run.
func NewHITLWorkflowService(cfg *config.HITLConfig, logger *zap.Logger) HITLWorkflowService {
	return &hitlWorkflowService{
		cfg:    cfg,
		logger: logger.Named("hitl"),
		byRule: make(map[string]*models.HITLQuestion),
	}
}

var _ HITLWorkflowService = (*hitlWorkflowService)(nil)

func (s *hitlWorkflowService) GenerateQuestions(rules []*models.PreprocessingRule) []*models.HITLQuestion {
	var created []*models.HITLQuestion

	for _, rule := range rules {
		if !rule.RequiresHITL || rule.IsApproved {
			continue
		}
		if _, exists := s.byRule[rule.ID]; exists {
			continue
		}

		q := buildQuestion(rule)
		if q == nil {
			continue
		}

		s.questions = append(s.questions, q)
		s.byRule[rule.ID] = q
		created = append(created, q)
	}

	if len(created) > 0 {
		s.logger.Info("Generated HITL questions",
			zap.Int("count", len(created)),
			zap.Int("pending_total", len(s.PendingQuestions())))
	}
	return created
}

func (s *hitlWorkflowService) PendingQuestions() []*models.HITLQuestion {
	var pending []*models.HITLQuestion
	for _, q := range s.questions {
		if q.IsPending() {
			pending = append(pending, q)
		}
	}
	return pending
}

func (s *hitlWorkflowService) UnresolvedQuestions() []*models.HITLQuestion {
	var unresolved []*models.HITLQuestion
	for _, q := range s.questions {
		if q.Status != models.QuestionStatusAnswered {
			unresolved = append(unresolved, q)
		}
	}
	return unresolved
}

func (s *hitlWorkflowService) ApplyAnswer(question *models.HITLQuestion, answer *models.HITLAnswer, rule *models.PreprocessingRule) (*models.HITLDecision, error) {
	if !question.IsPending() {
		return nil, fmt.Errorf("question %s is not pending (status %s)", question.ID, question.Status)
	}
	if rule == nil || rule.ID != question.RuleID {
		return nil, fmt.Errorf("answer for question %s references rule %q: %w", question.ID, question.RuleID, apperrors.ErrNotFound)
	}

	key := selectedKey(question, answer)

	if key == SkipKey {
		decision := models.NewDecision(*question, *answer)
		s.decisions = append(s.decisions, &decision)
		question.Status = models.QuestionStatusSkipped

		s.logger.Info("Question skipped",
			zap.String("rule_id", rule.ID),
			zap.String("question_id", question.ID.String()))
		return &decision, nil
	}

	option, ok := question.OptionByKey(key)
	if !ok {
		return nil, fmt.Errorf("question %s has no option %q", question.ID, key)
	}

	answeredBy := answer.AnsweredBy
	if answeredBy == "" {
		answeredBy = s.cfg.AnsweredBy
	}

	// Log the exchange first; approval is only valid once recorded.
	decision := models.NewDecision(*question, *answer)
	s.decisions = append(s.decisions, &decision)

	rule.Approve(option.Transformation, answeredBy)
	if option.FillValue != "" {
		rule.FillValue = option.FillValue
	}
	question.Status = models.QuestionStatusAnswered

	s.logger.Info("Rule approved by decision",
		zap.String("rule_id", rule.ID),
		zap.String("transformation", string(option.Transformation)),
		zap.String("answered_by", answeredBy))
	return &decision, nil
}

func (s *hitlWorkflowService) ResolvePending(ctx context.Context, port AnswerPort, ruleByID func(id string) (*models.PreprocessingRule, bool)) ([]*models.HITLDecision, error) {
	if port == nil {
		return nil, apperrors.ErrNoAnswerPort
	}

	var resolved []*models.HITLDecision
	for _, question := range s.PendingQuestions() {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}

		answer, err := port.Ask(ctx, question)
		if err != nil {
			return resolved, fmt.Errorf("answer port: %w", err)
		}

		rule, ok := ruleByID(question.RuleID)
		if !ok {
			return resolved, fmt.Errorf("question %s references rule %q: %w", question.ID, question.RuleID, apperrors.ErrNotFound)
		}

		decision, err := s.ApplyAnswer(question, answer, rule)
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, decision)
	}
	return resolved, nil
}

func (s *hitlWorkflowService) Decisions() []*models.HITLDecision {
	out := make([]*models.HITLDecision, len(s.decisions))
	copy(out, s.decisions)
	return out
}

func (s *hitlWorkflowService) ConfirmBulk(ctx context.Context, port AnswerPort, datasetName string, approvedRules int, totalRows int64) (bool, error) {
	if !s.cfg.ConfirmBeforeBulk {
		return true, nil
	}
	if port == nil {
		s.logger.Debug("No answer port; proceeding to bulk stage without confirmation")
		return true, nil
	}

	question := confirmationQuestion(datasetName, approvedRules, totalRows)

	answer, err := port.Ask(ctx, question)
	if err != nil {
		return false, fmt.Errorf("bulk confirmation: %w", err)
	}

	key := selectedKey(question, answer)
	confirmed := key == "yes"

	decision := models.NewDecision(*question, *answer)
	s.decisions = append(s.decisions, &decision)
	if key == SkipKey {
		question.Status = models.QuestionStatusSkipped
	} else {
		question.Status = models.QuestionStatusAnswered
	}

	s.logger.Info("Bulk confirmation recorded",
		zap.Bool("confirmed", confirmed),
		zap.String("answered_by", answer.AnsweredBy))
	return confirmed, nil
}

// selectedKey resolves an answer to an option key. Yes/no questions may
// carry the verdict in Approved instead of SelectedKey.
func selectedKey(question *models.HITLQuestion, answer *models.HITLAnswer) string {
	if question.Kind == models.QuestionKindYesNo && answer.SelectedKey == "" && answer.Approved != nil {
		if *answer.Approved {
			return "yes"
		}
		return "no"
	}
	return answer.SelectedKey
}
