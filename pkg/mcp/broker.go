package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/hitl"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// QuestionBroker bridges the workflow's blocking question loop to MCP
// clients. Ask parks each question in a pending set until a client answers
// it through the answer_question tool; the waiting Ask then returns. One
// broker serves one run.
type QuestionBroker struct {
	logger *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingQuestion
	order   []uuid.UUID
}

type pendingQuestion struct {
	question *models.HITLQuestion
	answerCh chan models.HITLAnswer
}

// NewQuestionBroker creates an empty broker.
func NewQuestionBroker(logger *zap.Logger) *QuestionBroker {
	return &QuestionBroker{
		logger:  logger.Named("question-broker"),
		pending: make(map[uuid.UUID]*pendingQuestion),
	}
}

// Ensure QuestionBroker implements hitl.AnswerPort at compile time.
var _ hitl.AnswerPort = (*QuestionBroker)(nil)

// Ask implements hitl.AnswerPort. It blocks until a client resolves the
// question or ctx is cancelled. A question resolved after cancellation is
// dropped; the run no longer wants it.
func (b *QuestionBroker) Ask(ctx context.Context, question *models.HITLQuestion) (*models.HITLAnswer, error) {
	entry := &pendingQuestion{
		question: question,
		answerCh: make(chan models.HITLAnswer, 1),
	}

	b.mu.Lock()
	b.pending[question.ID] = entry
	b.order = append(b.order, question.ID)
	b.mu.Unlock()
	defer b.remove(question.ID)

	b.logger.Info("Question pending",
		zap.String("question_id", question.ID.String()),
		zap.String("rule_id", question.RuleID))

	select {
	case answer := <-entry.answerCh:
		return &answer, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the questions awaiting an answer, oldest first.
func (b *QuestionBroker) Pending() []*models.HITLQuestion {
	b.mu.Lock()
	defer b.mu.Unlock()

	questions := make([]*models.HITLQuestion, 0, len(b.order))
	for _, id := range b.order {
		if entry, ok := b.pending[id]; ok {
			questions = append(questions, entry.question)
		}
	}
	return questions
}

// Resolve answers a pending question with the given option key. The input
// accepts everything the console accepts: an option key, a 1-based option
// number, y/n shorthand, or "skip". Exactly one resolution wins; the entry
// leaves the pending set before the answer is delivered, so a second
// Resolve for the same question reports not-found.
func (b *QuestionBroker) Resolve(questionID uuid.UUID, input, answeredBy string) (*models.HITLAnswer, error) {
	b.mu.Lock()
	entry, ok := b.pending[questionID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("question %s: %w", questionID, apperrors.ErrNotFound)
	}

	key, ok := hitl.ResolveInput(entry.question, input)
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("unrecognized choice %q for question %s", input, questionID)
	}

	b.removeLocked(questionID)
	b.mu.Unlock()

	answer := hitl.BuildAnswer(entry.question, key, answeredBy)
	entry.answerCh <- *answer

	b.logger.Info("Question resolved",
		zap.String("question_id", questionID.String()),
		zap.String("selected_key", key),
		zap.String("answered_by", answeredBy))
	return answer, nil
}

// remove drops a question from the pending set. Safe to call twice; Ask
// always removes on return and Resolve removes before delivering.
func (b *QuestionBroker) remove(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *QuestionBroker) removeLocked(id uuid.UUID) {
	if _, ok := b.pending[id]; !ok {
		return
	}
	delete(b.pending, id)
	for i, pending := range b.order {
		if pending == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
