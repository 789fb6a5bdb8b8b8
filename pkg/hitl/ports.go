package hitl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// AnswerPort obtains the answer for a single pending question. Every
// implementation is strictly one request, one response; no port holds
// conversation state across questions.
type AnswerPort interface {
	Ask(ctx context.Context, question *models.HITLQuestion) (*models.HITLAnswer, error)
}

// ============================================================================
// Console Port
// ============================================================================

// ConsolePort prompts for answers on a reader/writer pair, stdin/stdout in
// practice. An empty input selects the recommended option; "skip" defers the
// question without resolving the rule.
type ConsolePort struct {
	in         *bufio.Scanner
	out        io.Writer
	answeredBy string
}

// NewConsolePort creates a console port. answeredBy is recorded on every
// answer, e.g. the operator name from configuration.
func NewConsolePort(in io.Reader, out io.Writer, answeredBy string) *ConsolePort {
	return &ConsolePort{
		in:         bufio.NewScanner(in),
		out:        out,
		answeredBy: answeredBy,
	}
}

// Ask implements AnswerPort.
func (p *ConsolePort) Ask(ctx context.Context, question *models.HITLQuestion) (*models.HITLAnswer, error) {
	fmt.Fprintf(p.out, "\n%s\n", question.Text)
	if question.Evidence.MatchCount > 0 {
		fmt.Fprintf(p.out, "  evidence: %d matches, %.1f%% of sampled rows\n",
			question.Evidence.MatchCount, question.Evidence.AffectedPercent)
	}
	for i, opt := range question.Options {
		marker := " "
		if opt.Key == question.RecommendedKey {
			marker = "*"
		}
		if opt.Tradeoff != "" {
			fmt.Fprintf(p.out, " %s [%d] %s (%s) - %s\n", marker, i+1, opt.Label, opt.Key, opt.Tradeoff)
		} else {
			fmt.Fprintf(p.out, " %s [%d] %s (%s)\n", marker, i+1, opt.Label, opt.Key)
		}
	}

	for {
		fmt.Fprintf(p.out, "choice [%s]: ", question.RecommendedKey)

		line, err := p.readLine(ctx)
		if err != nil {
			return nil, err
		}

		key, ok := ResolveInput(question, line)
		if !ok {
			fmt.Fprintf(p.out, "unrecognized choice %q\n", line)
			continue
		}

		return BuildAnswer(question, key, p.answeredBy), nil
	}
}

// readLine reads one trimmed line, honoring context cancellation. Scan
// itself cannot be interrupted; on cancel the reading goroutine is abandoned
// and its result discarded.
func (p *ConsolePort) readLine(ctx context.Context) (string, error) {
	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		if p.in.Scan() {
			lineCh <- strings.TrimSpace(p.in.Text())
			return
		}
		if err := p.in.Err(); err != nil {
			errCh <- err
			return
		}
		errCh <- io.EOF
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", err
	case line := <-lineCh:
		return line, nil
	}
}

// ResolveInput maps raw operator input to an option key. Accepts the option
// key, its 1-based number, y/n shorthand for yes/no questions, "skip", and
// empty input for the recommended default. Shared by every port that takes
// free-form input.
func ResolveInput(question *models.HITLQuestion, line string) (string, bool) {
	lower := strings.ToLower(line)

	if lower == "" {
		if question.RecommendedKey == "" {
			return "", false
		}
		return question.RecommendedKey, true
	}
	if lower == SkipKey || lower == "s" {
		return SkipKey, true
	}

	if question.Kind == models.QuestionKindYesNo {
		switch lower {
		case "y", "yes":
			return "yes", true
		case "n", "no":
			return "no", true
		}
	}

	if _, ok := question.OptionByKey(lower); ok {
		return lower, true
	}

	if n, err := strconv.Atoi(lower); err == nil && n >= 1 && n <= len(question.Options) {
		return question.Options[n-1].Key, true
	}

	return "", false
}

// BuildAnswer constructs the answer for a resolved option key. For yes/no
// questions the Approved verdict is derived from the key unless the
// question was skipped.
func BuildAnswer(question *models.HITLQuestion, key, answeredBy string) *models.HITLAnswer {
	answer := &models.HITLAnswer{
		QuestionID:  question.ID,
		SelectedKey: key,
		AnsweredBy:  answeredBy,
	}
	if question.Kind == models.QuestionKindYesNo && key != SkipKey {
		approved := key == "yes"
		answer.Approved = &approved
	}
	return answer
}

// Ensure ConsolePort implements AnswerPort at compile time.
var _ AnswerPort = (*ConsolePort)(nil)

// ============================================================================
// Auto-Default Port
// ============================================================================

// AutoDefaultPort answers every question with its recommended option. Used
// for unattended runs where the generated defaults are acceptable.
type AutoDefaultPort struct{}

// NewAutoDefaultPort creates an auto-default port.
func NewAutoDefaultPort() *AutoDefaultPort {
	return &AutoDefaultPort{}
}

// Ask implements AnswerPort.
func (p *AutoDefaultPort) Ask(_ context.Context, question *models.HITLQuestion) (*models.HITLAnswer, error) {
	if question.RecommendedKey == "" {
		return nil, fmt.Errorf("question %s has no recommended option", question.ID)
	}
	return BuildAnswer(question, question.RecommendedKey, "auto-default"), nil
}

// Ensure AutoDefaultPort implements AnswerPort at compile time.
var _ AnswerPort = (*AutoDefaultPort)(nil)
