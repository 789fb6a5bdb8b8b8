package artifacts

import (
	"fmt"
	"strings"
	"time"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// Summarize renders the human-readable run narrative written to
// processing_summary.txt. It covers every terminal phase, not just
// successful completion.
func Summarize(result *models.WorkflowResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Preprocessing run %s\n", result.RunID)
	fmt.Fprintf(&b, "Phase: %s\n", result.Phase)
	fmt.Fprintf(&b, "Records: %d total", result.TotalRecords)
	if result.ProcessedRecords > 0 {
		fmt.Fprintf(&b, ", %d processed", result.ProcessedRecords)
	}
	b.WriteString("\n\n")

	writeStages(&b, result.Stages)
	writeRules(&b, result.Rules)
	writeDecisions(&b, result)
	writeConvergence(&b, result.Convergence)

	if n := len(result.Exceptions); n > 0 {
		fmt.Fprintf(&b, "Exceptions: %d %s no approved rule covered\n\n", n, pluralRows(n))
	}

	writeOutcome(&b, result)
	return b.String()
}

func writeStages(b *strings.Builder, stages []models.StageResult) {
	if len(stages) == 0 {
		b.WriteString("Stages: none completed\n\n")
		return
	}

	b.WriteString("Stages:\n")
	for _, s := range stages {
		fmt.Fprintf(b, "  stage %d: %d rows sampled, %d new %s, %d validated, avg confidence %.3f (%s)\n",
			s.Stage, s.SampleSize, s.NewRules, pluralRules(s.NewRules), s.ValidatedRules,
			s.AvgConfidence, fmtDuration(s.Duration))
	}
	b.WriteString("\n")
}

func writeRules(b *strings.Builder, rules []*models.PreprocessingRule) {
	if len(rules) == 0 {
		b.WriteString("Rules: none discovered\n\n")
		return
	}

	approved := 0
	for _, r := range rules {
		if r.IsApproved {
			approved++
		}
	}
	fmt.Fprintf(b, "Rules (%d discovered, %d approved):\n", len(rules), approved)

	for _, r := range rules {
		fmt.Fprintf(b, "  [%s] %s - ", r.Kind, strings.Join(r.Columns, ", "))
		switch {
		case r.IsApproved:
			fmt.Fprintf(b, "approved: %s by %s", r.Transformation, r.ApprovedBy)
		case r.RequiresHITL:
			b.WriteString("awaiting decision")
		default:
			b.WriteString("not approved")
		}
		fmt.Fprintf(b, " (confidence %.3f, %d matches, %.1f%% affected)\n",
			r.Confidence, r.MatchCount, r.AffectedPercent)
	}
	b.WriteString("\n")
}

func writeDecisions(b *strings.Builder, result *models.WorkflowResult) {
	if len(result.Decisions) > 0 {
		fmt.Fprintf(b, "Decisions (%d):\n", len(result.Decisions))
		for _, d := range result.Decisions {
			target := d.RuleID
			if target == "" {
				target = "bulk confirmation"
			}
			fmt.Fprintf(b, "  %s: %s by %s at %s\n",
				target, answerText(d.Answer), d.Answer.AnsweredBy,
				d.DecidedAt.Format("2006-01-02 15:04:05 MST"))
		}
		b.WriteString("\n")
	}

	if len(result.PendingQuestions) > 0 {
		fmt.Fprintf(b, "Outstanding questions (%d):\n", len(result.PendingQuestions))
		for _, q := range result.PendingQuestions {
			fmt.Fprintf(b, "  %s [%s]: %s\n", q.RuleID, q.Status, q.Text)
		}
		b.WriteString("\n")
	}
}

func writeConvergence(b *strings.Builder, report *models.ConvergenceReport) {
	if report == nil {
		return
	}
	fmt.Fprintf(b, "Convergence: overall confidence %.3f, %d sampled rows since last new rule, recommendation %s\n\n",
		report.OverallConfidence, report.SamplesSinceLastNewRule, report.Recommendation)
}

func writeOutcome(b *strings.Builder, result *models.WorkflowResult) {
	switch result.Phase {
	case models.RunPhaseCompleted:
		if result.Success {
			fmt.Fprintf(b, "Outcome: completed - cleaned dataset written to %s\n", CleanedFile)
		} else {
			fmt.Fprintf(b, "Outcome: completed with errors - %s\n", result.FailureReason)
		}
	case models.RunPhaseHaltedReview:
		fmt.Fprintf(b, "Outcome: halted for strategy review - %s\n", result.FailureReason)
	case models.RunPhaseHITLPending:
		fmt.Fprintf(b, "Outcome: resting with outstanding decisions - %s\n", result.FailureReason)
	case models.RunPhaseReadyForBulk:
		fmt.Fprintf(b, "Outcome: stopped before bulk application - %s\n", result.FailureReason)
	case models.RunPhaseCancelled:
		fmt.Fprintf(b, "Outcome: cancelled - %s\n", result.FailureReason)
	case models.RunPhaseFailed:
		fmt.Fprintf(b, "Outcome: failed - %s\n", result.FailureReason)
	default:
		fmt.Fprintf(b, "Outcome: ended at %s\n", result.Phase)
	}
}

func answerText(a models.HITLAnswer) string {
	if a.SelectedKey != "" {
		return fmt.Sprintf("answered %q", a.SelectedKey)
	}
	if a.Approved != nil {
		if *a.Approved {
			return "approved"
		}
		return "rejected"
	}
	return "answered"
}

func pluralRules(n int) string {
	if n == 1 {
		return "rule"
	}
	return "rules"
}

func pluralRows(n int) string {
	if n == 1 {
		return "row"
	}
	return "rows"
}

// fmtDuration rounds a stage duration to a readable precision.
func fmtDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.Round(time.Microsecond).String()
	}
}
