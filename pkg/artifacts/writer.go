// Package artifacts writes a run's deliverables to the output directory:
// the rule ledger, the decision log, the convergence report, a human
// readable summary, and the cleaned dataset when the bulk stage ran.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
	"github.com/prepflow-inc/prepflow-engine/pkg/workflow"
)

// File names written into the output directory.
const (
	RulesFile       = "preprocessing_rules.json"
	DecisionsFile   = "hitl_decisions.json"
	ConvergenceFile = "convergence_report.json"
	SummaryFile     = "processing_summary.txt"
	CleanedFile     = "cleaned_dataset.csv"
)

// decisionLog is the envelope written to DecisionsFile. Pending questions
// ride along so a resting run's outstanding decisions survive the process.
type decisionLog struct {
	Decisions        []models.HITLDecision `json:"decisions"`
	PendingQuestions []models.HITLQuestion `json:"pending_questions,omitempty"`
}

// Writer persists run artifacts into a single directory. Every terminal
// phase gets artifacts; only a completed bulk stage gets the cleaned CSV.
type Writer struct {
	dir    string
	logger *zap.Logger
}

var _ workflow.ArtifactWriter = (*Writer)(nil)

// NewWriter creates an artifact writer rooted at dir. The directory is
// created on first write.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{dir: dir, logger: logger.Named("artifacts")}
}

// WriteAll writes the artifact set for one finished run and stamps the
// result with the output location and summary text.
func (w *Writer) WriteAll(result *models.WorkflowResult, cleaned *dataset.Table) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", w.dir, err)
	}

	result.OutputPath = w.dir
	result.Summary = Summarize(result)

	rules := result.Rules
	if rules == nil {
		rules = []*models.PreprocessingRule{}
	}
	if err := w.writeJSON(RulesFile, rules); err != nil {
		return err
	}

	log := decisionLog{
		Decisions:        result.Decisions,
		PendingQuestions: result.PendingQuestions,
	}
	if log.Decisions == nil {
		log.Decisions = []models.HITLDecision{}
	}
	if err := w.writeJSON(DecisionsFile, log); err != nil {
		return err
	}

	if result.Convergence != nil {
		if err := w.writeJSON(ConvergenceFile, result.Convergence); err != nil {
			return err
		}
	}

	summaryPath := filepath.Join(w.dir, SummaryFile)
	if err := os.WriteFile(summaryPath, []byte(result.Summary), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", SummaryFile, err)
	}

	if cleaned != nil {
		if err := dataset.SaveCSV(cleaned, filepath.Join(w.dir, CleanedFile)); err != nil {
			return fmt.Errorf("write %s: %w", CleanedFile, err)
		}
	}

	w.logger.Info("Run artifacts written",
		zap.String("dir", w.dir),
		zap.Int("rules", len(rules)),
		zap.Int("decisions", len(log.Decisions)),
		zap.Int("pending_questions", len(log.PendingQuestions)),
		zap.Bool("cleaned_dataset", cleaned != nil))
	return nil
}

func (w *Writer) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(w.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
