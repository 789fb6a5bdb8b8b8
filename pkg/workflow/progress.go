package workflow

import (
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// ProgressSink receives run progress as it happens. Implementations must
// not block: the orchestrator calls them from the run goroutine.
type ProgressSink interface {
	// PhaseChanged fires on every phase transition.
	PhaseChanged(phase models.RunPhase)

	// StageCompleted fires after each metered sampling stage.
	StageCompleted(result models.StageResult)
}

// NopProgress discards all progress events.
type NopProgress struct{}

func (NopProgress) PhaseChanged(models.RunPhase)      {}
func (NopProgress) StageCompleted(models.StageResult) {}

var _ ProgressSink = NopProgress{}

// LogProgress reports progress through the run's logger.
type LogProgress struct {
	logger *zap.Logger
}

// NewLogProgress creates a progress sink that logs transitions and stage
// outcomes.
func NewLogProgress(logger *zap.Logger) *LogProgress {
	return &LogProgress{logger: logger.Named("progress")}
}

func (p *LogProgress) PhaseChanged(phase models.RunPhase) {
	p.logger.Info("Phase changed", zap.String("phase", string(phase)))
}

func (p *LogProgress) StageCompleted(result models.StageResult) {
	p.logger.Info("Stage completed",
		zap.Int("stage", result.Stage),
		zap.Int("sample_size", result.SampleSize),
		zap.Int("new_rules", result.NewRules),
		zap.Int("validated_rules", result.ValidatedRules),
		zap.Float64("avg_confidence", result.AvgConfidence),
		zap.Bool("hitl_required", result.HITLRequired),
		zap.Duration("duration", result.Duration))
}

var _ ProgressSink = (*LogProgress)(nil)
