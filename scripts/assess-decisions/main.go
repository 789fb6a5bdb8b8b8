// assess-decisions evaluates the quality of a finished run's rule decisions.
//
// Goal: Rate how defensible the preprocessing decisions in an artifacts
// directory are: did the chosen transformations fit the evidence, were the
// right rules gated on a human, and is the run actually ready for bulk
// application.
//
// A score of 100 means:
//   - Every selected transformation is consistent with the rule's evidence
//   - Nothing destructive was auto-resolved that deserved review
//   - No pending questions or unapproved rules remain
//
// Key factors that reduce the score:
//   - Fills or row drops that contradict the observed distribution
//   - Auto-resolved rules with thin evidence
//   - Questions skipped or still pending at the end of the run
//
// Usage: go run ./scripts/assess-decisions <artifacts-dir>
//
// Requires: ANTHROPIC_API_KEY environment variable
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/prepflow-inc/prepflow-engine/pkg/artifacts"
	"github.com/prepflow-inc/prepflow-engine/pkg/hitl"
	"github.com/prepflow-inc/prepflow-engine/pkg/jsonutil"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

const judgeModel = "claude-sonnet-4-5-20250929"

// AssessmentResult contains the full assessment output
type AssessmentResult struct {
	CommitInfo        string            `json:"commit_info"`
	ArtifactsDir      string            `json:"artifacts_dir"`
	ModelUsed         string            `json:"model_used"`
	DecisionMetrics   DecisionMetrics   `json:"decision_metrics"`
	DecisionSoundness DecisionSoundness `json:"decision_soundness"`
	RuleCoverage      RuleCoverage      `json:"rule_coverage"`
	BulkReadiness     BulkReadiness     `json:"bulk_readiness"`
	FinalScore        int               `json:"final_score"`
	FinalAssessment   string            `json:"final_assessment"`
}

// DecisionMetrics contains deterministic counts derived from the decision log
type DecisionMetrics struct {
	TotalDecisions     int     `json:"total_decisions"`
	Approved           int     `json:"approved"`
	Declined           int     `json:"declined"`
	Skipped            int     `json:"skipped"`
	HumanResolved      int     `json:"human_resolved"`
	AutoResolved       int     `json:"auto_resolved"`
	AssistResolved     int     `json:"assist_resolved"`
	PendingQuestions   int     `json:"pending_questions"`
	AvgDecisionSeconds float64 `json:"avg_decision_seconds"`
}

// DecisionSoundness assesses whether the selected transformations fit the evidence
type DecisionSoundness struct {
	SoundDecisions        int             `json:"sound_decisions"`
	QuestionableDecisions int             `json:"questionable_decisions"`
	RiskyDecisions        []RiskyDecision `json:"risky_decisions"`       // Decisions with a plausible failure mode
	MissedAlternatives    []string        `json:"missed_alternatives"`   // Options that looked strictly better
	SoundnessScore        int             `json:"soundness_score"`       // 0-100
}

// RiskyDecision is a decision the judge would not have signed off on
type RiskyDecision struct {
	RuleID     string `json:"rule_id"`
	Selected   string `json:"selected"`
	Concern    string `json:"concern"`
	BetterPick string `json:"better_pick,omitempty"`
}

// RuleCoverage assesses the discovered rule set itself
type RuleCoverage struct {
	TotalRules     int      `json:"total_rules"`
	AutoResolved   int      `json:"auto_resolved"`
	HITLGated      int      `json:"hitl_gated"`
	OverAutomated  []string `json:"over_automated"`  // Rules auto-resolved that deserved a human
	UnderEvidenced []string `json:"under_evidenced"` // Rules whose evidence looks too thin to trust
	CoverageScore  int      `json:"coverage_score"`  // 0-100
}

// BulkReadiness is the core assessment - can this run's output be trusted at full scale?
type BulkReadiness struct {
	ReadinessLevel  string   `json:"readiness_level"` // ready|needs_review|blocked
	ReadinessScore  int      `json:"readiness_score"` // 0-100
	BlockingIssues  []string `json:"blocking_issues"`
	Recommendations []string `json:"recommendations"`
}

// decisionLog mirrors the envelope the artifact writer produces.
type decisionLog struct {
	Decisions        []models.HITLDecision `json:"decisions"`
	PendingQuestions []models.HITLQuestion `json:"pending_questions"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <artifacts-dir>\n", os.Args[0])
		os.Exit(1)
	}
	dir := os.Args[1]

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "ANTHROPIC_API_KEY environment variable required\n")
		os.Exit(1)
	}

	ctx := context.Background()

	rules, err := loadRules(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load rules: %v\n", err)
		os.Exit(1)
	}

	log, err := loadDecisionLog(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load decision log: %v\n", err)
		os.Exit(1)
	}

	convergence, err := loadConvergence(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load convergence report: %v\n", err)
		os.Exit(1)
	}

	metrics := calculateDecisionMetrics(log)

	client := anthropic.NewClient(apiKey)

	fmt.Fprintf(os.Stderr, "Assessing decision soundness...\n")
	soundness := assessDecisionSoundness(ctx, client, rules, log.Decisions)

	fmt.Fprintf(os.Stderr, "Assessing rule coverage...\n")
	coverage := assessRuleCoverage(ctx, client, rules)

	fmt.Fprintf(os.Stderr, "Assessing bulk readiness...\n")
	readiness := assessBulkReadiness(ctx, client, rules, log, convergence)

	// Calculate final score
	// Weights: Decision Soundness 45%, Rule Coverage 30%, Bulk Readiness 25%
	finalScore := int(
		float64(soundness.SoundnessScore)*0.45 +
			float64(coverage.CoverageScore)*0.30 +
			float64(readiness.ReadinessScore)*0.25,
	)

	finalAssessment := generateFinalAssessment(finalScore, rules, log)

	result := AssessmentResult{
		CommitInfo:        getCommitInfo(),
		ArtifactsDir:      dir,
		ModelUsed:         judgeModel,
		DecisionMetrics:   metrics,
		DecisionSoundness: soundness,
		RuleCoverage:      coverage,
		BulkReadiness:     readiness,
		FinalScore:        finalScore,
		FinalAssessment:   finalAssessment,
	}

	// Output JSON
	output, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(output))
}

func generateFinalAssessment(score int, rules []*models.PreprocessingRule, log decisionLog) string {
	var assessment string

	switch {
	case score >= 90:
		assessment = "EXCELLENT: Decisions are consistent with the evidence. The cleaned output can be trusted at full scale."
	case score >= 75:
		assessment = "GOOD: Decisions are mostly defensible with minor concerns. Spot-check the flagged rules before shipping the output."
	case score >= 60:
		assessment = "FAIR: Several decisions are questionable. Review the risky decisions before relying on the cleaned dataset."
	case score >= 40:
		assessment = "POOR: Significant problems in the decision log. The bulk output likely distorts the data."
	default:
		assessment = "INADEQUATE: The decisions contradict the evidence. Re-run the workflow with a human in the loop."
	}

	// Add specific context
	if n := len(log.PendingQuestions); n > 0 {
		assessment += fmt.Sprintf(" %d questions were still pending when the run ended.", n)
	}
	var unapproved int
	for _, r := range rules {
		if r.RequiresHITL && !r.IsApproved {
			unapproved++
		}
	}
	if unapproved > 0 {
		assessment += fmt.Sprintf(" %d rules have no approved transformation.", unapproved)
	}

	return assessment
}

func getCommitInfo() string {
	cmd := exec.Command("git", "describe", "--always", "--dirty")
	output, err := cmd.Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

func loadRules(dir string) ([]*models.PreprocessingRule, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifacts.RulesFile))
	if err != nil {
		return nil, err
	}
	var rules []*models.PreprocessingRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func loadDecisionLog(dir string) (decisionLog, error) {
	var log decisionLog
	data, err := os.ReadFile(filepath.Join(dir, artifacts.DecisionsFile))
	if err != nil {
		return log, err
	}
	if err := json.Unmarshal(data, &log); err != nil {
		return log, err
	}
	return log, nil
}

// loadConvergence tolerates a missing report; runs that failed before the
// metered stages finished never write one.
func loadConvergence(dir string) (*models.ConvergenceReport, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifacts.ConvergenceFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var report models.ConvergenceReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func calculateDecisionMetrics(log decisionLog) DecisionMetrics {
	metrics := DecisionMetrics{
		TotalDecisions:   len(log.Decisions),
		PendingQuestions: len(log.PendingQuestions),
	}

	var totalSeconds float64
	for _, d := range log.Decisions {
		switch {
		case d.Answer.SelectedKey == hitl.SkipKey:
			metrics.Skipped++
		case d.Answer.Approved != nil && !*d.Answer.Approved:
			metrics.Declined++
		default:
			metrics.Approved++
		}

		switch {
		case d.Answer.AnsweredBy == "auto-default":
			metrics.AutoResolved++
		case strings.HasPrefix(d.Answer.AnsweredBy, "assist:"):
			metrics.AssistResolved++
		default:
			metrics.HumanResolved++
		}

		if secs := d.DecidedAt.Sub(d.Question.CreatedAt).Seconds(); secs > 0 {
			totalSeconds += secs
		}
	}

	if metrics.TotalDecisions > 0 {
		metrics.AvgDecisionSeconds = totalSeconds / float64(metrics.TotalDecisions)
	}

	return metrics
}

func assessDecisionSoundness(ctx context.Context, client *anthropic.Client, rules []*models.PreprocessingRule, decisions []models.HITLDecision) DecisionSoundness {
	if len(decisions) == 0 {
		return DecisionSoundness{
			RiskyDecisions:     []RiskyDecision{},
			MissedAlternatives: []string{},
			SoundnessScore:     100, // Nothing to second-guess
		}
	}

	ruleByID := make(map[string]*models.PreprocessingRule)
	for _, r := range rules {
		ruleByID[r.ID] = r
	}

	var decisionsText strings.Builder
	for _, d := range decisions {
		decisionsText.WriteString(fmt.Sprintf("### %s\n", d.RuleID))
		decisionsText.WriteString(fmt.Sprintf("Question: %s\n", d.Question.Text))
		decisionsText.WriteString(fmt.Sprintf("Evidence: %d matches, %.1f%% of sampled rows\n",
			d.Question.Evidence.MatchCount, d.Question.Evidence.AffectedPercent))
		if len(d.Question.Evidence.SampleValues) > 0 {
			decisionsText.WriteString(fmt.Sprintf("Sample values: %s\n", strings.Join(d.Question.Evidence.SampleValues, ", ")))
		}
		if rule, ok := ruleByID[d.RuleID]; ok {
			decisionsText.WriteString(fmt.Sprintf("Rule detail: %s\n", formatRuleDetail(rule)))
		}
		decisionsText.WriteString(fmt.Sprintf("Selected: %s (by %s)\n", d.Answer.SelectedKey, d.Answer.AnsweredBy))
		for _, opt := range d.Question.Options {
			marker := ""
			if opt.Key == d.Answer.SelectedKey {
				marker = " [CHOSEN]"
			}
			decisionsText.WriteString(fmt.Sprintf("  - %s: %s%s\n", opt.Key, opt.Label, marker))
		}
		decisionsText.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are auditing data-cleaning decisions made during a preprocessing run.

Each decision selected one transformation for a discovered data-quality rule.
A "skip" selection means the rule was left without an approved transformation.

## DECISIONS WITH EVIDENCE
%s

## TASK
For each decision, judge whether the selected transformation fits the evidence.
Examples of unsound decisions: filling with the mean when sample values suggest
heavy skew, dropping rows when a third of the dataset is affected, keeping new
category values that are obvious typos of known ones.

Return JSON:
{
  "sound_decisions": <count>,
  "questionable_decisions": <count>,
  "risky_decisions": [
    {
      "rule_id": "missing:age",
      "selected": "mean",
      "concern": "Why this choice can distort the data",
      "better_pick": "median"
    }
  ],
  "missed_alternatives": ["Cases where an unchosen option was strictly safer"],
  "soundness_score": 0-100
}

Soundness scoring guide:
- 90-100: Every decision matches the evidence
- 70-89: Defensible overall, one or two debatable picks
- 50-69: Several decisions likely distort the data
- 30-49: Many decisions contradict the evidence
- 0-29: The decision log cannot be trusted

Return ONLY JSON.`, decisionsText.String())

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     judgeModel,
		MaxTokens: 3000,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})

	if err != nil {
		return DecisionSoundness{
			RiskyDecisions: []RiskyDecision{{RuleID: "error", Concern: err.Error()}},
			SoundnessScore: 50, // Default to moderate on error
		}
	}

	var result DecisionSoundness
	responseText := jsonutil.ExtractObject(extractTextFromResponse(resp))
	if err := json.Unmarshal([]byte(responseText), &result); err != nil {
		return DecisionSoundness{
			RiskyDecisions: []RiskyDecision{{RuleID: "error", Concern: fmt.Sprintf("Parse error: %v", err)}},
			SoundnessScore: 50,
		}
	}

	return result
}

func assessRuleCoverage(ctx context.Context, client *anthropic.Client, rules []*models.PreprocessingRule) RuleCoverage {
	var autoResolved, hitlGated int
	for _, r := range rules {
		if r.IsAutoResolvable {
			autoResolved++
		}
		if r.RequiresHITL {
			hitlGated++
		}
	}

	if len(rules) == 0 {
		return RuleCoverage{
			OverAutomated:  []string{},
			UnderEvidenced: []string{},
			CoverageScore:  100, // An empty rule set has nothing miscovered
		}
	}

	prompt := fmt.Sprintf(`You are auditing the rule set a sampling-based preprocessing engine discovered.

Auto-resolvable rules are applied without human review. HITL-gated rules wait
for a human decision. Confidence reflects how stable the rule's statistics
stayed across progressively larger samples.

## DISCOVERED RULES
%s

## TASK
Judge the rule set:
1. Was anything auto-resolved that a human should have seen (destructive
   transformations, high affected percentages, low confidence)?
2. Which rules rest on evidence too thin to trust (few matches, low
   confidence, single stage)?

Return JSON:
{
  "over_automated": ["rule ids auto-resolved that deserved review, with a short reason"],
  "under_evidenced": ["rule ids whose evidence looks too thin, with a short reason"],
  "coverage_score": 0-100
}

Coverage scoring guide:
- 90-100: Gating is right, every rule is well evidenced
- 70-89: Minor gaps, a borderline auto-resolution or two
- 50-69: Moderate gaps, some rules need stronger evidence
- 30-49: Significant gaps, automation is too aggressive
- 0-29: The rule set cannot be trusted as gated

Return ONLY JSON.`, formatRulesForPrompt(rules))

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     judgeModel,
		MaxTokens: 2000,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})

	if err != nil {
		return RuleCoverage{
			TotalRules:     len(rules),
			AutoResolved:   autoResolved,
			HITLGated:      hitlGated,
			UnderEvidenced: []string{fmt.Sprintf("Assessment failed: %v", err)},
			CoverageScore:  50,
		}
	}

	var result struct {
		OverAutomated  []string `json:"over_automated"`
		UnderEvidenced []string `json:"under_evidenced"`
		CoverageScore  int      `json:"coverage_score"`
	}

	responseText := jsonutil.ExtractObject(extractTextFromResponse(resp))
	if err := json.Unmarshal([]byte(responseText), &result); err != nil {
		return RuleCoverage{
			TotalRules:     len(rules),
			AutoResolved:   autoResolved,
			HITLGated:      hitlGated,
			UnderEvidenced: []string{fmt.Sprintf("Parse error: %v", err)},
			CoverageScore:  50,
		}
	}

	return RuleCoverage{
		TotalRules:     len(rules),
		AutoResolved:   autoResolved,
		HITLGated:      hitlGated,
		OverAutomated:  result.OverAutomated,
		UnderEvidenced: result.UnderEvidenced,
		CoverageScore:  result.CoverageScore,
	}
}

func assessBulkReadiness(ctx context.Context, client *anthropic.Client, rules []*models.PreprocessingRule, log decisionLog, convergence *models.ConvergenceReport) BulkReadiness {
	convergenceText := "Not generated - the run ended before the metered stages finished."
	if convergence != nil {
		convergenceText = fmt.Sprintf("Stable: %t, overall confidence: %.3f, samples since last new rule: %d, recommendation: %s",
			convergence.IsStable, convergence.OverallConfidence,
			convergence.SamplesSinceLastNewRule, convergence.Recommendation)
	}

	var unapproved []string
	for _, r := range rules {
		if r.RequiresHITL && !r.IsApproved {
			unapproved = append(unapproved, r.ID)
		}
	}

	prompt := fmt.Sprintf(`You are deciding whether a preprocessing run's output can be trusted at full scale.

## CONVERGENCE
%s

## RULE STATE
- Total rules: %d
- Rules without an approved transformation: %s
- Pending questions at end of run: %d
- Recorded decisions: %d

## RULES
%s

## TASK
Judge whether bulk application of these rules is safe.

Return JSON:
{
  "readiness_level": "ready|needs_review|blocked",
  "readiness_score": 0-100,
  "blocking_issues": ["What must be resolved before the output can be trusted"],
  "recommendations": ["What would most improve confidence in the output"]
}

Readiness scoring guide:
- 90-100: READY - converged, every gated rule decided
- 70-89: READY with caveats - minor loose ends
- 50-69: NEEDS REVIEW - unapproved rules or weak convergence
- 0-49: BLOCKED - output should not be used as-is

Return ONLY JSON.`,
		convergenceText, len(rules), formatIDList(unapproved),
		len(log.PendingQuestions), len(log.Decisions), formatRulesForPrompt(rules))

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     judgeModel,
		MaxTokens: 2000,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})

	if err != nil {
		return BulkReadiness{
			ReadinessLevel: "unknown",
			ReadinessScore: 50,
			BlockingIssues: []string{fmt.Sprintf("Assessment failed: %v", err)},
		}
	}

	var result BulkReadiness
	responseText := jsonutil.ExtractObject(extractTextFromResponse(resp))
	if err := json.Unmarshal([]byte(responseText), &result); err != nil {
		return BulkReadiness{
			ReadinessLevel: "unknown",
			ReadinessScore: 50,
			BlockingIssues: []string{fmt.Sprintf("Parse error: %v", err)},
		}
	}

	return result
}

func formatRulesForPrompt(rules []*models.PreprocessingRule) string {
	var b strings.Builder
	for _, r := range rules {
		gate := "auto"
		if r.RequiresHITL {
			gate = "hitl"
			if r.IsApproved {
				gate = "hitl, approved"
			}
		}
		transformation := string(r.Transformation)
		if transformation == "" {
			transformation = "(undecided)"
		}
		b.WriteString(fmt.Sprintf("### %s [%s, %s]\n", r.ID, r.Kind, gate))
		b.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(r.Columns, ", ")))
		b.WriteString(fmt.Sprintf("Matches: %d (%.1f%%), confidence: %.3f, first seen stage: %d\n",
			r.MatchCount, r.AffectedPercent, r.Confidence, r.FirstSeenStage))
		b.WriteString(fmt.Sprintf("Transformation: %s\n", transformation))
		if detail := formatRuleDetail(r); detail != "" {
			b.WriteString(fmt.Sprintf("Detail: %s\n", detail))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatRuleDetail(r *models.PreprocessingRule) string {
	switch {
	case r.Detail.Missing != nil:
		return fmt.Sprintf("missing %d cells (ratio %.3f), numeric: %t",
			r.Detail.Missing.MissingCount, r.Detail.Missing.MissingRatio, r.Detail.Missing.IsNumeric)
	case r.Detail.Outlier != nil:
		return fmt.Sprintf("bounds [%.2f, %.2f], out of bound %.1f%%",
			r.Detail.Outlier.LowerBound, r.Detail.Outlier.UpperBound, r.Detail.Outlier.OutOfBoundPct)
	case r.Detail.Drift != nil:
		return fmt.Sprintf("new values: %s (known: %s)",
			strings.Join(r.Detail.Drift.NewValues, ", "), strings.Join(r.Detail.Drift.KnownValues, ", "))
	case r.Detail.Duplicates != nil:
		return fmt.Sprintf("%d duplicate rows across %d groups",
			r.Detail.Duplicates.DuplicateCount, r.Detail.Duplicates.DistinctGroups)
	case r.Detail.Constant != nil:
		return fmt.Sprintf("constant value %q", r.Detail.Constant.Value)
	}
	return ""
}

func formatIDList(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

func extractTextFromResponse(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}
