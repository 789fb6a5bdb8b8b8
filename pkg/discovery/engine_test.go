package discovery

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/config"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

func testCfg() config.DiscoveryConfig {
	return config.DiscoveryConfig{
		MissingFloor:           0.01,
		OutlierFloor:           0.005,
		OutlierSeverity:        0.05,
		CategoricalMaxDistinct: 50,
		CategoricalMaxRatio:    0.1,
		DuplicateFloor:         1,
	}
}

// missingAgeTable builds n rows where every gap-th age cell is empty.
// The id column keeps rows unique; ages vary to stay non-constant.
func missingAgeTable(n, gap int) *dataset.Table {
	t := dataset.NewTable("people", []string{"id", "age"})
	for i := 0; i < n; i++ {
		age := strconv.Itoa(18 + (i*7)%60)
		if gap > 0 && i%gap == 0 {
			age = ""
		}
		t.AppendRow(dataset.Row{"id": strconv.Itoa(i), "age": age})
	}
	return t
}

func TestDiscoverRules_MissingValues(t *testing.T) {
	tbl := missingAgeTable(200, 20) // 10 missing cells, 5%
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, exc, err := eng.DiscoverRules(tbl, 1)
	require.NoError(t, err)
	assert.Empty(t, exc)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, models.RuleKindMissingValues, r.Kind)
	assert.Equal(t, []string{"age"}, r.Columns)
	assert.Equal(t, int64(10), r.MatchCount)
	assert.InDelta(t, 5.0, r.AffectedPercent, 0.01)
	assert.True(t, r.RequiresHITL)
	assert.False(t, r.IsAutoResolvable)
	assert.Equal(t, 1, r.FirstSeenStage)

	require.NotNil(t, r.Detail.Missing)
	assert.True(t, r.Detail.Missing.IsNumeric)
	require.NotEmpty(t, r.Detail.Missing.Strategies)
	assert.Equal(t, string(models.TransformFillMean), r.Detail.Missing.Strategies[0])
}

func TestDiscoverRules_MissingBelowFloorIgnored(t *testing.T) {
	tbl := missingAgeTable(1000, 1000) // single missing cell, 0.1%
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, _, err := eng.DiscoverRules(tbl, 1)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

// outlierTable builds base in-range values 1..n plus extreme high values.
func outlierTable(n, extremes int) *dataset.Table {
	t := dataset.NewTable("sales", []string{"id", "amount"})
	for i := 0; i < n; i++ {
		t.AppendRow(dataset.Row{"id": strconv.Itoa(i), "amount": strconv.Itoa(i + 1)})
	}
	for i := 0; i < extremes; i++ {
		t.AppendRow(dataset.Row{"id": "x" + strconv.Itoa(i), "amount": "100000"})
	}
	return t
}

func TestDiscoverRules_Outliers(t *testing.T) {
	tbl := outlierTable(96, 4) // 4% beyond the fence
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, _, err := eng.DiscoverRules(tbl, 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, models.RuleKindOutliers, r.Kind)
	assert.Equal(t, int64(4), r.MatchCount)
	assert.False(t, r.RequiresHITL, "mild outliers resolve automatically")
	assert.True(t, r.IsAutoResolvable)

	require.NotNil(t, r.Detail.Outlier)
	assert.Greater(t, r.Detail.Outlier.UpperBound, r.Detail.Outlier.LowerBound)
	assert.Less(t, r.Detail.Outlier.UpperBound, 100000.0)
}

func TestDiscoverRules_SevereOutliersNeedDecision(t *testing.T) {
	tbl := outlierTable(90, 10) // 10% beyond the fence, above severity 5%
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, _, err := eng.DiscoverRules(tbl, 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	assert.True(t, rules[0].RequiresHITL)
	assert.False(t, rules[0].IsAutoResolvable)
}

func TestDiscoverRules_ConstantColumn(t *testing.T) {
	tbl := dataset.NewTable("events", []string{"id", "source"})
	for i := 0; i < 30; i++ {
		tbl.AppendRow(dataset.Row{"id": strconv.Itoa(i), "source": "api"})
	}
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, _, err := eng.DiscoverRules(tbl, 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, models.RuleKindConstantColumn, r.Kind)
	assert.True(t, r.IsAutoResolvable)
	assert.False(t, r.RequiresHITL)
	require.NotNil(t, r.Detail.Constant)
	assert.Equal(t, "api", r.Detail.Constant.Value)
}

func TestDiscoverRules_DuplicateRows(t *testing.T) {
	tbl := dataset.NewTable("leads", []string{"email", "name"})
	tbl.AppendRow(dataset.Row{"email": "a@x.io", "name": "ana"})
	tbl.AppendRow(dataset.Row{"email": "b@x.io", "name": "bo"})
	tbl.AppendRow(dataset.Row{"email": "a@x.io", "name": "ana"})
	tbl.AppendRow(dataset.Row{"email": "a@x.io", "name": "ana"})
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, _, err := eng.DiscoverRules(tbl, 1)
	require.NoError(t, err)

	var dup *models.PreprocessingRule
	for _, r := range rules {
		if r.Kind == models.RuleKindDuplicateRows {
			dup = r
		}
	}
	require.NotNil(t, dup, "expected a duplicate_rows rule")
	assert.Equal(t, int64(2), dup.MatchCount)
	assert.True(t, dup.IsAutoResolvable)
	require.NotNil(t, dup.Detail.Duplicates)
	assert.Equal(t, int64(2), dup.Detail.Duplicates.DistinctGroups)
}

func gradeTable(grades []string) *dataset.Table {
	t := dataset.NewTable("students", []string{"id", "grade"})
	for i, g := range grades {
		t.AppendRow(dataset.Row{"id": strconv.Itoa(i), "grade": g})
	}
	return t
}

func manyGrades(counts map[string]int) []string {
	var out []string
	for _, g := range []string{"red", "green", "blue", "purple"} {
		for i := 0; i < counts[g]; i++ {
			out = append(out, g)
		}
	}
	return out
}

func TestDiscoverRules_CategoryDrift(t *testing.T) {
	eng := NewEngine(testCfg(), zap.NewNop())

	// First sample seeds the known set, no rule yet
	first := gradeTable(manyGrades(map[string]int{"red": 20, "green": 20}))
	rules, _, err := eng.DiscoverRules(first, 1)
	require.NoError(t, err)
	assert.Empty(t, rules, "first sight of a column only establishes the baseline")

	// Second sample introduces blue
	second := gradeTable(manyGrades(map[string]int{"red": 30, "green": 30, "blue": 4}))
	rules, _, err = eng.DiscoverRules(second, 2)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	r := rules[0]
	assert.Equal(t, models.RuleKindUnknownCategories, r.Kind)
	assert.True(t, r.RequiresHITL)
	assert.Equal(t, 2, r.FirstSeenStage)
	require.NotNil(t, r.Detail.Drift)
	assert.Equal(t, []string{"blue"}, r.Detail.Drift.NewValues)
	assert.Equal(t, []string{"green", "red"}, r.Detail.Drift.KnownValues)
	assert.Equal(t, int64(4), r.MatchCount)

	// Third sample introduces purple: evidence merges into the same rule
	third := gradeTable(manyGrades(map[string]int{"red": 30, "green": 30, "blue": 4, "purple": 2}))
	rules, _, err = eng.DiscoverRules(third, 3)
	require.NoError(t, err)
	assert.Empty(t, rules, "drift on the same column merges into the existing rule")

	ledger := eng.Rules()
	require.Len(t, ledger, 1)
	assert.Equal(t, []string{"blue", "purple"}, ledger[0].Detail.Drift.NewValues)
}

func TestDiscoverRules_SameIssueKeepsOneLedgerEntry(t *testing.T) {
	eng := NewEngine(testCfg(), zap.NewNop())

	first := missingAgeTable(100, 10)
	rules, _, err := eng.DiscoverRules(first, 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	id := rules[0].ID

	second := missingAgeTable(400, 10)
	rules, _, err = eng.DiscoverRules(second, 2)
	require.NoError(t, err)
	assert.Empty(t, rules, "rediscovery must not create a second rule")

	ledger := eng.Rules()
	require.Len(t, ledger, 1)
	assert.Equal(t, id, ledger[0].ID)
	assert.Equal(t, int64(40), ledger[0].MatchCount, "evidence refreshes from the larger sample")
	assert.Equal(t, 1, ledger[0].FirstSeenStage, "first-seen stage survives rediscovery")
}

func TestValidateRules(t *testing.T) {
	eng := NewEngine(testCfg(), zap.NewNop())

	_, _, err := eng.DiscoverRules(missingAgeTable(200, 20), 1)
	require.NoError(t, err)

	// Against another gappy sample the rule holds
	results, err := eng.ValidateRules(missingAgeTable(300, 20), 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.Equal(t, int64(15), results[0].MatchCount)
	assert.Equal(t, 2, results[0].Stage)

	// Against a clean sample it does not
	results, err = eng.ValidateRules(missingAgeTable(300, 0), 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].IsValid)
}

func TestValidateRules_OutlierUsesLearnedBounds(t *testing.T) {
	eng := NewEngine(testCfg(), zap.NewNop())

	_, _, err := eng.DiscoverRules(outlierTable(96, 4), 1)
	require.NoError(t, err)

	// A fresh sample with values past the learned fence still matches
	results, err := eng.ValidateRules(outlierTable(96, 3), 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsValid)
	assert.Equal(t, int64(3), results[0].MatchCount)

	// A sample fully inside the fence does not
	results, err = eng.ValidateRules(outlierTable(96, 0), 3)
	require.NoError(t, err)
	assert.False(t, results[0].IsValid)
}

func TestDiscoverRules_EmptySample(t *testing.T) {
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, exc, err := eng.DiscoverRules(dataset.NewTable("empty", []string{"a"}), 1)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Empty(t, exc)
}

func TestRule_LookupByID(t *testing.T) {
	eng := NewEngine(testCfg(), zap.NewNop())

	rules, _, err := eng.DiscoverRules(missingAgeTable(200, 20), 1)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	got, ok := eng.Rule(rules[0].ID)
	require.True(t, ok)
	assert.Same(t, rules[0], got)

	_, ok = eng.Rule("missing")
	assert.False(t, ok)
}
