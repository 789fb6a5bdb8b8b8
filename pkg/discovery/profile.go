// Package discovery inspects samples for data-quality issues and maintains
// the run's rule ledger. Detection is deterministic with no LLM calls:
// every rule candidate comes from counting, quartiles, or set comparison
// over the sample.
package discovery

import (
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// numericDetectionRatio is the share of non-missing cells that must parse
// as numbers before a column counts as numeric. The remainder become
// cell-level exceptions rather than flipping the column to text.
const numericDetectionRatio = 0.9

// ColumnProfile holds the per-column statistics one sample pass produces.
type ColumnProfile struct {
	Name         string
	TotalCount   int64
	MissingCount int64
	MissingRatio float64

	// Numeric view
	IsNumeric    bool
	NumericCount int64
	Values       []float64 // parsed values, ascending

	// Categorical view
	Distinct      map[string]int64
	DistinctCount int64
	MostCommon    string
}

// IsConstant returns true when every cell holds the same non-missing value.
func (p *ColumnProfile) IsConstant() bool {
	return p.MissingCount == 0 && p.DistinctCount == 1 && p.TotalCount >= 2
}

// ConstantValue returns the single value of a constant column.
func (p *ColumnProfile) ConstantValue() string {
	for v := range p.Distinct {
		return v
	}
	return ""
}

// ProfileColumn computes one column's statistics over the sample. The
// second return value lists cells that failed numeric parsing in a column
// that is otherwise numeric; parse failures never abort a stage.
func ProfileColumn(t *dataset.Table, name string) (*ColumnProfile, []models.ExceptionRecord) {
	p := &ColumnProfile{
		Name:     name,
		Distinct: make(map[string]int64),
	}

	type failedCell struct {
		rowIndex int
		value    string
	}
	var failed []failedCell

	for i, row := range t.Rows {
		raw := row[name]
		p.TotalCount++

		if dataset.IsMissing(raw) {
			p.MissingCount++
			continue
		}

		trimmed := strings.TrimSpace(raw)
		p.Distinct[trimmed]++

		if f, err := cast.ToFloat64E(trimmed); err == nil {
			p.NumericCount++
			p.Values = append(p.Values, f)
		} else {
			failed = append(failed, failedCell{rowIndex: i, value: raw})
		}
	}

	if p.TotalCount > 0 {
		p.MissingRatio = float64(p.MissingCount) / float64(p.TotalCount)
	}

	p.DistinctCount = int64(len(p.Distinct))
	var best int64
	for v, c := range p.Distinct {
		if c > best || (c == best && v < p.MostCommon) {
			best = c
			p.MostCommon = v
		}
	}

	nonMissing := p.TotalCount - p.MissingCount
	p.IsNumeric = nonMissing > 0 &&
		float64(p.NumericCount) >= numericDetectionRatio*float64(nonMissing)

	sort.Float64s(p.Values)

	// Only a numeric column's unparseable cells are exceptions; in a text
	// column they are just values.
	var exceptions []models.ExceptionRecord
	if p.IsNumeric {
		for _, f := range failed {
			exceptions = append(exceptions, models.ExceptionRecord{
				RowIndex: f.rowIndex,
				Column:   name,
				Value:    f.value,
				Reason:   "unparseable numeric value",
			})
		}
	}

	return p, exceptions
}

// Quartiles returns Q1 and Q3 of the profile's numeric values using linear
// interpolation between closest ranks.
func (p *ColumnProfile) Quartiles() (q1, q3 float64) {
	return percentile(p.Values, 0.25), percentile(p.Values, 0.75)
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Mean returns the average of the profile's numeric values.
func (p *ColumnProfile) Mean() float64 {
	if len(p.Values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.Values {
		sum += v
	}
	return sum / float64(len(p.Values))
}

// Median returns the middle numeric value.
func (p *ColumnProfile) Median() float64 {
	return percentile(p.Values, 0.5)
}

// RoundTo trims float noise from values written back into string cells.
func RoundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
