package sampling

import (
	"errors"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
	"github.com/prepflow-inc/prepflow-engine/pkg/dataset"
	"github.com/prepflow-inc/prepflow-engine/pkg/models"
)

// numberedTable builds n rows with a unique id column and a grade column
// that is "a" for the first aCount rows and "b" for the rest.
func numberedTable(n, aCount int) *dataset.Table {
	t := dataset.NewTable("numbers", []string{"id", "grade"})
	for i := 0; i < n; i++ {
		grade := "b"
		if i < aCount {
			grade = "a"
		}
		t.AppendRow(dataset.Row{"id": strconv.Itoa(i), "grade": grade})
	}
	return t
}

func sampleIDs(r *Result) []string {
	ids := make([]string, 0, r.Table.RowCount())
	for _, row := range r.Table.Rows {
		ids = append(ids, row["id"])
	}
	return ids
}

func TestEngine_Sample_Deterministic(t *testing.T) {
	tbl := numberedTable(1000, 500)
	eng := NewEngine("", zap.NewNop())
	stage := models.StageConfig{Number: 2, Fraction: 0.05}

	first, err := eng.Sample(tbl, stage, 42)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	second, err := eng.Sample(tbl, stage, 42)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	a, b := sampleIDs(first), sampleIDs(second)
	if len(a) != len(b) {
		t.Fatalf("same seed drew %d then %d rows", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed drew different rows at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestEngine_Sample_SeedChangesDraw(t *testing.T) {
	tbl := numberedTable(1000, 500)
	eng := NewEngine("", zap.NewNop())
	stage := models.StageConfig{Number: 1, Fraction: 0.05}

	first, _ := eng.Sample(tbl, stage, 1)
	second, _ := eng.Sample(tbl, stage, 2)

	a, b := sampleIDs(first), sampleIDs(second)
	same := len(a) == len(b)
	if same {
		for i := range a {
			if a[i] != b[i] {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("different seeds drew an identical 50-row sample")
	}
}

func TestEngine_Sample_SizeRoundsUp(t *testing.T) {
	tests := []struct {
		name     string
		rows     int
		fraction float64
		want     int
	}{
		{name: "tiny fraction of small table still draws one row", rows: 500, fraction: 0.001, want: 1},
		{name: "fraction rounds up", rows: 1000, fraction: 0.0015, want: 2},
		{name: "exact fraction", rows: 1000, fraction: 0.05, want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := numberedTable(tt.rows, tt.rows/2)
			eng := NewEngine("", zap.NewNop())

			r, err := eng.Sample(tbl, models.StageConfig{Number: 1, Fraction: tt.fraction}, 7)
			if err != nil {
				t.Fatalf("Sample() error = %v", err)
			}
			if r.Table.RowCount() != tt.want {
				t.Errorf("sample size = %d, want %d", r.Table.RowCount(), tt.want)
			}
		})
	}
}

func TestEngine_Sample_DegeneratesToFullPass(t *testing.T) {
	tbl := numberedTable(20, 10)
	eng := NewEngine("", zap.NewNop())

	r, err := eng.Sample(tbl, models.StageConfig{Number: 5, Fraction: 1.0}, 7)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if !r.Exhausted {
		t.Error("Exhausted = false, want true for a full pass")
	}
	if r.Table.RowCount() != 20 {
		t.Errorf("full pass drew %d rows, want 20", r.Table.RowCount())
	}

	// A fraction that rounds up to the whole table also degenerates
	r, err = eng.Sample(tbl, models.StageConfig{Number: 4, Fraction: 0.99}, 7)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if !r.Exhausted {
		t.Error("Exhausted = false for a fraction that covers every row")
	}
}

func TestEngine_Sample_PreservesRowOrder(t *testing.T) {
	tbl := numberedTable(200, 100)
	eng := NewEngine("", zap.NewNop())

	r, err := eng.Sample(tbl, models.StageConfig{Number: 3, Fraction: 0.25}, 11)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	prev := -1
	for _, id := range sampleIDs(r) {
		n, _ := strconv.Atoi(id)
		if n <= prev {
			t.Fatalf("sample rows out of source order: %d after %d", n, prev)
		}
		prev = n
	}
}

func TestEngine_Sample_Stratified(t *testing.T) {
	// 900 "b" rows, 100 "a" rows
	tbl := numberedTable(1000, 100)
	eng := NewEngine("grade", zap.NewNop())

	r, err := eng.Sample(tbl, models.StageConfig{Number: 2, Fraction: 0.05}, 3)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	counts := map[string]int{}
	for _, row := range r.Table.Rows {
		counts[row["grade"]]++
	}

	// ceil(0.05*100)=5 and ceil(0.05*900)=45
	if counts["a"] != 5 {
		t.Errorf("stratum a drew %d rows, want 5", counts["a"])
	}
	if counts["b"] != 45 {
		t.Errorf("stratum b drew %d rows, want 45", counts["b"])
	}
}

func TestEngine_Sample_StratifiedKeepsRareValues(t *testing.T) {
	// One single "a" row among 500
	tbl := numberedTable(500, 1)
	eng := NewEngine("grade", zap.NewNop())

	r, err := eng.Sample(tbl, models.StageConfig{Number: 1, Fraction: 0.01}, 9)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	found := false
	for _, row := range r.Table.Rows {
		if row["grade"] == "a" {
			found = true
			break
		}
	}
	if !found {
		t.Error("rare stratum missing from stratified sample")
	}
}

func TestEngine_Sample_StratifyColumnMissing(t *testing.T) {
	tbl := numberedTable(50, 25)
	eng := NewEngine("region", zap.NewNop())

	_, err := eng.Sample(tbl, models.StageConfig{Number: 1, Fraction: 0.1}, 1)
	if !errors.Is(err, apperrors.ErrColumnNotFound) {
		t.Errorf("Sample() error = %v, want ErrColumnNotFound", err)
	}
}

func TestEngine_Sample_EmptyDataset(t *testing.T) {
	tbl := dataset.NewTable("empty", []string{"id"})
	eng := NewEngine("", zap.NewNop())

	_, err := eng.Sample(tbl, models.StageConfig{Number: 1, Fraction: 0.1}, 1)
	if !errors.Is(err, apperrors.ErrEmptyDataset) {
		t.Errorf("Sample() error = %v, want ErrEmptyDataset", err)
	}
}
