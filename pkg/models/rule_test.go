package models

import "testing"

func TestComputeRuleID(t *testing.T) {
	tests := []struct {
		name    string
		kind    RuleKind
		columns []string
	}{
		{
			name:    "single column missing values",
			kind:    RuleKindMissingValues,
			columns: []string{"age"},
		},
		{
			name:    "multi column duplicate rows",
			kind:    RuleKindDuplicateRows,
			columns: []string{"id", "email", "name"},
		},
		{
			name:    "no columns",
			kind:    RuleKindDuplicateRows,
			columns: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := ComputeRuleID(tt.kind, tt.columns)

			// ID should be exactly 16 characters (first 16 hex chars of SHA256)
			if len(id) != 16 {
				t.Errorf("ComputeRuleID() returned id of length %d, want 16", len(id))
			}

			// ID should be deterministic
			id2 := ComputeRuleID(tt.kind, tt.columns)
			if id != id2 {
				t.Error("ComputeRuleID() is not deterministic")
			}

			// ID should be valid hex
			for _, c := range id {
				if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
					t.Errorf("ComputeRuleID() returned invalid hex character: %c", c)
				}
			}
		})
	}
}

func TestComputeRuleID_ColumnOrderInsensitive(t *testing.T) {
	a := ComputeRuleID(RuleKindUnknownCategories, []string{"country", "region"})
	b := ComputeRuleID(RuleKindUnknownCategories, []string{"region", "country"})
	if a != b {
		t.Error("Column order should not change the rule ID")
	}
}

func TestComputeRuleID_Uniqueness(t *testing.T) {
	// Same columns, different kind should produce different IDs
	a := ComputeRuleID(RuleKindMissingValues, []string{"age"})
	b := ComputeRuleID(RuleKindOutliers, []string{"age"})
	if a == b {
		t.Error("Different kinds with same columns should produce different IDs")
	}

	// Same kind, different columns should produce different IDs
	c := ComputeRuleID(RuleKindMissingValues, []string{"age"})
	d := ComputeRuleID(RuleKindMissingValues, []string{"income"})
	if c == d {
		t.Error("Different columns with same kind should produce different IDs")
	}
}

func TestDefaultTransformation(t *testing.T) {
	tests := []struct {
		name     string
		kind     RuleKind
		want     Transformation
		wantFind bool
	}{
		{
			name:     "duplicate rows drop duplicates",
			kind:     RuleKindDuplicateRows,
			want:     TransformDropDuplicates,
			wantFind: true,
		},
		{
			name:     "constant column drops the column",
			kind:     RuleKindConstantColumn,
			want:     TransformDropColumn,
			wantFind: true,
		},
		{
			name:     "outliers clamp by default",
			kind:     RuleKindOutliers,
			want:     TransformClampToBound,
			wantFind: true,
		},
		{
			name:     "missing values need a decision",
			kind:     RuleKindMissingValues,
			wantFind: false,
		},
		{
			name:     "unknown categories need a decision",
			kind:     RuleKindUnknownCategories,
			wantFind: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DefaultTransformation(tt.kind)
			if ok != tt.wantFind {
				t.Fatalf("DefaultTransformation(%s) ok = %v, want %v", tt.kind, ok, tt.wantFind)
			}
			if ok && got != tt.want {
				t.Errorf("DefaultTransformation(%s) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}
}

func TestPreprocessingRule_AutoApprove(t *testing.T) {
	tests := []struct {
		name        string
		rule        PreprocessingRule
		wantOK      bool
		wantApprove bool
	}{
		{
			name: "auto-resolvable duplicate rule approves",
			rule: PreprocessingRule{
				Kind:             RuleKindDuplicateRows,
				IsAutoResolvable: true,
			},
			wantOK:      true,
			wantApprove: true,
		},
		{
			name: "rule needing a decision is never auto-approved",
			rule: PreprocessingRule{
				Kind:         RuleKindMissingValues,
				RequiresHITL: true,
			},
			wantOK:      false,
			wantApprove: false,
		},
		{
			name: "auto-resolvable flag alone is not enough when a decision is required",
			rule: PreprocessingRule{
				Kind:             RuleKindOutliers,
				IsAutoResolvable: true,
				RequiresHITL:     true,
			},
			wantOK:      false,
			wantApprove: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rule
			ok := r.AutoApprove()
			if ok != tt.wantOK {
				t.Errorf("AutoApprove() = %v, want %v", ok, tt.wantOK)
			}
			if r.IsApproved != tt.wantApprove {
				t.Errorf("IsApproved = %v, want %v", r.IsApproved, tt.wantApprove)
			}
			if tt.wantApprove && r.ApprovedBy != "auto" {
				t.Errorf("ApprovedBy = %q, want %q", r.ApprovedBy, "auto")
			}
		})
	}
}

func TestIsValidRuleKind(t *testing.T) {
	for _, k := range ValidRuleKinds {
		if !IsValidRuleKind(k) {
			t.Errorf("IsValidRuleKind(%s) = false, want true", k)
		}
	}
	if IsValidRuleKind("schema_drift") {
		t.Error("IsValidRuleKind(schema_drift) = true, want false")
	}
}
