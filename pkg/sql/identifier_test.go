package sql

import (
	"errors"
	"testing"

	"github.com/prepflow-inc/prepflow-engine/pkg/apperrors"
)

func TestVetIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain table", "orders", false},
		{"underscore prefix", "_staging", false},
		{"digits inside", "events_2024", false},
		{"schema qualified", "analytics.orders", false},
		{"surrounding whitespace", "  orders  ", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"leading digit", "2024_events", true},
		{"embedded space", "order items", true},
		{"embedded quote", `orders"; --`, true},
		{"statement terminator", "orders; DROP TABLE users", true},
		{"classic injection", "orders' OR '1'='1", true},
		{"comment smuggle", "orders--", true},
		{"two qualifiers", "db.schema.table", true},
		{"bracket quoting", "[orders]", true},
		{"wildcard", "*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VetIdentifier(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("VetIdentifier(%q) = nil, want error", tt.input)
				}
				if !errors.Is(err, apperrors.ErrUnsafeIdentifier) {
					t.Errorf("error %v does not wrap ErrUnsafeIdentifier", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("VetIdentifier(%q) = %v, want nil", tt.input, err)
			}
		})
	}
}

func TestSplitQualified(t *testing.T) {
	tests := []struct {
		input      string
		wantSchema string
		wantTable  string
	}{
		{"orders", "", "orders"},
		{"analytics.orders", "analytics", "orders"},
		{"  orders ", "", "orders"},
	}

	for _, tt := range tests {
		schema, table := SplitQualified(tt.input)
		if schema != tt.wantSchema || table != tt.wantTable {
			t.Errorf("SplitQualified(%q) = (%q, %q), want (%q, %q)",
				tt.input, schema, table, tt.wantSchema, tt.wantTable)
		}
	}
}
