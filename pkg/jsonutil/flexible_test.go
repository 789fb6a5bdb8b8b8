package jsonutil

import (
	"encoding/json"
	"testing"
)

func TestFlexibleStringValue(t *testing.T) {
	tests := []struct {
		name  string
		input json.RawMessage
		want  string
	}{
		{"string", json.RawMessage(`"mean"`), "mean"},
		{"whole number", json.RawMessage(`2`), "2"},
		{"fraction", json.RawMessage(`0.75`), "0.75"},
		{"negative", json.RawMessage(`-7`), "-7"},
		{"boolean", json.RawMessage(`true`), "true"},
		{"null", json.RawMessage(`null`), ""},
		{"nil", nil, ""},
		{"empty string", json.RawMessage(`""`), ""},
		{"object falls back to raw text", json.RawMessage(`{"key":"value"}`), `{"key":"value"}`},
		{"array falls back to raw text", json.RawMessage(`[1,2,3]`), `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlexibleStringValue(tt.input); got != tt.want {
				t.Errorf("FlexibleStringValue(%s) = %q, want %q", string(tt.input), got, tt.want)
			}
		})
	}
}
