// Package jsonutil tolerates the loose JSON that language models produce:
// values of the wrong type, fenced code blocks, prose around the payload.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringValue renders a raw JSON value as a string. Models asked for
// a string key sometimes reply with a number or a boolean; those are formatted
// rather than rejected. Null and empty input yield "".
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%g", n)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return fmt.Sprintf("%t", b)
	}

	return string(raw)
}
