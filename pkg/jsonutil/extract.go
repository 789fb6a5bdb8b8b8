package jsonutil

import "strings"

// ExtractObject isolates a JSON object from surrounding model output:
// reasoning tags, markdown fences, and prose before or after the braces.
// Returns the input unchanged when no object is present.
func ExtractObject(text string) string {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "</think>"); idx != -1 {
		text = strings.TrimSpace(text[idx+len("</think>"):])
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
