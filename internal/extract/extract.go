// Package extract turns free-form generation output into typed values.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
)

// fencedJSON matches the first ```json fenced block.
var fencedJSON = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)\\r?\\n?```")

// Fenced returns the contents of the first ```json block in text.
func Fenced(text string) (string, bool) {
	m := fencedJSON.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// JSON decodes a T from text. A ```json fenced block is tried first, then the
// whole text. Malformed JSON is never repaired.
func JSON[T any](text string) (T, error) {
	var out T

	var lastErr error
	if block, ok := Fenced(text); ok {
		if lastErr = json.Unmarshal([]byte(block), &out); lastErr == nil {
			return out, nil
		}
		out = *new(T)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return out, core.ErrExtraction("failed to extract JSON from response: empty response")
	}
	err := json.Unmarshal([]byte(trimmed), &out)
	if err == nil {
		return out, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return *new(T), core.ErrExtraction("failed to extract JSON from response").WithCause(lastErr)
}
