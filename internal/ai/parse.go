package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nightwatchhq/nightwatch-agent/internal/models"
)

// ParseError means a backend replied but no valid decision payload could
// be located in the response text.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse decision: %s", e.Reason)
}

// parseDecision extracts the structured decision from raw model output.
// Models wrap their JSON in markdown fences or prose, so the parser
// strips fences and falls back to the outermost brace-balanced object.
func parseDecision(raw string) (models.Decision, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return models.Decision{}, &ParseError{Reason: "no JSON object found in response"}
	}

	var decision models.Decision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return models.Decision{}, &ParseError{Reason: err.Error()}
	}

	if decision.Action == "" {
		return models.Decision{}, &ParseError{Reason: "decision has no action"}
	}
	if !models.KnownActionType(string(decision.Action)) {
		return models.Decision{}, &ParseError{Reason: fmt.Sprintf("unknown action %q", decision.Action)}
	}
	if decision.Confidence < 0 {
		decision.Confidence = 0
	}
	if decision.Confidence > 100 {
		decision.Confidence = 100
	}
	return decision, nil
}

// extractJSONObject strips markdown code fences and returns the outermost
// brace-balanced object, or "" when none exists.
func extractJSONObject(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return cleaned[start : i+1]
			}
		}
	}
	return ""
}
