package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError means the LLM's payload failed schema validation after both
// the flat and the single-nested parse attempt. The raw payload rides along
// for diagnosis.
type ValidationError struct {
	Reason  string
	Payload string
}

func (e *ValidationError) Error() string {
	return "invalid LLM response: " + e.Reason
}

type scorePayload struct {
	Value              float64
	Summary            string
	Description        string
	Improvements       string
	ExplainedReasoning string
}

// parseScorePayload validates the completion text. The expected shape is
// {value: number, summary: string} plus optional qualitative fields; the
// reasoning field is accepted as explained_reasoning or explainedReasoning
// and normalized to one canonical field. Some models wrap their output under
// a single dynamic top-level key, so one level of nesting is unwrapped before
// giving up.
func parseScorePayload(raw string) (*scorePayload, error) {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	var m map[string]any
	if err := json.Unmarshal([]byte(cleaned), &m); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("not JSON: %v", err), Payload: raw}
	}
	if p, ok := payloadFromMap(m); ok {
		return p, nil
	}
	if len(m) == 1 {
		for _, v := range m {
			if inner, ok := v.(map[string]any); ok {
				if p, ok := payloadFromMap(inner); ok {
					return p, nil
				}
			}
		}
	}
	return nil, &ValidationError{
		Reason:  "payload matches neither the flat nor the single-nested schema",
		Payload: raw,
	}
}

func payloadFromMap(m map[string]any) (*scorePayload, bool) {
	value, ok := m["value"].(float64)
	if !ok {
		return nil, false
	}
	summary, ok := m["summary"].(string)
	if !ok {
		return nil, false
	}
	p := &scorePayload{Value: value, Summary: summary}
	if s, ok := m["description"].(string); ok {
		p.Description = s
	}
	if s, ok := m["improvements"].(string); ok {
		p.Improvements = s
	}
	if s, ok := m["explained_reasoning"].(string); ok {
		p.ExplainedReasoning = s
	} else if s, ok := m["explainedReasoning"].(string); ok {
		p.ExplainedReasoning = s
	}
	return p, true
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
