package ai

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TruncationMarker is appended whenever serialized activity is cut to fit the
// content budget.
const TruncationMarker = "\n...[content truncated]"

var stripPolicy = bluemonday.StrictPolicy()

// Render substitutes ${key} tokens with their values in a single pass.
// Literal replacement only: substituted values are never re-scanned, so
// prompt templates cannot become an injection vector.
func Render(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "${"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// StripHTML removes markup from action content before prompt construction.
// Deterministic size reduction: tags dropped, entities decoded, whitespace
// trimmed.
func StripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

// TruncateContent cuts s to at most max runes, appending the truncation
// marker when anything was removed. max <= 0 disables the budget.
func TruncateContent(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + TruncationMarker
}
