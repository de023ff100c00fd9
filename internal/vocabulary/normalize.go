package vocabulary

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// fillerPattern matches conversational filler that carries no symptom
	// information. Applied after lowercasing.
	fillerPattern = regexp.MustCompile(`\b(?:i\s+have|i\s+am|feeling|suffering\s+from|with|and)\b`)

	punctuationPattern = regexp.MustCompile(`[.,!?;:"]`)
)

// Normalize lowercases text, strips filler phrases and punctuation and
// collapses whitespace. Symptom names and patient input go through the same
// function so a name matches exactly the inputs that normalize to contain it.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// cases.Caser is stateful, so one per call.
	lowered := cases.Lower(language.Und).String(text)
	stripped := fillerPattern.ReplaceAllString(lowered, " ")
	stripped = punctuationPattern.ReplaceAllString(stripped, " ")

	return strings.Join(strings.Fields(stripped), " ")
}
