package respond

import (
	"fmt"
	"strings"
)

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
}

// BuildInstruction constructs the minimal instruction sent to the external
// text generator when a step requires generated phrasing.
func BuildInstruction(canonical, language string, limits Limits) string {
	limits = limits.withDefaults()
	return fmt.Sprintf(
		"Rephrase this for a spoken conversation in %s. Plain text only, at most %d sentences and one question, no greeting or sign-off. Message: %s",
		languageName(language), limits.MaxSentences, canonical,
	)
}

// BuildStrictInstruction is the second-attempt instruction: shorter,
// naming what went wrong the first time.
func BuildStrictInstruction(canonical string, violations []Violation, limits Limits) string {
	limits = limits.withDefaults()
	return fmt.Sprintf(
		"Say exactly this, fixed: %s. Rules: max %d sentences, one question, no %s.",
		canonical, limits.MaxSentences, strings.Join(violationStrings(violations), ", "),
	)
}

func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return "English"
}
