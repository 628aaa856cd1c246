package respond

import (
	"regexp"
	"strings"
)

var (
	codeFenceRe  = regexp.MustCompile("```[a-zA-Z]*")
	urlRe        = regexp.MustCompile(`https?://[^\s]+`)
	bulletRe     = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)])\s+`)
	headerRe     = regexp.MustCompile(`(?m)^\s*#{1,6}\s+`)
	emphasisRe   = regexp.MustCompile(`(\*\*|__|\*|` + "`" + `)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var greetingWords = []string{
	"hello", "hi", "hey", "namaste", "greetings",
	"good morning", "good afternoon", "good evening",
	"नमस्ते", "नमस्कार",
}

var closingPhrases = []string{
	"thanks", "thank you", "bye", "goodbye", "take care",
	"have a nice day", "have a great day", "dhanyavad",
	"धन्यवाद", "अलविदा",
}

// Sanitize strips markdown emphasis and code markers, list bullets and
// numbering, headers and URLs, and collapses whitespace.
func Sanitize(text string) string {
	text = codeFenceRe.ReplaceAllString(text, "")
	text = urlRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "")
	text = headerRe.ReplaceAllString(text, "")
	text = emphasisRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Inspect scans sanitized text for contract violations.
func Inspect(text string, limits Limits) []Violation {
	limits = limits.withDefaults()
	var violations []Violation

	if len(text) > limits.MaxChars {
		violations = append(violations, ViolationTooLong)
	}
	if strings.Count(text, "?") > 1 {
		violations = append(violations, ViolationMultipleQuestions)
	}
	if strings.ContainsAny(text, "*`#[]") {
		violations = append(violations, ViolationMarkdown)
	}

	sentences := splitSentences(text)
	if len(sentences) > limits.MaxSentences {
		violations = append(violations, ViolationTooManySentences)
	}
	if len(sentences) > 0 {
		if isGreeting(sentences[0]) {
			violations = append(violations, ViolationGreeting)
		}
		if len(sentences) > 1 && isClosing(sentences[len(sentences)-1]) {
			violations = append(violations, ViolationClosing)
		}
	}
	return violations
}

// AutoFix trims damage confined to a detachable prefix or suffix: a leading
// greeting sentence, trailing closing sentences, sentences past the first
// question or the sentence cap. It reports false when nothing was trimmed.
func AutoFix(text string, violations []Violation, limits Limits) (string, bool) {
	limits = limits.withDefaults()
	has := make(map[Violation]bool, len(violations))
	for _, v := range violations {
		has[v] = true
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return text, false
	}
	changed := false

	if has[ViolationGreeting] && len(sentences) > 1 {
		sentences = sentences[1:]
		changed = true
	}

	for len(sentences) > 1 && isClosing(sentences[len(sentences)-1]) {
		sentences = sentences[:len(sentences)-1]
		changed = true
	}

	// keep everything up to and including the first question
	if has[ViolationMultipleQuestions] {
		for i, s := range sentences {
			if strings.Contains(s, "?") {
				if i+1 < len(sentences) {
					sentences = sentences[:i+1]
					changed = true
				}
				break
			}
		}
	}

	if len(sentences) > limits.MaxSentences {
		sentences = sentences[:limits.MaxSentences]
		changed = true
	}

	if !changed {
		return text, false
	}
	return strings.TrimSpace(strings.Join(sentences, " ")), true
}

// splitSentences cuts on sentence terminators, keeping them attached.
// The Devanagari danda counts as a terminator.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '.', '!', '?', '।':
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isGreeting(sentence string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sentence))
	normalized = strings.Trim(normalized, "!.,?")
	for _, g := range greetingWords {
		if normalized == g || strings.HasPrefix(normalized, g+" ") || strings.HasPrefix(normalized, g+",") {
			return true
		}
	}
	return false
}

func isClosing(sentence string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sentence))
	normalized = strings.Trim(normalized, "!.,?")
	for _, c := range closingPhrases {
		if normalized == c || strings.HasPrefix(normalized, c+" ") || strings.HasPrefix(normalized, c+",") {
			return true
		}
	}
	return false
}
