// Package respond enforces the response contract on any text that is not a
// pure template lookup. Template text is trusted; generator output is
// parsed, sanitized, auto-fixed where the damage is a detachable prefix or
// suffix, and otherwise retried or replaced by the canonical text.
package respond

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

type Kind string

const (
	KindSpeak   Kind = "speak"
	KindSilence Kind = "silence"
)

type Violation string

const (
	ViolationMissingText       Violation = "missing_text"
	ViolationTooLong           Violation = "too_long"
	ViolationMultipleQuestions Violation = "multiple_questions"
	ViolationGreeting          Violation = "leading_greeting"
	ViolationClosing           Violation = "trailing_closing"
	ViolationMarkdown          Violation = "markdown_tokens"
	ViolationTooManySentences  Violation = "too_many_sentences"
)

type Limits struct {
	MaxChars     int `envconfig:"MAX_REPLY_CHARS" split_words:"true" default:"320"`
	MaxSentences int `envconfig:"MAX_REPLY_SENTENCES" split_words:"true" default:"2"`
}

func (l Limits) withDefaults() Limits {
	if l.MaxChars <= 0 {
		l.MaxChars = 320
	}
	if l.MaxSentences <= 0 {
		l.MaxSentences = 2
	}
	return l
}

// Result is the validated response contract: a tagged speak/silence outcome
// with sanitized text safe to emit.
type Result struct {
	Kind       Kind
	Text       string
	Violations []Violation
	AutoFixed  bool
}

type generatedEnvelope struct {
	Action string          `json:"action"`
	Text   json.RawMessage `json:"text"`
}

// Parse extracts the structured result from raw generator output. The
// generator is asked for a JSON envelope but bare text is accepted as a
// speak payload; a missing or non-string text field is a hard reject.
func Parse(raw string, limits Limits) (Result, error) {
	limits = limits.withDefaults()
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Result{}, fmt.Errorf("%w: empty generator output (%s)", contractx.ErrContractViolation, ViolationMissingText)
	}

	text := trimmed
	kind := KindSpeak
	if strings.HasPrefix(trimmed, "{") {
		var env generatedEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
			if strings.EqualFold(env.Action, string(KindSilence)) {
				return Result{Kind: KindSilence}, nil
			}
			var s string
			if len(env.Text) == 0 || json.Unmarshal(env.Text, &s) != nil {
				return Result{}, fmt.Errorf("%w: text field missing or not a string (%s)", contractx.ErrContractViolation, ViolationMissingText)
			}
			text = strings.TrimSpace(s)
			if text == "" {
				return Result{}, fmt.Errorf("%w: text field is empty (%s)", contractx.ErrContractViolation, ViolationMissingText)
			}
		}
	}

	if len(text) > 3*limits.MaxChars {
		return Result{}, fmt.Errorf("%w: generated text exceeds hard length cap (%s)", contractx.ErrContractViolation, ViolationTooLong)
	}

	return Result{Kind: kind, Text: text}, nil
}

// ValidateGenerated runs the whole pipeline: parse, sanitize, inspect,
// auto-fix, re-inspect. On success the returned result carries sanitized
// text; on failure the violations that survived auto-fixing.
func ValidateGenerated(raw string, limits Limits) (Result, error) {
	limits = limits.withDefaults()

	res, err := Parse(raw, limits)
	if err != nil {
		return res, err
	}
	if res.Kind == KindSilence {
		return res, nil
	}

	res.Text = Sanitize(res.Text)
	res.Violations = Inspect(res.Text, limits)
	if len(res.Violations) == 0 {
		return res, nil
	}

	fixed, ok := AutoFix(res.Text, res.Violations, limits)
	if ok {
		remaining := Inspect(fixed, limits)
		if len(remaining) == 0 {
			return Result{Kind: KindSpeak, Text: fixed, Violations: res.Violations, AutoFixed: true}, nil
		}
		res.Text = fixed
		res.Violations = remaining
	}

	return res, fmt.Errorf("%w: %s", contractx.ErrContractViolation, joinViolations(res.Violations))
}

func joinViolations(violations []Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, string(v))
	}
	return strings.Join(parts, ",")
}
