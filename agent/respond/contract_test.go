package respond

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

func TestParseEnvelope(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"action":"speak","text":"What is your name?"}`, Limits{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Kind != KindSpeak || res.Text != "What is your name?" {
		t.Fatalf("Parse() = %+v", res)
	}
}

func TestParseSilence(t *testing.T) {
	t.Parallel()

	res, err := Parse(`{"action":"silence"}`, Limits{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Kind != KindSilence {
		t.Fatalf("Parse() kind = %q", res.Kind)
	}
}

func TestParseBareTextIsSpeak(t *testing.T) {
	t.Parallel()

	res, err := Parse("What is your name?", Limits{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Kind != KindSpeak || res.Text != "What is your name?" {
		t.Fatalf("Parse() = %+v", res)
	}
}

func TestParseRejectsMissingText(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		"",
		"   ",
		`{"action":"speak"}`,
		`{"action":"speak","text":42}`,
		`{"action":"speak","text":"  "}`,
	} {
		if _, err := Parse(raw, Limits{}); !errors.Is(err, contractx.ErrContractViolation) {
			t.Fatalf("Parse(%q) error = %v, want ErrContractViolation", raw, err)
		}
	}
}

func TestSanitizeStripsMarkdownAndURLs(t *testing.T) {
	t.Parallel()

	in := "**Great choice!** Visit https://example.com/plans for details.\n- option one\n- option two"
	got := Sanitize(in)
	if strings.ContainsAny(got, "*`#") {
		t.Fatalf("markdown survived: %q", got)
	}
	if strings.Contains(got, "http") {
		t.Fatalf("url survived: %q", got)
	}
	if strings.Contains(got, "\n") {
		t.Fatalf("newlines survived: %q", got)
	}
}

func TestInspectFlagsViolations(t *testing.T) {
	t.Parallel()

	limits := Limits{MaxChars: 320, MaxSentences: 2}

	violations := Inspect("What is your name? And what is your phone?", limits)
	if !hasViolation(violations, ViolationMultipleQuestions) {
		t.Fatalf("missing multiple_questions: %v", violations)
	}

	violations = Inspect("Hello there. What is your name?", limits)
	if !hasViolation(violations, ViolationGreeting) {
		t.Fatalf("missing leading_greeting: %v", violations)
	}

	violations = Inspect("One. Two. Three.", limits)
	if !hasViolation(violations, ViolationTooManySentences) {
		t.Fatalf("missing too_many_sentences: %v", violations)
	}

	if violations = Inspect("What is your name?", limits); len(violations) != 0 {
		t.Fatalf("clean text flagged: %v", violations)
	}
}

func TestSplitSentencesHandlesDanda(t *testing.T) {
	t.Parallel()

	got := splitSentences("ठीक है। आपका नाम क्या है?")
	if len(got) != 2 {
		t.Fatalf("splitSentences() = %d sentences: %v", len(got), got)
	}
}

func TestValidateGeneratedAutoFixesWrapping(t *testing.T) {
	t.Parallel()

	raw := "Hello! Sure, I can help with that. What is your name? Thank you for choosing us!"
	res, err := ValidateGenerated(raw, Limits{})
	if err != nil {
		t.Fatalf("ValidateGenerated() error = %v", err)
	}
	if !res.AutoFixed {
		t.Fatal("expected auto-fix")
	}
	if res.Text != "Sure, I can help with that. What is your name?" {
		t.Fatalf("fixed text = %q", res.Text)
	}
}

func TestValidateGeneratedStripsGreetingAndClosing(t *testing.T) {
	t.Parallel()

	res, err := ValidateGenerated("Hello! What is your pincode? Thanks!", Limits{})
	if err != nil {
		t.Fatalf("ValidateGenerated() error = %v", err)
	}
	if !res.AutoFixed {
		t.Fatal("expected auto-fix, not retry")
	}
	if res.Text != "What is your pincode?" {
		t.Fatalf("fixed text = %q", res.Text)
	}
}

func TestValidateGeneratedCutsAfterFirstQuestion(t *testing.T) {
	t.Parallel()

	raw := "What is your name? Also, what is your budget?"
	res, err := ValidateGenerated(raw, Limits{})
	if err != nil {
		t.Fatalf("ValidateGenerated() error = %v", err)
	}
	if res.Text != "What is your name?" {
		t.Fatalf("fixed text = %q", res.Text)
	}
}

func TestValidateGeneratedUnfixableFails(t *testing.T) {
	t.Parallel()

	// one long sentence with no detachable prefix or suffix
	raw := strings.Repeat("word ", 30) + "and that is all"
	_, err := ValidateGenerated(raw, Limits{MaxChars: 40})
	if !errors.Is(err, contractx.ErrContractViolation) {
		t.Fatalf("error = %v, want ErrContractViolation", err)
	}
}

func hasViolation(violations []Violation, want Violation) bool {
	for _, v := range violations {
		if v == want {
			return true
		}
	}
	return false
}
