package steps

import "strings"

type confirmSignal int

const (
	signalUnclear confirmSignal = iota
	signalAffirm
	signalDeny
)

// Deny phrases are checked first: "no, that's not right" must not affirm on
// the "right" substring, and several Hindi deny phrases embed affirm words.
var denyPhrases = []string{
	"no", "nope", "nah", "wrong", "incorrect", "not right", "not correct",
	"galat", "nahi", "nahin",
	"नहीं", "गलत",
}

var affirmPhrases = []string{
	"yes", "yeah", "yep", "correct", "right", "sure", "ok", "okay", "fine",
	"haan", "ha", "sahi", "theek",
	"हाँ", "हां", "सही", "ठीक",
}

// classifyConfirmation matches whole words so "know" does not read as "no".
func classifyConfirmation(utterance string) confirmSignal {
	words := tokenize(utterance)
	if len(words) == 0 {
		return signalUnclear
	}

	if containsAnyWord(words, denyPhrases) || containsAnyPhrase(utterance, denyPhrases) {
		return signalDeny
	}
	if containsAnyWord(words, affirmPhrases) {
		return signalAffirm
	}
	return signalUnclear
}

func tokenize(utterance string) []string {
	lowered := strings.ToLower(utterance)
	return strings.FieldsFunc(lowered, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':':
			return true
		}
		return false
	})
}

func containsAnyWord(words []string, phrases []string) bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	for _, p := range phrases {
		if !strings.Contains(p, " ") && set[p] {
			return true
		}
	}
	return false
}

func containsAnyPhrase(utterance string, phrases []string) bool {
	lowered := strings.ToLower(utterance)
	for _, p := range phrases {
		if strings.Contains(p, " ") && strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
