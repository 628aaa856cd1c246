package steps

import (
	"strings"

	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

type intentHandler struct {
	step *flowx.Step
}

// Evaluate scores every route by keyword hits; the first route with the
// highest strictly-positive score wins (table order breaks ties). No hit at
// all routes to the step's default target.
func (h intentHandler) Evaluate(st *statex.ConversationState, utterance string) (Transition, error) {
	lowered := strings.ToLower(utterance)

	bestScore := 0
	bestTarget := ""
	for _, route := range h.step.Intents {
		score := 0
		for _, kw := range route.Keywords {
			needle := strings.ToLower(strings.TrimSpace(kw))
			if needle == "" {
				continue
			}
			haystack := lowered
			if !isASCIIString(needle) {
				haystack = utterance
			}
			if strings.Contains(haystack, needle) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestTarget = route.Target
		}
	}

	if bestScore == 0 {
		return Transition{Outcome: OutcomeAdvance, Target: h.step.DefaultNext}, nil
	}
	return Transition{Outcome: OutcomeAdvance, Target: bestTarget}, nil
}

func isASCIIString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
