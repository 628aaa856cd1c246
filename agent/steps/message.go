package steps

import (
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

// messageHandler needs no input; the step's text is spoken and the cursor
// advances immediately.
type messageHandler struct {
	step *flowx.Step
}

func (h messageHandler) Evaluate(st *statex.ConversationState, _ string) (Transition, error) {
	return Transition{Outcome: OutcomeAdvance, Target: h.step.Next}, nil
}

// actionHandler is identical from the engine's perspective: the side effect
// belongs to an external collaborator, the cursor just moves on.
type actionHandler struct {
	step *flowx.Step
}

func (h actionHandler) Evaluate(st *statex.ConversationState, _ string) (Transition, error) {
	return Transition{Outcome: OutcomeAdvance, Target: h.step.Next}, nil
}
