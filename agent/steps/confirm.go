package steps

import (
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	rulesx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/rules"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

type confirmHandler struct {
	step       *flowx.Step
	maxRetries int
}

// Evaluate classifies the utterance as affirm, deny or unclear. Deny clears
// the slot this step guards so the flow can collect it again. Unclear uses
// the same per-step retry counter and max-retry-then-escalate policy as
// input steps; confirmation attempts are additionally tracked for audit.
func (h confirmHandler) Evaluate(st *statex.ConversationState, utterance string) (Transition, error) {
	st.ConfirmAttempts++

	switch classifyConfirmation(utterance) {
	case signalAffirm:
		if h.step.Slot != "" {
			st.ConfirmSlot(h.step.Slot)
		}
		st.ForbidStep(h.step.ID)
		st.ResetRetry(h.step.ID)
		return Transition{Outcome: OutcomeAdvance, Target: h.step.ConfirmNext}, nil
	case signalDeny:
		if h.step.Slot != "" {
			st.ClearSlot(h.step.Slot)
		}
		st.ForbidStep(h.step.ID)
		st.ResetRetry(h.step.ID)
		return Transition{Outcome: OutcomeAdvance, Target: h.step.DenyNext}, nil
	default:
		if st.RetryCount(h.step.ID) >= h.maxRetries {
			return Transition{Outcome: OutcomeEscalate, Reason: rulesx.ReasonMaxRetries}, nil
		}
		st.BumpRetry(h.step.ID)
		return Transition{Outcome: OutcomeStay}, nil
	}
}
