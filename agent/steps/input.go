package steps

import (
	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	rulesx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/rules"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

type inputHandler struct {
	step       *flowx.Step
	extractor  contractx.SlotExtractor
	maxRetries int
}

// Evaluate runs slot extraction for the step's target slot. Success stores
// the value, forbids re-entry of this step and resets its retry counter.
// Failure bumps the counter and either stays or escalates once the counter
// has reached the maximum; the counter itself never exceeds the maximum.
func (h inputHandler) Evaluate(st *statex.ConversationState, utterance string) (Transition, error) {
	specs := []contractx.SlotSpec{{Name: h.step.Slot, Validator: h.step.Validator}}

	values := h.extractor.Extract(utterance, specs)
	if value, ok := values[h.step.Slot]; ok {
		st.SetSlot(h.step.Slot, value)
		st.ForbidStep(h.step.ID)
		st.ResetRetry(h.step.ID)
		return Transition{Outcome: OutcomeAdvance, Target: h.step.Next}, nil
	}

	if st.RetryCount(h.step.ID) >= h.maxRetries {
		return Transition{Outcome: OutcomeEscalate, Reason: rulesx.ReasonMaxRetries}, nil
	}
	st.BumpRetry(h.step.ID)
	return Transition{Outcome: OutcomeStay}, nil
}
