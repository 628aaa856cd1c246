package enginenode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	promptx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/prompt"
	respondx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/respond"
)

// RenderReply turns the evaluation into the final text. Template text is
// trusted and emitted as-is; generated phrasing goes through the bounded
// generate-validate loop with the template as the deterministic fallback.
func RenderReply(ctx context.Context, gs *GraphState, retrier *respondx.Retrier, prompts promptx.Set) (*GraphState, error) {
	if gs == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if gs.Done {
		return gs, nil
	}
	if gs.State == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	if gs.Eval.Escalated || gs.State.Escalated {
		gs.settle(contractx.StatusEscalated, prompts.For(gs.State.Language).Handoff)
		return gs, nil
	}

	reply := gs.Eval.Reply
	if gs.NeedsGenerator() {
		delivery := retrier.Deliver(ctx, reply, gs.State.Language)
		reply = delivery.Text
	}

	status := contractx.StatusInProgress
	if gs.State.Completed {
		status = contractx.StatusComplete
	}
	gs.Status = status
	gs.Reply = reply
	return gs, nil
}
