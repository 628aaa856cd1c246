package enginenode

import (
	"fmt"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	stepsx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/steps"
)

// ExecuteStep drives the state machine for the turn. First turns open the
// flow; later turns evaluate the current step against the utterance. The
// forbidden-step self-heal advances without consuming the utterance.
func ExecuteStep(gs *GraphState, executor *stepsx.Executor) (*GraphState, error) {
	if gs == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if gs.Done {
		return gs, nil
	}
	if gs.State == nil || gs.Flow == nil {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}

	switch {
	case gs.FirstTurn && gs.Reopened:
		// re-opened conversation: repeat the current step's prompt
		step, ok := gs.Flow.Step(gs.State.CurrentStep)
		if !ok {
			return nil, fmt.Errorf("%w: current step=%q missing", contractx.ErrValidation, gs.State.CurrentStep)
		}
		gs.Eval = stepsx.Evaluation{
			Reply:  step.TextFor(gs.State.Language),
			StepID: step.ID,
		}

	case gs.FirstTurn:
		eval, err := executor.Open(gs.State, gs.Flow, gs.Now)
		if err != nil {
			return nil, err
		}
		gs.Eval = eval

	case gs.Verdict.ForceAdvance:
		eval, err := executor.ForceAdvance(gs.State, gs.Flow, gs.Now)
		if err != nil {
			return nil, err
		}
		gs.Eval = eval

	default:
		eval, err := executor.EvaluateCurrent(gs.State, gs.Flow, gs.Utterance, gs.Now)
		if err != nil {
			return nil, err
		}
		gs.Eval = eval
	}

	gs.RetryCount = gs.State.RetryCount(gs.Eval.StepID)
	return gs, nil
}
