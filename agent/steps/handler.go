// Package steps implements the flow step executor: one handler per step
// kind, each evaluating the current state plus the user utterance into a
// Transition. The kind enum is closed; HandlerFor is the single place a new
// kind has to be wired.
package steps

import (
	"fmt"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

type Outcome int

const (
	// OutcomeAdvance moves the cursor to Transition.Target.
	OutcomeAdvance Outcome = iota
	// OutcomeStay keeps the cursor on the same step; the caller replies
	// with the step's retry prompt.
	OutcomeStay
	// OutcomeEscalate hands the conversation off.
	OutcomeEscalate
)

// Transition is the result of evaluating one step against one utterance.
// An empty Target on advance means the flow is complete.
type Transition struct {
	Outcome Outcome
	Target  string
	Reason  string
}

// Handler evaluates a step. Handlers mutate state (slot writes, retry
// bumps, forbidden marks) but never move the cursor; that is the executor's job.
type Handler interface {
	Evaluate(st *statex.ConversationState, utterance string) (Transition, error)
}

type Config struct {
	MaxStepRetries int `envconfig:"MAX_STEP_RETRIES" split_words:"true" default:"2"`
}

// HandlerFor dispatches on the closed kind enum.
func HandlerFor(step *flowx.Step, extractor contractx.SlotExtractor, cfg Config) (Handler, error) {
	if cfg.MaxStepRetries <= 0 {
		cfg.MaxStepRetries = 2
	}
	switch step.Kind {
	case flowx.KindMessage:
		return messageHandler{step: step}, nil
	case flowx.KindInput:
		return inputHandler{step: step, extractor: extractor, maxRetries: cfg.MaxStepRetries}, nil
	case flowx.KindConfirm:
		return confirmHandler{step: step, maxRetries: cfg.MaxStepRetries}, nil
	case flowx.KindIntent:
		return intentHandler{step: step}, nil
	case flowx.KindAction:
		return actionHandler{step: step}, nil
	default:
		return nil, fmt.Errorf("%w: unknown step kind=%q", contractx.ErrFlowConfig, step.Kind)
	}
}
