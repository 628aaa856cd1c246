package enginenode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	rulesx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/rules"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
	stepsx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/steps"
)

var (
	ErrInvalidConversation = errors.New("conversation id is empty")
	ErrInvalidUtterance    = errors.New("utterance is empty")
	ErrInvalidFlow         = errors.New("flow id is required on the first turn")
)

type GraphInput struct {
	ConversationID string
	// Utterance is nil on the first turn: return the opening step's text
	// without processing input.
	Utterance *string
	Opts      contractx.TurnOptions
}

type GraphOutput struct {
	Result contractx.TurnResult
}

// GraphState is threaded through every pipeline node. Done marks a settled
// turn; downstream nodes pass it through untouched.
type GraphState struct {
	ConversationID string
	Utterance      string
	FirstTurn      bool
	Reopened       bool
	// WasTerminal records that the loaded state was already complete or
	// escalated before this turn ran; such turns must not re-save it.
	WasTerminal bool
	Now         time.Time
	Opts        contractx.TurnOptions

	Flow    *flowx.Definition
	State   *statex.ConversationState
	Verdict rulesx.Verdict
	Eval    stepsx.Evaluation

	Reply           string
	Status          contractx.Status
	LanguageChanged bool
	RetryCount      int
	Done            bool
}

func (gs *GraphState) settle(status contractx.Status, reply string) {
	gs.Status = status
	gs.Reply = reply
	gs.Done = true
}

// NeedsGenerator reports whether rendering this turn will call the external
// text generator. The engine drops the per-conversation lock for exactly
// these turns while the model call is in flight.
func (gs *GraphState) NeedsGenerator() bool {
	return gs != nil && !gs.Done && gs.State != nil &&
		!gs.Eval.Escalated && !gs.State.Escalated &&
		gs.Eval.NeedsGenerated && gs.Eval.Reply != ""
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}

	gs := &GraphState{
		ConversationID: conversationID,
		Now:            nowFn().UTC(),
		Opts:           in.Opts,
	}

	if in.Utterance == nil {
		gs.FirstTurn = true
		if strings.TrimSpace(in.Opts.FlowID) == "" {
			return nil, ErrInvalidFlow
		}
		return gs, nil
	}

	utterance := strings.TrimSpace(*in.Utterance)
	if utterance == "" {
		return nil, ErrInvalidUtterance
	}
	gs.Utterance = utterance
	return gs, nil
}
