package enginenode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

func FinalizeReply(gs *GraphState) (GraphOutput, error) {
	if gs == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(gs.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: turn produced an empty reply", contractx.ErrValidation)
	}

	result := contractx.TurnResult{
		Text:            reply,
		Status:          gs.Status,
		RetryCount:      gs.RetryCount,
		LanguageChanged: gs.LanguageChanged,
	}
	if gs.State != nil {
		result.StepID = gs.State.CurrentStep
		result.Slots = gs.State.SlotsCopy()
	}
	return GraphOutput{Result: result}, nil
}
