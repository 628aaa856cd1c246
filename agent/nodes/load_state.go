package enginenode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	promptx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/prompt"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

// LoadState resolves the flow definition and the conversation record.
// A first turn creates fresh state at the flow's start step. Any later turn
// for an unknown or expired id settles as not_found; expiry never produces
// a fresh zero-state conversation under the old id.
func LoadState(
	ctx context.Context,
	gs *GraphState,
	store statex.Store,
	flows *flowx.Registry,
	prompts promptx.Set,
	defaultLanguage string,
) (*GraphState, error) {
	if gs == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if gs.FirstTurn {
		def, err := flows.Get(gs.Opts.FlowID)
		if err != nil {
			return nil, err
		}
		gs.Flow = def

		existing, err := store.Load(ctx, gs.ConversationID)
		switch {
		case err == nil:
			// the caller re-opened a live conversation; resume it
			gs.State = existing
			gs.Reopened = true
			gs.WasTerminal = existing.Terminal()
		case errors.Is(err, statex.ErrStateNotFound):
			lang := strings.TrimSpace(strings.ToLower(gs.Opts.Language))
			if lang == "" {
				lang = defaultLanguage
			}
			gs.State = statex.NewConversationState(gs.ConversationID, def.ID, def.Start, lang, gs.Now)
		default:
			return nil, err
		}
		return gs, nil
	}

	st, err := store.Load(ctx, gs.ConversationID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) {
			gs.settle(contractx.StatusNotFound, prompts.For(defaultLanguage).NotFound)
			return gs, nil
		}
		return nil, err
	}
	gs.State = st
	gs.WasTerminal = st.Terminal()

	def, err := flows.Get(st.FlowID)
	if err != nil {
		return nil, err
	}
	gs.Flow = def
	return gs, nil
}
