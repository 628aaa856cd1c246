package enginenode

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

// SaveState commits the turn: liveness is re-checked against the same
// timestamp rule the sweeper uses, the state is validated and saved, the
// turn is recorded in the transcript, and a handoff event is published on
// the first escalation only. Transcript and handoff failures never fail
// the turn.
func SaveState(
	ctx context.Context,
	gs *GraphState,
	store statex.Store,
	transcripts contractx.TranscriptStore,
	handoff contractx.HandoffPublisher,
	ttl time.Duration,
) (*GraphState, error) {
	if gs == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if gs.State == nil {
		// not_found turns have nothing to commit
		return gs, nil
	}

	// double-checked liveness: the record was live at load, but must still
	// be live at commit or the sweep has won
	if !gs.FirstTurn && gs.State.Expired(gs.Now, ttl) {
		gs.settle(contractx.StatusNotFound, gs.Reply)
		gs.State = nil
		return gs, nil
	}

	// a conversation that was already terminal is read-only: repeating its
	// closing text must not touch the record or refresh its ttl
	if gs.WasTerminal {
		return gs, nil
	}

	publishHandoff := gs.State.Escalated && !gs.State.HandoffSent && handoff != nil
	if publishHandoff {
		gs.State.HandoffSent = true
	}

	gs.State.Touch(gs.Now)
	if err := gs.State.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}
	if err := store.Save(ctx, gs.State); err != nil {
		return nil, err
	}

	if publishHandoff {
		ev := contractx.HandoffEvent{
			ConversationID: gs.State.ConversationID,
			FlowID:         gs.State.FlowID,
			Reason:         gs.State.EscalationReason,
		}
		if err := handoff.PublishHandoff(ctx, ev); err != nil {
			log.Warn().Err(err).Str("conversation_id", ev.ConversationID).Msg("handoff publish failed")
		}
	}

	if transcripts != nil {
		rec := contractx.TurnRecord{
			TurnID:         uuid.NewString(),
			ConversationID: gs.State.ConversationID,
			FlowID:         gs.State.FlowID,
			StepID:         gs.State.CurrentStep,
			Utterance:      gs.Utterance,
			Reply:          gs.Reply,
			Status:         gs.State.Status(),
			CreatedAt:      gs.Now,
		}
		if err := transcripts.SaveTurn(ctx, rec); err != nil {
			log.Warn().Err(err).Str("conversation_id", rec.ConversationID).Msg("transcript save failed")
		}
	}

	return gs, nil
}
