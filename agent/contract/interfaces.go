package contract

import "context"

// Generator is the external text generator. The engine treats it as a pure,
// stateless function; its output must pass the response contract before use.
type Generator interface {
	Generate(ctx context.Context, instruction string) (string, error)
}

// SlotExtractor maps an utterance to validated slot values. Slots with no
// usable information are absent from the map, never empty strings.
type SlotExtractor interface {
	Extract(utterance string, specs []SlotSpec) map[string]string
}

// HandoffPublisher notifies a downstream human-handoff mechanism.
type HandoffPublisher interface {
	PublishHandoff(ctx context.Context, ev HandoffEvent) error
}

// TranscriptStore records processed turns. Failures must not fail the turn.
type TranscriptStore interface {
	SaveTurn(ctx context.Context, rec TurnRecord) error
}
