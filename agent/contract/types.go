package contract

import "time"

// Status is the turn-level outcome reported to the caller.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusEscalated  Status = "escalated"
	StatusNotFound   Status = "not_found"
)

// TurnOptions carries the caller-supplied context for a turn.
// FlowID is required on the first turn and ignored afterwards;
// Language is a hint that the rule layer may override or ignore.
type TurnOptions struct {
	FlowID   string `json:"flow_id"`
	Language string `json:"language,omitempty"`
}

type TurnResult struct {
	Text            string            `json:"text"`
	StepID          string            `json:"step_id"`
	Status          Status            `json:"status"`
	Slots           map[string]string `json:"slots,omitempty"`
	RetryCount      int               `json:"retry_count"`
	LanguageChanged bool              `json:"language_changed"`
}

// SlotSpec names one slot a step expects and the validator that gates it.
type SlotSpec struct {
	Name      string `json:"name"`
	Validator string `json:"validator"`
}

// HandoffEvent is published once when a conversation escalates.
type HandoffEvent struct {
	ConversationID string `json:"conversation_id"`
	FlowID         string `json:"flow_id"`
	Reason         string `json:"reason"`
}

// TurnRecord is one processed turn, persisted for audit.
type TurnRecord struct {
	TurnID         string    `json:"turn_id"`
	ConversationID string    `json:"conversation_id"`
	FlowID         string    `json:"flow_id"`
	StepID         string    `json:"step_id"`
	Utterance      string    `json:"utterance"`
	Reply          string    `json:"reply"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
