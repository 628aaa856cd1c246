package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

var (
	ErrNilState          = errors.New("conversation state is nil")
	ErrInvalidConv       = errors.New("conversation id is empty")
	ErrTerminalState     = errors.New("conversation already terminal")
	ErrForbiddenStep     = errors.New("step is forbidden for this conversation")
	ErrInvariantViolated = errors.New("conversation state invariant violated")
)

// ConversationState is the single source of truth for one conversation.
// Mutation happens only through its methods, driven by the step executor and
// the rule layer; once Escalated or Completed is set the record is frozen
// except for teardown.
type ConversationState struct {
	ConversationID string `json:"conversation_id"`
	FlowID         string `json:"flow_id"`

	CurrentStep string `json:"current_step"`
	StepIndex   int    `json:"step_index"`

	Language       string `json:"language"`
	LanguageLocked bool   `json:"language_locked"`

	CompletedSteps []string        `json:"completed_steps,omitempty"`
	ForbiddenSteps map[string]bool `json:"forbidden_steps,omitempty"`

	Slots     map[string]string `json:"slots,omitempty"`
	Confirmed map[string]bool   `json:"confirmed,omitempty"`

	StepRetries     map[string]int `json:"step_retries,omitempty"`
	TotalFailures   int            `json:"total_failures"`
	ConfirmAttempts int            `json:"confirm_attempts"`

	Escalated        bool   `json:"escalated"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	Completed        bool   `json:"completed"`
	HandoffSent      bool   `json:"handoff_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversationState(conversationID, flowID, startStep, language string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		FlowID:         flowID,
		CurrentStep:    startStep,
		Language:       language,
		ForbiddenSteps: make(map[string]bool, 8),
		Slots:          make(map[string]string, 8),
		Confirmed:      make(map[string]bool, 4),
		StepRetries:    make(map[string]int, 8),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

func (s *ConversationState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureMaps makes a state loaded from JSON safe to mutate.
func (s *ConversationState) EnsureMaps() {
	if s.ForbiddenSteps == nil {
		s.ForbiddenSteps = make(map[string]bool, 8)
	}
	if s.Slots == nil {
		s.Slots = make(map[string]string, 8)
	}
	if s.Confirmed == nil {
		s.Confirmed = make(map[string]bool, 4)
	}
	if s.StepRetries == nil {
		s.StepRetries = make(map[string]int, 8)
	}
}

// Terminal reports whether the conversation reached an absorbing state.
func (s *ConversationState) Terminal() bool {
	return s != nil && (s.Escalated || s.Completed)
}

func (s *ConversationState) Status() contractx.Status {
	switch {
	case s == nil:
		return contractx.StatusNotFound
	case s.Escalated:
		return contractx.StatusEscalated
	case s.Completed:
		return contractx.StatusComplete
	default:
		return contractx.StatusInProgress
	}
}

// Expired reports whether the record aged past ttl at now. The sweeper and
// live turn processing must both use this check so they agree on liveness.
func (s *ConversationState) Expired(now time.Time, ttl time.Duration) bool {
	if s == nil || ttl <= 0 {
		return false
	}
	return now.UTC().Sub(s.UpdatedAt) > ttl
}

/* ------------------------------ Step cursor ------------------------------ */

func (s *ConversationState) RecordStep(stepID string) {
	s.CompletedSteps = append(s.CompletedSteps, stepID)
}

func (s *ConversationState) ForbidStep(stepID string) {
	s.EnsureMaps()
	s.ForbiddenSteps[stepID] = true
}

func (s *ConversationState) IsForbidden(stepID string) bool {
	return s != nil && s.ForbiddenSteps[stepID]
}

// MoveTo sets the step cursor. Moving onto a forbidden step is an invariant
// violation and is rejected.
func (s *ConversationState) MoveTo(stepID string) error {
	if s.Terminal() {
		return ErrTerminalState
	}
	if s.IsForbidden(stepID) {
		return fmt.Errorf("%w: step=%s", ErrForbiddenStep, stepID)
	}
	s.CurrentStep = stepID
	s.StepIndex++
	return nil
}

/* --------------------------------- Slots --------------------------------- */

func (s *ConversationState) SetSlot(name, value string) {
	s.EnsureMaps()
	s.Slots[name] = value
}

func (s *ConversationState) ClearSlot(name string) {
	if s.Slots != nil {
		delete(s.Slots, name)
	}
	if s.Confirmed != nil {
		delete(s.Confirmed, name)
	}
}

func (s *ConversationState) ConfirmSlot(name string) {
	s.EnsureMaps()
	s.Confirmed[name] = true
}

func (s *ConversationState) SlotsCopy() map[string]string {
	out := make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		out[k] = v
	}
	return out
}

/* -------------------------------- Retries -------------------------------- */

func (s *ConversationState) RetryCount(stepID string) int {
	if s == nil || s.StepRetries == nil {
		return 0
	}
	return s.StepRetries[stepID]
}

// BumpRetry increments the per-step and cumulative failure counters and
// returns the new per-step count. Counters never decrement.
func (s *ConversationState) BumpRetry(stepID string) int {
	s.EnsureMaps()
	s.StepRetries[stepID]++
	s.TotalFailures++
	return s.StepRetries[stepID]
}

// ResetRetry zeroes the per-step counter. Only a successful advance does
// this; the cumulative counter is never reset.
func (s *ConversationState) ResetRetry(stepID string) {
	if s.StepRetries != nil {
		delete(s.StepRetries, stepID)
	}
}

/* ------------------------------- Terminals -------------------------------- */

// Escalate marks the conversation escalated. It is idempotent: only the
// first call records a reason and returns true.
func (s *ConversationState) Escalate(reason string, now time.Time) bool {
	if s.Terminal() {
		return false
	}
	s.Escalated = true
	s.EscalationReason = reason
	s.Touch(now)
	return true
}

func (s *ConversationState) Complete(now time.Time) bool {
	if s.Terminal() {
		return false
	}
	s.Completed = true
	s.Touch(now)
	return true
}

/* ------------------------------- Validation ------------------------------- */

func (s *ConversationState) Validate() error {
	if s == nil {
		return ErrNilState
	}
	if s.ConversationID == "" {
		return ErrInvalidConv
	}
	if s.Escalated && s.Completed {
		return fmt.Errorf("%w: escalated and completed are mutually exclusive", ErrInvariantViolated)
	}
	if s.CurrentStep == "" {
		return fmt.Errorf("%w: current step is empty", ErrInvariantViolated)
	}
	if !s.Terminal() && s.IsForbidden(s.CurrentStep) {
		return fmt.Errorf("%w: current step=%s is forbidden", ErrInvariantViolated, s.CurrentStep)
	}
	return nil
}
