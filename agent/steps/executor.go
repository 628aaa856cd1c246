package steps

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

// Evaluation is what one turn of step execution produced. StepID is the
// cursor position after execution, which may be a terminal marker.
type Evaluation struct {
	Reply          string
	RetryPrompt    bool
	Escalated      bool
	Reason         string
	NeedsGenerated bool
	StepID         string
}

// Executor applies step semantics to conversation state. It owns all cursor
// movement; handlers only decide the transition.
type Executor struct {
	extractor contractx.SlotExtractor
	cfg       Config
}

func NewExecutor(extractor contractx.SlotExtractor, cfg Config) *Executor {
	if cfg.MaxStepRetries <= 0 {
		cfg.MaxStepRetries = 2
	}
	return &Executor{extractor: extractor, cfg: cfg}
}

// Open starts a conversation: it replies with the opening step's text and
// advances through any leading message/action steps without consuming input.
func (e *Executor) Open(st *statex.ConversationState, def *flowx.Definition, now time.Time) (Evaluation, error) {
	start, ok := def.Step(st.CurrentStep)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: start step=%q missing", statex.ErrInvariantViolated, st.CurrentStep)
	}

	var parts []string
	var generated bool
	appendStepText(&parts, &generated, start, st.Language)

	switch start.Kind {
	case flowx.KindMessage, flowx.KindAction:
		st.RecordStep(start.ID)
		if err := e.advance(st, def, start.Next, &parts, &generated, now); err != nil {
			return Evaluation{}, err
		}
	default:
		// flows may open directly on an input/confirm/intent step
	}

	return Evaluation{
		Reply:          strings.Join(parts, " "),
		NeedsGenerated: generated,
		StepID:         st.CurrentStep,
	}, nil
}

// EvaluateCurrent runs the current step's handler against the utterance and
// applies the resulting transition.
func (e *Executor) EvaluateCurrent(st *statex.ConversationState, def *flowx.Definition, utterance string, now time.Time) (Evaluation, error) {
	cur, ok := def.Step(st.CurrentStep)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: current step=%q missing from flow=%s", statex.ErrInvariantViolated, st.CurrentStep, def.ID)
	}

	handler, err := HandlerFor(cur, e.extractor, e.cfg)
	if err != nil {
		return Evaluation{}, err
	}

	tr, err := handler.Evaluate(st, utterance)
	if err != nil {
		return Evaluation{}, err
	}

	switch tr.Outcome {
	case OutcomeStay:
		return Evaluation{
			Reply:       cur.RetryTextFor(st.Language),
			RetryPrompt: true,
			StepID:      cur.ID,
		}, nil

	case OutcomeEscalate:
		st.Escalate(tr.Reason, now)
		return Evaluation{
			Escalated: true,
			Reason:    tr.Reason,
			StepID:    cur.ID,
		}, nil

	case OutcomeAdvance:
		st.RecordStep(cur.ID)
		var parts []string
		var generated bool
		if err := e.advance(st, def, tr.Target, &parts, &generated, now); err != nil {
			return Evaluation{}, err
		}
		return Evaluation{
			Reply:          strings.Join(parts, " "),
			NeedsGenerated: generated,
			Escalated:      st.Escalated,
			StepID:         st.CurrentStep,
		}, nil

	default:
		return Evaluation{}, fmt.Errorf("%w: unknown transition outcome=%d", statex.ErrInvariantViolated, tr.Outcome)
	}
}

// ForceAdvance is the self-heal path for a cursor resting on a forbidden
// step: move along the step's natural target without evaluating it.
func (e *Executor) ForceAdvance(st *statex.ConversationState, def *flowx.Definition, now time.Time) (Evaluation, error) {
	cur, ok := def.Step(st.CurrentStep)
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: current step=%q missing from flow=%s", statex.ErrInvariantViolated, st.CurrentStep, def.ID)
	}

	var parts []string
	var generated bool
	if err := e.advance(st, def, naturalNext(cur), &parts, &generated, now); err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Reply:          strings.Join(parts, " "),
		NeedsGenerated: generated,
		StepID:         st.CurrentStep,
	}, nil
}

// advance walks the cursor to target, flowing through message/action steps
// and stopping on the first step that waits for input or on a terminal.
// Forbidden steps are skipped via their natural target.
func (e *Executor) advance(st *statex.ConversationState, def *flowx.Definition, target string, parts *[]string, generated *bool, now time.Time) error {
	for hops := 0; ; hops++ {
		if hops > def.StepCount()+1 {
			return fmt.Errorf("%w: advance exceeded flow size, flow=%s", statex.ErrInvariantViolated, def.ID)
		}

		if target == "" || target == flowx.TargetComplete {
			st.CurrentStep = flowx.TargetComplete
			st.StepIndex++
			st.Complete(now)
			return nil
		}
		if target == flowx.TargetEscalate {
			st.CurrentStep = flowx.TargetEscalate
			st.StepIndex++
			st.Escalate("flow_escalate_target", now)
			return nil
		}

		step, ok := def.Step(target)
		if !ok {
			// unreachable after load-time validation
			return fmt.Errorf("%w: dangling target=%q in flow=%s", statex.ErrInvariantViolated, target, def.ID)
		}

		if st.IsForbidden(step.ID) {
			target = naturalNext(step)
			continue
		}

		if err := st.MoveTo(step.ID); err != nil {
			return err
		}

		switch step.Kind {
		case flowx.KindMessage, flowx.KindAction:
			appendStepText(parts, generated, step, st.Language)
			st.RecordStep(step.ID)
			target = step.Next
		default:
			// landed on a step that waits for input; its question text is
			// only used when no message preceded it, so a greeting that
			// already asks the question is not repeated
			if len(*parts) == 0 {
				appendStepText(parts, generated, step, st.Language)
			}
			return nil
		}
	}
}

func appendStepText(parts *[]string, generated *bool, step *flowx.Step, lang string) {
	text := step.TextFor(lang)
	if text != "" {
		*parts = append(*parts, text)
	}
	if step.Generate {
		*generated = true
	}
}

// naturalNext picks a step's ordinary advance target for self-heal skips.
func naturalNext(step *flowx.Step) string {
	switch {
	case step.Next != "":
		return step.Next
	case step.DefaultNext != "":
		return step.DefaultNext
	case step.ConfirmNext != "":
		return step.ConfirmNext
	default:
		return flowx.TargetComplete
	}
}
