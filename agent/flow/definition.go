package flow

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

// Kind is the closed set of step kinds. Adding a kind means extending this
// enum and the handler switch in agent/steps; there is no dynamic dispatch.
type Kind string

const (
	KindMessage Kind = "message"
	KindInput   Kind = "input"
	KindConfirm Kind = "confirm"
	KindIntent  Kind = "intent"
	KindAction  Kind = "action"
)

// Reserved transition targets. A step may point at these instead of a step id.
const (
	TargetComplete = "flow_complete"
	TargetEscalate = "escalate"
)

func IsTerminal(target string) bool {
	return target == TargetComplete || target == TargetEscalate
}

// IntentRoute is one row of an intent step's ordered keyword table.
type IntentRoute struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
	Target   string   `yaml:"target"`
}

type Step struct {
	ID        string            `yaml:"id"`
	Kind      Kind              `yaml:"kind"`
	Text      map[string]string `yaml:"text"`
	RetryText map[string]string `yaml:"retry_text,omitempty"`

	// Generate marks the step's phrasing as produced by the external text
	// generator instead of a pure template lookup. The template text then
	// serves as the canonical fallback.
	Generate bool `yaml:"generate,omitempty"`

	// input steps
	Slot      string `yaml:"slot,omitempty"`
	Validator string `yaml:"validator,omitempty"`

	// message/input/action steps; empty means flow_complete
	Next string `yaml:"next,omitempty"`

	// confirm steps
	ConfirmNext string `yaml:"confirm_next,omitempty"`
	DenyNext    string `yaml:"deny_next,omitempty"`

	// intent steps
	Intents     []IntentRoute `yaml:"intents,omitempty"`
	DefaultNext string        `yaml:"default_next,omitempty"`
}

// TextFor returns the step's primary text for lang, falling back to English
// and then to any available language.
func (s *Step) TextFor(lang string) string {
	return pickText(s.Text, lang)
}

// RetryTextFor returns the step's retry prompt, falling back to primary text
// when no retry template exists.
func (s *Step) RetryTextFor(lang string) string {
	if t := pickText(s.RetryText, lang); t != "" {
		return t
	}
	return s.TextFor(lang)
}

func pickText(texts map[string]string, lang string) string {
	if len(texts) == 0 {
		return ""
	}
	if t, ok := texts[lang]; ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	if t, ok := texts["en"]; ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

type Definition struct {
	ID    string `yaml:"id"`
	Start string `yaml:"start"`
	Steps []Step `yaml:"steps"`

	index map[string]*Step
}

// Step resolves a step id. Terminal markers are not steps.
func (d *Definition) Step(id string) (*Step, bool) {
	if d == nil || d.index == nil {
		return nil, false
	}
	st, ok := d.index[id]
	return st, ok
}

func (d *Definition) StepCount() int {
	return len(d.Steps)
}

// advanceTargets lists every transition target a step declares.
func (s *Step) advanceTargets() []string {
	targets := make([]string, 0, 4)
	if s.Next != "" {
		targets = append(targets, s.Next)
	}
	if s.ConfirmNext != "" {
		targets = append(targets, s.ConfirmNext)
	}
	if s.DenyNext != "" {
		targets = append(targets, s.DenyNext)
	}
	if s.DefaultNext != "" {
		targets = append(targets, s.DefaultNext)
	}
	for _, route := range s.Intents {
		if route.Target != "" {
			targets = append(targets, route.Target)
		}
	}
	return targets
}

// validate checks referential integrity once at load time. hasValidator
// reports whether a named validator is registered.
func (d *Definition) validate(hasValidator func(name string) bool) error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", contractx.ErrFlowConfig)
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("%w: flow id is empty", contractx.ErrFlowConfig)
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("%w: flow=%s has no steps", contractx.ErrFlowConfig, d.ID)
	}

	d.index = make(map[string]*Step, len(d.Steps))
	for i := range d.Steps {
		step := &d.Steps[i]
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("%w: flow=%s has a step with empty id", contractx.ErrFlowConfig, d.ID)
		}
		if _, dup := d.index[step.ID]; dup {
			return fmt.Errorf("%w: flow=%s duplicate step id=%s", contractx.ErrFlowConfig, d.ID, step.ID)
		}
		d.index[step.ID] = step
	}

	if _, ok := d.index[d.Start]; !ok {
		return fmt.Errorf("%w: flow=%s start step=%q does not exist", contractx.ErrFlowConfig, d.ID, d.Start)
	}

	for i := range d.Steps {
		step := &d.Steps[i]
		if err := d.validateStep(step, hasValidator); err != nil {
			return err
		}
	}
	return nil
}

func (d *Definition) validateStep(step *Step, hasValidator func(name string) bool) error {
	switch step.Kind {
	case KindMessage, KindAction:
		// next may be empty (flow_complete)
	case KindInput:
		if strings.TrimSpace(step.Slot) == "" {
			return fmt.Errorf("%w: flow=%s step=%s input requires a slot", contractx.ErrFlowConfig, d.ID, step.ID)
		}
		if strings.TrimSpace(step.Validator) == "" {
			return fmt.Errorf("%w: flow=%s step=%s input requires a validator", contractx.ErrFlowConfig, d.ID, step.ID)
		}
		if hasValidator != nil && !hasValidator(step.Validator) {
			return fmt.Errorf("%w: flow=%s step=%s unknown validator=%q", contractx.ErrFlowConfig, d.ID, step.ID, step.Validator)
		}
	case KindConfirm:
		if step.ConfirmNext == "" || step.DenyNext == "" {
			return fmt.Errorf("%w: flow=%s step=%s confirm requires confirm_next and deny_next", contractx.ErrFlowConfig, d.ID, step.ID)
		}
	case KindIntent:
		if len(step.Intents) == 0 {
			return fmt.Errorf("%w: flow=%s step=%s intent requires routes", contractx.ErrFlowConfig, d.ID, step.ID)
		}
		if step.DefaultNext == "" {
			return fmt.Errorf("%w: flow=%s step=%s intent requires default_next", contractx.ErrFlowConfig, d.ID, step.ID)
		}
	default:
		return fmt.Errorf("%w: flow=%s step=%s unknown kind=%q", contractx.ErrFlowConfig, d.ID, step.ID, step.Kind)
	}

	if len(step.Text) == 0 {
		return fmt.Errorf("%w: flow=%s step=%s has no text", contractx.ErrFlowConfig, d.ID, step.ID)
	}

	for _, target := range step.advanceTargets() {
		if IsTerminal(target) {
			continue
		}
		if _, ok := d.index[target]; !ok {
			return fmt.Errorf("%w: flow=%s step=%s dangling target=%q", contractx.ErrFlowConfig, d.ID, step.ID, target)
		}
	}
	return nil
}
