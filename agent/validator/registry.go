// Package validator holds the named field validators and the slot extractor
// built on top of them. Validators are registered once at startup; the step
// executor never knows which concrete validators exist.
package validator

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

// Validator normalizes a raw utterance fragment into a stored slot value or
// rejects it with a reason.
type Validator interface {
	Validate(raw string) (string, error)
}

// Func adapts a plain function to the Validator interface.
type Func func(raw string) (string, error)

func (f Func) Validate(raw string) (string, error) {
	return f(raw)
}

type Registry struct {
	validators map[string]Validator
}

// NewRegistry returns a registry preloaded with the built-in validators.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[string]Validator, 8)}
	for name, v := range builtins() {
		// built-in names cannot collide with themselves
		_ = r.Register(name, v)
	}
	return r
}

func (r *Registry) Register(name string, v Validator) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: validator name is empty", contractx.ErrValidation)
	}
	if v == nil {
		return fmt.Errorf("%w: validator %q is nil", contractx.ErrValidation, name)
	}
	if _, dup := r.validators[name]; dup {
		return fmt.Errorf("%w: validator %q already registered", contractx.ErrValidation, name)
	}
	r.validators[name] = v
	return nil
}

func (r *Registry) Lookup(name string) (Validator, bool) {
	v, ok := r.validators[name]
	return v, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.validators[name]
	return ok
}
