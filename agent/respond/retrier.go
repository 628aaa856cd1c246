package respond

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

const maxGeneratorAttempts = 2

// Delivery is the outcome of the generate-validate loop. The loop never
// fails: when both attempts produce contract violations (or the generator
// errors), Text falls back to the canonical instruction text verbatim.
// Attempts counts the generator invocations actually made.
type Delivery struct {
	Text           string
	Attempts       int
	AutoFixed      bool
	FellBack       bool
	LastViolations []Violation
}

// Retrier runs the bounded retry protocol against the external generator:
// at most two invocations per turn, the second with a stricter instruction.
type Retrier struct {
	gen    contractx.Generator
	limits Limits
}

func NewRetrier(gen contractx.Generator, limits Limits) *Retrier {
	return &Retrier{gen: gen, limits: limits.withDefaults()}
}

// Deliver produces the final speakable text for a generated step. canonical
// is the step's template text, used both to build the instruction and as
// the deterministic fallback.
func (r *Retrier) Deliver(ctx context.Context, canonical, language string) Delivery {
	if r == nil || r.gen == nil {
		return Delivery{Text: canonical, FellBack: true}
	}

	instruction := BuildInstruction(canonical, language, r.limits)
	var lastViolations []Violation
	attempts := 0

	for attempt := 1; attempt <= maxGeneratorAttempts; attempt++ {
		attempts = attempt
		raw, err := r.gen.Generate(ctx, instruction)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("text generator invoke failed")
			break
		}

		res, err := ValidateGenerated(raw, r.limits)
		if err == nil {
			if res.Kind == KindSilence || res.Text == "" {
				// a silent reply is never acceptable for a step prompt
				break
			}
			return Delivery{
				Text:           res.Text,
				Attempts:       attempt,
				AutoFixed:      res.AutoFixed,
				LastViolations: res.Violations,
			}
		}

		lastViolations = res.Violations
		log.Debug().
			Int("attempt", attempt).
			Strs("violations", violationStrings(res.Violations)).
			Msg("generated text rejected by response contract")
		instruction = BuildStrictInstruction(canonical, res.Violations, r.limits)
	}

	return Delivery{
		Text:           canonical,
		Attempts:       attempts,
		FellBack:       true,
		LastViolations: lastViolations,
	}
}

func violationStrings(violations []Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, string(v))
	}
	return out
}
