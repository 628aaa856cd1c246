package enginenode

import (
	"fmt"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	promptx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/prompt"
	rulesx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/rules"
)

// EnforceRules runs the policy layer ahead of the step executor. A blocked
// verdict settles the turn with the fixed terminal text and the executor
// never runs.
func EnforceRules(gs *GraphState, enforcer *rulesx.Enforcer, prompts promptx.Set) (*GraphState, error) {
	if gs == nil || (!gs.Done && gs.State == nil) {
		return nil, fmt.Errorf("%w: graph state is incomplete", contractx.ErrValidation)
	}
	if gs.Done {
		return gs, nil
	}

	if gs.FirstTurn {
		// no utterance to police, but a re-opened terminal conversation
		// still gets the fixed terminal message
		if gs.State.Terminal() {
			gs.settle(gs.State.Status(), terminalText(prompts, gs.State.Language, gs.State.Escalated))
		}
		return gs, nil
	}

	verdict := enforcer.Apply(gs.State, gs.Utterance, gs.Now)
	gs.Verdict = verdict
	gs.LanguageChanged = verdict.LanguageChanged

	if verdict.Blocked {
		gs.settle(gs.State.Status(), terminalText(prompts, gs.State.Language, gs.State.Escalated))
	}
	return gs, nil
}

func terminalText(prompts promptx.Set, lang string, escalated bool) string {
	canned := prompts.For(lang)
	if escalated {
		return canned.Handoff
	}
	return canned.Closing
}
