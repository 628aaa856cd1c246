package validator

import (
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

// Extractor runs only the validators the current step expects against
// substring and whole-utterance heuristics. A slot that cannot be filled is
// absent from the result; absence means "no information given".
type Extractor struct {
	validators *Registry
}

var _ contractx.SlotExtractor = (*Extractor)(nil)

func NewExtractor(validators *Registry) *Extractor {
	return &Extractor{validators: validators}
}

var (
	numberRunRe = regexp.MustCompile(`\+?[0-9][0-9\s\-]*[0-9]|[0-9]`)

	nameLeadIns = []string{
		"my name is",
		"the name is",
		"name is",
		"i am",
		"i'm",
		"this is",
		"mera naam",
		"मेरा नाम",
	}
)

func (e *Extractor) Extract(utterance string, specs []contractx.SlotSpec) map[string]string {
	found := make(map[string]string, len(specs))
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return found
	}

	for _, spec := range specs {
		v, ok := e.validators.Lookup(spec.Validator)
		if !ok {
			continue
		}
		for _, candidate := range candidatesFor(spec.Validator, utterance) {
			value, err := v.Validate(candidate)
			if err != nil {
				continue
			}
			found[spec.Name] = value
			break
		}
	}
	return found
}

func candidatesFor(validatorName, utterance string) []string {
	switch validatorName {
	case NameMobile, NamePincode:
		return numberRunRe.FindAllString(utterance, -1)
	case NameEmail:
		var candidates []string
		for _, token := range strings.Fields(utterance) {
			if strings.Contains(token, "@") {
				candidates = append(candidates, strings.Trim(token, ".,;:!?"))
			}
		}
		return candidates
	case NameText:
		if remainder, ok := stripLeadIn(utterance); ok {
			return []string{remainder}
		}
		return []string{utterance}
	default:
		return []string{utterance}
	}
}

// stripLeadIn removes phrases like "my name is" so only the payload is
// stored, not the framing sentence.
func stripLeadIn(utterance string) (string, bool) {
	lower := strings.ToLower(utterance)
	for _, lead := range nameLeadIns {
		idx := strings.Index(lower, lead)
		if idx < 0 {
			continue
		}
		remainder := utterance[idx+len(lead):]
		remainder = strings.Trim(remainder, " .,!?")
		if remainder != "" {
			return remainder, true
		}
	}
	return "", false
}
