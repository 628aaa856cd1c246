// Package rules holds the cross-cutting policy checks that run before the
// step executor on every turn and may short-circuit it entirely.
package rules

import (
	"strings"
	"time"

	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
)

const (
	ReasonFrustration        = "user_frustration"
	ReasonMaxRetries         = "max_retries_exceeded"
	ReasonCumulativeFailures = "cumulative_failures"
	ReasonInternalError      = "internal_error"
)

type Config struct {
	MaxTotalFailures int `envconfig:"MAX_TOTAL_FAILURES" split_words:"true" default:"4"`

	// AllowedLanguages is the switch allow-list; requests outside it are
	// ignored even when the conversation is not language-locked.
	AllowedLanguages []string `envconfig:"ALLOWED_LANGUAGES" split_words:"true" default:"en,hi"`
}

// Verdict is the rule layer's decision for one turn. When Blocked is true
// the step executor must not run; Reply selection is the render node's job.
type Verdict struct {
	Blocked   bool
	Terminal  bool
	Escalated bool
	Reason    string

	Language        string
	LanguageChanged bool
	ForceAdvance    bool
}

type Enforcer struct {
	cfg         Config
	frustration []string
	langAliases map[string]string
	allowed     map[string]bool
}

func NewEnforcer(cfg Config) *Enforcer {
	if cfg.MaxTotalFailures <= 0 {
		cfg.MaxTotalFailures = 4
	}
	allowed := make(map[string]bool, len(cfg.AllowedLanguages))
	for _, lang := range cfg.AllowedLanguages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang != "" {
			allowed[lang] = true
		}
	}
	if len(allowed) == 0 {
		allowed["en"] = true
	}
	return &Enforcer{
		cfg:         cfg,
		frustration: defaultFrustrationPhrases,
		langAliases: defaultLanguageAliases,
		allowed:     allowed,
	}
}

var defaultFrustrationPhrases = []string{
	"talk to a human",
	"talk to someone",
	"speak to an agent",
	"real person",
	"human agent",
	"customer care",
	"stop calling",
	"this is useless",
	"not helping",
	"aadmi se baat",
	"इंसान से बात",
	"एजेंट से बात",
}

// defaultLanguageAliases maps switch-request phrases to language codes.
// Matching is substring based; the allow-list keeps false positives from
// switching to unsupported languages.
var defaultLanguageAliases = map[string]string{
	"in hindi":       "hi",
	"speak hindi":    "hi",
	"hindi me":       "hi",
	"hindi mein":     "hi",
	"हिंदी":          "hi",
	"in english":     "en",
	"speak english":  "en",
	"english me":     "en",
	"english mein":   "en",
	"अंग्रेज़ी":      "en",
	"अंग्रेजी में":   "en",
}

// Apply runs the pre-executor checks in order: terminal short-circuit,
// frustration escalation, language resolution, forbidden-step self-heal,
// cumulative failure escalation.
func (e *Enforcer) Apply(st *statex.ConversationState, utterance string, now time.Time) Verdict {
	v := Verdict{Language: st.Language}

	if st.Terminal() {
		v.Blocked = true
		v.Terminal = true
		v.Escalated = st.Escalated
		v.Reason = st.EscalationReason
		return v
	}

	lowered := strings.ToLower(utterance)

	if e.detectFrustration(lowered) {
		st.Escalate(ReasonFrustration, now)
		v.Blocked = true
		v.Escalated = true
		v.Reason = ReasonFrustration
		return v
	}

	if lang, ok := e.detectLanguageRequest(lowered, utterance); ok {
		if !st.LanguageLocked && lang != st.Language {
			st.Language = lang
			v.Language = lang
			v.LanguageChanged = true
		}
		// locked conversations silently keep the stated language
	}

	// The cursor must never rest on a forbidden step. If it does, force an
	// advance instead of looping on the same prompt.
	if st.IsForbidden(st.CurrentStep) {
		v.ForceAdvance = true
	}

	if st.TotalFailures >= e.cfg.MaxTotalFailures {
		st.Escalate(ReasonCumulativeFailures, now)
		v.Blocked = true
		v.Escalated = true
		v.Reason = ReasonCumulativeFailures
		return v
	}

	return v
}

func (e *Enforcer) detectFrustration(lowered string) bool {
	for _, phrase := range e.frustration {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

func (e *Enforcer) detectLanguageRequest(lowered, original string) (string, bool) {
	for phrase, lang := range e.langAliases {
		haystack := lowered
		if !isASCII(phrase) {
			haystack = original
		}
		if strings.Contains(haystack, phrase) && e.allowed[lang] {
			return lang, true
		}
	}
	return "", false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
