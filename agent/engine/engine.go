package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	nodex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/nodes"
	promptx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/prompt"
	respondx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/respond"
	rulesx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/rules"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
	stepsx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/steps"
	validatorx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/validator"
)

var (
	ErrInvalidConversation = nodex.ErrInvalidConversation
	ErrInvalidUtterance    = nodex.ErrInvalidUtterance
	ErrInvalidFlow         = nodex.ErrInvalidFlow
)

type Config struct {
	MaxStepRetries   int           `envconfig:"MAX_STEP_RETRIES" split_words:"true" default:"2"`
	MaxTotalFailures int           `envconfig:"MAX_TOTAL_FAILURES" split_words:"true" default:"4"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"30m"`
	MaxReplyChars    int           `envconfig:"MAX_REPLY_CHARS" split_words:"true" default:"320"`
	MaxSentences     int           `envconfig:"MAX_REPLY_SENTENCES" split_words:"true" default:"2"`
	DefaultLanguage  string        `envconfig:"DEFAULT_LANGUAGE" split_words:"true" default:"en"`
	AllowedLanguages []string      `envconfig:"ALLOWED_LANGUAGES" split_words:"true" default:"en,hi"`
}

func (c Config) withDefaults() Config {
	if c.MaxStepRetries <= 0 {
		c.MaxStepRetries = 2
	}
	if c.MaxTotalFailures <= 0 {
		c.MaxTotalFailures = 4
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if strings.TrimSpace(c.DefaultLanguage) == "" {
		c.DefaultLanguage = "en"
	}
	if len(c.AllowedLanguages) == 0 {
		c.AllowedLanguages = []string{"en", "hi"}
	}
	return c
}

// Engine is the single entry point for turn processing. All collaborators
// are fixed at construction and the node graphs are compiled once.
type Engine struct {
	store       statex.Store
	flows       *flowx.Registry
	validators  *validatorx.Registry
	enforcer    *rulesx.Enforcer
	executor    *stepsx.Executor
	retrier     *respondx.Retrier
	prompts     promptx.Set
	transcripts contractx.TranscriptStore
	handoff     contractx.HandoffPublisher

	prepareRunner compose.Runnable[nodex.GraphInput, *nodex.GraphState]
	commitRunner  compose.Runnable[*nodex.GraphState, nodex.GraphOutput]

	cfg Config
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*convLock
}

type Option func(*Engine)

func WithTranscriptStore(ts contractx.TranscriptStore) Option {
	return func(e *Engine) { e.transcripts = ts }
}

func WithHandoffPublisher(p contractx.HandoffPublisher) Option {
	return func(e *Engine) { e.handoff = p }
}

// WithValidators supplies the validator registry the slot extractor looks
// names up in. Pass the same registry the flow registry was gated on, or
// flows naming custom validators will load but never extract.
func WithValidators(reg *validatorx.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.validators = reg
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New wires the engine. gen may be nil, in which case generated steps fall
// back to their template text without calling a model.
func New(
	store statex.Store,
	flows *flowx.Registry,
	gen contractx.Generator,
	cfg Config,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if flows == nil {
		return nil, errors.New("flow registry is required")
	}

	cfg = cfg.withDefaults()

	e := &Engine{
		store: store,
		flows: flows,
		enforcer: rulesx.NewEnforcer(rulesx.Config{
			MaxTotalFailures: cfg.MaxTotalFailures,
			AllowedLanguages: cfg.AllowedLanguages,
		}),
		retrier: respondx.NewRetrier(gen, respondx.Limits{
			MaxChars:     cfg.MaxReplyChars,
			MaxSentences: cfg.MaxSentences,
		}),
		prompts: promptx.LoadSet(),
		cfg:     cfg,
		now:     time.Now,
		locks:   make(map[string]*convLock),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.validators == nil {
		e.validators = validatorx.NewRegistry()
	}
	e.executor = stepsx.NewExecutor(
		validatorx.NewExtractor(e.validators),
		stepsx.Config{MaxStepRetries: cfg.MaxStepRetries},
	)

	ctx := context.Background()
	prepareRunner, err := e.compilePrepareGraph(ctx)
	if err != nil {
		return nil, err
	}
	commitRunner, err := e.compileCommitGraph(ctx)
	if err != nil {
		return nil, err
	}
	e.prepareRunner = prepareRunner
	e.commitRunner = commitRunner

	return e, nil
}

// ProcessTurn runs one turn. Turns for the same conversation id are
// serialized, except while a generator call is in flight: the lock is
// dropped for the model latency and re-taken before commit, where the
// liveness re-check guards the save.
func (e *Engine) ProcessTurn(
	ctx context.Context,
	conversationID string,
	utterance *string,
	opts contractx.TurnOptions,
) (result contractx.TurnResult, err error) {
	unlock := e.lockConversation(conversationID)
	locked := true
	defer func() {
		if locked {
			unlock()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conversation_id", conversationID).Msg("turn panicked")
			result = e.degraded(opts.Language)
			err = nil
		}
	}()

	gs, err := e.prepareRunner.Invoke(ctx, nodex.GraphInput{
		ConversationID: conversationID,
		Utterance:      utterance,
		Opts:           opts,
	})
	if err != nil {
		return e.turnFailure(conversationID, opts, err)
	}

	if gs.NeedsGenerator() {
		locked = false
		unlock()
		gs, err = nodex.RenderReply(ctx, gs, e.retrier, e.prompts)
		if err == nil {
			unlock = e.lockConversation(conversationID)
			locked = true
		}
	} else {
		gs, err = nodex.RenderReply(ctx, gs, e.retrier, e.prompts)
	}
	if err != nil {
		return e.turnFailure(conversationID, opts, err)
	}

	out, err := e.commitRunner.Invoke(ctx, gs)
	if err != nil {
		return e.turnFailure(conversationID, opts, err)
	}
	return out.Result, nil
}

// convLock is one per-conversation mutex plus the count of turns holding or
// waiting on it; the table entry is removed when the count reaches zero.
type convLock struct {
	mu   sync.Mutex
	refs int
}

func (e *Engine) lockConversation(id string) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &convLock{}
		e.locks[id] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) turnFailure(conversationID string, opts contractx.TurnOptions, err error) (contractx.TurnResult, error) {
	if callerError(err) {
		return contractx.TurnResult{}, err
	}
	log.Error().Err(err).Str("conversation_id", conversationID).Msg("turn failed, degrading")
	return e.degraded(opts.Language), nil
}

// degraded is the failure answer: a fixed apology with escalated status so
// the caller routes the user to a human instead of retrying the flow.
func (e *Engine) degraded(language string) contractx.TurnResult {
	lang := strings.TrimSpace(strings.ToLower(language))
	if lang == "" {
		lang = e.cfg.DefaultLanguage
	}
	return contractx.TurnResult{
		Text:   e.prompts.For(lang).Apology,
		Status: contractx.StatusEscalated,
	}
}

func callerError(err error) bool {
	return errors.Is(err, ErrInvalidConversation) ||
		errors.Is(err, ErrInvalidUtterance) ||
		errors.Is(err, ErrInvalidFlow) ||
		errors.Is(err, flowx.ErrFlowNotFound)
}
