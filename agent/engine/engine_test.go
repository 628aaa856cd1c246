package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
	flowx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/flow"
	statex "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/state"
	validatorx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/validator"
)

const visitFlowDoc = `
id: visit
start: greet
steps:
  - id: greet
    kind: message
    text:
      en: "Hello. What is your phone number?"
      hi: "नमस्ते। आपका फ़ोन नंबर क्या है?"
    next: collect_phone
  - id: collect_phone
    kind: input
    slot: phone
    validator: mobile
    text:
      en: "What is your phone number?"
      hi: "आपका फ़ोन नंबर क्या है?"
    retry_text:
      en: "Please share a ten digit number."
      hi: "कृपया दस अंकों का नंबर भेजिए।"
    next: closing
  - id: closing
    kind: message
    text:
      en: "Thank you, we will be in touch."
      hi: "धन्यवाद, हम संपर्क करेंगे।"
`

const intakeFlowDoc = `
id: intake
start: greeting
steps:
  - id: greeting
    kind: message
    text: {en: "Hi, this is the booking assistant."}
    next: collect_name
  - id: collect_name
    kind: input
    slot: name
    validator: text
    text: {en: "May I know your name?"}
    next: collect_phone
  - id: collect_phone
    kind: input
    slot: phone
    validator: mobile
    text: {en: "What is your phone number?"}
    retry_text: {en: "Please share a ten digit number."}
    next: closing
  - id: closing
    kind: message
    text: {en: "Your details are saved."}
`

const pitchFlowDoc = `
id: pitch
start: ask_phone
steps:
  - id: ask_phone
    kind: input
    slot: phone
    validator: mobile
    text: {en: "What number should we call back on?"}
    retry_text: {en: "Please share a ten digit number."}
    next: pricing
  - id: pricing
    kind: message
    generate: true
    text: {en: "Plans start at forty five lakh."}
    next: closing
  - id: closing
    kind: message
    text: {en: "Talk soon."}
`

type fakeHandoff struct {
	events []contractx.HandoffEvent
	err    error
}

func (f *fakeHandoff) PublishHandoff(ctx context.Context, ev contractx.HandoffEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeTranscripts struct {
	records []contractx.TurnRecord
	err     error
}

func (f *fakeTranscripts) SaveTurn(ctx context.Context, rec contractx.TurnRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

// failingStore lets Load succeed against an inner store but fails Save.
type failingStore struct {
	inner statex.Store
}

func (f failingStore) Load(ctx context.Context, id string) (*statex.ConversationState, error) {
	return f.inner.Load(ctx, id)
}

func (f failingStore) Save(ctx context.Context, st *statex.ConversationState) error {
	return errors.New("backend unavailable")
}

func (f failingStore) Delete(ctx context.Context, id string) error {
	return f.inner.Delete(ctx, id)
}

func newTestFlows(t *testing.T) *flowx.Registry {
	t.Helper()
	flows := flowx.NewRegistry(validatorx.NewRegistry().Has)
	for _, doc := range []string{visitFlowDoc, intakeFlowDoc, pitchFlowDoc} {
		if err := flows.LoadYAML([]byte(doc)); err != nil {
			t.Fatalf("load test flow: %v", err)
		}
	}
	return flows
}

func newTestEngine(t *testing.T, store statex.Store, opts ...Option) *Engine {
	t.Helper()
	eng, err := New(store, newTestFlows(t), nil, Config{}, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return eng
}

func openConversation(t *testing.T, eng *Engine, conversationID string) contractx.TurnResult {
	t.Helper()
	result, err := eng.ProcessTurn(context.Background(), conversationID, nil, contractx.TurnOptions{FlowID: "visit"})
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	return result
}

func turn(t *testing.T, eng *Engine, conversationID, utterance string) contractx.TurnResult {
	t.Helper()
	result, err := eng.ProcessTurn(context.Background(), conversationID, &utterance, contractx.TurnOptions{})
	if err != nil {
		t.Fatalf("turn %q: %v", utterance, err)
	}
	return result
}

func TestProcessTurnInvalidInput(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	_, err := eng.ProcessTurn(context.Background(), "  ", nil, contractx.TurnOptions{FlowID: "visit"})
	if !errors.Is(err, ErrInvalidConversation) {
		t.Fatalf("error = %v, want ErrInvalidConversation", err)
	}

	empty := "   "
	_, err = eng.ProcessTurn(context.Background(), "c1", &empty, contractx.TurnOptions{})
	if !errors.Is(err, ErrInvalidUtterance) {
		t.Fatalf("error = %v, want ErrInvalidUtterance", err)
	}

	_, err = eng.ProcessTurn(context.Background(), "c1", nil, contractx.TurnOptions{})
	if !errors.Is(err, ErrInvalidFlow) {
		t.Fatalf("error = %v, want ErrInvalidFlow", err)
	}

	_, err = eng.ProcessTurn(context.Background(), "c1", nil, contractx.TurnOptions{FlowID: "nope"})
	if !errors.Is(err, flowx.ErrFlowNotFound) {
		t.Fatalf("error = %v, want ErrFlowNotFound", err)
	}
}

func TestProcessTurnHappyPath(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	transcripts := &fakeTranscripts{}
	eng := newTestEngine(t, store, WithTranscriptStore(transcripts))

	opened := openConversation(t, eng, "c-happy")
	if opened.Status != contractx.StatusInProgress {
		t.Fatalf("opened status = %q", opened.Status)
	}
	if opened.Text != "Hello. What is your phone number?" {
		t.Fatalf("opened text = %q", opened.Text)
	}
	if opened.StepID != "collect_phone" {
		t.Fatalf("opened step = %q", opened.StepID)
	}

	done := turn(t, eng, "c-happy", "it's +91 98765 43210")
	if done.Status != contractx.StatusComplete {
		t.Fatalf("status = %q, want complete", done.Status)
	}
	if done.Text != "Thank you, we will be in touch." {
		t.Fatalf("text = %q", done.Text)
	}
	if done.Slots["phone"] != "9876543210" {
		t.Fatalf("phone slot = %q", done.Slots["phone"])
	}

	if len(transcripts.records) != 2 {
		t.Fatalf("transcript records = %d, want 2", len(transcripts.records))
	}
	if transcripts.records[1].Status != contractx.StatusComplete {
		t.Fatalf("last record status = %q", transcripts.records[1].Status)
	}
}

func TestProcessTurnIntakeWalkthrough(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	opened, err := eng.ProcessTurn(context.Background(), "c-intake", nil, contractx.TurnOptions{FlowID: "intake"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.StepID != "collect_name" {
		t.Fatalf("opened step = %q, want collect_name", opened.StepID)
	}

	named := turn(t, eng, "c-intake", "My name is Asha")
	if named.Slots["name"] != "Asha" {
		t.Fatalf("name slot = %q, want Asha", named.Slots["name"])
	}
	if named.StepID != "collect_phone" {
		t.Fatalf("step after name = %q, want collect_phone", named.StepID)
	}

	retried := turn(t, eng, "c-intake", "not a number")
	if retried.StepID != "collect_phone" || retried.RetryCount != 1 {
		t.Fatalf("retry turn = %+v, want stay with retryCount 1", retried)
	}

	done := turn(t, eng, "c-intake", "9876543210")
	if done.Status != contractx.StatusComplete {
		t.Fatalf("status = %q, want complete", done.Status)
	}
	if done.Slots["phone"] != "9876543210" {
		t.Fatalf("phone slot = %q", done.Slots["phone"])
	}
	if done.Text != "Your details are saved." {
		t.Fatalf("closing text = %q", done.Text)
	}
}

func TestProcessTurnRetryThenEscalate(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	handoff := &fakeHandoff{}
	eng := newTestEngine(t, store, WithHandoffPublisher(handoff))

	openConversation(t, eng, "c-retry")

	first := turn(t, eng, "c-retry", "i will not say")
	if first.Text != "Please share a ten digit number." {
		t.Fatalf("first retry text = %q", first.Text)
	}
	if first.RetryCount != 1 {
		t.Fatalf("first retry count = %d", first.RetryCount)
	}

	second := turn(t, eng, "c-retry", "still no")
	if second.RetryCount != 2 {
		t.Fatalf("second retry count = %d", second.RetryCount)
	}
	if second.Status != contractx.StatusInProgress {
		t.Fatalf("second status = %q", second.Status)
	}

	third := turn(t, eng, "c-retry", "never")
	if third.Status != contractx.StatusEscalated {
		t.Fatalf("third status = %q, want escalated", third.Status)
	}
	if !strings.Contains(third.Text, "connecting you") {
		t.Fatalf("third text = %q, want handoff message", third.Text)
	}
	if len(handoff.events) != 1 {
		t.Fatalf("handoff events = %d, want 1", len(handoff.events))
	}
	if handoff.events[0].Reason != "max_retries_exceeded" {
		t.Fatalf("handoff reason = %q", handoff.events[0].Reason)
	}

	// the conversation is absorbed: another turn repeats the handoff
	// message and publishes nothing new
	fourth := turn(t, eng, "c-retry", "hello?")
	if fourth.Status != contractx.StatusEscalated {
		t.Fatalf("fourth status = %q", fourth.Status)
	}
	if len(handoff.events) != 1 {
		t.Fatalf("handoff events after terminal turn = %d, want 1", len(handoff.events))
	}
}

func TestProcessTurnLanguageSwitch(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	openConversation(t, eng, "c-lang")

	result := turn(t, eng, "c-lang", "please talk in hindi")
	if !result.LanguageChanged {
		t.Fatal("language change not reported")
	}
	if result.Text != "कृपया दस अंकों का नंबर भेजिए।" {
		t.Fatalf("retry text = %q, want the hindi prompt", result.Text)
	}

	done := turn(t, eng, "c-lang", "9876543210")
	if done.Status != contractx.StatusComplete {
		t.Fatalf("status = %q", done.Status)
	}
	if done.Text != "धन्यवाद, हम संपर्क करेंगे।" {
		t.Fatalf("closing text = %q, want hindi", done.Text)
	}
}

func TestProcessTurnUnknownConversation(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	utterance := "hello"
	result, err := eng.ProcessTurn(context.Background(), "never-seen", &utterance, contractx.TurnOptions{})
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if result.Status != contractx.StatusNotFound {
		t.Fatalf("status = %q, want not_found", result.Status)
	}
	if result.Text != "I could not find this conversation. Please start a new one." {
		t.Fatalf("text = %q", result.Text)
	}
}

func TestProcessTurnReopenRepeatsPrompt(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	openConversation(t, eng, "c-reopen")

	// a second first-turn call for a live conversation resumes it
	reopened := openConversation(t, eng, "c-reopen")
	if reopened.Status != contractx.StatusInProgress {
		t.Fatalf("status = %q", reopened.Status)
	}
	if reopened.StepID != "collect_phone" {
		t.Fatalf("step = %q, want collect_phone", reopened.StepID)
	}
	if reopened.Text != "What is your phone number?" {
		t.Fatalf("text = %q", reopened.Text)
	}
}

func TestProcessTurnDegradesOnStoreFailure(t *testing.T) {
	t.Parallel()

	inner := statex.NewMemoryStore()
	t.Cleanup(inner.Close)
	eng := newTestEngine(t, failingStore{inner: inner})

	result, err := eng.ProcessTurn(context.Background(), "c-broken", nil, contractx.TurnOptions{FlowID: "visit"})
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v, want graceful degradation", err)
	}
	if result.Status != contractx.StatusEscalated {
		t.Fatalf("status = %q, want escalated", result.Status)
	}
	if !strings.Contains(result.Text, "Sorry") {
		t.Fatalf("text = %q, want apology", result.Text)
	}
}

func TestProcessTurnSerializesSameConversation(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	openConversation(t, eng, "c-par")

	done := make(chan struct{})
	go func() {
		defer close(done)
		turn(t, eng, "c-par", "no phone from me")
	}()
	turn(t, eng, "c-par", "not telling either")
	<-done

	st, err := store.Load(context.Background(), "c-par")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if st.TotalFailures != 2 {
		t.Fatalf("total failures = %d, want 2 (no lost update)", st.TotalFailures)
	}
}

// gateGenerator blocks its single invocation until released, so a test can
// observe what the engine allows while the model call is in flight.
type gateGenerator struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateGenerator) Generate(ctx context.Context, instruction string) (string, error) {
	close(g.entered)
	<-g.release
	return `{"action":"speak","text":"Plans start at forty five lakh."}`, nil
}

func TestProcessTurnReleasesLockDuringGeneration(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	gen := &gateGenerator{entered: make(chan struct{}), release: make(chan struct{})}

	eng, err := New(store, newTestFlows(t), gen, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = eng.ProcessTurn(context.Background(), "c-gen", nil, contractx.TurnOptions{FlowID: "pitch"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	type turnOut struct {
		res contractx.TurnResult
		err error
	}
	done := make(chan turnOut, 1)
	go func() {
		utterance := "9876543210"
		res, err := eng.ProcessTurn(context.Background(), "c-gen", &utterance, contractx.TurnOptions{})
		done <- turnOut{res: res, err: err}
	}()
	<-gen.entered

	// the model call is in flight; a turn for the same conversation must
	// still get through instead of queueing behind it
	during := turn(t, eng, "c-gen", "hello there")
	if during.Text != "Please share a ten digit number." {
		t.Fatalf("concurrent turn text = %q, want the retry prompt", during.Text)
	}

	close(gen.release)
	out := <-done
	if out.err != nil {
		t.Fatalf("generated turn error = %v", out.err)
	}
	if out.res.Status != contractx.StatusComplete {
		t.Fatalf("generated turn status = %q, want complete", out.res.Status)
	}
	if out.res.Text != "Plans start at forty five lakh." {
		t.Fatalf("generated turn text = %q", out.res.Text)
	}
}

const otpFlowDoc = `
id: otp_login
start: ask_code
steps:
  - id: ask_code
    kind: input
    slot: code
    validator: otp6
    text: {en: "Please read out the six digit code."}
    retry_text: {en: "That code does not look right."}
    next: closing
  - id: closing
    kind: message
    text: {en: "You are signed in."}
`

func TestProcessTurnUsesInjectedValidators(t *testing.T) {
	t.Parallel()

	validators := validatorx.NewRegistry()
	err := validators.Register("otp6", validatorx.Func(func(raw string) (string, error) {
		var digits strings.Builder
		for _, r := range raw {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() != 6 {
			return "", errors.New("expected a six digit code")
		}
		return digits.String(), nil
	}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	flows := flowx.NewRegistry(validators.Has)
	if err := flows.LoadYAML([]byte(otpFlowDoc)); err != nil {
		t.Fatalf("load otp flow: %v", err)
	}

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng, err := New(store, flows, nil, Config{}, WithValidators(validators))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = eng.ProcessTurn(context.Background(), "c-otp", nil, contractx.TurnOptions{FlowID: "otp_login"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	result := turn(t, eng, "c-otp", "the code is 123456")
	if result.Slots["code"] != "123456" {
		t.Fatalf("code slot = %q, want the extracted code", result.Slots["code"])
	}
	if result.Status != contractx.StatusComplete {
		t.Fatalf("status = %q, want complete", result.Status)
	}
}

func TestProcessTurnLockTableIsBounded(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	openConversation(t, eng, "c-locks")
	turn(t, eng, "c-locks", "9876543210")

	eng.mu.Lock()
	entries := len(eng.locks)
	eng.mu.Unlock()
	if entries != 0 {
		t.Fatalf("lock table entries = %d, want 0 once no turn is in flight", entries)
	}
}

// countingStore counts Save calls against an inner store.
type countingStore struct {
	statex.Store
	saves int
}

func (c *countingStore) Save(ctx context.Context, st *statex.ConversationState) error {
	c.saves++
	return c.Store.Save(ctx, st)
}

func TestProcessTurnTerminalTurnDoesNotResave(t *testing.T) {
	t.Parallel()

	inner := statex.NewMemoryStore()
	t.Cleanup(inner.Close)
	store := &countingStore{Store: inner}
	eng := newTestEngine(t, store)

	openConversation(t, eng, "c-done")
	turn(t, eng, "c-done", "9876543210")
	if store.saves != 2 {
		t.Fatalf("saves during flow = %d, want 2", store.saves)
	}

	repeat := turn(t, eng, "c-done", "hello again")
	if repeat.Status != contractx.StatusComplete {
		t.Fatalf("terminal turn status = %q", repeat.Status)
	}
	if store.saves != 2 {
		t.Fatalf("saves after terminal turn = %d, want 2 (the record's ttl must not be refreshed)", store.saves)
	}
}

func TestProcessTurnExpiredConversationNotFound(t *testing.T) {
	t.Parallel()

	current := time.Now().UTC()
	store := statex.NewMemoryStore(
		statex.WithMemoryTTL(30*time.Minute),
		statex.WithClock(func() time.Time { return current }),
	)
	t.Cleanup(store.Close)
	eng := newTestEngine(t, store)

	openConversation(t, eng, "c-old")
	current = current.Add(31 * time.Minute)

	utterance := "9876543210"
	result, err := eng.ProcessTurn(context.Background(), "c-old", &utterance, contractx.TurnOptions{})
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if result.Status != contractx.StatusNotFound {
		t.Fatalf("status = %q, want not_found for an expired conversation", result.Status)
	}
}
