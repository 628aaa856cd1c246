package respond

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	outputs []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, instruction string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, instruction)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.outputs) {
		idx = len(f.outputs) - 1
	}
	return f.outputs[idx], nil
}

func TestDeliverWithoutGeneratorFallsBack(t *testing.T) {
	t.Parallel()

	r := NewRetrier(nil, Limits{})
	d := r.Deliver(context.Background(), "Plans start at 45 lakh.", "en")
	if !d.FellBack {
		t.Fatal("expected fallback")
	}
	if d.Text != "Plans start at 45 lakh." {
		t.Fatalf("text = %q", d.Text)
	}
}

func TestDeliverFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{outputs: []string{`{"action":"speak","text":"Plans begin at 45 lakh, shall I share details?"}`}}
	r := NewRetrier(gen, Limits{})

	d := r.Deliver(context.Background(), "Plans start at 45 lakh.", "en")
	if d.FellBack {
		t.Fatalf("unexpected fallback: %+v", d)
	}
	if d.Attempts != 1 || gen.calls != 1 {
		t.Fatalf("attempts = %d, calls = %d", d.Attempts, gen.calls)
	}
}

func TestDeliverRetriesWithStricterInstruction(t *testing.T) {
	t.Parallel()

	longSentence := strings.Repeat("many words here ", 12) + "with no break at all"
	gen := &fakeGenerator{outputs: []string{
		longSentence,
		"Plans start at 45 lakh.",
	}}
	r := NewRetrier(gen, Limits{MaxChars: 60})

	d := r.Deliver(context.Background(), "Plans start at 45 lakh.", "en")
	if d.FellBack {
		t.Fatalf("unexpected fallback: %+v", d)
	}
	if d.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", d.Attempts)
	}
	if len(gen.prompts) != 2 {
		t.Fatalf("prompts = %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[1], "Say exactly this") {
		t.Fatalf("second prompt not strict: %q", gen.prompts[1])
	}
}

func TestDeliverExhaustedFallsBack(t *testing.T) {
	t.Parallel()

	longSentence := strings.Repeat("many words here ", 12) + "with no break at all"
	gen := &fakeGenerator{outputs: []string{longSentence}}
	r := NewRetrier(gen, Limits{MaxChars: 60})

	d := r.Deliver(context.Background(), "Plans start at 45 lakh.", "en")
	if !d.FellBack {
		t.Fatalf("expected fallback: %+v", d)
	}
	if d.Text != "Plans start at 45 lakh." {
		t.Fatalf("text = %q", d.Text)
	}
	if gen.calls != 2 || d.Attempts != 2 {
		t.Fatalf("generator calls = %d, attempts = %d, want 2 and 2", gen.calls, d.Attempts)
	}
}

func TestDeliverGeneratorErrorFallsBack(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{err: errors.New("upstream timeout")}
	r := NewRetrier(gen, Limits{})

	d := r.Deliver(context.Background(), "Plans start at 45 lakh.", "en")
	if !d.FellBack {
		t.Fatal("expected fallback")
	}
	if gen.calls != 1 {
		t.Fatalf("generator calls = %d, want 1 (no retry after invoke error)", gen.calls)
	}
	if d.Attempts != 1 {
		t.Fatalf("attempts = %d, want the single invocation actually made", d.Attempts)
	}
}

func TestDeliverSilenceFallsBack(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{outputs: []string{`{"action":"silence"}`}}
	r := NewRetrier(gen, Limits{})

	d := r.Deliver(context.Background(), "Plans start at 45 lakh.", "en")
	if !d.FellBack {
		t.Fatal("expected fallback for a silent generated reply")
	}
	if d.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", d.Attempts)
	}
}
