package state

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreSaveLoadClones(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	t.Cleanup(store.Close)

	st := NewConversationState("conv-1", "test", "greet", "en", time.Now())
	st.SetSlot("phone", "9876543210")
	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// mutating the original must not leak into the stored copy
	st.SetSlot("phone", "0000000000")

	loaded, err := store.Load(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Slots["phone"] != "9876543210" {
		t.Fatalf("phone = %q, want stored value", loaded.Slots["phone"])
	}

	// and mutating the loaded copy must not leak back
	loaded.SetSlot("phone", "1111111111")
	again, err := store.Load(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if again.Slots["phone"] != "9876543210" {
		t.Fatalf("phone = %q after reload", again.Slots["phone"])
	}
}

func TestMemoryStoreLoadUnknown(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	t.Cleanup(store.Close)

	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestMemoryStoreExpiredRecordIsNotFound(t *testing.T) {
	t.Parallel()

	current := time.Now().UTC()
	clock := func() time.Time { return current }
	store := NewMemoryStore(WithMemoryTTL(30*time.Minute), WithClock(clock))
	t.Cleanup(store.Close)

	st := NewConversationState("conv-1", "test", "greet", "en", current)
	if err := store.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	current = current.Add(31 * time.Minute)

	// the record is still in the map but past its TTL; Load must apply the
	// same liveness check the sweeper uses
	if _, err := store.Load(context.Background(), "conv-1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	current := time.Now().UTC()
	clock := func() time.Time { return current }
	store := NewMemoryStore(WithMemoryTTL(30*time.Minute), WithClock(clock))
	t.Cleanup(store.Close)

	old := NewConversationState("old", "test", "greet", "en", current.Add(-time.Hour))
	old.UpdatedAt = current.Add(-time.Hour)
	fresh := NewConversationState("fresh", "test", "greet", "en", current)

	if err := store.Save(context.Background(), old); err != nil {
		t.Fatalf("Save(old) error = %v", err)
	}
	if err := store.Save(context.Background(), fresh); err != nil {
		t.Fatalf("Save(fresh) error = %v", err)
	}

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("Sweep() = %d, want 1", removed)
	}
	if removed := store.Sweep(); removed != 0 {
		t.Fatalf("second Sweep() = %d, want 0", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", store.Len())
	}
	if _, err := store.Load(context.Background(), "fresh"); err != nil {
		t.Fatalf("fresh record lost: %v", err)
	}
}

func TestConversationStateMoveToForbidden(t *testing.T) {
	t.Parallel()

	st := NewConversationState("conv-1", "test", "greet", "en", time.Now())
	st.ForbidStep("collect_phone")

	if err := st.MoveTo("collect_phone"); !errors.Is(err, ErrForbiddenStep) {
		t.Fatalf("MoveTo() error = %v, want ErrForbiddenStep", err)
	}
	if st.CurrentStep != "greet" {
		t.Fatalf("cursor moved to %q", st.CurrentStep)
	}
}

func TestConversationStateValidate(t *testing.T) {
	t.Parallel()

	st := NewConversationState("conv-1", "test", "greet", "en", time.Now())
	if err := st.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	st.Escalated = true
	st.Completed = true
	if err := st.Validate(); !errors.Is(err, ErrInvariantViolated) {
		t.Fatalf("Validate() error = %v, want ErrInvariantViolated", err)
	}
}
