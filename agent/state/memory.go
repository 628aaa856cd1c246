package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultSweepInterval = time.Minute

// MemoryStore keeps conversation state in process memory. It is a single
// instance store: liveness is decided by the record's UpdatedAt timestamp and
// a periodic sweep removes records past their TTL. Load applies the same
// timestamp check, so a turn that races the sweep still sees an expired
// record as not found.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*ConversationState

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

type MemoryStoreOption func(*MemoryStore)

func WithMemoryTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

func WithSweepInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		items:         make(map[string]*ConversationState, 64),
		ttl:           defaultStoreTTL,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// StartSweeper launches the periodic expiry sweep. It returns immediately;
// the sweep stops when ctx is cancelled or Close is called.
func (s *MemoryStore) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				removed := s.Sweep()
				if removed > 0 {
					log.Debug().Int("removed", removed).Msg("conversation state sweep")
				}
			}
		}
	}()
}

// Sweep removes every expired record and returns how many were dropped.
// It is idempotent; sweeping twice in a row removes nothing the second time.
func (s *MemoryStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, st := range s.items {
		if st.Expired(now, s.ttl) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *MemoryStore) Load(ctx context.Context, conversationID string) (*ConversationState, error) {
	if conversationID == "" {
		return nil, ErrInvalidConv
	}

	s.mu.RLock()
	st, ok := s.items[conversationID]
	s.mu.RUnlock()

	if !ok || st.Expired(s.now(), s.ttl) {
		return nil, ErrStateNotFound
	}
	return cloneState(st)
}

func (s *MemoryStore) Save(ctx context.Context, st *ConversationState) error {
	if st == nil {
		return ErrNilState
	}
	if st.ConversationID == "" {
		return ErrInvalidConv
	}
	st.EnsureMaps()

	clone, err := cloneState(st)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.items[st.ConversationID] = clone
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	delete(s.items, conversationID)
	s.mu.Unlock()
	return nil
}

// Len is a test/diagnostics helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// cloneState round-trips through JSON so callers never share mutable maps
// with the store, matching the semantics of an external keyed store.
func cloneState(st *ConversationState) (*ConversationState, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("clone conversation state: %w", err)
	}
	var out ConversationState
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("clone conversation state: %w", err)
	}
	out.EnsureMaps()
	return &out, nil
}
