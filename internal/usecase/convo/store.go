// Package convo keeps per-thread conversation state: the append-only
// turn history, the current task label, and which agent owns the
// thread. The store never loses a lookup — unknown threads get a fresh
// empty context that is not retained until the first update.
package convo

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"lucius-ai/internal/domain"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIdleTTL sets how long an untouched context survives before
// ReapIdle evicts it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Store) { s.idleTTL = ttl }
}

// Store is the conversation context store. Mutations are atomic per
// store; callers needing whole-turn ordering use the ThreadLocker.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*domain.ConversationContext
	window   time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	entropy  *ulid.MonotonicEntropy
	locker   *ThreadLocker
	logger   *slog.Logger
}

// NewStore creates a Store with the given stickiness window.
func NewStore(stickyWindow time.Duration, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		contexts: make(map[string]*domain.ConversationContext),
		window:   stickyWindow,
		idleTTL:  24 * time.Hour,
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		locker:   NewThreadLocker(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LockThread acquires the per-thread turn lock. The returned unlock
// must be called once the turn is fully handled. The store's own lock
// is never held across agent calls; this one intentionally is, because
// it serializes whole turns on one thread.
func (s *Store) LockThread(ctx context.Context, threadID string) (func(), error) {
	return s.locker.Lock(ctx, threadID)
}

// Get returns a copy of the context for threadID, or a fresh empty one.
// A fresh context is not retained until the first Update. Lookup never
// fails.
func (s *Store) Get(threadID string) *domain.ConversationContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cctx, ok := s.contexts[threadID]; ok {
		return cctx.Clone()
	}
	return &domain.ConversationContext{ThreadID: threadID, History: []domain.Turn{}}
}

// Update appends a history turn with the current timestamp. A non-empty
// task overwrites CurrentTask; a non-empty activeAgent overwrites
// ActiveAgent. This is the only mutator.
func (s *Store) Update(threadID, message, speaker, response, task, activeAgent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cctx, ok := s.contexts[threadID]
	if !ok {
		cctx = &domain.ConversationContext{ThreadID: threadID, History: []domain.Turn{}}
		s.contexts[threadID] = cctx
	}

	now := s.now()
	cctx.History = append(cctx.History, domain.Turn{
		ID:        ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
		Timestamp: now,
		Speaker:   speaker,
		Message:   message,
		Response:  response,
	})
	if task != "" {
		cctx.CurrentTask = task
	}
	if activeAgent != "" {
		cctx.ActiveAgent = activeAgent
	}
}

// ShouldStick reports whether the thread's follow-up should keep going
// to the active agent: ActiveAgent set, history non-empty, and the last
// turn no older than the window. The boundary is inclusive — a message
// arriving exactly at the window edge still sticks.
func (s *Store) ShouldStick(threadID string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cctx, ok := s.contexts[threadID]
	if !ok || cctx.ActiveAgent == "" || len(cctx.History) == 0 {
		return false
	}
	last := cctx.History[len(cctx.History)-1].Timestamp
	return now.Sub(last) <= s.window
}

// Len returns the number of retained contexts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// ReapIdle evicts contexts whose last turn is older than the idle TTL
// and returns how many were removed. Driven by the scheduler.
func (s *Store) ReapIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reaped := 0
	for threadID, cctx := range s.contexts {
		last := cctx.History[len(cctx.History)-1].Timestamp
		if now.Sub(last) > s.idleTTL {
			delete(s.contexts, threadID)
			reaped++
		}
	}
	if reaped > 0 {
		s.logger.Info("idle conversations reaped", "count", reaped, "remaining", len(s.contexts))
	}
	return reaped
}
