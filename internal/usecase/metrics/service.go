// Package metrics tracks interactions, per-agent task outcomes, and
// errors, derives a scalar cognitive-load estimate from them, and
// decides when the system should shed load. Every mutation persists the
// full snapshot synchronously through the injected store — crash
// consistency over throughput.
package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"lucius-ai/internal/domain"
)

// Blend weights and smoothing factors for the load estimate.
const (
	complexitySmoothing = 0.3  // weight of the newest sample in the complexity WMA
	timeSmoothing       = 0.1  // weight of the newest sample in the processing-time EMA
	handoffSmoothing    = 0.05 // weight of the newest sample in the handoff-rate EMA

	interactionsWeight = 0.4
	complexityWeight   = 0.4
	overrideWeight     = 0.2

	loadThreshold      = 0.8
	errorRateThreshold = 5
	hourlyTaskCeiling  = 90
	hourlyRateBaseline = 60 // interactions/hour that saturate the rate term

	// The complexity average asymptotes toward its inputs without ever
	// reaching them, so a fully saturated system would otherwise sit a
	// hair under the threshold forever.
	loadEpsilon = 1e-9
)

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithWindowSize caps the rolling interaction window.
func WithWindowSize(n int) Option {
	return func(s *Service) { s.windowSize = n }
}

// WithErrorCap caps the retained error list.
func WithErrorCap(n int) Option {
	return func(s *Service) { s.errorCap = n }
}

// Service is the metrics service. All mutations are serialized by a
// single lock because several scalar aggregates are read-modify-written
// together.
type Service struct {
	mu   sync.Mutex
	snap domain.MetricsSnapshot

	// completions holds per-agent completion timestamps for the rolling
	// hourly throttle check. In-memory only; the persisted snapshot
	// carries the cumulative counters.
	completions map[string][]time.Time

	store      domain.MetricsStore
	windowSize int
	errorCap   int
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a Service, rehydrating any snapshot the store
// holds. Loaded data is merged into the default structure so snapshots
// written before an agent existed keep loading.
func NewService(ctx context.Context, store domain.MetricsStore, logger *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		snap:        domain.NewMetricsSnapshot(),
		completions: make(map[string][]time.Time),
		store:       store,
		windowSize:  1000,
		errorCap:    100,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, domain.WrapOp("metrics.load", err)
	}
	if loaded != nil {
		s.merge(loaded)
		s.logger.Info("metrics snapshot rehydrated",
			"interactions", len(s.snap.CognitiveLoad.InteractionHistory),
			"agents", len(s.snap.AgentStats))
	}
	return s, nil
}

// merge overlays a loaded snapshot onto the default structure.
func (s *Service) merge(loaded *domain.MetricsSnapshot) {
	s.snap.CognitiveLoad.InteractionsPerHour = loaded.CognitiveLoad.InteractionsPerHour
	s.snap.CognitiveLoad.ComplexityScore = loaded.CognitiveLoad.ComplexityScore
	s.snap.CognitiveLoad.OverrideRate = loaded.CognitiveLoad.OverrideRate
	if loaded.CognitiveLoad.InteractionHistory != nil {
		s.snap.CognitiveLoad.InteractionHistory = loaded.CognitiveLoad.InteractionHistory
	}
	s.snap.SystemHealth.ResponseTime = loaded.SystemHealth.ResponseTime
	s.snap.SystemHealth.SuccessRate = loaded.SystemHealth.SuccessRate
	s.snap.SystemHealth.ErrorRate = loaded.SystemHealth.ErrorRate
	if loaded.SystemHealth.LastErrors != nil {
		s.snap.SystemHealth.LastErrors = loaded.SystemHealth.LastErrors
	}
	for name, stats := range loaded.AgentStats {
		s.snap.AgentStats[name] = stats
	}
}

// RecordInteraction appends an interaction to the rolling window,
// recomputes the hourly rate, and folds the complexity sample into the
// weighted moving average.
func (s *Service) RecordInteraction(kind string, complexity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.snap.CognitiveLoad.InteractionHistory = append(s.snap.CognitiveLoad.InteractionHistory, domain.InteractionRecord{
		Timestamp:  now,
		Type:       kind,
		Complexity: complexity,
	})
	// FIFO eviction at capacity; stale entries inside capacity stay in
	// the buffer but fall out of the rate below.
	if n := len(s.snap.CognitiveLoad.InteractionHistory); n > s.windowSize {
		s.snap.CognitiveLoad.InteractionHistory = s.snap.CognitiveLoad.InteractionHistory[n-s.windowSize:]
	}

	s.snap.CognitiveLoad.InteractionsPerHour = s.countRecentInteractions(now)
	s.snap.CognitiveLoad.ComplexityScore = (1-complexitySmoothing)*s.snap.CognitiveLoad.ComplexityScore +
		complexitySmoothing*complexity

	s.persist()
}

// RecordTask records one agent invocation outcome (success or failure).
func (s *Service) RecordTask(agent string, task domain.TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.snap.AgentStats[agent]
	stats.TasksCompleted++

	if !task.Start.IsZero() && !task.End.IsZero() {
		elapsed := task.End.Sub(task.Start).Seconds()
		if stats.AvgProcessingTime == 0 {
			// First sample sets the value directly, no averaging with zero.
			stats.AvgProcessingTime = elapsed
		} else {
			stats.AvgProcessingTime = (1-timeSmoothing)*stats.AvgProcessingTime + timeSmoothing*elapsed
		}
	}

	indicator := 0.0
	if task.HandoffSuccess {
		indicator = 1.0
	}
	stats.HandoffSuccessRate = (1-handoffSmoothing)*stats.HandoffSuccessRate + handoffSmoothing*indicator

	s.snap.AgentStats[agent] = stats

	now := s.now()
	s.completions[agent] = append(s.completions[agent], now)
	s.trimCompletionsLocked(agent, now)

	s.persist()
}

// RecordError appends to the capped error list and recomputes the
// hourly error rate.
func (s *Service) RecordError(err error, kind, agent string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.snap.SystemHealth.LastErrors = append(s.snap.SystemHealth.LastErrors, domain.ErrorRecord{
		Timestamp: now,
		Kind:      kind,
		Agent:     agent,
		Message:   err.Error(),
	})
	if n := len(s.snap.SystemHealth.LastErrors); n > s.errorCap {
		s.snap.SystemHealth.LastErrors = s.snap.SystemHealth.LastErrors[n-s.errorCap:]
	}

	s.snap.SystemHealth.ErrorRate = s.countRecentErrors(now)

	s.persist()
}

// CognitiveLoad blends interaction rate, complexity, and override rate
// into a single 0..1 overload estimate.
func (s *Service) CognitiveLoad() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cognitiveLoadLocked()
}

func (s *Service) cognitiveLoadLocked() float64 {
	rate := float64(s.snap.CognitiveLoad.InteractionsPerHour) / hourlyRateBaseline
	if rate > 1 {
		rate = 1
	}
	return interactionsWeight*rate +
		complexityWeight*s.snap.CognitiveLoad.ComplexityScore +
		overrideWeight*s.snap.CognitiveLoad.OverrideRate
}

// ShouldThrottle reports whether new work should be shed: cognitive
// load above threshold, too many errors in the last hour, or any agent
// completing more than the hourly task ceiling. Advisory — callers
// short-circuit with a "please wait" response instead of invoking
// workers.
func (s *Service) ShouldThrottle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cognitiveLoadLocked() > loadThreshold-loadEpsilon {
		return true
	}
	if s.snap.SystemHealth.ErrorRate > errorRateThreshold {
		return true
	}
	now := s.now()
	for agent := range s.completions {
		s.trimCompletionsLocked(agent, now)
		if len(s.completions[agent]) > hourlyTaskCeiling {
			return true
		}
	}
	return false
}

// Snapshot returns a deep copy of the current snapshot.
func (s *Service) Snapshot() domain.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.snap)
}

// AgentStatus is a derived per-agent health summary.
type AgentStatus struct {
	Active      bool    `json:"active"`
	Load        float64 `json:"load"`
	Reliability float64 `json:"reliability"`
}

// SystemStatus is the derived status summary.
type SystemStatus struct {
	CurrentLoad float64                `json:"current_load"`
	Complexity  float64                `json:"complexity"`
	ErrorRate   int                    `json:"error_rate"`
	Agents      map[string]AgentStatus `json:"agents"`
}

// Status derives a human-consumable summary from the raw aggregates.
func (s *Service) Status() SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SystemStatus{
		CurrentLoad: s.cognitiveLoadLocked(),
		Complexity:  s.snap.CognitiveLoad.ComplexityScore,
		ErrorRate:   s.snap.SystemHealth.ErrorRate,
		Agents:      make(map[string]AgentStatus, len(s.snap.AgentStats)),
	}
	for name, stats := range s.snap.AgentStats {
		load := float64(stats.TasksCompleted) / 100.0
		if load > 1 {
			load = 1
		}
		status.Agents[name] = AgentStatus{
			Active:      stats.AvgProcessingTime > 0,
			Load:        load,
			Reliability: stats.HandoffSuccessRate,
		}
	}
	return status
}

// TrimRetention drops interaction history and completion timestamps
// older than an hour plus refreshes the derived hourly rates. Driven by
// the scheduler to bound memory in a long-running process.
func (s *Service) TrimRetention(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	history := s.snap.CognitiveLoad.InteractionHistory
	kept := history[:0]
	for _, rec := range history {
		if rec.Timestamp.After(cutoff) {
			kept = append(kept, rec)
		}
	}
	s.snap.CognitiveLoad.InteractionHistory = kept
	s.snap.CognitiveLoad.InteractionsPerHour = len(kept)

	for agent := range s.completions {
		s.trimCompletionsLocked(agent, now)
	}
	s.snap.SystemHealth.ErrorRate = s.countRecentErrors(now)

	s.persist()
}

func (s *Service) countRecentInteractions(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	count := 0
	for _, rec := range s.snap.CognitiveLoad.InteractionHistory {
		if rec.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

func (s *Service) countRecentErrors(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	count := 0
	for _, rec := range s.snap.SystemHealth.LastErrors {
		if rec.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

func (s *Service) trimCompletionsLocked(agent string, now time.Time) {
	cutoff := now.Add(-time.Hour)
	times := s.completions[agent]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(s.completions, agent)
		return
	}
	s.completions[agent] = kept
}

// persist writes the snapshot through the store. Called with the lock
// held. A write failure is logged and in-memory state continues —
// fatal to the write, not to the process.
func (s *Service) persist() {
	if err := s.store.Save(context.Background(), copySnapshot(s.snap)); err != nil {
		s.logger.Error("metrics snapshot save failed", "error", err)
	}
}

func copySnapshot(snap domain.MetricsSnapshot) domain.MetricsSnapshot {
	cp := snap
	cp.CognitiveLoad.InteractionHistory = append([]domain.InteractionRecord(nil), snap.CognitiveLoad.InteractionHistory...)
	cp.SystemHealth.LastErrors = append([]domain.ErrorRecord(nil), snap.SystemHealth.LastErrors...)
	cp.AgentStats = make(map[string]domain.AgentStats, len(snap.AgentStats))
	for k, v := range snap.AgentStats {
		cp.AgentStats[k] = v
	}
	return cp
}
