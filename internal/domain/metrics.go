package domain

import (
	"context"
	"time"
)

// TaskRecord describes one completed (or failed) agent invocation
// inside a workflow step or a direct dispatch.
type TaskRecord struct {
	Workflow       string    `json:"workflow"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	HandoffSuccess bool      `json:"handoff_success"`
}

// InteractionRecord is one entry in the rolling interaction history.
type InteractionRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Complexity float64   `json:"complexity"`
}

// ErrorRecord is one entry in the capped error list.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Agent     string    `json:"agent,omitempty"`
	Message   string    `json:"message"`
}

// AgentStats aggregates per-worker outcomes.
type AgentStats struct {
	TasksCompleted     int     `json:"tasks_completed"`
	AvgProcessingTime  float64 `json:"avg_processing_time"` // seconds, EMA
	HandoffSuccessRate float64 `json:"handoff_success_rate"`
}

// CognitiveLoadStats feeds the scalar overload estimate.
type CognitiveLoadStats struct {
	InteractionsPerHour int                 `json:"interactions_per_hour"`
	ComplexityScore     float64             `json:"complexity_score"`
	OverrideRate        float64             `json:"override_rate"`
	InteractionHistory  []InteractionRecord `json:"interaction_history"`
}

// SystemHealthStats tracks error and responsiveness aggregates.
type SystemHealthStats struct {
	ResponseTime float64       `json:"response_time"`
	SuccessRate  float64       `json:"success_rate"`
	ErrorRate    int           `json:"error_rate"` // errors in the last hour
	LastErrors   []ErrorRecord `json:"last_errors"`
}

// MetricsSnapshot is the full persisted record, written after every
// mutation. The autonomo_stats key name is part of the stored format.
type MetricsSnapshot struct {
	CognitiveLoad CognitiveLoadStats    `json:"cognitive_load"`
	SystemHealth  SystemHealthStats     `json:"system_health"`
	AgentStats    map[string]AgentStats `json:"autonomo_stats"`
}

// NewMetricsSnapshot returns an empty snapshot with initialized maps.
func NewMetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		CognitiveLoad: CognitiveLoadStats{InteractionHistory: []InteractionRecord{}},
		SystemHealth:  SystemHealthStats{LastErrors: []ErrorRecord{}},
		AgentStats:    make(map[string]AgentStats),
	}
}

// MetricsStore persists snapshots. Load returns (nil, nil) when no
// snapshot exists yet; the service merges loaded data into defaults so
// snapshots written before an agent existed keep loading.
type MetricsStore interface {
	Load(ctx context.Context) (*MetricsSnapshot, error)
	Save(ctx context.Context, snap MetricsSnapshot) error
}
