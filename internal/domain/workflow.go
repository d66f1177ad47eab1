package domain

import "time"

// Workflow run status values.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusError     = "error"
)

// GuardFunc is an advisory predicate evaluated before a workflow step.
// Guards never redirect flow; a false result is logged and the engine
// proceeds (steps are strictly linear).
type GuardFunc func(state *WorkflowState) bool

// WorkflowDefinition is a named, ordered sequence of agent names with
// optional per-step guards and advisory transition labels. Immutable
// once registered with the engine.
type WorkflowDefinition struct {
	Name        string
	Steps       []string
	Guards      map[string]GuardFunc // keyed by agent name
	Transitions map[string][]string  // advisory labels per agent name
}

// WorkflowMessage is one entry in a run's transcript.
type WorkflowMessage struct {
	Agent     string    `json:"agent"` // "human" for the inbound message
	Content   string    `json:"content"`
	Error     bool      `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WorkflowState tracks a single run. Created per invocation, owned by
// one engine run, discarded at terminal status.
type WorkflowState struct {
	RunID     string              `json:"run_id"` // ULID
	Name      string              `json:"name"`
	Messages  []WorkflowMessage   `json:"messages"`
	StepIndex int                 `json:"step_index"`
	Results   map[string]Response `json:"results"` // keyed by agent name, last write wins
	Extra     map[string]any      `json:"extra,omitempty"`
	Status    string              `json:"status"`
	StartedAt time.Time           `json:"started_at"`
}

// LastContent returns the content of the most recent transcript entry.
func (s *WorkflowState) LastContent() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}
