package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"lucius-ai/internal/domain"
)

type stubAgent struct {
	name    string
	reply   string
	fail    error
	delay   time.Duration
	calls   int
	callsMu sync.Mutex
}

func (a *stubAgent) Identity() domain.AgentIdentity {
	return domain.AgentIdentity{Name: a.name}
}

func (a *stubAgent) Process(ctx context.Context, message string, _ domain.TaskContext) (domain.Response, error) {
	a.callsMu.Lock()
	a.calls++
	a.callsMu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.fail != nil {
		return domain.Response{}, a.fail
	}
	return domain.Response{Text: a.reply}, nil
}

func (a *stubAgent) callCount() int {
	a.callsMu.Lock()
	defer a.callsMu.Unlock()
	return a.calls
}

type recordingMetrics struct {
	mu     sync.Mutex
	tasks  []string
	errors []string
}

func (m *recordingMetrics) RecordTask(agent string, task domain.TaskRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, agent)
}

func (m *recordingMetrics) RecordError(err error, kind, agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, agent)
}

func newTestEngine(metrics MetricsRecorder, agents ...*stubAgent) *Engine {
	byName := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		byName[a.name] = a
	}
	lookup := func(name string) (domain.Agent, error) {
		if a, ok := byName[name]; ok {
			return a, nil
		}
		return nil, domain.NewDomainError("test.lookup", domain.ErrAgentNotFound, name)
	}
	return NewEngine(lookup, metrics, nil, Config{StepTimeout: time.Second, MaxRunning: 4}, slog.Default())
}

func TestRunCompletesAllSteps(t *testing.T) {
	a := &stubAgent{name: "lucius", reply: "evaluado"}
	b := &stubAgent{name: "mike", reply: "investigado"}
	metrics := &recordingMetrics{}
	e := newTestEngine(metrics, a, b)

	if err := e.Register(domain.WorkflowDefinition{Name: "research", Steps: []string{"lucius", "mike"}}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	state, err := e.Run(context.Background(), "research", "investiga el mercado")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Status != domain.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed", state.Status)
	}
	if state.RunID == "" {
		t.Error("missing run ID")
	}
	// Inbound message plus one entry per step.
	if len(state.Messages) != 3 {
		t.Errorf("messages = %d, want 3", len(state.Messages))
	}
	if state.Messages[0].Agent != "human" {
		t.Errorf("first message from %q, want human", state.Messages[0].Agent)
	}
	if state.LastContent() != "investigado" {
		t.Errorf("LastContent = %q, want investigado", state.LastContent())
	}
	if got := state.Results["mike"].Text; got != "investigado" {
		t.Errorf("Results[mike] = %q", got)
	}
	if len(metrics.tasks) != 2 {
		t.Errorf("task records = %d, want 2", len(metrics.tasks))
	}
}

func TestRunStepFailureEndsRun(t *testing.T) {
	a := &stubAgent{name: "lucius", reply: "ok"}
	b := &stubAgent{name: "mike", fail: errors.New("backend down")}
	c := &stubAgent{name: "tom", reply: "never"}
	metrics := &recordingMetrics{}
	e := newTestEngine(metrics, a, b, c)

	e.Register(domain.WorkflowDefinition{Name: "research", Steps: []string{"lucius", "mike", "tom"}})

	state, err := e.Run(context.Background(), "research", "investiga")
	if err != nil {
		t.Fatalf("Run returned a Go error for a step failure: %v", err)
	}
	if state.Status != domain.RunStatusError {
		t.Fatalf("Status = %q, want error", state.Status)
	}
	last := state.Messages[len(state.Messages)-1]
	if !last.Error || last.Agent != "mike" {
		t.Errorf("trailing message = %+v, want error tagged from mike", last)
	}
	// Later steps are never invoked; both attempted steps are recorded.
	if c.callCount() != 0 {
		t.Errorf("tom was invoked %d times after the failure", c.callCount())
	}
	if len(metrics.tasks) != 2 {
		t.Errorf("task records = %d, want 2", len(metrics.tasks))
	}
	if len(metrics.errors) != 1 {
		t.Errorf("error records = %d, want 1", len(metrics.errors))
	}
}

func TestRunUnknownWorkflow(t *testing.T) {
	e := newTestEngine(&recordingMetrics{})
	_, err := e.Run(context.Background(), "ghost", "hola")
	if !errors.Is(err, domain.ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestRunUnresolvedAgentFailsRun(t *testing.T) {
	a := &stubAgent{name: "lucius", reply: "ok"}
	metrics := &recordingMetrics{}
	e := newTestEngine(metrics, a)

	e.Register(domain.WorkflowDefinition{Name: "broken", Steps: []string{"lucius", "ghost"}})

	state, err := e.Run(context.Background(), "broken", "hola")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Status != domain.RunStatusError {
		t.Fatalf("Status = %q, want error", state.Status)
	}
	if len(metrics.errors) != 1 {
		t.Errorf("error records = %d, want 1", len(metrics.errors))
	}
}

func TestGuardIsAdvisoryOnly(t *testing.T) {
	a := &stubAgent{name: "lucius", reply: "ok"}
	b := &stubAgent{name: "mike", reply: "ok"}
	e := newTestEngine(&recordingMetrics{}, a, b)

	e.Register(domain.WorkflowDefinition{
		Name:  "guarded",
		Steps: []string{"lucius", "mike"},
		Guards: map[string]domain.GuardFunc{
			"mike": func(*domain.WorkflowState) bool { return false },
		},
	})

	state, err := e.Run(context.Background(), "guarded", "hola")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Status != domain.RunStatusCompleted {
		t.Fatalf("Status = %q, want completed", state.Status)
	}
	// A declining guard never skips the step.
	if b.callCount() != 1 {
		t.Errorf("mike invoked %d times, want 1", b.callCount())
	}
}

func TestStepTimeoutIsFailedHandoff(t *testing.T) {
	slow := &stubAgent{name: "mike", reply: "late", delay: 300 * time.Millisecond}
	metrics := &recordingMetrics{}
	byName := map[string]domain.Agent{"mike": slow}
	lookup := func(name string) (domain.Agent, error) {
		if a, ok := byName[name]; ok {
			return a, nil
		}
		return nil, domain.ErrAgentNotFound
	}
	e := NewEngine(lookup, metrics, nil, Config{StepTimeout: 30 * time.Millisecond, MaxRunning: 4}, slog.Default())

	e.Register(domain.WorkflowDefinition{Name: "slow", Steps: []string{"mike"}})

	state, err := e.Run(context.Background(), "slow", "hola")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if state.Status != domain.RunStatusError {
		t.Fatalf("Status = %q, want error", state.Status)
	}
	// The timed-out step still produced a task record (failed handoff).
	if len(metrics.tasks) != 1 {
		t.Errorf("task records = %d, want 1", len(metrics.tasks))
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEngine(&recordingMetrics{})
	if err := e.Register(domain.WorkflowDefinition{Name: "", Steps: []string{"a"}}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty name: got %v", err)
	}
	if err := e.Register(domain.WorkflowDefinition{Name: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("no steps: got %v", err)
	}
}
