// Package workflow executes named, ordered sequences of agents. Steps
// are strictly linear; guards are advisory. A failed step ends the run
// with no retry and no rollback of earlier steps' effects.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"lucius-ai/internal/domain"
	"lucius-ai/internal/infra/tracer"
)

// AgentLookup resolves an agent name to its instance. Injected as a
// closure (registry.Lookup()) to avoid an import cycle.
type AgentLookup func(name string) (domain.Agent, error)

// MetricsRecorder is the slice of the metrics service the engine needs.
type MetricsRecorder interface {
	RecordTask(agent string, task domain.TaskRecord)
	RecordError(err error, kind, agent string)
}

// Config holds engine tuning.
type Config struct {
	StepTimeout time.Duration // bound on one agent call; expiry is a failed handoff
	MaxRunning  int           // concurrent run ceiling
}

// Engine runs workflow definitions against registered agents.
type Engine struct {
	lookup  AgentLookup
	metrics MetricsRecorder
	bus     domain.EventBus // nil = no events
	cfg     Config
	logger  *slog.Logger

	mu        sync.RWMutex
	workflows map[string]domain.WorkflowDefinition

	running atomic.Int32
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewEngine creates an engine. bus may be nil.
func NewEngine(lookup AgentLookup, metrics MetricsRecorder, bus domain.EventBus, cfg Config, logger *slog.Logger) *Engine {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.MaxRunning <= 0 {
		cfg.MaxRunning = 8
	}
	return &Engine{
		lookup:    lookup,
		metrics:   metrics,
		bus:       bus,
		cfg:       cfg,
		logger:    logger,
		workflows: make(map[string]domain.WorkflowDefinition),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Register adds a workflow definition. Definitions are immutable once
// registered; re-registering a name replaces it.
func (e *Engine) Register(def domain.WorkflowDefinition) error {
	if def.Name == "" || len(def.Steps) == 0 {
		return domain.NewDomainError("Engine.Register", domain.ErrInvalidInput, "workflow needs a name and at least one step")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[def.Name] = def
	e.logger.Info("workflow registered", "workflow", def.Name, "steps", len(def.Steps))
	return nil
}

// Names returns the registered workflow names.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.workflows))
	for name := range e.workflows {
		names = append(names, name)
	}
	return names
}

// Run executes the named workflow against the inbound message. The
// returned state is terminal: completed, or error with an error-tagged
// trailing message. Step failures do not produce a Go error — callers
// inspect Status. Run errors only for an unknown workflow or when the
// concurrent run ceiling is hit.
func (e *Engine) Run(ctx context.Context, name, message string) (*domain.WorkflowState, error) {
	e.mu.RLock()
	def, ok := e.workflows[name]
	e.mu.RUnlock()
	if !ok {
		return nil, domain.NewDomainError("Engine.Run", domain.ErrWorkflowNotFound, name)
	}

	if int(e.running.Load()) >= e.cfg.MaxRunning {
		return nil, domain.NewDomainError("Engine.Run", domain.ErrThrottled,
			fmt.Sprintf("%d runs in flight", e.running.Load()))
	}
	e.running.Add(1)
	defer e.running.Add(-1)

	ctx, span := tracer.StartSpan(ctx, "workflow.run")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("workflow", name))

	now := e.now()
	state := &domain.WorkflowState{
		RunID:     ulid.MustNew(ulid.Timestamp(now), e.entropy).String(),
		Name:      name,
		Status:    domain.RunStatusRunning,
		StartedAt: now,
		Results:   make(map[string]domain.Response),
		Extra:     make(map[string]any),
		Messages: []domain.WorkflowMessage{{
			Agent:     "human",
			Content:   message,
			Timestamp: now,
		}},
	}

	e.emit(ctx, domain.EventWorkflowStarted, map[string]string{"run_id": state.RunID, "workflow": name})
	e.execute(ctx, def, state)

	if state.Status == domain.RunStatusError {
		tracer.RecordError(span, fmt.Errorf("workflow %s: %s", name, state.LastContent()))
		e.emit(ctx, domain.EventWorkflowFailed, map[string]string{"run_id": state.RunID, "workflow": name})
	} else {
		tracer.SetOK(span)
		e.emit(ctx, domain.EventWorkflowCompleted, map[string]string{"run_id": state.RunID, "workflow": name})
	}
	return state, nil
}

// execute walks the steps until error, exhaustion, or the transcript
// ceiling. The ceiling mirrors the shipped two/four-step workflows'
// fixed stop: one inbound message plus two entries per step.
func (e *Engine) execute(ctx context.Context, def domain.WorkflowDefinition, state *domain.WorkflowState) {
	ceiling := 2*len(def.Steps) + 1

	for i, agentName := range def.Steps {
		state.StepIndex = i

		if len(state.Messages) >= ceiling {
			e.logger.Debug("message ceiling reached", "workflow", def.Name, "run_id", state.RunID)
			break
		}

		agent, err := e.lookup(agentName)
		if err != nil {
			// Unresolved step name is fatal for the run, no retry.
			e.metrics.RecordError(err, "workflow_error", agentName)
			e.failRun(state, agentName, fmt.Sprintf("agent %q unavailable", agentName))
			return
		}

		if guard, ok := def.Guards[agentName]; ok && guard != nil && !guard(state) {
			// Advisory only: guards are evaluated but never redirect flow.
			e.logger.Debug("guard declined", "workflow", def.Name, "step", agentName, "run_id", state.RunID)
		}

		resp, err := e.invokeStep(ctx, def.Name, agent, state)
		if err != nil {
			e.metrics.RecordError(err, "agent_error", agentName)
			e.failRun(state, agentName, fmt.Sprintf("error: %v", err))
			return
		}

		state.Messages = append(state.Messages, domain.WorkflowMessage{
			Agent:     agentName,
			Content:   resp.Text,
			Timestamp: e.now(),
		})
		state.Results[agentName] = resp

		e.emit(ctx, domain.EventWorkflowStep, map[string]string{
			"run_id":   state.RunID,
			"workflow": def.Name,
			"step":     agentName,
		})
	}

	state.Status = domain.RunStatusCompleted
}

// invokeStep calls one agent under the step timeout and records the
// task outcome either way. Timeout expiry counts as a failed handoff.
func (e *Engine) invokeStep(ctx context.Context, workflowName string, agent domain.Agent, state *domain.WorkflowState) (domain.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	ctx, span := tracer.StartSpan(ctx, "workflow.step")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("workflow", workflowName),
		tracer.StringAttr("agent", agent.Identity().Name),
	)

	tctx := domain.TaskContext{
		"workflow": workflowName,
		"results":  state.Results,
		"extra":    state.Extra,
	}

	start := e.now()
	resp, err := callAgent(ctx, agent, state.LastContent(), tctx)
	end := e.now()

	e.metrics.RecordTask(agent.Identity().Name, domain.TaskRecord{
		Workflow:       workflowName,
		Start:          start,
		End:            end,
		HandoffSuccess: err == nil,
	})

	if err != nil {
		tracer.RecordError(span, err)
		return domain.Response{}, err
	}
	tracer.SetOK(span)
	return resp, nil
}

// callAgent runs the agent call in its own goroutine so a worker that
// ignores ctx still cannot stall the run past the timeout.
func callAgent(ctx context.Context, agent domain.Agent, message string, tctx domain.TaskContext) (domain.Response, error) {
	type result struct {
		resp domain.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := agent.Process(ctx, message, tctx)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return domain.Response{}, domain.NewDomainError("Engine.callAgent", domain.ErrTimeout, agent.Identity().Name)
	}
}

func (e *Engine) failRun(state *domain.WorkflowState, agentName, content string) {
	state.Status = domain.RunStatusError
	state.Messages = append(state.Messages, domain.WorkflowMessage{
		Agent:     agentName,
		Content:   content,
		Error:     true,
		Timestamp: e.now(),
	})
}

func (e *Engine) emit(ctx context.Context, eventType domain.EventType, data map[string]string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(ctx, domain.Event{Type: eventType, Timestamp: e.now(), Data: data})
}
