// Package dispatch is the top-level entry point for inbound requests:
// it applies the inbound rate limit and the metrics-driven throttle,
// keeps a thread's follow-ups with the agent that owns it, classifies
// everything else to a single agent or a workflow, and records the turn
// in the conversation store. Every Handle call mutates the store.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"lucius-ai/internal/domain"
	"lucius-ai/internal/infra/tracer"
	"lucius-ai/internal/usecase/convo"
	"lucius-ai/internal/usecase/registry"
	"lucius-ai/internal/usecase/workflow"
)

// User-visible responses. The assistant speaks Spanish.
const (
	msgThrottled   = "Sistema temporalmente sobrecargado, por favor espere."
	msgRateLimited = "Demasiadas solicitudes seguidas, por favor espere un momento."
	msgUnavailable = "Lo siento, ese asistente no está disponible en este momento."
	msgNotFound    = "Lo siento, no encontré cómo atender esa solicitud."
	msgApology     = "Lo siento, ocurrió un problema al procesar tu solicitud. Por favor, inténtalo de nuevo."
)

// Metrics is the slice of the metrics service the dispatcher needs.
type Metrics interface {
	RecordInteraction(kind string, complexity float64)
	RecordTask(agent string, task domain.TaskRecord)
	RecordError(err error, kind, agent string)
	ShouldThrottle() bool
}

// Route is a classification outcome: exactly one of Agent or Workflow
// is set. Task is the label stored on the conversation context.
type Route struct {
	Agent    string
	Workflow string
	Task     string
}

// Classifier turns a message into a Route. The shipped implementation
// is a keyword matcher; it is deliberately swappable — classification
// quality is not this layer's concern.
type Classifier interface {
	Classify(message string) Route
}

// Config holds dispatcher tuning.
type Config struct {
	AgentTimeout  time.Duration // bound on a direct agent call
	RatePerSecond float64       // inbound limiter; 0 disables
	Burst         int
}

// Dispatcher coordinates the orchestration layer.
type Dispatcher struct {
	contexts   *convo.Store
	agents     *registry.Registry
	engine     *workflow.Engine
	metrics    Metrics
	classifier Classifier
	bus        domain.EventBus // nil = no events
	limiter    *rate.Limiter   // nil = no inbound limit
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Dispatcher. bus may be nil.
func New(contexts *convo.Store, agents *registry.Registry, engine *workflow.Engine, metrics Metrics, classifier Classifier, bus domain.EventBus, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Dispatcher{
		contexts:   contexts,
		agents:     agents,
		engine:     engine,
		metrics:    metrics,
		classifier: classifier,
		bus:        bus,
		limiter:    limiter,
		timeout:    cfg.AgentTimeout,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Handle processes one inbound request end-to-end. Safe to call
// concurrently; turns on the same thread are serialized in arrival
// order.
func (d *Dispatcher) Handle(ctx context.Context, req domain.Request) (domain.Reply, error) {
	ctx, span := tracer.StartSpan(ctx, "dispatch.handle")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("thread_id", req.ThreadID))

	d.emit(ctx, domain.EventMessageReceived, map[string]string{"thread_id": req.ThreadID})

	if d.limiter != nil && !d.limiter.Allow() {
		d.emit(ctx, domain.EventRateLimited, map[string]string{"thread_id": req.ThreadID})
		reply := domain.Reply{Status: domain.StatusRejected, Text: msgRateLimited}
		d.contexts.Update(req.ThreadID, req.Message, req.Speaker, reply.Text, "", "")
		return reply, nil
	}

	// Whole-turn lock: keeps per-thread ordering and stops concurrent
	// turns on the same thread from interleaving appends. Store and
	// metrics locks are still never held across agent calls.
	unlock, err := d.contexts.LockThread(ctx, req.ThreadID)
	if err != nil {
		return domain.Reply{Status: domain.StatusError, Text: msgApology}, err
	}
	defer unlock()

	d.metrics.RecordInteraction("request", estimateComplexity(req.Message))

	if d.metrics.ShouldThrottle() {
		d.emit(ctx, domain.EventThrottled, map[string]string{"thread_id": req.ThreadID})
		d.logger.Warn("request throttled", "thread_id", req.ThreadID)
		reply := domain.Reply{Status: domain.StatusThrottled, Text: msgThrottled}
		d.contexts.Update(req.ThreadID, req.Message, req.Speaker, reply.Text, "", "")
		return reply, nil
	}

	if d.contexts.ShouldStick(req.ThreadID, d.now()) {
		if reply, ok := d.handleSticky(ctx, req); ok {
			return reply, nil
		}
		// Active agent no longer registered; fall through to
		// classification rather than dead-ending the thread.
	}

	return d.handleClassified(ctx, req), nil
}

// handleSticky routes a follow-up to the thread's active agent without
// re-classification. Returns ok=false when the agent is gone.
func (d *Dispatcher) handleSticky(ctx context.Context, req domain.Request) (domain.Reply, bool) {
	cctx := d.contexts.Get(req.ThreadID)
	agent, err := d.agents.Get(cctx.ActiveAgent)
	if err != nil {
		d.logger.Warn("active agent unregistered, re-classifying",
			"thread_id", req.ThreadID, "agent", cctx.ActiveAgent)
		return domain.Reply{}, false
	}

	d.emit(ctx, domain.EventAgentStuck, map[string]string{
		"thread_id": req.ThreadID,
		"agent":     cctx.ActiveAgent,
	})

	reply := d.invokeDirect(ctx, agent, req, cctx)
	// ActiveAgent and CurrentTask are left as-is: empty values do not
	// overwrite on Update.
	d.contexts.Update(req.ThreadID, req.Message, req.Speaker, reply.Text, "", "")
	d.emit(ctx, domain.EventMessageHandled, map[string]string{"thread_id": req.ThreadID, "status": string(reply.Status)})
	return reply, true
}

// handleClassified routes a fresh (or unsticky) message by category.
func (d *Dispatcher) handleClassified(ctx context.Context, req domain.Request) domain.Reply {
	route := d.classifier.Classify(req.Message)

	var (
		reply       domain.Reply
		activeAgent string
	)

	switch {
	case route.Agent != "":
		agent, err := d.agents.Get(route.Agent)
		if err != nil {
			// Unknown target: immediate, user-visible, no retry.
			d.metrics.RecordError(err, "dispatch_error", route.Agent)
			reply = domain.Reply{Status: domain.StatusError, Text: msgUnavailable}
			break
		}
		cctx := d.contexts.Get(req.ThreadID)
		reply = d.invokeDirect(ctx, agent, req, cctx)
		if reply.Status == domain.StatusSuccess {
			activeAgent = route.Agent
		}

	case route.Workflow != "":
		reply, activeAgent = d.runWorkflow(ctx, route.Workflow, req)

	default:
		reply = domain.Reply{Status: domain.StatusError, Text: msgNotFound}
	}

	d.contexts.Update(req.ThreadID, req.Message, req.Speaker, reply.Text, route.Task, activeAgent)
	d.emit(ctx, domain.EventMessageHandled, map[string]string{"thread_id": req.ThreadID, "status": string(reply.Status)})
	return reply
}

// invokeDirect calls a single agent with the conversation history
// attached, bounded by the agent timeout, recording the task outcome
// either way. A worker fault yields an apology, never a propagated
// fault.
func (d *Dispatcher) invokeDirect(ctx context.Context, agent domain.Agent, req domain.Request, cctx *domain.ConversationContext) domain.Reply {
	name := agent.Identity().Name

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	tctx := domain.TaskContext{
		"thread_id": req.ThreadID,
		"speaker":   req.Speaker,
		"history":   cctx.History,
		"task":      cctx.CurrentTask,
	}

	start := d.now()
	resp, err := callAgent(ctx, agent, req.Message, tctx)
	end := d.now()

	d.metrics.RecordTask(name, domain.TaskRecord{
		Workflow:       "direct",
		Start:          start,
		End:            end,
		HandoffSuccess: err == nil,
	})

	if err != nil {
		d.metrics.RecordError(err, "agent_error", name)
		d.logger.Error("agent call failed", "agent", name, "thread_id", req.ThreadID, "error", err)
		return domain.Reply{Status: domain.StatusError, Text: msgApology, Agent: name}
	}

	d.emit(ctx, domain.EventAgentDispatched, map[string]string{"thread_id": req.ThreadID, "agent": name})
	return domain.Reply{Status: domain.StatusSuccess, Text: resp.Text, Agent: name}
}

// runWorkflow executes a workflow run and maps its terminal state onto
// a Reply. The last successful step's agent becomes the thread's
// active agent.
func (d *Dispatcher) runWorkflow(ctx context.Context, name string, req domain.Request) (domain.Reply, string) {
	state, err := d.engine.Run(ctx, name, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWorkflowNotFound):
			d.metrics.RecordError(err, "dispatch_error", "")
			return domain.Reply{Status: domain.StatusError, Text: msgNotFound}, ""
		case errors.Is(err, domain.ErrThrottled):
			return domain.Reply{Status: domain.StatusThrottled, Text: msgThrottled}, ""
		default:
			d.metrics.RecordError(err, "workflow_error", "")
			return domain.Reply{Status: domain.StatusError, Text: msgApology}, ""
		}
	}

	last := state.Messages[len(state.Messages)-1]
	if state.Status == domain.RunStatusError {
		return domain.Reply{Status: domain.StatusError, Text: msgApology, Agent: last.Agent, Results: state.Results}, ""
	}
	return domain.Reply{
		Status:  domain.StatusSuccess,
		Text:    last.Content,
		Agent:   last.Agent,
		Results: state.Results,
	}, last.Agent
}

// callAgent runs the agent call in its own goroutine so a worker that
// ignores ctx still cannot stall the turn past the timeout.
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
		return domain.Response{}, domain.NewDomainError("Dispatcher.callAgent", domain.ErrTimeout, agent.Identity().Name)
	}
}

// estimateComplexity scores a request 0..1 from message length.
func estimateComplexity(message string) float64 {
	complexity := 0.5
	switch {
	case len(message) > 500:
		complexity += 0.2
	case len(message) > 200:
		complexity += 0.1
	}
	if complexity > 1 {
		complexity = 1
	}
	return complexity
}

func (d *Dispatcher) emit(ctx context.Context, eventType domain.EventType, data map[string]string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, domain.Event{Type: eventType, Timestamp: d.now(), Data: data})
}
