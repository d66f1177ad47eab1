package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventMessageReceived   EventType = "message.received"
	EventMessageHandled    EventType = "message.handled"
	EventAgentDispatched   EventType = "agent.dispatched"
	EventAgentStuck        EventType = "agent.stuck" // stickiness kept the active agent
	EventThrottled         EventType = "dispatch.throttled"
	EventRateLimited       EventType = "dispatch.rate_limited"
	EventWorkflowStarted   EventType = "workflow.started"
	EventWorkflowStep      EventType = "workflow.step.completed"
	EventWorkflowCompleted EventType = "workflow.completed"
	EventWorkflowFailed    EventType = "workflow.failed"
	EventContextReaped     EventType = "context.reaped"
)

// Event is a lifecycle notification published on the bus.
type Event struct {
	Type      EventType         `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      map[string]string `json:"data,omitempty"`
}

// EventHandler consumes published events.
type EventHandler func(ctx context.Context, event Event)

// EventBus fans events out to subscribers. Publishing must never block
// the orchestration path.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())
}
