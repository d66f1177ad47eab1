package domain

import "context"

// AgentIdentity describes a named worker in the orchestration layer.
type AgentIdentity struct {
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`
}

// TaskContext carries accumulated state into an agent call: prior
// workflow results, conversation history, and free-form extras.
type TaskContext map[string]any

// Response is what an agent returns for one invocation. Expected
// business conditions ("no slots available") are successful Responses;
// only unexpected faults surface as errors.
type Response struct {
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

// Agent is the single contract every worker implements. Implementations
// must honor ctx cancellation; the orchestration layer bounds each call
// with a timeout and treats expiry as a failed handoff.
type Agent interface {
	Identity() AgentIdentity
	Process(ctx context.Context, message string, tctx TaskContext) (Response, error)
}
