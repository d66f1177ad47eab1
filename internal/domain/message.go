package domain

import "time"

// Speaker constants for conversation turns.
const (
	SpeakerUser  = "user"
	SpeakerAgent = "agent"
)

// Status values carried on a Reply.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusThrottled Status = "throttled"
	StatusRejected  Status = "rejected"
)

// Request is one inbound message to the dispatcher.
type Request struct {
	ThreadID string `json:"thread_id"`
	Speaker  string `json:"speaker"`
	Message  string `json:"message"`
}

// Reply is the dispatcher's answer to a Request.
type Reply struct {
	Status  Status              `json:"status"`
	Text    string              `json:"text"`
	Agent   string              `json:"agent,omitempty"`   // worker that produced the final text
	Results map[string]Response `json:"results,omitempty"` // per-step results for workflow runs
}

// Turn is one record in a conversation's history.
type Turn struct {
	ID        string    `json:"id"` // ULID, monotonic per store
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
}
