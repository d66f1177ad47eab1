package domain

// ConversationContext is the per-thread state the dispatcher consults
// and mutates on every turn. History is append-only and ordered by
// arrival time. ActiveAgent, when set, names a registered agent that
// currently owns the thread.
type ConversationContext struct {
	ThreadID    string `json:"thread_id"`
	History     []Turn `json:"history"`
	CurrentTask string `json:"current_task,omitempty"`
	ActiveAgent string `json:"active_agent,omitempty"`
}

// LastTurn returns the most recent turn, or nil for an empty history.
func (c *ConversationContext) LastTurn() *Turn {
	if len(c.History) == 0 {
		return nil
	}
	return &c.History[len(c.History)-1]
}

// Clone returns a deep copy safe to read after the store's lock is
// released.
func (c *ConversationContext) Clone() *ConversationContext {
	cp := *c
	cp.History = make([]Turn, len(c.History))
	copy(cp.History, c.History)
	return &cp
}
