// Package agents ships the thin, swappable workers behind the registry
// plus the keyword classifier and the circuit-breaker decorator. None
// of these carry orchestration logic; they answer deterministically
// from keyword matching and canned knowledge so the orchestration layer
// can be exercised without external services.
package agents

import (
	"fmt"
	"strings"

	"lucius-ai/internal/domain"
)

// base carries the shared identity plumbing for all shipped workers.
type base struct {
	identity domain.AgentIdentity
}

func (b base) Identity() domain.AgentIdentity { return b.identity }

// signed prefixes a response with the worker's signature, the way the
// assistant presents itself in chat.
func (b base) signed(text string) string {
	return fmt.Sprintf("[%s]: %s", b.identity.Name, text)
}

func containsAny(message string, words ...string) bool {
	msg := strings.ToLower(message)
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// historyFrom extracts the conversation history the dispatcher attaches
// on direct calls. Missing or foreign-typed values yield nil.
func historyFrom(tctx domain.TaskContext) []domain.Turn {
	if tctx == nil {
		return nil
	}
	history, _ := tctx["history"].([]domain.Turn)
	return history
}
