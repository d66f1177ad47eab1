package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"lucius-ai/internal/domain"
)

// Chief is the greeting and evaluation worker ("lucius"). Inside a
// workflow it opens with an evaluation of the request and closes with a
// summary of the other steps' results; on direct dispatch it greets.
type Chief struct {
	base
}

// NewChief creates the chief-of-staff worker.
func NewChief() *Chief {
	return &Chief{base{domain.AgentIdentity{Name: "lucius", Role: "Chief of Staff"}}}
}

func (c *Chief) Process(_ context.Context, message string, tctx domain.TaskContext) (domain.Response, error) {
	if results, ok := tctx["results"].(map[string]domain.Response); ok && len(results) > 0 {
		return c.summarize(results), nil
	}

	if containsAny(message, "hola", "hello", "hi", "buenos días", "buenas tardes") {
		return domain.Response{
			Text: c.signed("¡Hola! Soy Lucius, tu Chief of Staff. Coordino con un equipo de asistentes especializados para ayudarte. ¿En qué puedo ayudarte hoy?"),
		}, nil
	}

	return domain.Response{
		Text: c.signed("He evaluado tu solicitud y la derivaré al especialista adecuado."),
		Data: map[string]any{"evaluation": "accepted"},
	}, nil
}

// summarize closes a workflow run with a report over the accumulated
// step results.
func (c *Chief) summarize(results map[string]domain.Response) domain.Response {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("He preparado un resumen del trabajo del equipo:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, results[name].Text)
	}

	return domain.Response{
		Text: c.signed(sb.String()),
		Data: map[string]any{"report": names},
	}
}
