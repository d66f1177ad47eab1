package agents

import (
	"context"
	"strings"

	"lucius-ai/internal/domain"
)

// Research is the investigation worker ("mike"). It is the middle step
// of the research workflow and answers direct search requests.
type Research struct {
	base
}

// NewResearch creates the research worker.
func NewResearch() *Research {
	return &Research{base{domain.AgentIdentity{Name: "mike", Role: "Research Specialist"}}}
}

func (r *Research) Process(_ context.Context, message string, _ domain.TaskContext) (domain.Response, error) {
	msg := strings.ToLower(message)
	topic := researchTopic(message)

	switch {
	case containsAny(msg, "analizar", "analyze", "comparar", "compare"):
		return domain.Response{
			Text: r.signed("Análisis de \"" + topic + "\": identifiqué tres factores clave y una tendencia relevante. Preparo el detalle."),
			Data: map[string]any{"intent": "analyze", "topic": topic},
		}, nil
	case containsAny(msg, "documento", "informe", "report", "document"):
		return domain.Response{
			Text: r.signed("He redactado un informe preliminar sobre \"" + topic + "\" con fuentes citadas."),
			Data: map[string]any{"intent": "document", "topic": topic},
		}, nil
	default:
		return domain.Response{
			Text: r.signed("Investigué \"" + topic + "\" y recopilé las fuentes más relevantes. Resumen disponible."),
			Data: map[string]any{"intent": "search", "topic": topic, "sources": 4},
		}, nil
	}
}

// researchTopic trims the request down to a displayable topic.
func researchTopic(message string) string {
	topic := strings.TrimSpace(message)
	const maxTopic = 60
	if len(topic) > maxTopic {
		topic = topic[:maxTopic] + "…"
	}
	if topic == "" {
		topic = "el tema solicitado"
	}
	return topic
}
