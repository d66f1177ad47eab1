package agents

import (
	"context"
	"strings"

	"lucius-ai/internal/domain"
)

// Mail is the email worker ("karla"). It resolves the intent from
// keywords and answers with a canned summary of the mailbox action.
type Mail struct {
	base
}

// NewMail creates the email worker.
func NewMail() *Mail {
	return &Mail{base{domain.AgentIdentity{Name: "karla", Role: "Email Manager"}}}
}

func (m *Mail) Process(_ context.Context, message string, _ domain.TaskContext) (domain.Response, error) {
	msg := strings.ToLower(message)

	switch intent := mailIntent(msg); intent {
	case "send":
		return domain.Response{
			Text: m.signed("He preparado el borrador del correo. Revísalo y te lo envío cuando confirmes."),
			Data: map[string]any{"intent": intent},
		}, nil
	case "search":
		return domain.Response{
			Text: m.signed("Encontré 3 correos que coinciden con tu búsqueda. El más reciente es de esta mañana."),
			Data: map[string]any{"intent": intent, "matches": 3},
		}, nil
	case "organize":
		return domain.Response{
			Text: m.signed("He archivado los correos resueltos y etiquetado los pendientes por prioridad."),
			Data: map[string]any{"intent": intent},
		}, nil
	default:
		return domain.Response{
			Text: m.signed("Tienes 5 correos sin leer, 2 marcados como urgentes. ¿Quieres que los resuma?"),
			Data: map[string]any{"intent": "check", "unread": 5, "urgent": 2},
		}, nil
	}
}

// mailIntent maps keywords to a mailbox action; "check" is the default.
func mailIntent(msg string) string {
	switch {
	case containsAny(msg, "enviar", "envía", "envia", "send", "redactar", "escribir", "responder", "reply"):
		return "send"
	case containsAny(msg, "buscar", "search", "encontrar", "find"):
		return "search"
	case containsAny(msg, "archivar", "organizar", "organize", "etiquetar", "limpiar"):
		return "organize"
	default:
		return "check"
	}
}
