package agents

import (
	"lucius-ai/internal/usecase/dispatch"
)

// KeywordClassifier maps a message onto a route by keyword matching.
// Greetings and scheduling/mail requests dispatch directly to one
// worker; everything else goes through the research workflow so the
// chief of staff evaluates and closes it.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the shipped classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (KeywordClassifier) Classify(message string) dispatch.Route {
	switch {
	case containsAny(message, "hola", "hello", "buenos días", "buenas tardes", "buenas noches"):
		return dispatch.Route{Agent: "lucius", Task: "greeting"}
	case containsAny(message, "reunión", "meeting", "calendario", "calendar", "agenda",
		"disponibilidad", "availability", "schedule", "programar", "cita"):
		return dispatch.Route{Agent: "sarah", Task: "calendar"}
	case containsAny(message, "correo", "email", "mail", "bandeja", "inbox",
		"enviar", "revisar correos"):
		return dispatch.Route{Agent: "karla", Task: "email"}
	case containsAny(message, "proyecto", "project", "tarea", "task",
		"pendiente", "seguimiento"):
		return dispatch.Route{Workflow: "task_management", Task: "task_management"}
	default:
		return dispatch.Route{Workflow: "research", Task: "research"}
	}
}

var _ dispatch.Classifier = (*KeywordClassifier)(nil)
