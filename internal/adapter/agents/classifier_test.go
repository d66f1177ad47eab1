package agents

import (
	"testing"

	"lucius-ai/internal/usecase/dispatch"
)

func TestClassify(t *testing.T) {
	c := NewKeywordClassifier()

	cases := []struct {
		message string
		want    dispatch.Route
	}{
		{"Hola, ¿cómo estás?", dispatch.Route{Agent: "lucius", Task: "greeting"}},
		{"Buenos días", dispatch.Route{Agent: "lucius", Task: "greeting"}},
		{"Necesito una reunión mañana a las 10", dispatch.Route{Agent: "sarah", Task: "calendar"}},
		{"¿Cuál es mi disponibilidad el viernes?", dispatch.Route{Agent: "sarah", Task: "calendar"}},
		{"Revisa mi bandeja de entrada", dispatch.Route{Agent: "karla", Task: "email"}},
		{"Quiero enviar un correo a finanzas", dispatch.Route{Agent: "karla", Task: "email"}},
		{"Crea un proyecto para el lanzamiento", dispatch.Route{Workflow: "task_management", Task: "task_management"}},
		{"Agrega una tarea de seguimiento", dispatch.Route{Workflow: "task_management", Task: "task_management"}},
		{"Investiga el mercado inmobiliario local", dispatch.Route{Workflow: "research", Task: "research"}},
		{"dame contexto sobre los competidores", dispatch.Route{Workflow: "research", Task: "research"}},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			if got := c.Classify(tc.message); got != tc.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tc.message, got, tc.want)
			}
		})
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	c := NewKeywordClassifier()
	if got := c.Classify("HOLA"); got.Agent != "lucius" {
		t.Errorf("Classify(HOLA) = %+v", got)
	}
	if got := c.Classify("MEETING con el equipo"); got.Agent != "sarah" {
		t.Errorf("Classify(MEETING...) = %+v", got)
	}
}
