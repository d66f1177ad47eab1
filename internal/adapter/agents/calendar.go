package agents

import (
	"context"
	"fmt"
	"strings"

	"lucius-ai/internal/domain"
)

// Work hours used when proposing meeting slots.
const (
	workHourStart = 9
	workHourEnd   = 18
)

// Calendar is the scheduling worker ("sarah"). It proposes meeting
// slots inside work hours and answers availability questions. "No
// slots" is a normal business answer, never an error.
type Calendar struct {
	base
}

// NewCalendar creates the calendar worker.
func NewCalendar() *Calendar {
	return &Calendar{base{domain.AgentIdentity{Name: "sarah", Role: "Calendar Manager"}}}
}

func (c *Calendar) Process(_ context.Context, message string, tctx domain.TaskContext) (domain.Response, error) {
	msg := strings.ToLower(message)

	switch {
	case containsAny(msg, "disponibilidad", "availability", "libre"):
		return c.availability(), nil
	case containsAny(msg, "cancelar", "cancel"):
		return domain.Response{
			Text: c.signed("He cancelado la reunión indicada y notificaré a los participantes."),
			Data: map[string]any{"action": "cancel"},
		}, nil
	case containsAny(msg, "reunión", "meeting", "agenda", "programar", "schedule", "cita"):
		return c.propose(msg), nil
	default:
		// Follow-ups inside the stickiness window land here; keep the
		// conversation going instead of bouncing the user.
		if len(historyFrom(tctx)) > 0 {
			return c.propose(msg), nil
		}
		return domain.Response{
			Text: c.signed("¿Quieres agendar una reunión o consultar tu disponibilidad?"),
		}, nil
	}
}

func (c *Calendar) availability() domain.Response {
	slots := []string{"09:00", "11:30", "15:00"}
	return domain.Response{
		Text: c.signed(fmt.Sprintf("Mañana tienes espacio a las %s.", strings.Join(slots, ", "))),
		Data: map[string]any{"action": "availability", "slots": slots},
	}
}

func (c *Calendar) propose(msg string) domain.Response {
	// Outside work hours there is nothing to offer — a normal answer.
	if containsAny(msg, "madrugada", "medianoche") {
		return domain.Response{
			Text: c.signed(fmt.Sprintf("No hay horarios disponibles fuera del horario laboral (%02d:00–%02d:00). ¿Busco una alternativa?", workHourStart, workHourEnd)),
			Data: map[string]any{"action": "schedule", "slots": []string{}},
		}
	}

	slot := "10:00"
	if containsAny(msg, "tarde", "afternoon") {
		slot = "16:00"
	}
	return domain.Response{
		Text: c.signed(fmt.Sprintf("Puedo agendar la reunión a las %s. ¿Confirmo y envío las invitaciones?", slot)),
		Data: map[string]any{"action": "schedule", "slots": []string{slot}},
	}
}
