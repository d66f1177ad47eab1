package workflow

import (
	"fmt"
	"strings"

	"lucius-ai/internal/domain"
	"lucius-ai/internal/infra/config"
)

// resolveGuard maps a guard name from configuration to a GuardFunc.
// Supported names:
//
//	always             — trivially true
//	has_results        — at least one step has produced a result
//	contains:<substr>  — the latest transcript entry contains <substr>
func resolveGuard(name string) (domain.GuardFunc, error) {
	switch {
	case name == "always":
		return func(*domain.WorkflowState) bool { return true }, nil
	case name == "has_results":
		return func(s *domain.WorkflowState) bool { return len(s.Results) > 0 }, nil
	case strings.HasPrefix(name, "contains:"):
		substr := strings.ToLower(strings.TrimPrefix(name, "contains:"))
		return func(s *domain.WorkflowState) bool {
			return strings.Contains(strings.ToLower(s.LastContent()), substr)
		}, nil
	default:
		return nil, fmt.Errorf("unknown guard %q", name)
	}
}

// FromSpec builds a WorkflowDefinition from its configuration form,
// resolving guard names against the built-in table.
func FromSpec(spec config.WorkflowSpec) (domain.WorkflowDefinition, error) {
	def := domain.WorkflowDefinition{
		Name:        spec.Name,
		Steps:       spec.Steps,
		Transitions: spec.Transitions,
	}
	if len(spec.Guards) > 0 {
		def.Guards = make(map[string]domain.GuardFunc, len(spec.Guards))
		for step, guardName := range spec.Guards {
			guard, err := resolveGuard(guardName)
			if err != nil {
				return domain.WorkflowDefinition{}, fmt.Errorf("workflow %q, step %q: %w", spec.Name, step, err)
			}
			def.Guards[step] = guard
		}
	}
	return def, nil
}
