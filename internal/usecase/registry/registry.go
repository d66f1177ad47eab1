package registry

import (
	"log/slog"
	"sort"
	"sync"

	"lucius-ai/internal/domain"
)

// Registry holds all registered agents and provides lookup by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]domain.Agent
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		agents: make(map[string]domain.Agent),
		logger: logger,
	}
}

// Register stores an agent by its identity name. Registering a second
// agent under the same name replaces the first — last writer wins, by
// policy rather than error.
func (r *Registry) Register(agent domain.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := agent.Identity().Name
	if _, exists := r.agents[name]; exists {
		r.logger.Info("agent replaced", "agent", name)
	} else {
		r.logger.Info("agent registered", "agent", name, "role", agent.Identity().Role)
	}
	r.agents[name] = agent
}

// Get returns the agent registered under name, or ErrAgentNotFound.
// Callers translate the error into a user-visible "worker unavailable"
// response rather than propagating a fault.
func (r *Registry) Get(name string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, domain.ErrAgentNotFound
	}
	return agent, nil
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the identity of every registered agent, sorted by name.
func (r *Registry) List() []domain.AgentIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.AgentIdentity, 0, len(r.agents))
	for _, agent := range r.agents {
		ids = append(ids, agent.Identity())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Name < ids[j].Name })
	return ids
}

// Lookup returns a resolver closure suitable for injecting into the
// workflow engine without an import cycle.
func (r *Registry) Lookup() func(name string) (domain.Agent, error) {
	return func(name string) (domain.Agent, error) {
		return r.Get(name)
	}
}
