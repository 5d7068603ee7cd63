package workflow

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/stackoverflowed/nifimcp/internal/events"
)

// Definition describes one registered workflow.
type Definition struct {
	Name        string
	DisplayName string
	Description string
	Category    string
	Phases      []string
	Factory     func() *Flow
	IsAsync     bool
}

// Registry maps workflow names to definitions and builds executors on
// demand. An allow-list restricts which definitions are usable; an empty
// allow-list enables everything.
type Registry struct {
	bus    *events.Bus
	logger *slog.Logger

	mu          sync.RWMutex
	definitions map[string]*Definition
	enabled     map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry(bus *events.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		bus:         bus,
		logger:      logger.With("component", "workflow-registry"),
		definitions: map[string]*Definition{},
	}
}

// Register adds a definition. A duplicate name is an error.
func (r *Registry) Register(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("workflow definition has no name")
	}
	if def.Factory == nil {
		return fmt.Errorf("workflow %q has no factory", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.definitions[def.Name]; exists {
		return fmt.Errorf("workflow %q is already registered", def.Name)
	}
	r.definitions[def.Name] = def
	return nil
}

// SetEnabled installs the allow-list. Nil clears it, enabling everything.
func (r *Registry) SetEnabled(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if names == nil {
		r.enabled = nil
		return
	}
	r.enabled = make(map[string]bool, len(names))
	for _, n := range names {
		r.enabled[n] = true
	}
}

// Definition returns a registered, enabled definition.
func (r *Registry) Definition(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}
	if r.enabled != nil && !r.enabled[name] {
		return nil, fmt.Errorf("workflow %q is disabled by configuration", name)
	}
	return def, nil
}

// List returns the enabled definitions sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.definitions))
	for name, def := range r.definitions {
		if r.enabled != nil && !r.enabled[name] {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateExecutor builds a synchronous executor. Async definitions are
// rejected; they must run through CreateAsyncExecutor.
func (r *Registry) CreateExecutor(name string) (*Executor, error) {
	def, err := r.Definition(name)
	if err != nil {
		return nil, err
	}
	if def.IsAsync {
		return nil, fmt.Errorf("workflow %q is async; use an async executor", name)
	}
	return NewExecutor(def, r.bus, r.logger), nil
}

// CreateAsyncExecutor builds an asynchronous executor. Both sync and async
// definitions are accepted; sync flows are off-loaded to their own goroutine.
func (r *Registry) CreateAsyncExecutor(name string) (*AsyncExecutor, error) {
	def, err := r.Definition(name)
	if err != nil {
		return nil, err
	}
	return NewAsyncExecutor(def, r.bus, r.logger), nil
}
