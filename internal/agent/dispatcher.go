package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// Dispatcher routes completion requests to registered providers, validating
// the provider name and model before any network call is made.
type Dispatcher struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *slog.Logger
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		providers: map[string]Provider{},
		logger:    logger,
	}
}

// Register adds a provider under its own name, replacing any previous one.
func (d *Dispatcher) Register(p Provider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.Name()] = p
}

// Provider looks up a registered provider.
func (d *Dispatcher) Provider(name string) (Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[name]
	return p, ok
}

// Names returns the registered provider names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.providers))
	for name := range d.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch validates provider and model, then performs the completion call.
// A provider is registered only when its credential is configured, so an
// unknown name covers both "no such provider" and "missing credential".
func (d *Dispatcher) Dispatch(ctx context.Context, provider, model string, req *CompletionRequest) (*Completion, error) {
	p, ok := d.Provider(provider)
	if !ok {
		return nil, fmt.Errorf("%w: %q (unknown provider or missing credential)", ErrProviderNotConfigured, provider)
	}
	if !slices.Contains(p.Models(), model) {
		return nil, fmt.Errorf("%w: %q for provider %q", ErrModelNotAllowed, model, provider)
	}

	req.Model = model
	d.logger.Debug("dispatching completion request",
		"provider", provider,
		"model", model,
		"messages", len(req.Messages),
		"tools", len(req.Tools))
	return p.Complete(ctx, req)
}
