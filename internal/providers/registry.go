// Package providers keeps the configured completion backends and their
// recent errors.
package providers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/opla/internal/types"
	"github.com/user/opla/pkg/llm"
)

// MaxErrors is the number of errors kept per provider.
const MaxErrors = 50

type entry struct {
	record types.Provider
	client llm.Provider
}

// Registry holds providers by id.
type Registry struct {
	mu       sync.RWMutex
	entries  map[types.ProviderID]*entry
	order    []types.ProviderID
	fallback types.ProviderID
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.ProviderID]*entry)}
}

// Register adds or replaces a provider. The first registered provider is
// the default.
func (r *Registry) Register(p types.Provider, client llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[p.ID]; !ok {
		r.order = append(r.order, p.ID)
	}
	r.entries[p.ID] = &entry{record: p, client: client}
	if r.fallback == "" {
		r.fallback = p.ID
	}
}

func (r *Registry) lookup(idOrName string) (*entry, bool) {
	if e, ok := r.entries[types.ProviderID(idOrName)]; ok {
		return e, true
	}
	for _, id := range r.order {
		if e := r.entries[id]; e.record.Name == idOrName {
			return e, true
		}
	}
	return nil, false
}

// Get returns the client of an enabled provider by id or name. An empty
// idOrName selects the default provider.
func (r *Registry) Get(idOrName string) (types.Provider, llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idOrName == "" {
		idOrName = string(r.fallback)
	}
	e, ok := r.lookup(idOrName)
	if !ok {
		return types.Provider{}, nil, fmt.Errorf("provider %q not found", idOrName)
	}
	if e.record.Disabled {
		return types.Provider{}, nil, fmt.Errorf("provider %q is disabled", idOrName)
	}
	return e.record, e.client, nil
}

// List returns the provider records in registration order.
func (r *Registry) List() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Provider, 0, len(r.order))
	for _, id := range r.order {
		p := r.entries[id].record
		p.Errors = append([]string(nil), p.Errors...)
		out = append(out, p)
	}
	return out
}

// RecordError appends err to the provider's error log, evicting the oldest
// entries beyond MaxErrors.
func (r *Registry) RecordError(idOrName string, err error, now time.Time) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if idOrName == "" {
		idOrName = string(r.fallback)
	}
	e, ok := r.lookup(idOrName)
	if !ok {
		slog.Warn("error for unknown provider", "provider", idOrName, "error", err)
		return
	}
	slog.Error("provider error", "provider", e.record.Name, "error", err)

	line := now.UTC().Format(time.RFC3339) + " " + err.Error()
	errs := append(e.record.Errors, line)
	if len(errs) > MaxErrors {
		errs = errs[len(errs)-MaxErrors:]
	}
	e.record.Errors = append([]string(nil), errs...)
	e.record.Touch(now)
}

// Errors returns a copy of the provider's error log, oldest first.
func (r *Registry) Errors(idOrName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.lookup(idOrName)
	if !ok {
		return nil
	}
	return append([]string(nil), e.record.Errors...)
}
