// Package commands holds the models, assistants and actions a prompt can
// refer to.
package commands

import (
	"sort"
	"strings"
	"sync"

	"github.com/user/opla/internal/prompt"
	"github.com/user/opla/internal/types"
)

// Model is a selectable model served by a provider.
type Model struct {
	ID         string
	Name       string
	ProviderID string
	Aliases    []string
}

// Assistant is a selectable assistant.
type Assistant struct {
	ID       string
	Name     string
	TargetID string
	Aliases  []string
}

type entry struct {
	target prompt.Target
	keys   []string
}

// Registry holds registered targets and actions and provides lookup.
// It implements prompt.CommandRegistry.
type Registry struct {
	mu      sync.RWMutex
	loaded  bool
	targets []entry
	actions map[string]prompt.Action
	aliases map[string]string
}

// NewRegistry creates an empty, not yet loaded registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]prompt.Action),
		aliases: make(map[string]string),
	}
}

// AddModel registers a model target.
func (r *Registry) AddModel(m Model) {
	r.add(prompt.Target{
		Type:       types.ConnectorModel,
		ID:         m.ID,
		Name:       m.Name,
		ProviderID: m.ProviderID,
	}, m.Aliases)
}

// AddAssistant registers an assistant target.
func (r *Registry) AddAssistant(a Assistant) {
	r.add(prompt.Target{
		Type:       types.ConnectorAssistant,
		ID:         a.ID,
		Name:       a.Name,
		ProviderID: a.TargetID,
	}, a.Aliases)
}

func (r *Registry) add(t prompt.Target, aliases []string) {
	keys := []string{strings.ToLower(t.ID)}
	if t.Name != "" {
		keys = append(keys, strings.ToLower(t.Name))
	}
	for _, a := range aliases {
		keys = append(keys, strings.ToLower(a))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.targets {
		if e.target.Type == t.Type && e.target.ID == t.ID {
			r.targets[i] = entry{target: t, keys: keys}
			return
		}
	}
	r.targets = append(r.targets, entry{target: t, keys: keys})
}

// AddAction registers an action under its name and aliases.
func (r *Registry) AddAction(a prompt.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(a.Name)
	r.actions[name] = a
	for _, alias := range a.Aliases {
		r.aliases[strings.ToLower(alias)] = name
	}
}

// SetLoaded marks the registry as ready for validation.
func (r *Registry) SetLoaded(loaded bool) {
	r.mu.Lock()
	r.loaded = loaded
	r.mu.Unlock()
}

func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// MatchMention returns every target whose id, name or alias equals value,
// ignoring case.
func (r *Registry) MatchMention(value string) []prompt.Target {
	v := strings.ToLower(value)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []prompt.Target
	for _, e := range r.targets {
		for _, k := range e.keys {
			if k == v {
				out = append(out, e.target)
				break
			}
		}
	}
	return out
}

// LookupAction finds an action by name or alias.
func (r *Registry) LookupAction(name string) (prompt.Action, bool) {
	n := strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.actions[n]; ok {
		return a, true
	}
	if canonical, ok := r.aliases[n]; ok {
		a, ok := r.actions[canonical]
		return a, ok
	}
	return prompt.Action{}, false
}

// Targets returns all registered targets in registration order.
func (r *Registry) Targets() []prompt.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]prompt.Target, 0, len(r.targets))
	for _, e := range r.targets {
		out = append(out, e.target)
	}
	return out
}

// Models returns the registered model targets.
func (r *Registry) Models() []prompt.Target {
	var out []prompt.Target
	for _, t := range r.Targets() {
		if t.Type == types.ConnectorModel {
			out = append(out, t)
		}
	}
	return out
}

// Actions returns all actions sorted by name.
func (r *Registry) Actions() []prompt.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]prompt.Action, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
