package registry

import (
	"fmt"
	"sort"

	"researchagent.dev/core/internal/model"
)

// Registry is built once at startup and never mutated afterward — callers
// across goroutines read it concurrently with no locking required.
type Registry struct {
	adapters map[string]SourceAdapter
	enabled  map[string]bool
}

// New builds a Registry from the given adapters, keyed by each adapter's own
// Metadata().ID. enabledIDs, when non-nil, restricts EnabledSources() to
// that set (still present via Get, just excluded from enumeration) — this
// is how an operator disables a source without rebuilding the binary.
func New(adapters []SourceAdapter, enabledIDs []string) (*Registry, error) {
	r := &Registry{
		adapters: make(map[string]SourceAdapter, len(adapters)),
	}

	for _, a := range adapters {
		id := a.Metadata().ID
		if id == "" {
			return nil, fmt.Errorf("registry: adapter metadata has empty id")
		}
		if _, exists := r.adapters[id]; exists {
			return nil, fmt.Errorf("registry: duplicate source id %q", id)
		}
		r.adapters[id] = a
	}

	if enabledIDs == nil {
		r.enabled = nil
	} else {
		r.enabled = make(map[string]bool, len(enabledIDs))
		for _, id := range enabledIDs {
			r.enabled[id] = true
		}
	}

	return r, nil
}

// Get returns the adapter registered under sourceID, regardless of whether
// it's currently enabled.
func (r *Registry) Get(sourceID string) (SourceAdapter, bool) {
	a, ok := r.adapters[sourceID]
	return a, ok
}

// EnabledSources lists the capability metadata of every enabled source,
// sorted by id for deterministic iteration order.
func (r *Registry) EnabledSources() []model.SourceCapability {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		if r.enabled != nil && !r.enabled[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.SourceCapability, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id].Metadata())
	}
	return out
}

// IsEnabled reports whether sourceID is both registered and enabled.
func (r *Registry) IsEnabled(sourceID string) bool {
	if _, ok := r.adapters[sourceID]; !ok {
		return false
	}
	if r.enabled == nil {
		return true
	}
	return r.enabled[sourceID]
}
