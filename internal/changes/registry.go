package changes

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps namespace names to their collectors for one capture
// session. A single lock guards every collector so that a selection is
// always resolved against the same key order it was frozen from.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]*Collector
}

// NewRegistry creates one empty collector per namespace. Duplicate and empty
// names are ignored.
func NewRegistry(namespaces []string) *Registry {
	r := &Registry{collectors: make(map[string]*Collector, len(namespaces))}
	for _, ns := range namespaces {
		if ns == "" {
			continue
		}
		if _, ok := r.collectors[ns]; ok {
			continue
		}
		r.collectors[ns] = NewCollector(ns)
	}
	return r
}

// Namespaces returns the registered namespace names, sorted.
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.collectors))
	for ns := range r.collectors {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Has reports whether namespace is registered.
func (r *Registry) Has(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.collectors[namespace]
	return ok
}

// Route records ev in the collector for ev.Namespace.
func (r *Registry) Route(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.collectors[ev.Namespace]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, ev.Namespace)
	}
	c.Record(ev)
	return nil
}

// Dump returns the sorted (key, value) pairs of one namespace.
func (r *Registry) Dump(namespace string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[namespace]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNamespace, namespace)
	}
	return c.Dump(), nil
}

// Counts returns the number of distinct keys per namespace.
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.collectors))
	for ns, c := range r.collectors {
		out[ns] = c.Len()
	}
	return out
}

// Freeze resolves selection against every registered collector and clears
// the registry, all under one lock. Namespaces absent from selection yield
// an empty selection; names in selection that are not registered are
// ignored.
func (r *Registry) Freeze(selection map[string][]int) map[string][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]Event, len(r.collectors))
	for ns, c := range r.collectors {
		out[ns] = c.Select(selection[ns])
		c.Reset()
	}
	return out
}

// Clear drops every collected event while keeping the namespace set.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.collectors {
		c.Reset()
	}
}
