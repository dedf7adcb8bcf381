package stage

import (
	"errors"
	"fmt"
	"strings"
)

// Registry holds the fixed, ordered stage sequence for a run.
type Registry struct {
	defs  []Definition
	index map[string]int
}

// NewRegistry builds a registry from ordered definitions. Names are
// normalized to lowercase; empty or duplicate names are rejected.
func NewRegistry(defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, errors.New("registry requires at least one stage")
	}

	registry := &Registry{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, def := range defs {
		name := strings.ToLower(strings.TrimSpace(def.Name))
		if name == "" {
			return nil, errors.New("stage name must not be empty")
		}
		if _, exists := registry.index[name]; exists {
			return nil, fmt.Errorf("duplicate stage name %q", name)
		}
		if def.Run == nil {
			return nil, fmt.Errorf("stage %q has no run function", name)
		}
		def.Name = name
		registry.index[name] = len(registry.defs)
		registry.defs = append(registry.defs, def)
	}
	return registry, nil
}

// Len returns the number of registered stages.
func (r *Registry) Len() int {
	return len(r.defs)
}

// Definitions returns the ordered stage definitions.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Sequence returns the ordered stage names.
func (r *Registry) Sequence() []string {
	names := make([]string, len(r.defs))
	for i, def := range r.defs {
		names[i] = def.Name
	}
	return names
}

// IndexOf returns the position of a stage by name.
func (r *Registry) IndexOf(name string) (int, bool) {
	idx, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	return idx, ok
}

// Lookup returns the definition for a stage by name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	idx, ok := r.IndexOf(name)
	if !ok {
		return Definition{}, false
	}
	return r.defs[idx], true
}

// Critical reports whether a stage's exhausted-retry failure aborts the run.
// The first stage (it produces the initial usable document) and the last
// stage (it emits the final artifact) are always critical. A degradable
// stage without a registered fallback fails closed and is treated as
// critical too.
func (r *Registry) Critical(name string) bool {
	idx, ok := r.IndexOf(name)
	if !ok {
		return true
	}
	if idx == 0 || idx == len(r.defs)-1 {
		return true
	}
	def := r.defs[idx]
	if def.Critical {
		return true
	}
	return def.Fallback == nil
}

// MarkCritical forces the named stages to be critical for this registry.
// Unknown names are ignored so config overrides can reference stages that a
// particular pipeline does not register.
func (r *Registry) MarkCritical(names []string) {
	for _, name := range names {
		if idx, ok := r.IndexOf(name); ok {
			r.defs[idx].Critical = true
		}
	}
}
