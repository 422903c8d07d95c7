// Package evaluation runs registered compliance checks against surveyed
// resources. Checks bind to one resource kind, may declare other kinds
// they need scanned, and always produce a pass/fail result per resource.
package evaluation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/yairfalse/aerographer/types"
)

// CheckFunc is one compliance check. It receives the resource under
// evaluation through the check context and reports a result. A returned
// error or a panic is converted to a failed result rather than aborting
// the run.
type CheckFunc func(ctx context.Context, ec *CheckContext) (types.Result, error)

// Definition binds a named check to a resource kind, optionally declaring
// other kinds whose data the check needs present in the survey.
type Definition struct {
	Service  string
	Kind     string
	Name     string
	Includes []string
	Check    CheckFunc
}

// Path returns the bound kind path, "service.kind".
func (d *Definition) Path() string {
	return d.Service + "." + d.Kind
}

// DependencyCycleError reports a cycle in the include graph. Fatal: raised
// before any scanning starts.
type DependencyCycleError struct {
	Chain []string
}

func (e *DependencyCycleError) Error() string {
	return "evaluation dependency cycle: " + strings.Join(e.Chain, " -> ")
}

// DependencyNotScannedError reports an on-demand check whose declared
// dependency kind is absent from the survey. The caller must scan the
// dependency first; ad hoc evaluation never triggers scans itself.
type DependencyNotScannedError struct {
	Check string
	Kind  string
}

func (e *DependencyNotScannedError) Error() string {
	return fmt.Sprintf("check %s requires kind %s which has not been scanned", e.Check, e.Kind)
}

// Registry holds every registered check definition. Populated at startup
// by evaluation loaders, read-only during a run.
type Registry struct {
	mu     sync.RWMutex
	byKind map[string][]*Definition
	byName map[string]*Definition
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind: make(map[string][]*Definition),
		byName: make(map[string]*Definition),
	}
}

// Register adds one check definition. Check names are unique across the
// registry so results and memoization keys stay unambiguous.
func (r *Registry) Register(def *Definition) error {
	if def.Service == "" || def.Kind == "" {
		return fmt.Errorf("register check %q: missing service or kind", def.Name)
	}
	if def.Name == "" {
		return fmt.Errorf("register check for %s: missing name", def.Path())
	}
	if def.Check == nil {
		return fmt.Errorf("register check %q: nil check function", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[def.Name]; dup {
		return fmt.Errorf("register check %q: name already registered", def.Name)
	}
	r.byName[def.Name] = def
	r.byKind[def.Path()] = append(r.byKind[def.Path()], def)
	return nil
}

// DefinitionsFor returns the checks bound to a kind path, in registration
// order.
func (r *Registry) DefinitionsFor(path string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Definition(nil), r.byKind[path]...)
}

// Definition returns a check by name.
func (r *Registry) Definition(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// Names returns every registered check name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve expands a kind set to its dependency closure: for every check
// bound to a kind in the set, the check's includes join the set, repeated
// to a fixed point. A cycle in the include graph is fatal.
func (r *Registry) Resolve(kinds []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, kind := range kinds {
		if err := r.detectCycle(kind, nil, make(map[string]int)); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool)
	queue := append([]string(nil), kinds...)
	var out []string
	for len(queue) > 0 {
		kind := queue[0]
		queue = queue[1:]
		if seen[kind] {
			continue
		}
		seen[kind] = true
		out = append(out, kind)
		for _, def := range r.byKind[kind] {
			queue = append(queue, def.Includes...)
		}
	}
	sort.Strings(out)
	return out, nil
}

const (
	visiting = 1
	visited  = 2
)

func (r *Registry) detectCycle(kind string, chain []string, state map[string]int) error {
	switch state[kind] {
	case visiting:
		return &DependencyCycleError{Chain: append(append([]string(nil), chain...), kind)}
	case visited:
		return nil
	}
	state[kind] = visiting
	chain = append(chain, kind)
	for _, def := range r.byKind[kind] {
		for _, inc := range def.Includes {
			if err := r.detectCycle(inc, chain, state); err != nil {
				return err
			}
		}
	}
	state[kind] = visited
	return nil
}
