// Package survey is the in-memory index of scanned resources: a hierarchy
// of Survey, Service and ResourceKind registries, append-only while a run
// scans and frozen once published. Queries over a published survey are
// deterministic and restartable.
package survey

import (
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/yairfalse/aerographer/types"
)

const kindTreeDegree = 32

// Survey is the root registry for one run. Scan units add resources
// concurrently; after Publish the structure is immutable and only the
// evaluation engine may annotate resources.
type Survey struct {
	mu        sync.RWMutex
	services  map[string]*Service
	published bool
}

// New creates an empty, unpublished survey.
func New() *Survey {
	return &Survey{services: make(map[string]*Service)}
}

// Add publishes one resource under its (service, kind) bucket. Buckets are
// created on first use. Fails with an ImmutabilityError once the survey is
// published.
func (s *Survey) Add(r *types.Resource) error {
	s.mu.RLock()
	if s.published {
		s.mu.RUnlock()
		return &types.ImmutabilityError{What: "survey"}
	}
	svc, ok := s.services[r.Service()]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		if s.published {
			s.mu.Unlock()
			return &types.ImmutabilityError{What: "survey"}
		}
		svc, ok = s.services[r.Service()]
		if !ok {
			svc = newService(r.Service())
			s.services[r.Service()] = svc
		}
		s.mu.Unlock()
	}
	return svc.add(r)
}

// Publish freezes the survey: no new services, kinds or resources, and
// every held resource is frozen against structural mutation.
func (s *Survey) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published {
		return
	}
	s.published = true
	for _, svc := range s.services {
		svc.freeze()
	}
}

// Published reports whether the survey has been frozen.
func (s *Survey) Published() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// Service returns the named service registry.
func (s *Survey) Service(name string) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[name]
	return svc, ok
}

// Services returns the names of all services holding resources, sorted.
func (s *Survey) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.services))
	for name := range s.services {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Kind resolves a qualified "service.kind" path to its registry.
func (s *Survey) Kind(path string) (*ResourceKind, bool) {
	service, kind, ok := splitPath(path)
	if !ok {
		return nil, false
	}
	svc, ok := s.Service(service)
	if !ok {
		return nil, false
	}
	return svc.Kind(kind)
}

// Resources returns every resource in the survey, ordered by service, kind
// and id.
func (s *Survey) Resources() []*types.Resource {
	var out []*types.Resource
	for _, name := range s.Services() {
		svc, _ := s.Service(name)
		out = append(out, svc.Resources()...)
	}
	return out
}

// Len returns the total resource count.
func (s *Survey) Len() int {
	n := 0
	for _, name := range s.Services() {
		svc, _ := s.Service(name)
		n += svc.Len()
	}
	return n
}

func splitPath(path string) (service, kind string, ok bool) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			if i == 0 || i == len(path)-1 {
				return "", "", false
			}
			return path[:i], path[i+1:], true
		}
	}
	return "", "", false
}

// Service groups the resource kinds scanned under one provider service.
type Service struct {
	name string

	mu     sync.RWMutex
	kinds  map[string]*ResourceKind
	frozen bool
}

func newService(name string) *Service {
	return &Service{name: name, kinds: make(map[string]*ResourceKind)}
}

// Name returns the service name.
func (s *Service) Name() string { return s.name }

func (s *Service) add(r *types.Resource) error {
	s.mu.RLock()
	if s.frozen {
		s.mu.RUnlock()
		return &types.ImmutabilityError{What: "service " + s.name}
	}
	rk, ok := s.kinds[r.Kind()]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		if s.frozen {
			s.mu.Unlock()
			return &types.ImmutabilityError{What: "service " + s.name}
		}
		rk, ok = s.kinds[r.Kind()]
		if !ok {
			rk = newResourceKind(s.name, r.Kind())
			s.kinds[r.Kind()] = rk
		}
		s.mu.Unlock()
	}
	return rk.add(r)
}

func (s *Service) freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
	for _, rk := range s.kinds {
		rk.freeze()
	}
}

// Kind returns the named resource-kind registry.
func (s *Service) Kind(name string) (*ResourceKind, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rk, ok := s.kinds[name]
	return rk, ok
}

// Kinds returns the kind names held by this service, sorted.
func (s *Service) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.kinds))
	for name := range s.kinds {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resources returns every resource under this service, ordered by kind and
// id.
func (s *Service) Resources() []*types.Resource {
	var out []*types.Resource
	for _, name := range s.Kinds() {
		rk, _ := s.Kind(name)
		out = append(out, rk.Resources()...)
	}
	return out
}

// Len returns the resource count under this service.
func (s *Service) Len() int {
	n := 0
	for _, name := range s.Kinds() {
		rk, _ := s.Kind(name)
		n += rk.Len()
	}
	return n
}

// ResourceKind holds the scanned instances of one resource kind, indexed
// by id in an ordered tree so iteration order is stable.
type ResourceKind struct {
	service string
	kind    string

	mu     sync.RWMutex
	tree   *btree.BTreeG[*types.Resource]
	frozen bool
}

func newResourceKind(service, kind string) *ResourceKind {
	return &ResourceKind{
		service: service,
		kind:    kind,
		tree: btree.NewG(kindTreeDegree, func(a, b *types.Resource) bool {
			return a.ID() < b.ID()
		}),
	}
}

// Service returns the owning service name.
func (rk *ResourceKind) Service() string { return rk.service }

// Kind returns the resource kind name.
func (rk *ResourceKind) Kind() string { return rk.kind }

// Path returns the qualified kind path, "service.kind".
func (rk *ResourceKind) Path() string { return rk.service + "." + rk.kind }

func (rk *ResourceKind) add(r *types.Resource) error {
	rk.mu.Lock()
	defer rk.mu.Unlock()
	if rk.frozen {
		return &types.ImmutabilityError{What: "resource kind " + rk.Path()}
	}
	rk.tree.ReplaceOrInsert(r)
	return nil
}

func (rk *ResourceKind) freeze() {
	rk.mu.Lock()
	defer rk.mu.Unlock()
	rk.frozen = true
	rk.tree.Ascend(func(r *types.Resource) bool {
		r.Freeze()
		return true
	})
}

func probe(id string) *types.Resource {
	return types.NewResource("", "", types.ScanContext{}, id, types.Metadata{})
}

// Resource returns the instance with the given id.
func (rk *ResourceKind) Resource(id string) (*types.Resource, bool) {
	rk.mu.RLock()
	defer rk.mu.RUnlock()
	return rk.tree.Get(probe(id))
}

// Resources returns every instance ordered by id.
func (rk *ResourceKind) Resources() []*types.Resource {
	rk.mu.RLock()
	defer rk.mu.RUnlock()
	out := make([]*types.Resource, 0, rk.tree.Len())
	rk.tree.Ascend(func(r *types.Resource) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Len returns the instance count.
func (rk *ResourceKind) Len() int {
	rk.mu.RLock()
	defer rk.mu.RUnlock()
	return rk.tree.Len()
}

// Where starts a filter chain over this kind's instances.
func (rk *ResourceKind) Where(path, op string, values ...string) *Query {
	return newQuery(rk).Where(path, op, values...)
}

// WhereNot starts a filter chain with a negated clause.
func (rk *ResourceKind) WhereNot(path, op string, values ...string) *Query {
	return newQuery(rk).WhereNot(path, op, values...)
}

// Query starts an unfiltered chain, useful as a base to branch from.
func (rk *ResourceKind) Query() *Query {
	return newQuery(rk)
}
