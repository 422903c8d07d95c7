package types

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ImmutabilityError reports a structural mutation attempted on a value that
// has already been published.
type ImmutabilityError struct {
	What string
}

func (e *ImmutabilityError) Error() string {
	return fmt.Sprintf("immutability violation: %s is published", e.What)
}

// ScanContext identifies one access point to the provider API: a single
// account, role, region and service combination. Session and client handles
// live with the orchestrator; this carries only the descriptive part so
// resources stay free of provider types.
type ScanContext struct {
	Name      string `json:"name"`
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	Role      string `json:"role,omitempty"`
	Service   string `json:"service"`
}

// Resource is one scanned instance of a resource kind. It is built by a
// scan unit, published into the survey, and after publication only the
// evaluation engine may touch it, by appending results.
type Resource struct {
	mu sync.Mutex

	id      string
	service string
	kind    string
	sctx    ScanContext
	meta    Metadata

	results []EvaluationResult
	frozen  bool
}

// NewResource creates an unpublished resource. Mutation is legal until the
// owning survey freezes it.
func NewResource(service, kind string, sctx ScanContext, id string, meta Metadata) *Resource {
	return &Resource{
		id:      id,
		service: service,
		kind:    kind,
		sctx:    sctx,
		meta:    meta,
	}
}

func (r *Resource) ID() string           { return r.id }
func (r *Resource) Service() string      { return r.service }
func (r *Resource) Kind() string         { return r.kind }
func (r *Resource) Context() ScanContext { return r.sctx }
func (r *Resource) Metadata() Metadata   { return r.meta }

// Path returns the qualified kind path, "service.kind".
func (r *Resource) Path() string {
	return r.service + "." + r.kind
}

// Key returns an identifier unique across accounts and regions.
func (r *Resource) Key() string {
	return r.sctx.AccountID + ":" + r.sctx.Region + ":" + r.id
}

// Attr extracts metadata values at a dot-separated path, with integer and
// "*" segments traversing sequences.
func (r *Resource) Attr(path string) ([]Metadata, error) {
	return r.meta.Path(path)
}

// SetMetadata replaces the metadata tree. Fails once published.
func (r *Resource) SetMetadata(m Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return &ImmutabilityError{What: "resource " + r.id}
	}
	r.meta = m
	return nil
}

// SetID replaces the resource id. Fails once published.
func (r *Resource) SetID(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return &ImmutabilityError{What: "resource " + r.id}
	}
	r.id = id
	return nil
}

// Freeze forbids further structural mutation. Appending evaluation results
// stays legal; that is the one sanctioned exception.
func (r *Resource) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the resource has been published.
func (r *Resource) Frozen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frozen
}

// RecordResult appends one evaluation result. First write for a check name
// wins; re-recording the same check is a no-op so memoized re-evaluation
// stays idempotent.
func (r *Resource) RecordResult(res EvaluationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.results {
		if existing.Check == res.Check {
			return
		}
	}
	r.results = append(r.results, res)
}

// Result returns the recorded result for a check name.
func (r *Resource) Result(check string) (EvaluationResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.Check == check {
			return res, true
		}
	}
	return EvaluationResult{}, false
}

// Results returns all recorded results in append order.
func (r *Resource) Results() []EvaluationResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EvaluationResult, len(r.results))
	copy(out, r.results)
	return out
}

// Passed reports whether every recorded result passed. A resource with no
// results passed by convention: no checks, no findings.
func (r *Resource) Passed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// AsMap renders the resource for export and for policy-engine input.
func (r *Resource) AsMap() map[string]any {
	results := r.Results()
	rendered := make([]map[string]any, 0, len(results))
	for _, res := range results {
		rendered = append(rendered, map[string]any{
			"check":   res.Check,
			"message": res.Message,
			"passed":  res.Passed,
		})
	}
	return map[string]any{
		"id":      r.id,
		"service": r.service,
		"kind":    r.kind,
		"passed":  r.Passed(),
		"context": map[string]any{
			"name":       r.sctx.Name,
			"account_id": r.sctx.AccountID,
			"region":     r.sctx.Region,
			"service":    r.sctx.Service,
		},
		"data":    r.meta.AsAny(),
		"results": rendered,
	}
}

// AsJSON renders the resource as a JSON document.
func (r *Resource) AsJSON() (string, error) {
	b, err := json.Marshal(r.AsMap())
	if err != nil {
		return "", fmt.Errorf("marshal resource %s: %w", r.id, err)
	}
	return string(b), nil
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s(%s:%s:%s)", r.Path(), r.sctx.AccountID, r.sctx.Region, r.id)
}
