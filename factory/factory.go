// Package factory turns raw provider records into typed resources. Each
// resource kind gets a descriptor derived from its schema; the descriptor
// shapes incoming records, fills declared fields the provider omitted, and
// extracts the resource id.
package factory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yairfalse/aerographer/schema"
	"github.com/yairfalse/aerographer/types"
)

// Factory builds resource descriptors on demand and caches them. Safe for
// concurrent use by scan workers.
type Factory struct {
	registry *schema.Registry

	mu    sync.Mutex
	cache map[string]*Descriptor
}

// New creates a factory over a loaded schema registry.
func New(registry *schema.Registry) *Factory {
	return &Factory{
		registry: registry,
		cache:    make(map[string]*Descriptor),
	}
}

// Descriptor returns the descriptor for a qualified kind path. Repeated
// calls for the same path return the same descriptor.
func (f *Factory) Descriptor(path string) (*Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.cache[path]; ok {
		return d, nil
	}
	s, ok := f.registry.Schema(path)
	if !ok {
		return nil, fmt.Errorf("no schema registered for %s", path)
	}
	d := &Descriptor{schema: s}
	f.cache[path] = d
	return d, nil
}

// Descriptor builds resources of one kind from raw provider records.
type Descriptor struct {
	schema *schema.ResourceSchema
}

// Schema returns the resource schema backing this descriptor.
func (d *Descriptor) Schema() *schema.ResourceSchema { return d.schema }

// Path returns the qualified kind path, "service.kind".
func (d *Descriptor) Path() string { return d.schema.Path() }

// Resource shapes one raw record into a resource. Declared fields appear in
// schema order, with zero values standing in for anything the provider left
// out. Fields the schema does not declare are kept verbatim so policy
// checks can still reach them.
func (d *Descriptor) Resource(sctx types.ScanContext, record map[string]any) (*types.Resource, error) {
	meta := shapeValue(d.schema.Shape, record)
	id, err := extractID(meta, d.schema.IDAttribute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.schema.Path(), err)
	}
	return types.NewResource(d.schema.Service, d.schema.Kind, sctx, id, meta), nil
}

// shapeValue fits a raw value to a declared shape. Shape mismatches fall
// back to the raw value so nothing the provider returned is lost.
func shapeValue(s *schema.Shape, raw any) types.Metadata {
	switch s.Kind {
	case schema.ScalarShape:
		return types.Scalar(coerceScalar(s.Scalar, raw))
	case schema.SequenceShape:
		items, ok := raw.([]any)
		if !ok {
			if raw == nil {
				return types.Sequence(nil)
			}
			return types.FromAny(raw)
		}
		shaped := make([]types.Metadata, 0, len(items))
		for _, item := range items {
			shaped = append(shaped, shapeValue(s.Elem, item))
		}
		return types.Sequence(shaped)
	case schema.RecordShape:
		fields, ok := raw.(map[string]any)
		if !ok && raw != nil {
			return types.FromAny(raw)
		}
		return shapeRecord(s, fields)
	default:
		return types.FromAny(raw)
	}
}

func shapeRecord(s *schema.Shape, raw map[string]any) types.Metadata {
	fields := make([]types.Field, 0, len(s.FieldNames))
	for _, name := range s.FieldNames {
		child, _ := s.Field(name)
		v, present := raw[name]
		if !present {
			fields = append(fields, types.Field{Name: name, Value: zeroValue(child)})
			continue
		}
		fields = append(fields, types.Field{Name: name, Value: shapeValue(child, v)})
	}

	// Undeclared provider fields, appended after the declared ones in
	// stable order.
	var extra []string
	for name := range raw {
		if _, declared := s.Fields[name]; !declared {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		fields = append(fields, types.Field{Name: name, Value: types.FromAny(raw[name])})
	}
	return types.Record(fields)
}

// zeroValue builds the zero metadata for a declared shape: empty scalar,
// empty sequence, or a record with every declared field zeroed.
func zeroValue(s *schema.Shape) types.Metadata {
	switch s.Kind {
	case schema.SequenceShape:
		return types.Sequence(nil)
	case schema.RecordShape:
		fields := make([]types.Field, 0, len(s.FieldNames))
		for _, name := range s.FieldNames {
			child, _ := s.Field(name)
			fields = append(fields, types.Field{Name: name, Value: zeroValue(child)})
		}
		return types.Record(fields)
	default:
		switch s.Scalar {
		case schema.TypeInteger:
			return types.Scalar(int64(0))
		case schema.TypeNumber:
			return types.Scalar(float64(0))
		case schema.TypeBoolean:
			return types.Scalar(false)
		default:
			return types.Scalar("")
		}
	}
}

// coerceScalar normalizes raw scalars to one representation per declared
// type. JSON decoding hands every number over as float64; integer fields
// get folded back to int64 so comparisons behave.
func coerceScalar(ft schema.FieldType, raw any) any {
	if raw == nil {
		switch ft {
		case schema.TypeInteger:
			return int64(0)
		case schema.TypeNumber:
			return float64(0)
		case schema.TypeBoolean:
			return false
		default:
			return ""
		}
	}
	switch ft {
	case schema.TypeInteger:
		switch n := raw.(type) {
		case float64:
			return int64(n)
		case int:
			return int64(n)
		case int64:
			return n
		}
	case schema.TypeNumber:
		switch n := raw.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	case schema.TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b
		}
	case schema.TypeString:
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return raw
}

// extractID resolves the id attribute path against shaped metadata and
// renders the first hit as a string.
func extractID(meta types.Metadata, idPath string) (string, error) {
	hits, err := meta.Path(idPath)
	if err != nil {
		return "", fmt.Errorf("resolve id attribute: %w", err)
	}
	for _, hit := range hits {
		if hit.Kind() != types.ScalarValue {
			continue
		}
		switch v := hit.Value().(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case nil:
		default:
			return fmt.Sprintf("%v", v), nil
		}
	}
	return "", fmt.Errorf("id attribute %q yields no value", idPath)
}
