package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind discriminates the three shapes a Metadata value can take.
type ValueKind int

const (
	ScalarValue ValueKind = iota
	RecordValue
	SequenceValue
)

func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case RecordValue:
		return "record"
	case SequenceValue:
		return "sequence"
	default:
		return "unknown"
	}
}

// Metadata is a recursive tagged value holding the data a provider returned
// for one resource: a scalar, an ordered record of named children, or a
// sequence of children. One Metadata tree is owned by exactly one Resource
// and is never shared or mutated after the resource is built.
type Metadata struct {
	kind   ValueKind
	scalar any
	keys   []string
	fields map[string]Metadata
	items  []Metadata
}

// Field pairs a record field name with its value, preserving declaration order.
type Field struct {
	Name  string
	Value Metadata
}

// Scalar wraps a primitive value.
func Scalar(v any) Metadata {
	return Metadata{kind: ScalarValue, scalar: v}
}

// Record builds an ordered record from the given fields.
func Record(fields []Field) Metadata {
	m := Metadata{kind: RecordValue, fields: make(map[string]Metadata, len(fields))}
	for _, f := range fields {
		if _, dup := m.fields[f.Name]; dup {
			continue
		}
		m.keys = append(m.keys, f.Name)
		m.fields[f.Name] = f.Value
	}
	return m
}

// Sequence builds an ordered sequence from the given items.
func Sequence(items []Metadata) Metadata {
	return Metadata{kind: SequenceValue, items: items}
}

// Kind reports the shape of the value.
func (m Metadata) Kind() ValueKind { return m.kind }

// Value returns the primitive held by a scalar, nil otherwise.
func (m Metadata) Value() any {
	if m.kind != ScalarValue {
		return nil
	}
	return m.scalar
}

// Field returns the named child of a record.
func (m Metadata) Field(name string) (Metadata, bool) {
	if m.kind != RecordValue {
		return Metadata{}, false
	}
	v, ok := m.fields[name]
	return v, ok
}

// Fields returns record field names in declaration order.
func (m Metadata) Fields() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Index returns the i-th item of a sequence.
func (m Metadata) Index(i int) (Metadata, bool) {
	if m.kind != SequenceValue || i < 0 || i >= len(m.items) {
		return Metadata{}, false
	}
	return m.items[i], true
}

// Items returns the items of a sequence in order.
func (m Metadata) Items() []Metadata {
	out := make([]Metadata, len(m.items))
	copy(out, m.items)
	return out
}

// Len returns the item count of a sequence or field count of a record.
func (m Metadata) Len() int {
	switch m.kind {
	case SequenceValue:
		return len(m.items)
	case RecordValue:
		return len(m.keys)
	default:
		return 0
	}
}

// AsAny converts the tree back to plain Go values: map[string]any for
// records, []any for sequences, the primitive for scalars.
func (m Metadata) AsAny() any {
	switch m.kind {
	case RecordValue:
		out := make(map[string]any, len(m.keys))
		for _, k := range m.keys {
			out[k] = m.fields[k].AsAny()
		}
		return out
	case SequenceValue:
		out := make([]any, len(m.items))
		for i, item := range m.items {
			out[i] = item.AsAny()
		}
		return out
	default:
		return m.scalar
	}
}

// FromAny converts plain Go values into a Metadata tree. Maps become
// records with sorted keys, slices become sequences, everything else a
// scalar.
func FromAny(v any) Metadata {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Name: k, Value: FromAny(t[k])})
		}
		return Record(fields)
	case []any:
		items := make([]Metadata, 0, len(t))
		for _, e := range t {
			items = append(items, FromAny(e))
		}
		return Sequence(items)
	default:
		return Scalar(v)
	}
}

// Path extracts every value reachable through a dot-separated attribute
// path. A non-negative integer segment indexes a sequence, a "*" segment
// fans out over every sequence element. Lookup misses (absent field, index
// out of range, segment kind mismatch) produce no values rather than an
// error; only a syntactically empty path or segment is rejected.
func (m Metadata) Path(expr string) ([]Metadata, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty attribute path")
	}
	segments := strings.Split(expr, ".")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("empty segment in attribute path %q", expr)
		}
	}
	return walkPath([]Metadata{m}, segments), nil
}

func walkPath(current []Metadata, segments []string) []Metadata {
	for _, seg := range segments {
		var next []Metadata
		for _, m := range current {
			next = append(next, stepPath(m, seg)...)
		}
		current = next
		if len(current) == 0 {
			break
		}
	}
	return current
}

func stepPath(m Metadata, seg string) []Metadata {
	switch {
	case seg == "*":
		if m.kind != SequenceValue {
			return nil
		}
		return m.items
	case isIndexSegment(seg):
		i, _ := strconv.Atoi(seg)
		item, ok := m.Index(i)
		if !ok {
			return nil
		}
		return []Metadata{item}
	default:
		v, ok := m.Field(seg)
		if !ok {
			return nil
		}
		return []Metadata{v}
	}
}

func isIndexSegment(seg string) bool {
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(seg) > 0
}
