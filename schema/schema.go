// Package schema loads declarative resource definitions and exposes them as
// immutable ResourceSchema values. One definition file per service, one
// schema per resource kind.
package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaError reports a malformed resource definition. It is fatal: the
// registry refuses to load and the run aborts before any scanning.
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	if e.Path == "" {
		return "schema error: " + e.Msg
	}
	return fmt.Sprintf("schema error in %s: %s", e.Path, e.Msg)
}

func schemaErrorf(path, format string, args ...any) error {
	return &SchemaError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// FieldType is a declared scalar field type.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
)

// ShapeKind discriminates shape nodes.
type ShapeKind int

const (
	ScalarShape ShapeKind = iota
	RecordShape
	SequenceShape
)

// Shape is one node of a recursive field-shape declaration.
type Shape struct {
	Kind   ShapeKind
	Scalar FieldType

	// Record fields in declaration order.
	FieldNames []string
	Fields     map[string]*Shape

	// Sequence element shape.
	Elem *Shape
}

// Field returns the declared shape of a record field.
func (s *Shape) Field(name string) (*Shape, bool) {
	if s == nil || s.Kind != RecordShape {
		return nil, false
	}
	f, ok := s.Fields[name]
	return f, ok
}

// ResourceSchema is the immutable definition of one resource kind.
type ResourceSchema struct {
	Service     string
	Kind        string
	ResourceKey string
	IDAttribute string
	Paginator   string
	PageMarker  string
	Global      bool
	ScanParams  map[string]any
	Includes    []string
	Shape       *Shape
}

// Path returns the qualified kind path, "service.kind".
func (s *ResourceSchema) Path() string {
	return s.Service + "." + s.Kind
}

// parseShape walks a YAML node into a Shape. Scalars name a field type,
// mappings declare records, one-element sequences declare lists of the
// element shape. Record field order follows the document.
func parseShape(path string, node *yaml.Node) (*Shape, error) {
	if node == nil {
		return nil, schemaErrorf(path, "missing shape")
	}
	switch node.Kind {
	case yaml.ScalarNode:
		ft := FieldType(strings.TrimSpace(node.Value))
		switch ft {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean:
			return &Shape{Kind: ScalarShape, Scalar: ft}, nil
		default:
			return nil, schemaErrorf(path, "unknown field type %q", node.Value)
		}
	case yaml.MappingNode:
		shape := &Shape{Kind: RecordShape, Fields: make(map[string]*Shape, len(node.Content)/2)}
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := node.Content[i].Value
			child, err := parseShape(path, node.Content[i+1])
			if err != nil {
				return nil, err
			}
			if _, dup := shape.Fields[name]; dup {
				return nil, schemaErrorf(path, "duplicate field %q", name)
			}
			shape.FieldNames = append(shape.FieldNames, name)
			shape.Fields[name] = child
		}
		return shape, nil
	case yaml.SequenceNode:
		if len(node.Content) != 1 {
			return nil, schemaErrorf(path, "sequence shape must declare exactly one element shape")
		}
		elem, err := parseShape(path, node.Content[0])
		if err != nil {
			return nil, err
		}
		return &Shape{Kind: SequenceShape, Elem: elem}, nil
	case yaml.AliasNode:
		return parseShape(path, node.Alias)
	default:
		return nil, schemaErrorf(path, "unsupported shape node")
	}
}

// validateIDPath checks that an id attribute path is statically reachable
// through the declared shape.
func validateIDPath(kindPath string, shape *Shape, idPath string) error {
	if idPath == "" {
		return schemaErrorf(kindPath, "missing id_attribute")
	}
	current := shape
	for _, seg := range strings.Split(idPath, ".") {
		if seg == "" {
			return schemaErrorf(kindPath, "empty segment in id_attribute %q", idPath)
		}
		switch {
		case seg == "*" || isDigits(seg):
			if current == nil || current.Kind != SequenceShape {
				return schemaErrorf(kindPath, "id_attribute %q indexes a non-sequence field", idPath)
			}
			current = current.Elem
		default:
			field, ok := current.Field(seg)
			if !ok {
				return schemaErrorf(kindPath, "id_attribute %q names undeclared field %q", idPath, seg)
			}
			current = field
		}
	}
	if current == nil || current.Kind != ScalarShape {
		return schemaErrorf(kindPath, "id_attribute %q does not resolve to a scalar field", idPath)
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
