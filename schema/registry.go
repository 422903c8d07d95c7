package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var definitionsFS embed.FS

// serviceDef mirrors one definition file.
type serviceDef struct {
	Service string             `yaml:"service"`
	Global  bool               `yaml:"global"`
	Kinds   map[string]kindDef `yaml:"kinds"`
}

type kindDef struct {
	ResourceKey string         `yaml:"resource_key"`
	IDAttribute string         `yaml:"id_attribute"`
	Paginator   string         `yaml:"paginator"`
	PageMarker  string         `yaml:"page_marker"`
	ScanParams  map[string]any `yaml:"scan_parameters"`
	Includes    []string       `yaml:"includes"`
	Shape       yaml.Node      `yaml:"shape"`
}

// Registry holds every loaded resource schema, keyed by "service.kind".
// Loaded once at startup, immutable thereafter.
type Registry struct {
	schemas  map[string]*ResourceSchema
	services map[string][]string
}

// Load parses the embedded definition catalog.
func Load() (*Registry, error) {
	return LoadFS(definitionsFS, "definitions")
}

// LoadFS parses every *.yaml definition file under dir in fsys.
func LoadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.Glob(fsys, dir+"/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	sort.Strings(entries)

	r := &Registry{
		schemas:  make(map[string]*ResourceSchema),
		services: make(map[string][]string),
	}
	for _, name := range entries {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read definition %s: %w", name, err)
		}
		if err := r.addService(name, data); err != nil {
			return nil, err
		}
	}
	for service := range r.services {
		sort.Strings(r.services[service])
	}
	return r, nil
}

func (r *Registry) addService(file string, data []byte) error {
	var def serviceDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return schemaErrorf(file, "parse definition: %v", err)
	}
	if def.Service == "" {
		return schemaErrorf(file, "missing service name")
	}
	if len(def.Kinds) == 0 {
		return schemaErrorf(def.Service, "no kinds declared")
	}

	for kind, kd := range def.Kinds {
		path := def.Service + "." + kind
		if _, dup := r.schemas[path]; dup {
			return schemaErrorf(path, "duplicate kind definition")
		}
		if kd.ResourceKey == "" {
			return schemaErrorf(path, "missing resource_key")
		}
		if kd.Paginator == "" {
			return schemaErrorf(path, "missing paginator")
		}
		shape, err := parseShape(path, &kd.Shape)
		if err != nil {
			return err
		}
		if shape.Kind != RecordShape {
			return schemaErrorf(path, "top-level shape must be a record")
		}
		if err := validateIDPath(path, shape, kd.IDAttribute); err != nil {
			return err
		}
		params := kd.ScanParams
		if params == nil {
			params = map[string]any{}
		}
		r.schemas[path] = &ResourceSchema{
			Service:     def.Service,
			Kind:        kind,
			ResourceKey: kd.ResourceKey,
			IDAttribute: kd.IDAttribute,
			Paginator:   kd.Paginator,
			PageMarker:  kd.PageMarker,
			Global:      def.Global,
			ScanParams:  params,
			Includes:    append([]string(nil), kd.Includes...),
			Shape:       shape,
		}
		r.services[def.Service] = append(r.services[def.Service], path)
	}
	return nil
}

// Schema returns the schema for a qualified kind path.
func (r *Registry) Schema(path string) (*ResourceSchema, bool) {
	s, ok := r.schemas[path]
	return s, ok
}

// Kinds returns every registered kind path, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.schemas))
	for path := range r.schemas {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// KindsFor returns the kind paths registered under one service.
func (r *Registry) KindsFor(service string) []string {
	return append([]string(nil), r.services[service]...)
}

// Services returns every service with at least one kind, sorted.
func (r *Registry) Services() []string {
	out := make([]string, 0, len(r.services))
	for s := range r.services {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Expand resolves a mixed list of service names and kind paths into kind
// paths. A bare service expands to every kind under it. Unknown names are
// an error so typos fail loudly rather than silently scanning nothing.
func (r *Registry) Expand(names []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.Contains(name, ".") {
			if _, ok := r.schemas[name]; !ok {
				return nil, schemaErrorf(name, "unknown resource kind")
			}
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			continue
		}
		kinds, ok := r.services[name]
		if !ok {
			return nil, schemaErrorf(name, "unknown service")
		}
		for _, path := range kinds {
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
