package aws

import (
	"context"
	"fmt"
	"reflect"

	"github.com/yairfalse/aerographer/providers"
)

// inputMarkerNames maps an output cursor field to the input field that
// resumes from it, for the APIs where the two names differ.
var inputMarkerNames = map[string]string{
	"NextMarker":             "Marker",
	"LastEvaluatedTableName": "ExclusiveStartTableName",
	"NextContinuationToken":  "ContinuationToken",
}

// markerPaginator drives any list operation by following a named cursor
// field, for kinds whose operation has no dedicated builder. The client
// method is resolved by name and invoked through reflection with an input
// built from the scan parameters plus the cursor.
type markerPaginator struct {
	method reflect.Value
	spec   providers.PaginatorSpec

	marker  string
	started bool
	done    bool
}

func newMarkerPaginator(client providers.Client, spec providers.PaginatorSpec) (providers.Paginator, error) {
	if spec.PageMarker == "" {
		return nil, fmt.Errorf("no paginator named %q and no page marker declared for generic pagination", spec.Name)
	}
	method := reflect.ValueOf(client).MethodByName(spec.Name)
	if !method.IsValid() {
		return nil, fmt.Errorf("client %T has no operation %q", client, spec.Name)
	}
	mt := method.Type()
	if mt.NumIn() < 2 || mt.NumOut() != 2 || mt.In(1).Kind() != reflect.Pointer {
		return nil, fmt.Errorf("operation %q does not have a list-call signature", spec.Name)
	}
	return &markerPaginator{method: method, spec: spec}, nil
}

func (p *markerPaginator) HasMorePages() bool {
	return !p.done
}

func (p *markerPaginator) NextPage(ctx context.Context) (map[string]any, error) {
	params := make(map[string]any, len(p.spec.Parameters)+1)
	for k, v := range p.spec.Parameters {
		params[k] = v
	}
	if p.started && p.marker != "" {
		params[inputMarkerName(p.spec.PageMarker)] = p.marker
	}

	input := reflect.New(p.method.Type().In(1).Elem())
	if err := applyParameters(params, input.Interface()); err != nil {
		p.done = true
		return nil, err
	}

	results := p.method.Call([]reflect.Value{reflect.ValueOf(ctx), input})
	if errv := results[1]; !errv.IsNil() {
		p.done = true
		return nil, errv.Interface().(error)
	}
	page, err := pageToMap(results[0].Interface())
	if err != nil {
		p.done = true
		return nil, err
	}

	p.started = true
	if next, ok := page[p.spec.PageMarker].(string); ok && next != "" {
		p.marker = next
	} else {
		p.done = true
	}
	return page, nil
}

func inputMarkerName(outputMarker string) string {
	if in, ok := inputMarkerNames[outputMarker]; ok {
		return in
	}
	return outputMarker
}
