package survey

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/yairfalse/aerographer/types"
)

// QuerySyntaxError reports a malformed attribute path or an unsupported
// operator in a filter chain. Detected at chain construction and returned
// by the chain's terminal call.
type QuerySyntaxError struct {
	Expr string
	Msg  string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("query syntax error in %q: %s", e.Expr, e.Msg)
}

// Supported filter operators.
const (
	OpEq             = "eq"
	OpNe             = "ne"
	OpGt             = "gt"
	OpLt             = "lt"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpContainsAll    = "contains_all"
	OpNotContainsAll = "not_contains_all"
	OpStartsWith     = "startswith"
	OpEndsWith       = "endswith"
)

var operators = map[string]bool{
	OpEq:             true,
	OpNe:             true,
	OpGt:             true,
	OpLt:             true,
	OpContains:       true,
	OpNotContains:    true,
	OpContainsAll:    true,
	OpNotContainsAll: true,
	OpStartsWith:     true,
	OpEndsWith:       true,
}

type clause struct {
	path   string
	op     string
	values []string
	negate bool
}

// Query is a chainable conjunctive filter over one resource kind. Clauses
// compose with logical AND and the chain order never changes the result
// set. Each terminal call re-derives its sequence from the kind registry,
// so a chain over a published survey is restartable and deterministic.
type Query struct {
	kind    *ResourceKind
	clauses []clause
	err     error
}

func newQuery(rk *ResourceKind) *Query {
	return &Query{kind: rk}
}

// Where appends a clause retaining resources for which the operator
// condition holds.
func (q *Query) Where(path, op string, values ...string) *Query {
	return q.append(path, op, values, false)
}

// WhereNot appends a clause retaining resources for which the operator
// condition does not hold.
func (q *Query) WhereNot(path, op string, values ...string) *Query {
	return q.append(path, op, values, true)
}

// append returns a new chain so a shared prefix can branch safely.
func (q *Query) append(path, op string, values []string, negate bool) *Query {
	next := &Query{
		kind:    q.kind,
		clauses: append(append([]clause(nil), q.clauses...), clause{path, op, values, negate}),
		err:     q.err,
	}
	if next.err == nil {
		if verr := validateClause(path, op); verr != nil {
			next.err = verr
		}
	}
	return next
}

func validateClause(path, op string) error {
	if !operators[op] {
		return &QuerySyntaxError{Expr: path, Msg: "unsupported operator " + strconv.Quote(op)}
	}
	if path == "" {
		return &QuerySyntaxError{Expr: path, Msg: "empty attribute path"}
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return &QuerySyntaxError{Expr: path, Msg: "empty path segment"}
		}
	}
	return nil
}

// Err returns the first syntax error recorded while building the chain.
func (q *Query) Err() error { return q.err }

// Get evaluates the chain and returns the matching resources ordered by
// id.
func (q *Query) Get() ([]*types.Resource, error) {
	if q.err != nil {
		return nil, q.err
	}
	var out []*types.Resource
	for _, r := range q.kind.Resources() {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// All returns a lazy, restartable sequence of matching resources. A chain
// carrying a syntax error yields nothing; check Err before iterating.
func (q *Query) All() iter.Seq[*types.Resource] {
	return func(yield func(*types.Resource) bool) {
		if q.err != nil {
			return
		}
		for _, r := range q.kind.Resources() {
			if q.matches(r) {
				if !yield(r) {
					return
				}
			}
		}
	}
}

// First returns the first matching resource in id order.
func (q *Query) First() (*types.Resource, bool, error) {
	matched, err := q.Get()
	if err != nil || len(matched) == 0 {
		return nil, false, err
	}
	return matched[0], true, nil
}

// Count returns the number of matching resources.
func (q *Query) Count() (int, error) {
	matched, err := q.Get()
	return len(matched), err
}

func (q *Query) matches(r *types.Resource) bool {
	for _, c := range q.clauses {
		hits, err := r.Attr(c.path)
		if err != nil {
			return false
		}
		holds := evalClause(c.op, hits, c.values)
		if holds == c.negate {
			return false
		}
	}
	return true
}

// evalClause applies one operator over the extracted value set. Existential
// operators need one extracted value satisfying the condition; "ne" and the
// negative containment operators are universal and hold vacuously over an
// empty extraction.
func evalClause(op string, hits []types.Metadata, values []string) bool {
	switch op {
	case OpEq:
		for _, v := range scalarStrings(hits) {
			if matchAny(values, func(m string) bool { return v == m }) {
				return true
			}
		}
		return false
	case OpNe:
		for _, v := range scalarStrings(hits) {
			if matchAny(values, func(m string) bool { return v == m }) {
				return false
			}
		}
		return true
	case OpGt:
		for _, v := range scalarStrings(hits) {
			if matchAny(values, func(m string) bool { return compareValues(v, m) > 0 }) {
				return true
			}
		}
		return false
	case OpLt:
		for _, v := range scalarStrings(hits) {
			if matchAny(values, func(m string) bool { return compareValues(v, m) < 0 }) {
				return true
			}
		}
		return false
	case OpContains:
		for _, h := range hits {
			if containerHoldsAny(h, values) {
				return true
			}
		}
		return false
	case OpNotContains:
		for _, h := range hits {
			if containerHoldsAny(h, values) {
				return false
			}
		}
		return true
	case OpContainsAll:
		for _, h := range hits {
			if containerHoldsAll(h, values) {
				return true
			}
		}
		return false
	case OpNotContainsAll:
		for _, h := range hits {
			if containerHoldsAll(h, values) {
				return false
			}
		}
		return true
	case OpStartsWith:
		for _, v := range scalarStrings(hits) {
			if matchAny(values, func(m string) bool { return strings.HasPrefix(v, m) }) {
				return true
			}
		}
		return false
	case OpEndsWith:
		for _, v := range scalarStrings(hits) {
			if matchAny(values, func(m string) bool { return strings.HasSuffix(v, m) }) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matchAny(values []string, pred func(string) bool) bool {
	for _, m := range values {
		if pred(m) {
			return true
		}
	}
	return false
}

// scalarStrings renders the scalar members of an extraction as strings.
// Non-scalar hits are left to the containment operators.
func scalarStrings(hits []types.Metadata) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Kind() != types.ScalarValue {
			continue
		}
		out = append(out, scalarString(h.Value()))
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// compareValues orders two rendered values numerically when both parse as
// numbers, lexically otherwise.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// containerHoldsAny reports whether one extracted value, viewed as a
// container, holds any of the supplied values. A sequence holds a value by
// scalar membership; a string holds it as a substring.
func containerHoldsAny(h types.Metadata, values []string) bool {
	for _, m := range values {
		if containerHolds(h, m) {
			return true
		}
	}
	return false
}

func containerHoldsAll(h types.Metadata, values []string) bool {
	if len(values) == 0 {
		return false
	}
	for _, m := range values {
		if !containerHolds(h, m) {
			return false
		}
	}
	return true
}

func containerHolds(h types.Metadata, m string) bool {
	switch h.Kind() {
	case types.SequenceValue:
		for _, item := range h.Items() {
			if item.Kind() == types.ScalarValue && scalarString(item.Value()) == m {
				return true
			}
		}
		return false
	case types.ScalarValue:
		if s, ok := h.Value().(string); ok {
			return strings.Contains(s, m)
		}
		return false
	default:
		return false
	}
}
