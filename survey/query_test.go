package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// interfaceSurvey builds the canonical fixture: one security group and two
// network interfaces, one of which is attached to sg-1.
func interfaceSurvey(t *testing.T) *Survey {
	t.Helper()
	sv := New()
	require.NoError(t, sv.Add(mkResource("ec2", "security_group", "sg-1", map[string]any{
		"GroupId":   "sg-1",
		"GroupName": "web",
	})))
	require.NoError(t, sv.Add(mkResource("ec2", "network_interface", "eni-1", map[string]any{
		"NetworkInterfaceId": "eni-1",
		"Groups": []any{
			map[string]any{"GroupName": "web", "GroupId": "sg-1"},
		},
	})))
	require.NoError(t, sv.Add(mkResource("ec2", "network_interface", "eni-2", map[string]any{
		"NetworkInterfaceId": "eni-2",
		"Groups": []any{
			map[string]any{"GroupName": "db", "GroupId": "sg-9"},
		},
	})))
	sv.Publish()
	return sv
}

func ids(t *testing.T, q *Query) []string {
	t.Helper()
	matched, err := q.Get()
	require.NoError(t, err)
	out := make([]string, 0, len(matched))
	for _, r := range matched {
		out = append(out, r.ID())
	}
	return out
}

func TestWildcardGroupLookup(t *testing.T) {
	sv := interfaceSurvey(t)
	rk, ok := sv.Kind("ec2.network_interface")
	require.True(t, ok)

	got := ids(t, rk.Where("Groups.*.GroupId", OpEq, "sg-1"))
	assert.Equal(t, []string{"eni-1"}, got)
}

func TestChainIsConjunctiveAndOrderIndependent(t *testing.T) {
	sv := interfaceSurvey(t)
	rk, _ := sv.Kind("ec2.network_interface")

	a := ids(t, rk.Where("Groups.*.GroupId", OpEq, "sg-1").Where("Groups.*.GroupName", OpEq, "web"))
	b := ids(t, rk.Where("Groups.*.GroupName", OpEq, "web").Where("Groups.*.GroupId", OpEq, "sg-1"))
	assert.Equal(t, a, b)
	assert.Equal(t, []string{"eni-1"}, a)

	none := ids(t, rk.Where("Groups.*.GroupId", OpEq, "sg-1").Where("Groups.*.GroupName", OpEq, "db"))
	assert.Empty(t, none)
}

func TestWhereNot(t *testing.T) {
	sv := interfaceSurvey(t)
	rk, _ := sv.Kind("ec2.network_interface")

	got := ids(t, rk.WhereNot("Groups.*.GroupId", OpEq, "sg-1"))
	assert.Equal(t, []string{"eni-2"}, got)
}

func TestQueryBranchesShareNoState(t *testing.T) {
	sv := interfaceSurvey(t)
	rk, _ := sv.Kind("ec2.network_interface")

	base := rk.Query().Where("NetworkInterfaceId", OpStartsWith, "eni")
	left := base.Where("Groups.*.GroupId", OpEq, "sg-1")
	right := base.Where("Groups.*.GroupId", OpEq, "sg-9")

	assert.Equal(t, []string{"eni-1"}, ids(t, left))
	assert.Equal(t, []string{"eni-2"}, ids(t, right))
	assert.Equal(t, []string{"eni-1", "eni-2"}, ids(t, base))
}

func operatorSurvey(t *testing.T) *ResourceKind {
	t.Helper()
	sv := New()
	require.NoError(t, sv.Add(mkResource("widget", "thing", "t-1", map[string]any{
		"Name":  "alpha-prod",
		"Size":  int64(10),
		"Zones": []any{"us-east-1a", "us-east-1b"},
	})))
	require.NoError(t, sv.Add(mkResource("widget", "thing", "t-2", map[string]any{
		"Name":  "beta-dev",
		"Size":  int64(3),
		"Zones": []any{"eu-west-1a"},
	})))
	sv.Publish()
	rk, ok := sv.Kind("widget.thing")
	require.True(t, ok)
	return rk
}

func TestOperators(t *testing.T) {
	rk := operatorSurvey(t)

	tests := []struct {
		name   string
		query  *Query
		expect []string
	}{
		{"eq", rk.Where("Name", OpEq, "alpha-prod"), []string{"t-1"}},
		{"eq multiple values", rk.Where("Name", OpEq, "alpha-prod", "beta-dev"), []string{"t-1", "t-2"}},
		{"ne", rk.Where("Name", OpNe, "alpha-prod"), []string{"t-2"}},
		{"ne vacuous on missing path", rk.Where("Missing", OpNe, "x"), []string{"t-1", "t-2"}},
		{"eq missing path matches nothing", rk.Where("Missing", OpEq, "x"), nil},
		{"gt numeric", rk.Where("Size", OpGt, "5"), []string{"t-1"}},
		{"lt numeric", rk.Where("Size", OpLt, "5"), []string{"t-2"}},
		{"contains on sequence", rk.Where("Zones", OpContains, "us-east-1b"), []string{"t-1"}},
		{"contains substring", rk.Where("Name", OpContains, "prod"), []string{"t-1"}},
		{"not_contains", rk.Where("Zones", OpNotContains, "us-east-1b"), []string{"t-2"}},
		{"contains_all", rk.Where("Zones", OpContainsAll, "us-east-1a", "us-east-1b"), []string{"t-1"}},
		{"not_contains_all", rk.Where("Zones", OpNotContainsAll, "us-east-1a", "us-east-1b"), []string{"t-2"}},
		{"startswith", rk.Where("Name", OpStartsWith, "beta"), []string{"t-2"}},
		{"endswith", rk.Where("Name", OpEndsWith, "prod"), []string{"t-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query.Get()
			require.NoError(t, err)
			var gotIDs []string
			for _, r := range got {
				gotIDs = append(gotIDs, r.ID())
			}
			assert.Equal(t, tt.expect, gotIDs)
		})
	}
}

func TestComparisonsOverRawIntScalars(t *testing.T) {
	// FromAny keeps hand-built ints as-is, so comparisons must render
	// them like the JSON-decoded numeric types.
	sv := New()
	require.NoError(t, sv.Add(mkResource("widget", "thing", "t-1", map[string]any{
		"Size": 10,
	})))
	require.NoError(t, sv.Add(mkResource("widget", "thing", "t-2", map[string]any{
		"Size": int32(3),
	})))
	sv.Publish()
	rk, ok := sv.Kind("widget.thing")
	require.True(t, ok)

	assert.Equal(t, []string{"t-1"}, ids(t, rk.Where("Size", OpGt, "5")))
	assert.Equal(t, []string{"t-2"}, ids(t, rk.Where("Size", OpLt, "5")))
	assert.Equal(t, []string{"t-1"}, ids(t, rk.Where("Size", OpEq, "10")))
}

func TestQuerySyntaxErrors(t *testing.T) {
	rk := operatorSurvey(t)

	_, err := rk.Where("Name", "between", "a", "b").Get()
	var qerr *QuerySyntaxError
	require.ErrorAs(t, err, &qerr)

	_, err = rk.Where("", OpEq, "x").Get()
	require.ErrorAs(t, err, &qerr)

	_, err = rk.Where("A..B", OpEq, "x").Get()
	require.ErrorAs(t, err, &qerr)

	// The first error sticks through later valid clauses.
	_, err = rk.Where("Name", "bogus", "x").Where("Name", OpEq, "alpha-prod").Get()
	require.ErrorAs(t, err, &qerr)
	assert.Error(t, rk.Where("Name", "bogus").Err())
}

func TestAllIsRestartable(t *testing.T) {
	rk := operatorSurvey(t)
	q := rk.Where("Name", OpContains, "-")

	count := func() int {
		n := 0
		for range q.All() {
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())
	assert.Equal(t, 2, count())

	// Early break then restart.
	for range q.All() {
		break
	}
	assert.Equal(t, 2, count())
}

func TestFirstAndCount(t *testing.T) {
	rk := operatorSurvey(t)

	r, ok, err := rk.Where("Size", OpGt, "0").First()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t-1", r.ID())

	n, err := rk.Where("Size", OpGt, "0").Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err = rk.Where("Size", OpGt, "100").First()
	require.NoError(t, err)
	assert.False(t, ok)
}
