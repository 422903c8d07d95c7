package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/aerographer/evaluation"
	"github.com/yairfalse/aerographer/providers"
	"github.com/yairfalse/aerographer/schema"
	"github.com/yairfalse/aerographer/types"
	"github.com/yairfalse/aerographer/whiteboard"
)

// fakeProvider serves canned pages keyed by paginator name (optionally
// prefixed "role/" for role-specific responses) and counts every paginator
// construction per (profile, region, operation).
type fakeProvider struct {
	mu           sync.Mutex
	pages        map[string][]map[string]any
	calls        map[string]int
	params       map[string]map[string]any
	failProfiles map[string]bool
}

type fakeSession struct {
	profile string
	region  string
	role    string
}

type fakeClient struct {
	profile string
	region  string
	role    string
	service string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		pages:  map[string][]map[string]any{},
		calls:  map[string]int{},
		params: map[string]map[string]any{},
	}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) GetSession(ctx context.Context, profile, region string) (providers.Session, error) {
	if p.failProfiles[profile] {
		return nil, errors.New("access denied")
	}
	return fakeSession{profile: profile, region: region}, nil
}

func (p *fakeProvider) AssumeRole(ctx context.Context, session providers.Session, roleArn string) (providers.Session, error) {
	s := session.(fakeSession)
	s.role = roleArn
	return s, nil
}

func (p *fakeProvider) CallerIdentity(ctx context.Context, session providers.Session) (providers.Identity, error) {
	s := session.(fakeSession)
	return providers.Identity{AccountID: "acct-" + s.profile}, nil
}

func (p *fakeProvider) Client(service string, session providers.Session) (providers.Client, error) {
	s := session.(fakeSession)
	return fakeClient{profile: s.profile, region: s.region, role: s.role, service: service}, nil
}

func (p *fakeProvider) Paginator(client providers.Client, spec providers.PaginatorSpec) (providers.Paginator, error) {
	c := client.(fakeClient)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[c.profile+"/"+c.region+"/"+spec.Name]++
	p.params[spec.Name] = spec.Parameters
	pages := p.pages[spec.Name]
	if c.role != "" {
		if rolePages, ok := p.pages[c.role+"/"+spec.Name]; ok {
			pages = rolePages
		}
	}
	return &fakePaginator{pages: pages}, nil
}

func (p *fakeProvider) callCount(profile, region, operation string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[profile+"/"+region+"/"+operation]
}

func (p *fakeProvider) paramsFor(operation string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params[operation]
}

type fakePaginator struct {
	pages []map[string]any
	idx   int
}

func (p *fakePaginator) HasMorePages() bool { return p.idx < len(p.pages) }

func (p *fakePaginator) NextPage(ctx context.Context) (map[string]any, error) {
	page := p.pages[p.idx]
	p.idx++
	return page, nil
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Load()
	require.NoError(t, err)
	return reg
}

func oneAccount() []types.Account {
	return []types.Account{{Profile: "dev", Regions: []string{"us-east-1"}}}
}

func sgPages() []map[string]any {
	return []map[string]any{
		{"SecurityGroups": []any{
			map[string]any{"GroupId": "sg-1", "GroupName": "web"},
		}},
		{"SecurityGroups": []any{
			map[string]any{"GroupId": "sg-2", "GroupName": "db"},
		}},
	}
}

func TestScanPublishesResources(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["DescribeSecurityGroups"] = sgPages()

	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	sv, report, err := orch.Scan(context.Background(), oneAccount(), []string{"ec2.security_group"}, nil)
	require.NoError(t, err)

	require.True(t, sv.Published())
	rk, ok := sv.Kind("ec2.security_group")
	require.True(t, ok)
	assert.Equal(t, 2, rk.Len())

	r, ok := rk.Resource("sg-1")
	require.True(t, ok)
	assert.Equal(t, "acct-dev", r.Context().AccountID)

	assert.Equal(t, 2, report.Resources)
	assert.False(t, report.Failed())
}

func TestScanUnitRunsOncePerRun(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["DescribeSecurityGroups"] = sgPages()

	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	_, _, err := orch.Scan(context.Background(), oneAccount(), []string{"ec2.security_group"}, nil)
	require.NoError(t, err)
	_, _, err = orch.Scan(context.Background(), oneAccount(), []string{"ec2.security_group"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, fp.callCount("dev", "us-east-1", "DescribeSecurityGroups"))
}

func TestRoleContextsScanSeparately(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["role/audit/DescribeSecurityGroups"] = []map[string]any{
		{"SecurityGroups": []any{
			map[string]any{"GroupId": "sg-audit"},
		}},
	}
	fp.pages["role/ops/DescribeSecurityGroups"] = []map[string]any{
		{"SecurityGroups": []any{
			map[string]any{"GroupId": "sg-ops"},
		}},
	}

	// Same profile and region, different assumed roles: two distinct
	// contexts, so each gets its own scan unit.
	accounts := []types.Account{
		{Profile: "dev", Role: "role/audit", Regions: []string{"us-east-1"}},
		{Profile: "dev", Role: "role/ops", Regions: []string{"us-east-1"}},
	}
	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	sv, report, err := orch.Scan(context.Background(), accounts, []string{"ec2.security_group"}, nil)
	require.NoError(t, err)

	rk, ok := sv.Kind("ec2.security_group")
	require.True(t, ok)
	assert.Equal(t, 2, rk.Len())
	_, ok = rk.Resource("sg-audit")
	assert.True(t, ok)
	_, ok = rk.Resource("sg-ops")
	assert.True(t, ok)

	assert.Equal(t, 2, fp.callCount("dev", "us-east-1", "DescribeSecurityGroups"))
	assert.False(t, report.Failed())
}

func TestScanParamOverridesReachPaginator(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["ListPolicies"] = []map[string]any{
		{"Policies": []any{
			map[string]any{"PolicyId": "ANPA1", "PolicyName": "admin"},
		}},
	}

	reg := testRegistry(t)
	orch := New(fp, reg, evaluation.NewRegistry()).
		WithBoard(whiteboard.New()).
		WithScanParams(map[string]map[string]any{
			"iam.managed_policy": {"Scope": "All", "OnlyAttached": true},
		})
	_, _, err := orch.Scan(context.Background(), oneAccount(), []string{"iam.managed_policy"}, nil)
	require.NoError(t, err)

	params := fp.paramsFor("ListPolicies")
	require.NotNil(t, params)
	assert.Equal(t, "All", params["Scope"], "override wins over the declared parameter")
	assert.Equal(t, true, params["OnlyAttached"])

	// The merge never mutates the schema's declared parameters.
	s, ok := reg.Schema("iam.managed_policy")
	require.True(t, ok)
	assert.Equal(t, "Local", s.ScanParams["Scope"])
}

func TestAuthFailureIsolatesAccount(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["DescribeSecurityGroups"] = sgPages()
	fp.failProfiles = map[string]bool{"prod": true}

	accounts := []types.Account{
		{Profile: "prod", Regions: []string{"us-east-1"}},
		{Profile: "dev", Regions: []string{"us-east-1"}},
	}
	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	sv, report, err := orch.Scan(context.Background(), accounts, []string{"ec2.security_group"}, nil)
	require.NoError(t, err)

	rk, ok := sv.Kind("ec2.security_group")
	require.True(t, ok)
	assert.Equal(t, 2, rk.Len())
	require.Len(t, report.AuthFailures, 1)
	assert.Equal(t, "prod", report.AuthFailures[0].Profile)
}

func TestIncludesTriggerDependentScan(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["DescribeSecurityGroups"] = sgPages()
	fp.pages["DescribeNetworkInterfaces"] = []map[string]any{
		{"NetworkInterfaces": []any{
			map[string]any{"NetworkInterfaceId": "eni-1"},
		}},
	}

	checks := evaluation.NewRegistry()
	require.NoError(t, checks.Register(&evaluation.Definition{
		Service: "ec2", Kind: "security_group", Name: "check1",
		Includes: []string{"ec2.network_interface"},
		Check: func(ctx context.Context, ec *evaluation.CheckContext) (types.Result, error) {
			return types.Pass("ok"), nil
		},
	}))

	orch := New(fp, testRegistry(t), checks).WithBoard(whiteboard.New())
	sv, _, err := orch.Scan(context.Background(), oneAccount(), []string{"ec2.security_group"}, nil)
	require.NoError(t, err)

	_, ok := sv.Kind("ec2.security_group")
	assert.True(t, ok)
	_, ok = sv.Kind("ec2.network_interface")
	assert.True(t, ok, "dependency kind should have been scanned")
}

func TestDependencyCycleIsFatal(t *testing.T) {
	checks := evaluation.NewRegistry()
	pass := func(ctx context.Context, ec *evaluation.CheckContext) (types.Result, error) {
		return types.Pass("ok"), nil
	}
	require.NoError(t, checks.Register(&evaluation.Definition{
		Service: "ec2", Kind: "security_group", Name: "a",
		Includes: []string{"ec2.network_interface"}, Check: pass,
	}))
	require.NoError(t, checks.Register(&evaluation.Definition{
		Service: "ec2", Kind: "network_interface", Name: "b",
		Includes: []string{"ec2.security_group"}, Check: pass,
	}))

	fp := newFakeProvider()
	orch := New(fp, testRegistry(t), checks).WithBoard(whiteboard.New())
	_, _, err := orch.Scan(context.Background(), oneAccount(), []string{"ec2.security_group"}, nil)
	var cycleErr *evaluation.DependencyCycleError
	require.ErrorAs(t, err, &cycleErr)

	// Fatal before side effects: no provider calls at all.
	assert.Empty(t, fp.calls)
}

func TestSkipSubtractsKinds(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["DescribeSecurityGroups"] = sgPages()

	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	sv, _, err := orch.Scan(context.Background(), oneAccount(),
		[]string{"ec2.security_group", "ec2.vpc"}, []string{"ec2.vpc"})
	require.NoError(t, err)

	_, ok := sv.Kind("ec2.security_group")
	assert.True(t, ok)
	assert.Equal(t, 0, fp.callCount("dev", "us-east-1", "DescribeVpcs"))
}

func TestUnknownKindIsFatal(t *testing.T) {
	orch := New(newFakeProvider(), testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	_, _, err := orch.Scan(context.Background(), oneAccount(), []string{"ec2.nosuch"}, nil)
	var serr *schema.SchemaError
	require.ErrorAs(t, err, &serr)
}

func TestGlobalKindScansOncePerAccount(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["ListPolicies"] = []map[string]any{
		{"Policies": []any{
			map[string]any{"PolicyId": "ANPA1", "PolicyName": "admin"},
		}},
	}

	accounts := []types.Account{{Profile: "dev", Regions: []string{"us-east-1", "eu-west-1"}}}
	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	sv, _, err := orch.Scan(context.Background(), accounts, []string{"iam.managed_policy"}, nil)
	require.NoError(t, err)

	rk, ok := sv.Kind("iam.managed_policy")
	require.True(t, ok)
	assert.Equal(t, 1, rk.Len())

	total := fp.callCount("dev", "us-east-1", "ListPolicies") + fp.callCount("dev", "eu-west-1", "ListPolicies")
	assert.Equal(t, 1, total)
}

func TestDeadlineYieldsPartialRun(t *testing.T) {
	fp := newFakeProvider()
	fp.pages["DescribeSecurityGroups"] = sgPages()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(fp, testRegistry(t), evaluation.NewRegistry()).WithBoard(whiteboard.New())
	sv, report, err := orch.Scan(ctx, oneAccount(), []string{"ec2.security_group"}, nil)
	require.NoError(t, err, "expired deadline must not be a fatal error")

	assert.True(t, sv.Published())
	assert.True(t, report.TimedOut)
	assert.True(t, report.Failed())
}
