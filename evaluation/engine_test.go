package evaluation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/aerographer/survey"
	"github.com/yairfalse/aerographer/types"
)

func mkResource(service, kind, id string, data map[string]any) *types.Resource {
	sctx := types.ScanContext{
		Name:      "dev:us-east-1:" + service,
		AccountID: "111122223333",
		Region:    "us-east-1",
		Service:   service,
	}
	return types.NewResource(service, kind, sctx, id, types.FromAny(data))
}

func publishedSurvey(t *testing.T, resources ...*types.Resource) *survey.Survey {
	t.Helper()
	sv := survey.New()
	for _, r := range resources {
		require.NoError(t, sv.Add(r))
	}
	sv.Publish()
	return sv
}

func TestRunWithNoChecks(t *testing.T) {
	r := mkResource("ec2", "security_group", "sg-1", nil)
	sv := publishedSurvey(t, r)

	NewEngine(NewRegistry(), sv).Run(context.Background())

	assert.True(t, r.Passed())
	assert.Empty(t, r.Results())
}

func TestRunRecordsResults(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "always_fails",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Fail("bad group"), nil
		},
	}))
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "always_passes",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Pass("fine"), nil
		},
	}))

	r := mkResource("ec2", "security_group", "sg-1", nil)
	other := mkResource("ec2", "vpc", "vpc-1", nil)
	sv := publishedSurvey(t, r, other)

	NewEngine(reg, sv).Run(context.Background())

	assert.False(t, r.Passed())
	assert.Len(t, r.Results(), 2)
	res, ok := r.Result("always_fails")
	require.True(t, ok)
	assert.Equal(t, "bad group", res.Message)

	// Checks bound to another kind never touch this resource.
	assert.Empty(t, other.Results())
}

func TestCheckErrorBecomesFailedResult(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "errors",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Result{}, assert.AnError
		},
	}))
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "panics",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			panic("boom")
		},
	}))
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "survives",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Pass("still ran"), nil
		},
	}))

	r := mkResource("ec2", "security_group", "sg-1", nil)
	sv := publishedSurvey(t, r)

	NewEngine(reg, sv).Run(context.Background())

	require.Len(t, r.Results(), 3)
	errRes, _ := r.Result("errors")
	assert.False(t, errRes.Passed)
	panicRes, _ := r.Result("panics")
	assert.False(t, panicRes.Passed)
	assert.Contains(t, panicRes.Message, "boom")
	okRes, _ := r.Result("survives")
	assert.True(t, okRes.Passed)
}

func TestEvaluateOneMemoized(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "counted",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			calls.Add(1)
			return types.Pass("ok"), nil
		},
	}))

	r := mkResource("ec2", "security_group", "sg-1", nil)
	sv := publishedSurvey(t, r)
	engine := NewEngine(reg, sv)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := engine.EvaluateOne(context.Background(), r, "counted")
			assert.NoError(t, err)
			assert.True(t, res.Passed)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Len(t, r.Results(), 1)
}

func TestEvaluateOneUnknownCheck(t *testing.T) {
	r := mkResource("ec2", "security_group", "sg-1", nil)
	sv := publishedSurvey(t, r)
	engine := NewEngine(NewRegistry(), sv)

	_, err := engine.EvaluateOne(context.Background(), r, "nosuch")
	assert.Error(t, err)
}

func TestEvaluateOneWrongKind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "vpc", Name: "vpc_check",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Pass("ok"), nil
		},
	}))
	r := mkResource("ec2", "security_group", "sg-1", nil)
	sv := publishedSurvey(t, r)

	_, err := NewEngine(reg, sv).EvaluateOne(context.Background(), r, "vpc_check")
	assert.Error(t, err)
}

func TestEvaluateOneDependencyNotScanned(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "needs_interfaces",
		Includes: []string{"ec2.network_interface"},
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Pass("ok"), nil
		},
	}))

	r := mkResource("ec2", "security_group", "sg-1", nil)
	sv := publishedSurvey(t, r)

	_, err := NewEngine(reg, sv).EvaluateOne(context.Background(), r, "needs_interfaces")
	var depErr *DependencyNotScannedError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "ec2.network_interface", depErr.Kind)
}

func TestCrossResourceEvaluation(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "network_interface", Name: "interface_ok",
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			return types.Pass("interface fine"), nil
		},
	}))
	require.NoError(t, reg.Register(&Definition{
		Service: "ec2", Kind: "security_group", Name: "attached_interfaces_ok",
		Includes: []string{"ec2.network_interface"},
		Check: func(ctx context.Context, ec *CheckContext) (types.Result, error) {
			rk, ok := ec.Survey.Kind("ec2.network_interface")
			if !ok {
				return types.Fail("no interfaces surveyed"), nil
			}
			matched, err := rk.Where("Groups.*.GroupId", "eq", ec.Resource.ID()).Get()
			if err != nil {
				return types.Result{}, err
			}
			for _, eni := range matched {
				res, err := ec.EvaluateOne(ctx, eni, "interface_ok")
				if err != nil {
					return types.Result{}, err
				}
				if !res.Passed {
					return types.Fail("attached interface failed"), nil
				}
			}
			return types.Pass("all attached interfaces fine"), nil
		},
	}))

	sg := mkResource("ec2", "security_group", "sg-1", map[string]any{"GroupId": "sg-1"})
	eni := mkResource("ec2", "network_interface", "eni-1", map[string]any{
		"Groups": []any{map[string]any{"GroupId": "sg-1"}},
	})
	sv := publishedSurvey(t, sg, eni)

	res, err := NewEngine(reg, sv).EvaluateOne(context.Background(), sg, "attached_interfaces_ok")
	require.NoError(t, err)
	assert.True(t, res.Passed)

	// The nested call recorded on the interface as well.
	nested, ok := eni.Result("interface_ok")
	require.True(t, ok)
	assert.True(t, nested.Passed)
}
