package evaluation

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/yairfalse/aerographer/survey"
	"github.com/yairfalse/aerographer/telemetry"
	"github.com/yairfalse/aerographer/types"
	"github.com/yairfalse/aerographer/whiteboard"
)

// CheckContext is the single argument handed to a check function: the
// resource under evaluation plus the survey it came from, so checks can
// consult other scanned kinds and ask their instances to self-evaluate.
type CheckContext struct {
	Resource *types.Resource
	Survey   *survey.Survey
	Board    *whiteboard.Whiteboard

	engine *Engine
}

// EvaluateOne runs another check on another resource from inside a check,
// reusing the engine's memoization.
func (ec *CheckContext) EvaluateOne(ctx context.Context, r *types.Resource, checkName string) (types.EvaluationResult, error) {
	return ec.engine.EvaluateOne(ctx, r, checkName)
}

// Engine executes registered checks against a surveyed run. One engine is
// bound to one survey; EvaluateOne is safe to call concurrently, including
// while scanning is still in flight, as long as the target resource is
// already published.
type Engine struct {
	registry *Registry
	survey   *survey.Survey
	board    *whiteboard.Whiteboard
	logger   *telemetry.Logger
	provider *telemetry.Provider

	sf singleflight.Group
}

// NewEngine creates an engine over a registry and a survey.
func NewEngine(registry *Registry, sv *survey.Survey) *Engine {
	return &Engine{
		registry: registry,
		survey:   sv,
		board:    whiteboard.Default(),
		logger:   telemetry.NewLogger("evaluation"),
	}
}

// WithBoard replaces the diagnostic board.
func (e *Engine) WithBoard(b *whiteboard.Whiteboard) *Engine {
	e.board = b
	return e
}

// WithProvider attaches a telemetry provider for evaluation metrics.
func (e *Engine) WithProvider(p *telemetry.Provider) *Engine {
	e.provider = p
	return e
}

// Run evaluates every applicable check against every surveyed resource,
// annotating resources in place. A failing or panicking check produces a
// failed result for that one (resource, check) pair and the pass
// continues.
func (e *Engine) Run(ctx context.Context) {
	evaluated := 0
	failed := 0
	for _, r := range e.survey.Resources() {
		for _, def := range e.registry.DefinitionsFor(r.Path()) {
			res := e.execute(ctx, r, def)
			r.RecordResult(types.EvaluationResult{
				Check:   def.Name,
				Message: res.Message,
				Passed:  res.Passed,
			})
			evaluated++
			if !res.Passed {
				failed++
			}
			if e.provider != nil {
				e.provider.RecordEvaluation(ctx, r.Path(), def.Name, res.Passed)
			}
		}
	}
	e.logger.WithContext(ctx).Info().
		Int("evaluated", evaluated).
		Int("failed", failed).
		Msg("evaluation pass complete")
	e.board.Write("evaluation", "summary",
		fmt.Sprintf("%d checks evaluated, %d failed", evaluated, failed))
}

// EvaluateOne runs one named check against one resource on demand. The
// result is memoized per (resource, check): concurrent callers join one
// execution and repeated calls return the recorded result. Fails fast when
// a declared dependency kind is absent from the survey.
func (e *Engine) EvaluateOne(ctx context.Context, r *types.Resource, checkName string) (types.EvaluationResult, error) {
	def, ok := e.registry.Definition(checkName)
	if !ok {
		return types.EvaluationResult{}, fmt.Errorf("no check registered with name %q", checkName)
	}
	if def.Path() != r.Path() {
		return types.EvaluationResult{}, fmt.Errorf("check %q is bound to %s, not %s", checkName, def.Path(), r.Path())
	}
	if cached, ok := r.Result(checkName); ok {
		return cached, nil
	}
	for _, inc := range def.Includes {
		if _, ok := e.survey.Kind(inc); !ok {
			return types.EvaluationResult{}, &DependencyNotScannedError{Check: checkName, Kind: inc}
		}
	}

	key := r.Key() + "\x00" + checkName
	v, err, _ := e.sf.Do(key, func() (any, error) {
		if cached, ok := r.Result(checkName); ok {
			return cached, nil
		}
		res := e.execute(ctx, r, def)
		er := types.EvaluationResult{Check: checkName, Message: res.Message, Passed: res.Passed}
		r.RecordResult(er)
		if e.provider != nil {
			e.provider.RecordEvaluation(ctx, r.Path(), checkName, res.Passed)
		}
		// RecordResult is first-write-wins, so return what stuck.
		if recorded, ok := r.Result(checkName); ok {
			return recorded, nil
		}
		return er, nil
	})
	if err != nil {
		return types.EvaluationResult{}, err
	}
	return v.(types.EvaluationResult), nil
}

// execute invokes one check, converting errors and panics into failed
// results.
func (e *Engine) execute(ctx context.Context, r *types.Resource, def *Definition) types.Result {
	res, err := e.invoke(ctx, r, def)
	if err != nil {
		e.logger.WithContext(ctx).Error().
			Err(err).
			Str("check", def.Name).
			Str("resource", r.ID()).
			Msg("check failed")
		return types.Fail(err.Error())
	}
	return res
}

func (e *Engine) invoke(ctx context.Context, r *types.Resource, def *Definition) (res types.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("check %s panicked: %v", def.Name, p)
		}
	}()
	return def.Check(ctx, &CheckContext{
		Resource: r,
		Survey:   e.survey,
		Board:    e.board,
		engine:   e,
	})
}
