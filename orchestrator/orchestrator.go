// Package orchestrator fans a scan run out across accounts, regions and
// resource kinds: it builds provider contexts, resolves evaluation
// dependencies, dispatches one concurrent scan unit per (context, kind)
// and publishes everything scanned into a survey.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yairfalse/aerographer/evaluation"
	"github.com/yairfalse/aerographer/factory"
	"github.com/yairfalse/aerographer/providers"
	"github.com/yairfalse/aerographer/schema"
	"github.com/yairfalse/aerographer/survey"
	"github.com/yairfalse/aerographer/telemetry"
	"github.com/yairfalse/aerographer/types"
	"github.com/yairfalse/aerographer/whiteboard"
)

// Orchestrator runs scans against one provider. One orchestrator instance
// corresponds to one run: the scan-unit cache guarantees at most one total
// scan per (context, kind) for its lifetime.
type Orchestrator struct {
	provider providers.Provider
	registry *schema.Registry
	factory  *factory.Factory
	checks   *evaluation.Registry
	board    *whiteboard.Whiteboard
	logger   *telemetry.Logger
	tprov    *telemetry.Provider

	maxInFlight int
	scanParams  map[string]map[string]any

	sf   singleflight.Group
	mu   sync.Mutex
	done map[string]bool
}

// New creates an orchestrator over a provider, a schema registry and the
// check registry used for dependency resolution.
func New(provider providers.Provider, registry *schema.Registry, checks *evaluation.Registry) *Orchestrator {
	return &Orchestrator{
		provider:    provider,
		registry:    registry,
		factory:     factory.New(registry),
		checks:      checks,
		board:       whiteboard.Default(),
		logger:      telemetry.NewLogger("orchestrator"),
		maxInFlight: 16,
		done:        make(map[string]bool),
	}
}

// WithMaxInFlight bounds the number of simultaneously running scan units.
// Zero or negative means unbounded.
func (o *Orchestrator) WithMaxInFlight(n int) *Orchestrator {
	o.maxInFlight = n
	return o
}

// WithBoard replaces the diagnostic board.
func (o *Orchestrator) WithBoard(b *whiteboard.Whiteboard) *Orchestrator {
	o.board = b
	return o
}

// WithProvider attaches a telemetry provider for scan metrics.
func (o *Orchestrator) WithProvider(p *telemetry.Provider) *Orchestrator {
	o.tprov = p
	return o
}

// WithScanParams overrides schema scan parameters per kind path. Overrides
// merge over the schema's declared parameters.
func (o *Orchestrator) WithScanParams(params map[string]map[string]any) *Orchestrator {
	o.scanParams = params
	return o
}

// Scan runs the full pipeline: expand the requested kind set, resolve
// evaluation dependencies, build contexts, dispatch scan units and publish
// the survey. Per-context and per-unit failures are contained in the
// report; only schema and dependency-cycle errors are fatal. A deadline on
// ctx abandons outstanding units and completes with partial results.
func (o *Orchestrator) Scan(ctx context.Context, accounts []types.Account, kinds, skip []string) (*survey.Survey, *Report, error) {
	effective, err := o.effectiveKinds(kinds, skip)
	if err != nil {
		return nil, nil, err
	}
	resolved, err := o.checks.Resolve(effective)
	if err != nil {
		return nil, nil, err
	}
	schemas := make([]*schema.ResourceSchema, 0, len(resolved))
	for _, kind := range resolved {
		s, ok := o.registry.Schema(kind)
		if !ok {
			return nil, nil, &schema.SchemaError{Path: kind, Msg: "evaluation include names an unknown resource kind"}
		}
		schemas = append(schemas, s)
	}

	report := newReport()
	contexts, authFailures := o.BuildContexts(ctx, accounts, servicesOf(schemas))
	report.addAuthFailures(authFailures)
	for _, af := range authFailures {
		o.logger.WithContext(ctx).Warn().Err(af.Err).
			Str("profile", af.Profile).
			Str("region", af.Region).
			Msg("context skipped")
	}

	sv := survey.New()
	var g errgroup.Group
	if o.maxInFlight > 0 {
		g.SetLimit(o.maxInFlight)
	}
	for _, s := range schemas {
		for _, target := range o.targets(contexts, s) {
			target, s := target, s
			g.Go(func() error {
				o.dispatch(ctx, sv, target, s, report)
				return nil
			})
		}
	}
	_ = g.Wait()

	sv.Publish()
	report.finish()
	o.summarize(ctx, report)
	return sv, report, nil
}

// effectiveKinds expands requests and skips to kind paths and subtracts.
func (o *Orchestrator) effectiveKinds(kinds, skip []string) ([]string, error) {
	requested, err := o.registry.Expand(kinds)
	if err != nil {
		return nil, err
	}
	skipped, err := o.registry.Expand(skip)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]bool, len(skipped))
	for _, k := range skipped {
		drop[k] = true
	}
	var out []string
	for _, k := range requested {
		if !drop[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// targets selects the contexts a kind scans in. Global kinds scan once per
// account rather than once per region.
func (o *Orchestrator) targets(contexts []Context, s *schema.ResourceSchema) []Context {
	var out []Context
	seenAccount := make(map[string]bool)
	for _, c := range contexts {
		if c.Service != s.Service {
			continue
		}
		if s.Global {
			if seenAccount[c.AccountID] {
				continue
			}
			seenAccount[c.AccountID] = true
		}
		out = append(out, c)
	}
	return out
}

// dispatch runs one scan unit through the single-flight cache: concurrent
// requests for the same (context, kind) join the in-flight unit and a
// settled unit is never re-run.
func (o *Orchestrator) dispatch(ctx context.Context, sv *survey.Survey, c Context, s *schema.ResourceSchema, report *Report) {
	key := c.Name + "|" + s.Path()
	o.mu.Lock()
	if o.done[key] {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	_, _, _ = o.sf.Do(key, func() (any, error) {
		o.mu.Lock()
		settled := o.done[key]
		o.mu.Unlock()
		if settled {
			return nil, nil
		}
		o.runUnit(ctx, sv, c, s, report)
		o.mu.Lock()
		o.done[key] = true
		o.mu.Unlock()
		return nil, nil
	})
}

// runUnit paginates one (context, kind) pair to exhaustion, building and
// publishing a resource per record. Pagination is sequential: each page's
// cursor depends on the one before it.
func (o *Orchestrator) runUnit(ctx context.Context, sv *survey.Survey, c Context, s *schema.ResourceSchema, report *Report) {
	start := time.Now()
	count := 0
	failed := false

	defer func() {
		report.addUnit(count)
		if o.tprov != nil {
			o.tprov.RecordScanUnit(ctx, c.Name, s.Path(), time.Since(start), count, failed)
		}
	}()

	desc, err := o.factory.Descriptor(s.Path())
	if err != nil {
		failed = true
		report.addFailure(c.Name, s.Path(), err.Error())
		return
	}
	pager, err := o.provider.Paginator(c.Client, providers.PaginatorSpec{
		Service:    s.Service,
		Name:       s.Paginator,
		PageMarker: s.PageMarker,
		Parameters: o.unitParams(s),
	})
	if err != nil {
		failed = true
		report.addFailure(c.Name, s.Path(), err.Error())
		return
	}

	sctx := c.ScanContext
	for pager.HasMorePages() {
		if ctx.Err() != nil {
			failed = true
			report.markTimedOut()
			report.addFailure(c.Name, s.Path(), "abandoned: "+ctx.Err().Error())
			return
		}
		page, err := pager.NextPage(ctx)
		if err != nil {
			failed = true
			serr := &ScanError{Context: c.Name, Kind: s.Path(), Err: err}
			o.logger.WithContext(ctx).Error().Err(err).
				Str("context", c.Name).
				Str("kind", s.Path()).
				Msg("scan unit failed")
			report.addFailure(c.Name, s.Path(), serr.Error())
			return
		}
		records, _ := page[s.ResourceKey].([]any)
		for _, raw := range records {
			record, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			r, err := desc.Resource(sctx, record)
			if err != nil {
				o.logger.WithContext(ctx).Warn().Err(err).
					Str("context", c.Name).
					Str("kind", s.Path()).
					Msg("record skipped")
				continue
			}
			if err := sv.Add(r); err != nil {
				report.addFailure(c.Name, s.Path(), err.Error())
				failed = true
				return
			}
			count++
		}
	}

	o.logger.WithContext(ctx).Debug().
		Str("context", c.Name).
		Str("kind", s.Path()).
		Int("resources", count).
		Msg("scan unit complete")
}

// unitParams merges per-kind overrides over the schema's scan parameters.
func (o *Orchestrator) unitParams(s *schema.ResourceSchema) map[string]any {
	overrides := o.scanParams[s.Path()]
	if len(overrides) == 0 {
		return s.ScanParams
	}
	merged := make(map[string]any, len(s.ScanParams)+len(overrides))
	for k, v := range s.ScanParams {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

func (o *Orchestrator) summarize(ctx context.Context, report *Report) {
	o.logger.WithContext(ctx).Info().
		Int("units", report.Units).
		Int("resources", report.Resources).
		Int("failures", len(report.Failures)).
		Int("auth_failures", len(report.AuthFailures)).
		Bool("timed_out", report.TimedOut).
		Dur("duration", report.Duration()).
		Msg("scan complete")

	o.board.Write("scan", "summary", fmt.Sprintf(
		"%d units, %d resources, %d failures in %s",
		report.Units, report.Resources, len(report.Failures), report.Duration().Round(time.Millisecond)))
	for _, f := range report.Failures {
		o.board.Write("scan_failures", f.Context+" "+f.Kind, f.Reason)
	}
	for _, af := range report.AuthFailures {
		o.board.Write("auth_failures", af.Profile+" "+af.Region, af.Error())
	}
}

func servicesOf(schemas []*schema.ResourceSchema) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range schemas {
		if !seen[s.Service] {
			seen[s.Service] = true
			out = append(out, s.Service)
		}
	}
	sort.Strings(out)
	return out
}
