package orchestrator

import (
	"sync"
	"time"
)

// UnitFailure records one failed (context, kind) scan unit.
type UnitFailure struct {
	Context string
	Kind    string
	Reason  string
}

// Report is the diagnostic summary of one scan run: what settled, what
// failed and why. A run with failures is still a completed run; the survey
// simply lacks the failed buckets.
type Report struct {
	mu sync.Mutex

	StartedAt    time.Time
	FinishedAt   time.Time
	Units        int
	Resources    int
	Failures     []UnitFailure
	AuthFailures []*AuthError
	TimedOut     bool
}

func newReport() *Report {
	return &Report{StartedAt: time.Now()}
}

func (r *Report) addUnit(resources int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Units++
	r.Resources += resources
}

func (r *Report) addFailure(contextName, kind, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, UnitFailure{Context: contextName, Kind: kind, Reason: reason})
}

func (r *Report) addAuthFailures(failures []*AuthError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AuthFailures = append(r.AuthFailures, failures...)
}

func (r *Report) markTimedOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TimedOut = true
}

func (r *Report) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now()
}

// Failed reports whether any scan unit or context failed.
func (r *Report) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Failures) > 0 || len(r.AuthFailures) > 0
}

// Duration returns the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.FinishedAt.Sub(r.StartedAt)
}
