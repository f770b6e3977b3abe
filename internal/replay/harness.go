// Package replay re-evaluates recorded snapshots against their recorded
// outcomes. Cases are independent, so the harness fans them out across a
// bounded worker pool; results come back in fixture order regardless of
// completion order. Divergence is a reportable finding, not an error —
// the harness errors only when a case cannot be evaluated at all.
package replay

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/glucoloop/dosing-controller/internal/engine"
	"github.com/glucoloop/dosing-controller/internal/model"
	"github.com/glucoloop/dosing-controller/internal/profile"
	"github.com/glucoloop/dosing-controller/internal/trace"
)

// #region config

// Config bounds a replay run.
type Config struct {
	// Tolerance for numeric comparison. Zero demands exact equality, which
	// holds when replaying output this engine produced; replays against
	// reference-controller recordings typically need a small tolerance to
	// absorb float formatting.
	Tolerance float64

	// Workers caps concurrent evaluations. Zero means GOMAXPROCS.
	Workers int
}

// DefaultConfig returns a strict, fully parallel replay configuration.
func DefaultConfig() Config {
	return Config{Tolerance: 0, Workers: 0}
}

// #endregion config

// #region results

// CaseResult is the outcome of replaying one fixture case.
type CaseResult struct {
	Name           string
	Recommendation model.Recommendation
	Trace          *trace.Trace

	// Mismatches lists human-readable divergences from the expected
	// outcome. Empty means the case matched.
	Mismatches []string

	// Err is set when the case could not be evaluated (bad profile,
	// unresolvable snapshot). An errored case is counted as failed.
	Err error
}

// Passed reports whether the case evaluated cleanly and matched.
func (r CaseResult) Passed() bool {
	return r.Err == nil && len(r.Mismatches) == 0
}

// Summary aggregates a replay run.
type Summary struct {
	Total  int
	Passed int
	Failed int
	Errors int
}

// #endregion results

// #region run

// Run replays every case in the fixture and returns per-case results in
// fixture order plus the aggregate summary. The context cancels in-flight
// evaluation scheduling; already-started cases run to completion.
func Run(ctx context.Context, f *Fixture, cfg Config) ([]CaseResult, Summary, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]CaseResult, len(f.Cases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range f.Cases {
		i := i
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			results[i] = runCase(&f.Cases[i], &f.Profile, cfg.Tolerance)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Summary{}, fmt.Errorf("replay: %w", err)
	}

	return results, Summarize(results), nil
}

// runCase evaluates one case and compares it against its expectations.
func runCase(c *FixtureCase, prof *profile.Profile, tol float64) CaseResult {
	res := CaseResult{Name: c.Name}

	snap, err := c.ToSnapshot(prof)
	if err != nil {
		res.Err = err
		return res
	}

	out, err := engine.Evaluate(snap)
	if err != nil {
		res.Err = fmt.Errorf("case %s: %w", c.Name, err)
		return res
	}

	res.Recommendation = out.Recommendation
	res.Trace = out.Trace
	res.Mismatches = compare(c.Expected, out, tol)
	return res
}

// Summarize computes aggregate stats from case results.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Errors++
			s.Failed++
		case len(r.Mismatches) > 0:
			s.Failed++
		default:
			s.Passed++
		}
	}
	return s
}

// #endregion run

// #region compare

// compare checks every present expectation against the evaluation output.
func compare(exp Expected, out engine.Result, tol float64) []string {
	var mismatches []string
	rec := out.Recommendation

	checkFloat := func(field string, want *float64, got float64) {
		if want != nil && !within(*want, got, tol) {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %.6f, got %.6f", field, *want, got))
		}
	}
	checkOptional := func(field string, want *float64, got model.Optional) {
		if want == nil {
			return
		}
		v, present := got.Get()
		if !present {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %.6f, got absent", field, *want))
			return
		}
		if !within(*want, v, tol) {
			mismatches = append(mismatches, fmt.Sprintf("%s: want %.6f, got %.6f", field, *want, v))
		}
	}

	checkFloat("rate", exp.Rate, rec.Rate)
	checkFloat("bolus", exp.Bolus, rec.Bolus)
	checkOptional("eventual_bg", exp.EventualBG, rec.EventualBG)
	checkOptional("insulin_req", exp.InsulinReq, rec.InsulinReq)

	if exp.DurationMinutes != nil && *exp.DurationMinutes != rec.DurationMinutes {
		mismatches = append(mismatches, fmt.Sprintf("duration_minutes: want %d, got %d",
			*exp.DurationMinutes, rec.DurationMinutes))
	}

	if exp.Reasons != nil {
		got := make([]string, len(rec.Decisions))
		for i, d := range rec.Decisions {
			got[i] = string(d.Code)
		}
		if !equalStrings(exp.Reasons, got) {
			mismatches = append(mismatches, fmt.Sprintf("reasons: want %v, got %v", exp.Reasons, got))
		}
	}

	for _, tv := range exp.Trace {
		got, ok := out.Trace.Lookup(tv.Stage, tv.Name)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("trace %s/%s: missing", tv.Stage, tv.Name))
			continue
		}
		if !within(tv.Value, got, tol) {
			mismatches = append(mismatches, fmt.Sprintf("trace %s/%s: want %.6f, got %.6f",
				tv.Stage, tv.Name, tv.Value, got))
		}
	}

	return mismatches
}

func within(want, got, tol float64) bool {
	if tol <= 0 {
		return want == got
	}
	return math.Abs(want-got) <= tol
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion compare
