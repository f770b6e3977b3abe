// Package trace accumulates every named intermediate value produced while
// evaluating one snapshot. A trace is caller-owned and append-only, so
// concurrent evaluations never share recorder state, and two traces of the
// same shape can be compared field by field for regression parity.
package trace

import (
	"fmt"
	"math"
)

// #region types

// Value is one named intermediate recorded during a stage.
type Value struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Stage groups the values recorded under one pipeline stage, in insertion
// order.
type Stage struct {
	Name   string   `json:"name"`
	Values []Value  `json:"values"`
	Notes  []string `json:"notes,omitempty"`
}

// Trace is an ordered sequence of stages. The zero value is not usable;
// construct with New.
type Trace struct {
	stages []Stage
	index  map[string]int
}

// #endregion types

// #region recorder

// New returns an empty trace.
func New() *Trace {
	return &Trace{index: make(map[string]int)}
}

// Record appends a named value under the given stage, creating the stage on
// first use. Stage order is first-touch order; value order is append order.
func (t *Trace) Record(stage, name string, value float64) {
	s := t.stage(stage)
	s.Values = append(s.Values, Value{Name: name, Value: value})
}

// Note appends a free-form diagnostic line to a stage, mirroring the
// reference controller's console log.
func (t *Trace) Note(stage, format string, args ...interface{}) {
	s := t.stage(stage)
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}

func (t *Trace) stage(name string) *Stage {
	if i, ok := t.index[name]; ok {
		return &t.stages[i]
	}
	t.index[name] = len(t.stages)
	t.stages = append(t.stages, Stage{Name: name})
	return &t.stages[len(t.stages)-1]
}

// Stages returns the recorded stages in order. The returned slice is the
// trace's backing storage; callers must treat it as read-only.
func (t *Trace) Stages() []Stage {
	return t.stages
}

// Lookup returns the last value recorded under stage/name.
func (t *Trace) Lookup(stage, name string) (float64, bool) {
	i, ok := t.index[stage]
	if !ok {
		return 0, false
	}
	for j := len(t.stages[i].Values) - 1; j >= 0; j-- {
		if t.stages[i].Values[j].Name == name {
			return t.stages[i].Values[j].Value, true
		}
	}
	return 0, false
}

// #endregion recorder

// #region diff

// DiffKind classifies a single divergence between two traces.
type DiffKind string

const (
	DiffMissingStage DiffKind = "missing_stage"
	DiffMissingField DiffKind = "missing_field"
	DiffValue        DiffKind = "value"
)

// FieldDiff is one field-level divergence from a reference trace.
type FieldDiff struct {
	Kind  DiffKind `json:"kind"`
	Stage string   `json:"stage"`
	Field string   `json:"field,omitempty"`
	Want  float64  `json:"want,omitempty"`
	Got   float64  `json:"got,omitempty"`
}

func (d FieldDiff) String() string {
	switch d.Kind {
	case DiffMissingStage:
		return fmt.Sprintf("stage %q missing", d.Stage)
	case DiffMissingField:
		return fmt.Sprintf("%s/%s missing", d.Stage, d.Field)
	default:
		return fmt.Sprintf("%s/%s: want %.6f, got %.6f", d.Stage, d.Field, d.Want, d.Got)
	}
}

// Diff compares t against a reference trace field by field. Values within
// tol are considered equal; tol 0 demands bit-identical floats. Stages or
// fields present in ref but absent in t are reported; extra values in t are
// not, so a richer trace still compares clean against a sparser reference.
func (t *Trace) Diff(ref *Trace, tol float64) []FieldDiff {
	var diffs []FieldDiff
	for _, rs := range ref.stages {
		i, ok := t.index[rs.Name]
		if !ok {
			diffs = append(diffs, FieldDiff{Kind: DiffMissingStage, Stage: rs.Name})
			continue
		}
		got := t.stages[i]
		for _, rv := range rs.Values {
			gv, found := lastValue(got.Values, rv.Name)
			if !found {
				diffs = append(diffs, FieldDiff{Kind: DiffMissingField, Stage: rs.Name, Field: rv.Name})
				continue
			}
			if !withinTol(rv.Value, gv, tol) {
				diffs = append(diffs, FieldDiff{
					Kind: DiffValue, Stage: rs.Name, Field: rv.Name,
					Want: rv.Value, Got: gv,
				})
			}
		}
	}
	return diffs
}

func lastValue(vals []Value, name string) (float64, bool) {
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i].Name == name {
			return vals[i].Value, true
		}
	}
	return 0, false
}

func withinTol(want, got, tol float64) bool {
	if tol <= 0 {
		return want == got
	}
	return math.Abs(want-got) <= tol
}

// #endregion diff
