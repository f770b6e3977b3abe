package trace

import (
	"testing"
)

func TestRecordAndLookup(t *testing.T) {
	tr := New()
	tr.Record("prediction", "eventual_bg", 9.5)
	tr.Record("prediction", "delta", 0.2)
	tr.Record("correction", "insulin_req", 1.4)

	v, ok := tr.Lookup("prediction", "eventual_bg")
	if !ok || v != 9.5 {
		t.Fatalf("lookup: want (9.5, true), got (%v, %v)", v, ok)
	}
	if _, ok := tr.Lookup("prediction", "missing"); ok {
		t.Fatal("lookup found a value that was never recorded")
	}
	if _, ok := tr.Lookup("nope", "eventual_bg"); ok {
		t.Fatal("lookup found a stage that was never recorded")
	}
}

func TestLookupReturnsLastRecorded(t *testing.T) {
	tr := New()
	tr.Record("candidate", "rate", 2.0)
	tr.Record("candidate", "rate", 1.5)

	v, _ := tr.Lookup("candidate", "rate")
	if v != 1.5 {
		t.Fatalf("lookup should return the last value, got %v", v)
	}
}

func TestStagesPreserveFirstTouchOrder(t *testing.T) {
	tr := New()
	tr.Record("input", "bg", 8.0)
	tr.Record("prediction", "eventual_bg", 9.0)
	tr.Record("input", "delta", 0.1)

	stages := tr.Stages()
	if len(stages) != 2 {
		t.Fatalf("expected 2 stages, got %d", len(stages))
	}
	if stages[0].Name != "input" || stages[1].Name != "prediction" {
		t.Fatalf("stage order wrong: %v, %v", stages[0].Name, stages[1].Name)
	}
	if len(stages[0].Values) != 2 {
		t.Fatalf("input stage should hold 2 values, got %d", len(stages[0].Values))
	}
}

func TestNotes(t *testing.T) {
	tr := New()
	tr.Note("gates", "suspend fired at %.1f", 3.2)

	stages := tr.Stages()
	if len(stages) != 1 || len(stages[0].Notes) != 1 {
		t.Fatalf("expected one note, got %+v", stages)
	}
	if stages[0].Notes[0] != "suspend fired at 3.2" {
		t.Fatalf("note formatting wrong: %q", stages[0].Notes[0])
	}
}

func TestDiffIdenticalTracesClean(t *testing.T) {
	build := func() *Trace {
		tr := New()
		tr.Record("input", "bg", 8.0)
		tr.Record("final", "rate", 1.5)
		return tr
	}
	if diffs := build().Diff(build(), 0); len(diffs) != 0 {
		t.Fatalf("identical traces should diff clean, got %v", diffs)
	}
}

func TestDiffReportsValueDivergence(t *testing.T) {
	ref := New()
	ref.Record("final", "rate", 1.5)
	got := New()
	got.Record("final", "rate", 1.6)

	diffs := got.Diff(ref, 0)
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %v", diffs)
	}
	d := diffs[0]
	if d.Kind != DiffValue || d.Stage != "final" || d.Field != "rate" {
		t.Fatalf("wrong diff: %+v", d)
	}
	if d.Want != 1.5 || d.Got != 1.6 {
		t.Fatalf("wrong diff values: %+v", d)
	}
}

func TestDiffToleranceAbsorbsSmallDivergence(t *testing.T) {
	ref := New()
	ref.Record("final", "rate", 1.5)
	got := New()
	got.Record("final", "rate", 1.5000004)

	if diffs := got.Diff(ref, 1e-6); len(diffs) != 0 {
		t.Fatalf("tolerance should absorb the divergence, got %v", diffs)
	}
	if diffs := got.Diff(ref, 0); len(diffs) != 1 {
		t.Fatalf("exact comparison should report it, got %v", diffs)
	}
}

func TestDiffReportsMissingStageAndField(t *testing.T) {
	ref := New()
	ref.Record("input", "bg", 8.0)
	ref.Record("final", "rate", 1.5)
	ref.Record("final", "bolus", 0.2)

	got := New()
	got.Record("final", "rate", 1.5)

	diffs := got.Diff(ref, 0)
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs, got %v", diffs)
	}
	if diffs[0].Kind != DiffMissingStage || diffs[0].Stage != "input" {
		t.Fatalf("expected missing stage first, got %+v", diffs[0])
	}
	if diffs[1].Kind != DiffMissingField || diffs[1].Field != "bolus" {
		t.Fatalf("expected missing field, got %+v", diffs[1])
	}
}

func TestDiffIgnoresExtraValues(t *testing.T) {
	ref := New()
	ref.Record("final", "rate", 1.5)

	got := New()
	got.Record("input", "bg", 8.0)
	got.Record("final", "rate", 1.5)
	got.Record("final", "bolus", 0.2)

	if diffs := got.Diff(ref, 0); len(diffs) != 0 {
		t.Fatalf("richer trace should compare clean against sparser reference, got %v", diffs)
	}
}
