package activity

import (
	"testing"
	"time"

	"github.com/glucoloop/dosing-controller/internal/model"
)

func testParams() Params {
	return Params{DIAMinutes: 300, PeakMinutes: 75, CarbAbsorptionMinutes: 180}
}

func at(min int) time.Time {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(min) * time.Minute)
}

func TestEvaluateEmptyHistory(t *testing.T) {
	res, err := Evaluate(nil, nil, testParams(), at(0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.IOB != 0 || res.COB != 0 || res.InsulinActivity != 0 || res.CarbActivity != 0 {
		t.Fatalf("empty history should yield zero curves, got %+v", res)
	}
}

func TestEvaluateRejectsBadParams(t *testing.T) {
	_, err := Evaluate(nil, nil, Params{DIAMinutes: 0}, at(0))
	if err == nil {
		t.Fatal("expected error for zero DIA")
	}
}

func TestBolusFullyOnBoardAtDelivery(t *testing.T) {
	doses := []model.DoseEvent{{Time: at(0), Units: 2.0, Kind: model.DoseBolus}}
	res, err := Evaluate(doses, nil, testParams(), at(0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.IOB != 2.0 {
		t.Fatalf("IOB at delivery: want 2.0, got %v", res.IOB)
	}
}

func TestBolusDecaysMonotonically(t *testing.T) {
	doses := []model.DoseEvent{{Time: at(0), Units: 2.0, Kind: model.DoseBolus}}
	prev := 2.0
	for _, min := range []int{30, 60, 120, 180, 240, 299} {
		res, err := Evaluate(doses, nil, testParams(), at(min))
		if err != nil {
			t.Fatalf("evaluate at %d: %v", min, err)
		}
		if res.IOB >= prev {
			t.Fatalf("IOB not decreasing at %d min: %v >= %v", min, res.IOB, prev)
		}
		if res.IOB < 0 {
			t.Fatalf("negative IOB at %d min: %v", min, res.IOB)
		}
		prev = res.IOB
	}
}

func TestBolusGoneAfterDIA(t *testing.T) {
	doses := []model.DoseEvent{{Time: at(0), Units: 2.0, Kind: model.DoseBolus}}
	res, err := Evaluate(doses, nil, testParams(), at(300))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.IOB != 0 {
		t.Fatalf("IOB after DIA: want 0, got %v", res.IOB)
	}
	if res.InsulinActivity != 0 {
		t.Fatalf("activity after DIA: want 0, got %v", res.InsulinActivity)
	}
}

func TestScheduledBasalDoesNotContribute(t *testing.T) {
	doses := []model.DoseEvent{
		{Time: at(0), Units: 1.0, Kind: model.DoseScheduledBasal},
		{Time: at(0), Units: 1.5, Kind: model.DoseBolus},
	}
	withBasal, err := Evaluate(doses, nil, testParams(), at(60))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	bolusOnly, err := Evaluate(doses[1:], nil, testParams(), at(60))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if withBasal.IOB != bolusOnly.IOB {
		t.Fatalf("scheduled basal changed IOB: %v vs %v", withBasal.IOB, bolusOnly.IOB)
	}
}

func TestFutureEventsIgnored(t *testing.T) {
	doses := []model.DoseEvent{{Time: at(60), Units: 2.0, Kind: model.DoseBolus}}
	carbs := []model.CarbEvent{{Time: at(60), Grams: 40}}
	res, err := Evaluate(doses, carbs, testParams(), at(0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.IOB != 0 || res.COB != 0 {
		t.Fatalf("future events leaked into curves: %+v", res)
	}
}

func TestInsulinActivityPeaksNearPeakTime(t *testing.T) {
	doses := []model.DoseEvent{{Time: at(0), Units: 1.0, Kind: model.DoseBolus}}
	atPeak, err := Evaluate(doses, nil, testParams(), at(75))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	early, _ := Evaluate(doses, nil, testParams(), at(10))
	late, _ := Evaluate(doses, nil, testParams(), at(250))
	if atPeak.InsulinActivity <= early.InsulinActivity {
		t.Fatalf("activity at peak %v not above early %v", atPeak.InsulinActivity, early.InsulinActivity)
	}
	if atPeak.InsulinActivity <= late.InsulinActivity {
		t.Fatalf("activity at peak %v not above late %v", atPeak.InsulinActivity, late.InsulinActivity)
	}
}

func TestCarbsAbsorbOverTime(t *testing.T) {
	carbs := []model.CarbEvent{{Time: at(0), Grams: 40}}

	early, err := Evaluate(nil, carbs, testParams(), at(10))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if early.COB <= 0 || early.COB > 40 {
		t.Fatalf("COB early: want (0, 40], got %v", early.COB)
	}

	mid, _ := Evaluate(nil, carbs, testParams(), at(90))
	if mid.COB >= early.COB {
		t.Fatalf("COB not decreasing: %v >= %v", mid.COB, early.COB)
	}

	done, _ := Evaluate(nil, carbs, testParams(), at(180))
	if done.COB != 0 {
		t.Fatalf("COB after absorption time: want 0, got %v", done.COB)
	}
}

func TestCarbEventAbsorptionOverride(t *testing.T) {
	fast := []model.CarbEvent{{Time: at(0), Grams: 40, AbsorptionMinutes: model.Some(60)}}
	slow := []model.CarbEvent{{Time: at(0), Grams: 40}}

	fastRes, err := Evaluate(nil, fast, testParams(), at(50))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	slowRes, _ := Evaluate(nil, slow, testParams(), at(50))
	if fastRes.COB >= slowRes.COB {
		t.Fatalf("fast absorption should leave less COB: %v >= %v", fastRes.COB, slowRes.COB)
	}
}
