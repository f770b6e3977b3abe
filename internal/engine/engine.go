// Package engine implements the dosing decision pipeline: a pure function
// from a snapshot of patient state to a safety-gated recommendation plus a
// trace of every intermediate value. Stages run in a strict order — each
// reads the outputs of the stages before it — and the engine keeps no
// state across calls, so evaluations are independent and re-entrant.
package engine

import (
	"math"

	"github.com/glucoloop/dosing-controller/internal/activity"
	"github.com/glucoloop/dosing-controller/internal/autosens"
	"github.com/glucoloop/dosing-controller/internal/gate"
	"github.com/glucoloop/dosing-controller/internal/model"
	"github.com/glucoloop/dosing-controller/internal/trace"
)

// #region evaluate

// Evaluate runs the full pipeline on one snapshot. A malformed profile is
// a ConfigurationError and aborts the evaluation; degraded input (empty or
// stale glucose history) never errors and instead yields a conservative
// recommendation with an explicit reason code.
func Evaluate(snap model.Snapshot) (Result, error) {
	prof := snap.Profile
	if err := prof.Validate(); err != nil {
		return Result{}, err
	}

	tr := trace.New()

	// Activity model: always derivable from history; builder-supplied IOB
	// and COB take precedence over the derived values when present.
	params := activity.FromProfile(prof)
	act, err := activity.Evaluate(snap.Doses, snap.Carbs, params, snap.At)
	if err != nil {
		return Result{}, err
	}
	iob := snap.IOB.Or(act.IOB)
	cob := snap.COB.Or(act.COB)

	tr.Record(StageInput, "iob", iob)
	tr.Record(StageInput, "cob", cob)
	tr.Record(StageInput, "insulin_activity", act.InsulinActivity)
	tr.Record(StageInput, "carb_activity", act.CarbActivity)

	latest, ok := snap.Latest()
	if !ok {
		// Degenerate snapshot: no glucose at all. Hold the scheduled basal
		// and refuse to correct.
		tr.Note(StageInput, "glucose history empty, holding scheduled basal")
		return degraded(tr, prof, "glucose history empty"), nil
	}

	bg := latest.Glucose
	delta := trendDelta(snap)
	tr.Record(StageInput, "bg", bg)
	tr.Record(StageInput, "delta", delta)

	ov := snap.Override
	if ov == nil {
		ov = &model.OverrideSet{}
	}

	// Stage 1: eventual-glucose prediction. A provided prediction wins;
	// otherwise the reference's trend projection, falling back to the
	// current glucose when the projection degenerates.
	eventual := predictEventual(tr, bg, delta, ov)

	// Stage 2: correction requirement against the target, scaled by the
	// clamped autosens ratio. A builder-supplied ratio wins; otherwise the
	// ratio is estimated from the snapshot's own history.
	rawRatio, provided := snap.AutosensRatio.Get()
	if !provided {
		rawRatio = autosens.Ratio(autosensPoints(snap, prof, params), autosens.DefaultConfig())
		tr.Note(StageCorrection, "autosens ratio %.3f estimated from history", rawRatio)
	}
	ratio := prof.ClampAutosens(rawRatio)
	profSens := round(prof.Sens, 3)
	effSens := round(profSens*ratio, 4)
	if effSens == 0 {
		effSens = profSens
	}
	tr.Record(StageCorrection, "autosens_ratio", ratio)
	tr.Record(StageCorrection, "effective_sens", effSens)

	// The unrounded requirement feeds the rate computation; the reference
	// rounds the requirement and the rate independently afterwards.
	insulinReq, reqFromOverride := correctionRequirement(eventual, prof.TargetBG, effSens, ov)
	reportedReq := round(insulinReq, 3)
	tr.Record(StageCorrection, "target_bg", prof.TargetBG)
	tr.Record(StageCorrection, "insulin_req", reportedReq)
	if reqFromOverride {
		tr.Note(StageCorrection, "insulin requirement provided externally, computed value discarded")
	}

	// Secondary, activity-adjusted projection. Recorded for divergence
	// analysis only; the load-bearing eventual BG above follows the
	// reference formula.
	tr.Record(StagePrediction, "eventual_bg_activity",
		bg-iob*effSens+(cob/prof.CarbRatio)*effSens)

	// Stage 3: candidate temp-basal rate and candidate micro-bolus.
	duration := resolveDuration(tr, snap, ov, prof)
	candRate := candidateRate(tr, insulinReq, duration, prof)
	candBolus := candidateBolus(insulinReq, candRate, duration, prof)
	tr.Record(StageCandidate, "duration_min", float64(duration))
	tr.Record(StageCandidate, "rate", candRate)
	tr.Record(StageCandidate, "bolus", candBolus)

	// Stage 4: override resolution. A present rate — zero included —
	// replaces the candidate outright; an absent one changes nothing.
	rate := candRate
	if ovRate, present := ov.Rate.Get(); present {
		rate = math.Min(round(ovRate, 3), prof.MaxBasal())
		tr.Note(StageOverride, "override rate %.3f replaces candidate %.3f (delta cap and SMB scaling skipped)", ovRate, candRate)
		tr.Record(StageOverride, "rate", rate)
	} else {
		tr.Note(StageOverride, "no override rate present, candidate kept")
	}

	// Stage 5: the safety gate chain.
	ctx := gate.Context{
		Glucose:          model.Some(bg),
		SampleAge:        snap.At.Sub(latest.Time),
		IOB:              iob,
		OverrideDisabled: ov.DisableDosing,
		Profile:          prof,
	}
	gated, decisions := gate.Run(gate.Chain(), gate.Dosing{Rate: rate, Bolus: candBolus}, ctx)
	for _, d := range decisions {
		tr.Note(StageGates, "%s: %s", d.Code, d.Detail)
	}
	tr.Record(StageGates, "rate", gated.Rate)
	tr.Record(StageGates, "bolus", gated.Bolus)

	// Stage 6: micro-bolus decision on the gated candidate.
	bolus := microBolus(tr, gated.Bolus, insulinReq, delta, prof)

	// Stage 7: final pump-resolution rounding and packaging.
	finalRate := round(math.Max(0, gated.Rate), 2)
	tr.Record(StageFinal, "rate", finalRate)
	tr.Record(StageFinal, "bolus", bolus)
	tr.Record(StageFinal, "eventual_bg", eventual)

	return Result{
		Recommendation: model.Recommendation{
			EventualBG:      model.Some(eventual),
			InsulinReq:      model.Some(reportedReq),
			Rate:            finalRate,
			DurationMinutes: duration,
			Bolus:           bolus,
			Decisions:       decisions,
		},
		Trace: tr,
	}, nil
}

// #endregion evaluate

// #region stages

// predictEventual implements stage 1. All values in mmol/L.
func predictEventual(tr *trace.Trace, bg, delta float64, ov *model.OverrideSet) float64 {
	if provided, present := ov.EventualBG.Get(); present {
		eventual := model.NormalizeEventual(provided)
		tr.Note(StagePrediction, "using provided eventual BG %.3f", eventual)
		tr.Record(StagePrediction, "eventual_bg", eventual)
		return eventual
	}

	eventual := bg + delta*projectionSteps
	if eventual <= 0 {
		tr.Note(StagePrediction, "projection %.3f degenerate, falling back to current glucose", eventual)
		eventual = bg
	}
	tr.Record(StagePrediction, "eventual_bg", eventual)
	return eventual
}

// correctionRequirement implements stage 2: an externally provided
// requirement wins; otherwise the distance from target over the effective
// sensitivity.
func correctionRequirement(eventual, target, effSens float64, ov *model.OverrideSet) (req float64, fromOverride bool) {
	if provided, present := ov.InsulinReq.Get(); present {
		return provided, true
	}
	return (eventual - target) / effSens, false
}

// resolveDuration picks the temp-basal duration in minutes: an override
// duration wins, then a longer currently-running temp, then the default.
// Values over 300 are treated as seconds, matching the reference parser.
func resolveDuration(tr *trace.Trace, snap model.Snapshot, ov *model.OverrideSet, prof model.ResolvedProfile) int {
	d := defaultDurationMin

	if v, present := ov.DurationMinutes.Get(); present {
		dur := int(v)
		if dur > 300 {
			dur = dur / 60
		}
		if dur < minDurationMin {
			dur = minDurationMin
		}
		tr.Note(StageCandidate, "using override duration %d min", dur)
		return dur
	}

	if snap.CurrentTemp != nil && snap.CurrentTemp.DurationMinutes > d {
		d = snap.CurrentTemp.DurationMinutes
	}
	if prof.SMBEnabled && d < smbDurationMin {
		d = smbDurationMin
	}
	return d
}

// candidateRate implements stage 3 for the rate: requirement spread over
// the duration, capped by the basal ceiling and the delta cap, scaled for
// very small requirements when micro-bolusing is enabled.
func candidateRate(tr *trace.Trace, insulinReq float64, duration int, prof model.ResolvedProfile) float64 {
	if insulinReq <= 0 {
		// A negative requirement never produces a positive temp; the gate
		// chain owns how far below scheduled the rate may fall.
		return 0
	}

	raw := insulinReq * 60.0 / math.Max(1, float64(duration))
	raw = math.Min(raw, prof.MaxBasal())

	allowedMax := prof.CurrentBasal + prof.MaxDeltaRate
	if raw > allowedMax {
		tr.Note(StageCandidate, "delta cap: %.3f limited to %.3f", raw, allowedMax)
		raw = allowedMax
	}

	if prof.SMBEnabled && math.Abs(insulinReq) < smbScalingThreshold {
		raw *= prof.SMBDeliveryRatio
		tr.Note(StageCandidate, "small requirement, SMB delivery scaling applied")
	}

	raw = round(raw, 3)
	// Re-apply the caps after rounding, as the reference does.
	raw = math.Min(raw, prof.MaxBasal())
	raw = math.Min(raw, allowedMax)
	return raw
}

// candidateBolus translates the requirement the temp rate will not cover
// within its duration into a candidate micro-bolus. Zero unless
// micro-bolusing is enabled and the unmet portion clears the threshold.
func candidateBolus(insulinReq, rate float64, duration int, prof model.ResolvedProfile) float64 {
	if !prof.SMBEnabled || insulinReq <= 0 {
		return 0
	}
	extra := math.Max(0, rate-prof.CurrentBasal) * float64(duration) / 60.0
	unmet := insulinReq - extra
	if unmet <= prof.BolusThreshold {
		return 0
	}
	return round(unmet, 3)
}

// microBolus implements stage 6: the gated candidate becomes an actual
// recommendation only on a rising or stable trend, sized by the delivery
// ratio, capped by the basal-minutes budget, and floored to the pump's
// delivery increment. Matches the reference, which prefers
// under-delivering a bolus to over-delivering one.
func microBolus(tr *trace.Trace, gatedBolus, insulinReq, delta float64, prof model.ResolvedProfile) float64 {
	if gatedBolus <= 0 || !prof.SMBEnabled {
		tr.Record(StageSMB, "bolus", 0)
		return 0
	}
	if delta < 0 {
		tr.Note(StageSMB, "falling trend (delta %.3f), micro-bolus withheld", delta)
		tr.Record(StageSMB, "bolus", 0)
		return 0
	}
	if insulinReq <= prof.BolusIncrement {
		tr.Record(StageSMB, "bolus", 0)
		return 0
	}

	maxSMB := prof.CurrentBasal * prof.MaxSMBBasalMinutes / 60.0
	smb := math.Min(gatedBolus*prof.SMBDeliveryRatio, maxSMB)
	if prof.BolusIncrement > 0 {
		smb = math.Floor(smb/prof.BolusIncrement) * prof.BolusIncrement
	}
	smb = round(math.Max(0, smb), 3)
	tr.Record(StageSMB, "bolus", smb)
	return smb
}

// #endregion stages

// #region helpers

// trendDelta returns the glucose change per 5 minutes: the sensor-reported
// delta when present, otherwise derived from the two newest samples when
// they are close enough together to trust.
func trendDelta(snap model.Snapshot) float64 {
	latest, _ := snap.Latest()
	if d, present := latest.Delta.Get(); present {
		return d
	}
	n := len(snap.Glucose)
	if n < 2 {
		return 0
	}
	prev := snap.Glucose[n-2]
	gap := latest.Time.Sub(prev.Time).Minutes()
	if gap <= 0 || gap > 15 {
		return 0
	}
	return (latest.Glucose - prev.Glucose) * 5.0 / gap
}

// autosensPoints derives sensitivity-estimation points from the glucose
// history: observed delta per sample pair against the delta the insulin
// activity curve predicts. Pairs with implausible gaps are skipped, so a
// sparse history simply yields the neutral ratio downstream.
func autosensPoints(snap model.Snapshot, prof model.ResolvedProfile, params activity.Params) []autosens.Point {
	var pts []autosens.Point
	for i := 1; i < len(snap.Glucose); i++ {
		prev, cur := snap.Glucose[i-1], snap.Glucose[i]
		gap := cur.Time.Sub(prev.Time).Minutes()
		if gap <= 0 || gap > 15 {
			continue
		}
		delta := cur.Delta.Or((cur.Glucose - prev.Glucose) * 5.0 / gap)

		act, err := activity.Evaluate(snap.Doses, snap.Carbs, params, cur.Time)
		if err != nil {
			continue
		}
		pts = append(pts, autosens.Point{
			Time:          cur.Time,
			Delta:         delta,
			ExpectedDelta: -act.InsulinActivity * prof.Sens * 5.0,
			ProfileSens:   prof.Sens,
		})
	}
	return pts
}

// degraded builds the conservative recommendation for unusable input:
// scheduled basal (inside the safety envelope), no correction, no bolus,
// stale-data reason code.
func degraded(tr *trace.Trace, prof model.ResolvedProfile, detail string) Result {
	rate := prof.CurrentBasal
	rate = math.Max(rate, prof.MinBasal)
	rate = math.Min(rate, prof.MaxBasal())
	rate = round(rate, 2)

	decision := model.GateDecision{Code: model.ReasonStaleData, Detail: detail, Rate: rate}
	tr.Record(StageFinal, "rate", rate)
	tr.Record(StageFinal, "bolus", 0)

	return Result{
		Recommendation: model.Recommendation{
			Rate:            rate,
			DurationMinutes: defaultDurationMin,
			Decisions:       []model.GateDecision{decision},
		},
		Trace: tr,
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// #endregion helpers
