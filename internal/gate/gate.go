// Package gate implements the ordered safety gate chain applied to a
// candidate dosing after override resolution. Each gate is an independent
// pure clamp; composition is left to right, so every gate sees the value
// already adjusted by the gates before it. The order is fixed: the
// clinical floors and ceilings run first, and the hard-zero gates — the
// delivery-disable signal, low-glucose suspend — plus the stale-data
// guard run last so they win over everything upstream, overrides
// included.
package gate

import (
	"fmt"
	"math"

	"github.com/glucoloop/dosing-controller/internal/model"
)

// #region chain

// Chain returns the safety gates in their fixed evaluation order.
func Chain() []Gate {
	return []Gate{
		{Code: model.ReasonMinBasalFloor, Apply: minBasalFloor},
		{Code: model.ReasonMaxBasalCeiling, Apply: maxBasalCeiling},
		{Code: model.ReasonMaxIOB, Apply: maxIOBCeiling},
		{Code: model.ReasonOverrideDisable, Apply: overrideDisable},
		{Code: model.ReasonLowGlucoseSuspend, Apply: lowGlucoseSuspend},
		{Code: model.ReasonStaleData, Apply: staleDataGuard},
	}
}

// Run applies the chain to the candidate and returns the final dosing plus
// a decision record for every gate that fired, in chain order.
func Run(gates []Gate, d Dosing, ctx Context) (Dosing, []model.GateDecision) {
	var decisions []model.GateDecision
	for _, g := range gates {
		next, fired, detail := g.Apply(d, ctx)
		if fired {
			decisions = append(decisions, model.GateDecision{
				Code:   g.Code,
				Detail: detail,
				Rate:   next.Rate,
				Bolus:  next.Bolus,
			})
		}
		d = next
	}
	return d, decisions
}

// #endregion chain

// #region gates

// overrideDisable enforces the external delivery-disable signal: rate and
// bolus go to zero, the computed insulin requirement is left intact in the
// trace.
func overrideDisable(d Dosing, ctx Context) (Dosing, bool, string) {
	if !ctx.OverrideDisabled {
		return d, false, ""
	}
	return Dosing{}, true, "external override disabled insulin delivery"
}

// minBasalFloor keeps the rate at or above the configured minimum and
// never negative.
func minBasalFloor(d Dosing, ctx Context) (Dosing, bool, string) {
	floor := math.Max(0, ctx.Profile.MinBasal)
	if d.Rate >= floor {
		return d, false, ""
	}
	out := d
	out.Rate = floor
	return out, true, fmt.Sprintf("rate %.3f below floor %.3f", d.Rate, floor)
}

// maxBasalCeiling caps the rate at scheduled basal times the profile
// multiplier.
func maxBasalCeiling(d Dosing, ctx Context) (Dosing, bool, string) {
	ceiling := ctx.Profile.MaxBasal()
	if d.Rate <= ceiling {
		return d, false, ""
	}
	out := d
	out.Rate = ceiling
	return out, true, fmt.Sprintf("rate %.3f above ceiling %.3f", d.Rate, ceiling)
}

// maxIOBCeiling suppresses further dosing when insulin on board already
// meets the limit: no rate above scheduled basal, no bolus. MaxIOB zero
// disables the gate.
func maxIOBCeiling(d Dosing, ctx Context) (Dosing, bool, string) {
	if ctx.Profile.MaxIOB <= 0 || ctx.IOB < ctx.Profile.MaxIOB {
		return d, false, ""
	}
	if d.Rate <= ctx.Profile.CurrentBasal && d.Bolus == 0 {
		return d, false, ""
	}
	out := d
	out.Rate = math.Min(d.Rate, ctx.Profile.CurrentBasal)
	out.Bolus = 0
	return out, true, fmt.Sprintf("IOB %.2f at/above limit %.2f", ctx.IOB, ctx.Profile.MaxIOB)
}

// lowGlucoseSuspend forces basal and bolus to zero below the suspend
// floor, regardless of overrides or any upstream computation.
func lowGlucoseSuspend(d Dosing, ctx Context) (Dosing, bool, string) {
	bg, ok := ctx.Glucose.Get()
	if !ok || bg >= ctx.Profile.SuspendThreshold {
		return d, false, ""
	}
	return Dosing{}, true, fmt.Sprintf("glucose %.2f below suspend threshold %.2f", bg, ctx.Profile.SuspendThreshold)
}

// staleDataGuard falls back to the scheduled basal and suppresses the
// bolus when the newest glucose sample is too old to act on. It never
// raises a rate a previous gate lowered, so a suspend survives staleness.
func staleDataGuard(d Dosing, ctx Context) (Dosing, bool, string) {
	if !ctx.Glucose.Present() || ctx.SampleAge <= ctx.Profile.StaleAfter {
		return d, false, ""
	}
	out := d
	out.Rate = math.Min(d.Rate, ctx.Profile.CurrentBasal)
	out.Bolus = 0
	if out == d {
		// Candidate already conservative; still record degraded confidence.
		return out, true, fmt.Sprintf("newest sample %.0f min old, exceeds %.0f min window",
			ctx.SampleAge.Minutes(), ctx.Profile.StaleAfter.Minutes())
	}
	return out, true, fmt.Sprintf("newest sample %.0f min old, exceeds %.0f min window; holding scheduled basal",
		ctx.SampleAge.Minutes(), ctx.Profile.StaleAfter.Minutes())
}

// #endregion gates
