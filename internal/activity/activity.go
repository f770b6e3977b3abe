// Package activity converts a dosing and carbohydrate history into
// insulin-on-board and carb-on-board values at a query time. Evaluation is
// a discrete convolution over past events — a pure function of the history
// and decay parameters, with no running simulation or cached state.
package activity

import (
	"math"
	"time"

	"github.com/glucoloop/dosing-controller/internal/model"
)

// #region params

// Params holds the profile decay constants the kernels are parameterized by.
type Params struct {
	DIAMinutes            float64 // insulin duration of action
	PeakMinutes           float64 // time of peak insulin activity
	CarbAbsorptionMinutes float64 // default carb absorption time
}

// FromProfile extracts decay parameters from a resolved profile.
func FromProfile(p model.ResolvedProfile) Params {
	return Params{
		DIAMinutes:            p.DIAMinutes,
		PeakMinutes:           p.InsulinPeakMinutes,
		CarbAbsorptionMinutes: p.CarbAbsorptionMinutes,
	}
}

func (p Params) validate() error {
	switch {
	case p.DIAMinutes <= 0:
		return model.ConfigErr("dia_minutes", "insulin duration must be positive, got %.1f", p.DIAMinutes)
	case p.PeakMinutes <= 0 || p.PeakMinutes >= p.DIAMinutes:
		return model.ConfigErr("insulin_peak_minutes", "peak must lie inside (0, DIA), got %.1f", p.PeakMinutes)
	case p.CarbAbsorptionMinutes <= 0:
		return model.ConfigErr("carb_absorption_minutes", "absorption time must be positive, got %.1f", p.CarbAbsorptionMinutes)
	}
	return nil
}

// #endregion params

// #region result

// Result is the state of the decay curves at one instant.
type Result struct {
	IOB             float64 `json:"iob"`              // U still active
	COB             float64 `json:"cob"`              // g still absorbing
	InsulinActivity float64 `json:"insulin_activity"` // U consumed per minute
	CarbActivity    float64 `json:"carb_activity"`    // g absorbed per minute
}

// #endregion result

// #region evaluate

// Evaluate sums the decay-kernel contribution of every past dose and carb
// event at the query time. Scheduled basal doses are the baseline the
// profile already accounts for and do not contribute to IOB; boluses and
// temp-basal segments do. Events in the future of at are ignored. An empty
// history yields zero curves.
func Evaluate(doses []model.DoseEvent, carbs []model.CarbEvent, params Params, at time.Time) (Result, error) {
	if err := params.validate(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, d := range doses {
		if d.Kind == model.DoseScheduledBasal || d.Units <= 0 {
			continue
		}
		mins := at.Sub(d.Time).Minutes()
		if mins < 0 || mins >= params.DIAMinutes {
			continue
		}
		res.IOB += d.Units * insulinRemaining(mins, params.DIAMinutes, params.PeakMinutes)
		res.InsulinActivity += d.Units * insulinActivity(mins, params.DIAMinutes, params.PeakMinutes)
	}

	for _, c := range carbs {
		if c.Grams <= 0 {
			continue
		}
		mins := at.Sub(c.Time).Minutes()
		if mins < 0 {
			continue
		}
		absorb := c.AbsorptionMinutes.Or(params.CarbAbsorptionMinutes)
		if absorb <= 0 {
			return Result{}, model.ConfigErr("absorption_minutes", "event absorption time must be positive, got %.1f", absorb)
		}
		remaining := c.Grams - carbsAbsorbed(c.Grams, mins, absorb)
		if remaining > 0 {
			res.COB += remaining
		}
		res.CarbActivity += carbRate(c.Grams, mins, absorb)
	}

	// Numeric guard: the kernels are non-negative by construction, but keep
	// the invariant explicit against float underflow.
	res.IOB = math.Max(0, res.IOB)
	res.COB = math.Max(0, res.COB)
	return res, nil
}

// #endregion evaluate

// #region insulin-kernel

// insulinShape computes the oref exponential curve constants tau, a, S for
// the given duration and peak.
func insulinShape(dia, peak float64) (tau, scale float64) {
	tau = peak * (1 - peak/dia) / (1 - 2*peak/dia)
	if tau <= 0 || math.IsInf(tau, 0) || math.IsNaN(tau) {
		// Degenerate when peak approaches DIA/2; fall back to the simpler
		// single-exponential time constant.
		tau = peak * 0.75
	}
	a := 2 * tau / dia
	scale = 1 / (1 - a + (1+a)*math.Exp(-dia/tau))
	return tau, scale
}

// insulinRemaining returns the fraction of a dose still on board after
// mins minutes.
func insulinRemaining(mins, dia, peak float64) float64 {
	if mins <= 0 {
		return 1
	}
	if mins >= dia {
		return 0
	}
	tau, s := insulinShape(dia, peak)
	rem := 1 - s*(1-(1+mins/tau)*math.Exp(-mins/tau))
	return math.Max(0, math.Min(1, rem))
}

// insulinActivity returns the instantaneous consumption rate (fraction per
// minute) of a dose after mins minutes: the negated derivative of
// insulinRemaining.
func insulinActivity(mins, dia, peak float64) float64 {
	if mins <= 0 || mins >= dia {
		return 0
	}
	tau, s := insulinShape(dia, peak)
	return math.Max(0, s*(mins/(tau*tau))*math.Exp(-mins/tau))
}

// #endregion insulin-kernel

// #region carb-kernel

// Carb absorption follows a smoothed ramp-then-decay: a logistic absorbed
// fraction centered at 35% of the absorption time, so the absorption rate
// rises to a peak and tails off rather than switching on and off.
const (
	carbSteepness = 8.0
	carbCenter    = 0.35
)

// carbsAbsorbed returns grams absorbed after mins minutes of an event with
// the given absorption time.
func carbsAbsorbed(grams, mins, absorb float64) float64 {
	if mins <= 0 {
		return 0
	}
	if mins >= absorb {
		return grams
	}
	progress := mins / absorb
	absorbed := grams / (1 + math.Exp(-carbSteepness*(progress-carbCenter)))
	return math.Min(absorbed, grams)
}

// carbRate returns the instantaneous absorption rate in grams per minute.
func carbRate(grams, mins, absorb float64) float64 {
	if mins <= 0 || mins >= absorb {
		return 0
	}
	absorbed := carbsAbsorbed(grams, mins, absorb)
	// Derivative of the logistic: (k/T) * absorbed * (1 - absorbed/grams).
	return (carbSteepness / absorb) * absorbed * (1 - absorbed/grams)
}

// #endregion carb-kernel
