// Package profile owns the patient's clinical profile: time-of-day basal
// and sensitivity schedules, target range, and safety limits. Resolve
// collapses the schedules to a read-only view for one instant, which is
// the only form the decision engine ever sees.
package profile

import (
	"sort"
	"time"

	"github.com/glucoloop/dosing-controller/internal/model"
)

// #region schedule

// SchedulePoint is one segment of a daily schedule: the value takes effect
// at StartMinutes past midnight and holds until the next point.
type SchedulePoint struct {
	StartMinutes int     `yaml:"start_minutes" json:"start_minutes"`
	Value        float64 `yaml:"value" json:"value"`
}

// Schedule is a daily step schedule. Points must cover minute 0; they are
// sorted by start time on resolution.
type Schedule []SchedulePoint

// ValueAt returns the scheduled value in effect at the given time of day.
func (s Schedule) ValueAt(at time.Time) float64 {
	if len(s) == 0 {
		return 0
	}
	pts := make([]SchedulePoint, len(s))
	copy(pts, s)
	sort.Slice(pts, func(i, j int) bool { return pts[i].StartMinutes < pts[j].StartMinutes })

	minute := at.Hour()*60 + at.Minute()
	val := pts[len(pts)-1].Value // wrap: before the first point, yesterday's last segment holds
	for _, p := range pts {
		if p.StartMinutes <= minute {
			val = p.Value
		}
	}
	return val
}

func (s Schedule) validate(field string) error {
	if len(s) == 0 {
		return model.ConfigErr(field, "schedule must have at least one point")
	}
	for _, p := range s {
		if p.StartMinutes < 0 || p.StartMinutes >= 24*60 {
			return model.ConfigErr(field, "start minute %d outside [0, 1440)", p.StartMinutes)
		}
		if p.Value < 0 {
			return model.ConfigErr(field, "negative scheduled value %.3f", p.Value)
		}
	}
	return nil
}

// #endregion schedule

// #region profile

// Units declares how the profile's glucose-valued fields are expressed.
type Units string

const (
	UnitsMmol Units = "mmol"
	UnitsMgdl Units = "mgdl"
)

// Profile is the caller-owned clinical profile. Glucose-valued fields
// (targets, suspend threshold, sensitivity) are interpreted per Units and
// normalized to mmol/L on resolution.
type Profile struct {
	Units Units `yaml:"units" json:"units"`

	Basal Schedule `yaml:"basal" json:"basal"` // U/h
	Sens  Schedule `yaml:"sens" json:"sens"`   // glucose drop per U

	TargetLow  float64 `yaml:"target_low" json:"target_low"`
	TargetHigh float64 `yaml:"target_high" json:"target_high"`

	CarbRatio float64 `yaml:"carb_ratio" json:"carb_ratio"` // g per U

	MaxBasalMultiplier float64 `yaml:"max_basal_multiplier" json:"max_basal_multiplier"`
	MinBasal           float64 `yaml:"min_basal" json:"min_basal"`
	MaxIOB             float64 `yaml:"max_iob" json:"max_iob"`
	MaxDeltaRate       float64 `yaml:"max_delta_rate" json:"max_delta_rate"`
	SuspendThreshold   float64 `yaml:"suspend_threshold" json:"suspend_threshold"`
	StaleAfterMinutes  int     `yaml:"stale_after_minutes" json:"stale_after_minutes"`

	AutosensMin float64 `yaml:"autosens_min" json:"autosens_min"`
	AutosensMax float64 `yaml:"autosens_max" json:"autosens_max"`

	DIAMinutes            float64 `yaml:"dia_minutes" json:"dia_minutes"`
	InsulinPeakMinutes    float64 `yaml:"insulin_peak_minutes" json:"insulin_peak_minutes"`
	CarbAbsorptionMinutes float64 `yaml:"carb_absorption_minutes" json:"carb_absorption_minutes"`

	SMBEnabled         bool    `yaml:"smb_enabled" json:"smb_enabled"`
	SMBDeliveryRatio   float64 `yaml:"smb_delivery_ratio" json:"smb_delivery_ratio"`
	MaxSMBBasalMinutes float64 `yaml:"max_smb_basal_minutes" json:"max_smb_basal_minutes"`
	BolusIncrement     float64 `yaml:"bolus_increment" json:"bolus_increment"`
	BolusThreshold     float64 `yaml:"bolus_threshold" json:"bolus_threshold"`
}

// Default returns a profile with the reference controller's defaults, in
// mmol/L units. Callers overwrite the schedules with patient values.
func Default() Profile {
	return Profile{
		Units:                 UnitsMmol,
		Basal:                 Schedule{{StartMinutes: 0, Value: 1.0}},
		Sens:                  Schedule{{StartMinutes: 0, Value: 2.0}},
		TargetLow:             5.6,
		TargetHigh:            7.2,
		CarbRatio:             10,
		MaxBasalMultiplier:    4.0,
		MinBasal:              0,
		MaxIOB:                6.0,
		MaxDeltaRate:          2.0,
		SuspendThreshold:      3.6,
		StaleAfterMinutes:     12,
		AutosensMin:           0.7,
		AutosensMax:           1.3,
		DIAMinutes:            300,
		InsulinPeakMinutes:    75,
		CarbAbsorptionMinutes: 180,
		SMBEnabled:            false,
		SMBDeliveryRatio:      0.5,
		MaxSMBBasalMinutes:    90,
		BolusIncrement:        0.05,
		BolusThreshold:        0.3,
	}
}

// Validate checks the raw profile before resolution. Returns a
// ConfigurationError naming the first offending field.
func (p *Profile) Validate() error {
	if p.Units != UnitsMmol && p.Units != UnitsMgdl {
		return model.ConfigErr("units", "must be %q or %q, got %q", UnitsMmol, UnitsMgdl, p.Units)
	}
	if err := p.Basal.validate("basal"); err != nil {
		return err
	}
	if err := p.Sens.validate("sens"); err != nil {
		return err
	}
	if p.CarbRatio <= 0 {
		return model.ConfigErr("carb_ratio", "must be positive, got %.2f", p.CarbRatio)
	}
	if p.StaleAfterMinutes <= 0 {
		return model.ConfigErr("stale_after_minutes", "must be positive, got %d", p.StaleAfterMinutes)
	}
	return nil
}

// #endregion profile

// #region resolve

// Resolve collapses the schedules at the given instant and normalizes all
// glucose-valued fields to mmol/L. The returned view is then validated the
// same way the engine validates it, so a resolving caller fails fast.
func (p *Profile) Resolve(at time.Time) (model.ResolvedProfile, error) {
	if err := p.Validate(); err != nil {
		return model.ResolvedProfile{}, err
	}

	conv := 1.0
	if p.Units == UnitsMgdl {
		conv = 1.0 / model.MgdlPerMmol
	}

	targetLow := p.TargetLow * conv
	targetHigh := p.TargetHigh * conv

	rp := model.ResolvedProfile{
		CurrentBasal:          p.Basal.ValueAt(at),
		Sens:                  p.Sens.ValueAt(at) * conv,
		CarbRatio:             p.CarbRatio,
		TargetLow:             targetLow,
		TargetHigh:            targetHigh,
		TargetBG:              (targetLow + targetHigh) / 2,
		MaxBasalMultiplier:    p.MaxBasalMultiplier,
		MinBasal:              p.MinBasal,
		MaxIOB:                p.MaxIOB,
		MaxDeltaRate:          p.MaxDeltaRate,
		SuspendThreshold:      p.SuspendThreshold * conv,
		StaleAfter:            time.Duration(p.StaleAfterMinutes) * time.Minute,
		AutosensMin:           p.AutosensMin,
		AutosensMax:           p.AutosensMax,
		DIAMinutes:            p.DIAMinutes,
		InsulinPeakMinutes:    p.InsulinPeakMinutes,
		CarbAbsorptionMinutes: p.CarbAbsorptionMinutes,
		SMBEnabled:            p.SMBEnabled,
		SMBDeliveryRatio:      p.SMBDeliveryRatio,
		MaxSMBBasalMinutes:    p.MaxSMBBasalMinutes,
		BolusIncrement:        p.BolusIncrement,
		BolusThreshold:        p.BolusThreshold,
	}

	if err := rp.Validate(); err != nil {
		return model.ResolvedProfile{}, err
	}
	return rp, nil
}

// #endregion resolve
