package model

import (
	"fmt"
	"time"
)

// #region configuration-error

// ConfigurationError marks a malformed or missing profile field. It is
// fatal to the evaluation: the caller must not proceed, and nothing inside
// the pipeline attempts recovery.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ConfigErr builds a ConfigurationError for the given field.
func ConfigErr(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// #endregion configuration-error

// #region resolved-profile

// ResolvedProfile is the read-only view of the clinical profile for one
// instant: schedules already collapsed to the values in effect at the
// evaluation time, glucose fields in mmol/L. Owned by the snapshot builder;
// the engine never mutates it.
type ResolvedProfile struct {
	// Dosing parameters in effect now.
	CurrentBasal float64 `json:"current_basal"` // U/h
	Sens         float64 `json:"sens"`          // mmol/L per U
	CarbRatio    float64 `json:"carb_ratio"`    // g per U

	// Target range and its working midpoint.
	TargetLow  float64 `json:"target_low"`
	TargetHigh float64 `json:"target_high"`
	TargetBG   float64 `json:"target_bg"`

	// Safety limits.
	MaxBasalMultiplier float64       `json:"max_basal_multiplier"`
	MinBasal           float64       `json:"min_basal"`
	MaxIOB             float64       `json:"max_iob"`
	MaxDeltaRate       float64       `json:"max_delta_rate"` // cap on rate increase over current basal, U/h
	SuspendThreshold   float64       `json:"suspend_threshold"`
	StaleAfter         time.Duration `json:"stale_after"`

	// Autosens ratio bounds.
	AutosensMin float64 `json:"autosens_min"`
	AutosensMax float64 `json:"autosens_max"`

	// Decay model parameters.
	DIAMinutes            float64 `json:"dia_minutes"`
	InsulinPeakMinutes    float64 `json:"insulin_peak_minutes"`
	CarbAbsorptionMinutes float64 `json:"carb_absorption_minutes"`

	// Micro-bolus settings.
	SMBEnabled         bool    `json:"smb_enabled"`
	SMBDeliveryRatio   float64 `json:"smb_delivery_ratio"`
	MaxSMBBasalMinutes float64 `json:"max_smb_basal_minutes"`
	BolusIncrement     float64 `json:"bolus_increment"` // minimum pump delivery step, U
	BolusThreshold     float64 `json:"bolus_threshold"` // unmet requirement below this never boluses, U
}

// Validate checks the fields the pipeline divides by or clamps against.
// Returns a ConfigurationError naming the first offending field.
func (p ResolvedProfile) Validate() error {
	switch {
	case p.Sens <= 0:
		return ConfigErr("sens", "insulin sensitivity must be positive, got %.3f", p.Sens)
	case p.CurrentBasal < 0:
		return ConfigErr("current_basal", "scheduled basal must be non-negative, got %.3f", p.CurrentBasal)
	case p.CarbRatio <= 0:
		return ConfigErr("carb_ratio", "carb ratio must be positive, got %.3f", p.CarbRatio)
	case p.TargetBG <= 0:
		return ConfigErr("target_bg", "target glucose must be positive, got %.3f", p.TargetBG)
	case p.TargetLow > p.TargetHigh:
		return ConfigErr("target_low", "target range inverted: %.2f > %.2f", p.TargetLow, p.TargetHigh)
	case p.MaxBasalMultiplier <= 0:
		return ConfigErr("max_basal_multiplier", "must be positive, got %.3f", p.MaxBasalMultiplier)
	case p.MinBasal < 0:
		return ConfigErr("min_basal", "must be non-negative, got %.3f", p.MinBasal)
	case p.MinBasal > p.MaxBasal():
		return ConfigErr("min_basal", "floor %.3f above ceiling %.3f", p.MinBasal, p.MaxBasal())
	case p.MaxIOB < 0:
		return ConfigErr("max_iob", "must be non-negative, got %.3f", p.MaxIOB)
	case p.DIAMinutes <= 0:
		return ConfigErr("dia_minutes", "insulin duration must be positive, got %.1f", p.DIAMinutes)
	case p.InsulinPeakMinutes <= 0 || p.InsulinPeakMinutes >= p.DIAMinutes:
		return ConfigErr("insulin_peak_minutes", "peak must lie inside (0, DIA), got %.1f", p.InsulinPeakMinutes)
	case p.CarbAbsorptionMinutes <= 0:
		return ConfigErr("carb_absorption_minutes", "absorption time must be positive, got %.1f", p.CarbAbsorptionMinutes)
	case p.AutosensMin <= 0 || p.AutosensMax < p.AutosensMin:
		return ConfigErr("autosens_min", "bounds must satisfy 0 < min <= max, got [%.2f, %.2f]", p.AutosensMin, p.AutosensMax)
	case p.SMBEnabled && (p.SMBDeliveryRatio <= 0 || p.SMBDeliveryRatio > 1):
		return ConfigErr("smb_delivery_ratio", "must lie in (0, 1], got %.2f", p.SMBDeliveryRatio)
	}
	return nil
}

// MaxBasal is the absolute basal ceiling: scheduled basal times the
// profile multiplier.
func (p ResolvedProfile) MaxBasal() float64 {
	return p.CurrentBasal * p.MaxBasalMultiplier
}

// ClampAutosens bounds an autosens ratio to the profile's configured range.
func (p ResolvedProfile) ClampAutosens(ratio float64) float64 {
	if ratio < p.AutosensMin {
		return p.AutosensMin
	}
	if ratio > p.AutosensMax {
		return p.AutosensMax
	}
	return ratio
}

// #endregion resolved-profile
