package model

import "time"

// All glucose quantities in this package are mmol/L. Inputs captured in
// mg/dL are converted at snapshot construction via NormalizeGlucose /
// NormalizeEventual, which mirror the reference controller's
// threshold-based unit detection.

// #region units

// MgdlPerMmol is the conversion factor between mg/dL and mmol/L.
const MgdlPerMmol = 18.0

// NormalizeGlucose converts a glucose reading to mmol/L. Values above 50
// are treated as mg/dL, matching the reference controller's detection
// threshold for current glucose.
func NormalizeGlucose(v float64) float64 {
	if v > 50 {
		return v / MgdlPerMmol
	}
	return v
}

// NormalizeEventual converts an eventual-glucose prediction to mmol/L.
// The reference uses a lower detection threshold (30) for predictions than
// for current glucose.
func NormalizeEventual(v float64) float64 {
	if v > 30 {
		return v / MgdlPerMmol
	}
	return v
}

// #endregion units

// #region glucose-sample

// GlucoseSample is one CGM reading. Samples are ordered most-recent-last
// and immutable once recorded. Delta is the observed change per 5 minutes;
// absent when the sensor did not report a trend.
type GlucoseSample struct {
	Time    time.Time `json:"time"`
	Glucose float64   `json:"glucose"`
	Delta   Optional  `json:"delta"`
}

// #endregion glucose-sample

// #region dose-event

// DoseKind classifies how insulin was delivered.
type DoseKind string

const (
	DoseScheduledBasal DoseKind = "scheduled_basal"
	DoseBolus          DoseKind = "bolus"
	DoseTempBasal      DoseKind = "temp_basal"
)

// DoseEvent is one delivered insulin record. The union of dose events over
// the lookback window is the dosing history.
type DoseEvent struct {
	Time  time.Time `json:"time"`
	Units float64   `json:"units"`
	Kind  DoseKind  `json:"kind"`
}

// #endregion dose-event

// #region carb-event

// CarbEvent is one recorded carbohydrate intake. AbsorptionMinutes is an
// optional per-meal absorption-time hint; absent means the profile default
// applies.
type CarbEvent struct {
	Time              time.Time `json:"time"`
	Grams             float64   `json:"grams"`
	AbsorptionMinutes Optional  `json:"absorption_minutes"`
}

// #endregion carb-event

// #region temp-basal

// TempBasal describes the temporary basal currently running on the pump.
type TempBasal struct {
	Rate            float64 `json:"rate"`
	DurationMinutes int     `json:"duration_minutes"`
	MinutesRunning  int     `json:"minutes_running"`
}

// #endregion temp-basal

// #region override-set

// OverrideSet carries externally supplied directives. Every numeric field
// is independently absent or present; a present zero replaces the computed
// candidate outright. DisableDosing is the reference controller's explicit
// delivery-disable signal and forces the final rate to zero while leaving
// the insulin requirement intact.
type OverrideSet struct {
	Rate            Optional `json:"rate"`
	InsulinReq      Optional `json:"insulin_req"`
	EventualBG      Optional `json:"eventual_bg"`
	DurationMinutes Optional `json:"duration_minutes"`
	DisableDosing   bool     `json:"disable_dosing"`
}

// Empty reports whether no directive is carried at all.
func (o OverrideSet) Empty() bool {
	return !o.Rate.Present() && !o.InsulinReq.Present() &&
		!o.EventualBG.Present() && !o.DurationMinutes.Present() &&
		!o.DisableDosing
}

// #endregion override-set

// #region snapshot

// Snapshot is the aggregate input to one evaluation. It is constructed
// fresh per evaluation and never mutated; the engine holds no state across
// snapshots.
type Snapshot struct {
	At      time.Time       `json:"at"`
	Glucose []GlucoseSample `json:"glucose"`
	Doses   []DoseEvent     `json:"doses"`
	Carbs   []CarbEvent     `json:"carbs"`
	Profile ResolvedProfile `json:"profile"`

	// IOB and COB may be supplied by the snapshot builder; when absent the
	// engine derives them from the dose/carb history via the activity model.
	IOB Optional `json:"iob"`
	COB Optional `json:"cob"`

	// AutosensRatio scales the insulin sensitivity factor. Absent means no
	// adjustment (ratio 1.0). Clamped to the profile bounds before use.
	AutosensRatio Optional `json:"autosens_ratio"`

	CurrentTemp *TempBasal   `json:"current_temp,omitempty"`
	Override    *OverrideSet `json:"override,omitempty"`
}

// Latest returns the most recent glucose sample, or false when the history
// is empty.
func (s Snapshot) Latest() (GlucoseSample, bool) {
	if len(s.Glucose) == 0 {
		return GlucoseSample{}, false
	}
	return s.Glucose[len(s.Glucose)-1], true
}

// #endregion snapshot
