package model

// #region reason-code

// ReasonCode identifies which safety gate adjusted the candidate dosing, or
// why a degraded recommendation was produced.
type ReasonCode string

const (
	ReasonMinBasalFloor     ReasonCode = "min_basal_floor"
	ReasonMaxBasalCeiling   ReasonCode = "max_basal_ceiling"
	ReasonMaxIOB            ReasonCode = "max_iob"
	ReasonLowGlucoseSuspend ReasonCode = "low_glucose_suspend"
	ReasonStaleData         ReasonCode = "stale_data"
	ReasonOverrideDisable   ReasonCode = "override_disable"
)

// #endregion reason-code

// #region gate-decision

// GateDecision records one safety gate that fired, with the value it left
// behind.
type GateDecision struct {
	Code   ReasonCode `json:"code"`
	Detail string     `json:"detail"`
	Rate   float64    `json:"rate"`
	Bolus  float64    `json:"bolus"`
}

// #endregion gate-decision

// #region recommendation

// Recommendation is the immutable result of one evaluation. Floating-point
// fields are not rounded beyond the pump-resolution rounding the reference
// applies, so serialized recommendations compare faithfully against
// reference output.
type Recommendation struct {
	// EventualBG is the point prediction at the end of the horizon, mmol/L.
	// Absent when the glucose history was empty.
	EventualBG Optional `json:"eventual_bg"`

	// InsulinReq is the correction requirement in units. Absent on the
	// degraded path.
	InsulinReq Optional `json:"insulin_req"`

	Rate            float64 `json:"rate"` // U/h, final after the gate chain
	DurationMinutes int     `json:"duration_minutes"`
	Bolus           float64 `json:"bolus"` // U, zero when no micro-bolus recommended

	// Decisions lists the gates that fired, in chain order.
	Decisions []GateDecision `json:"decisions"`
}

// Fired reports whether the given gate adjusted this recommendation.
func (r Recommendation) Fired(code ReasonCode) bool {
	for _, d := range r.Decisions {
		if d.Code == code {
			return true
		}
	}
	return false
}

// #endregion recommendation
