package engine

import (
	"github.com/glucoloop/dosing-controller/internal/model"
	"github.com/glucoloop/dosing-controller/internal/trace"
)

// #region result

// Result bundles the recommendation with the full audit trace for one
// evaluation.
type Result struct {
	Recommendation model.Recommendation
	Trace          *trace.Trace
}

// #endregion result

// #region constants

// Reference-controller constants. The eventual-glucose projection
// multiplies the per-5-minute delta by projectionSteps; requirements
// below smbScalingThreshold get the micro-bolus delivery scaling
// applied; intermediate values round to 3 decimals and the final rate
// to 2 (pump resolution).
const (
	projectionSteps     = 30.0
	defaultDurationMin  = 30
	minDurationMin      = 5
	smbDurationMin      = 60
	smbScalingThreshold = 1.0
)

// Stage names, in pipeline order. These are the keys regression
// comparison matches on, so they are part of the output contract.
const (
	StageInput      = "input"
	StagePrediction = "prediction"
	StageCorrection = "correction"
	StageCandidate  = "candidate"
	StageOverride   = "override"
	StageGates      = "gates"
	StageSMB        = "smb"
	StageFinal      = "final"
)

// #endregion constants
