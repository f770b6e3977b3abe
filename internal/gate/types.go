package gate

import (
	"time"

	"github.com/glucoloop/dosing-controller/internal/model"
)

// #region dosing

// Dosing is the candidate delivery the chain clamps: a temp-basal rate in
// U/h and a micro-bolus in U.
type Dosing struct {
	Rate  float64
	Bolus float64
}

// #endregion dosing

// #region context

// Context carries the already-computed evaluation facts each gate reads.
// Gates never recompute upstream values; they only clamp the candidate.
type Context struct {
	// Glucose is the latest reading in mmol/L; absent when the history is
	// empty.
	Glucose model.Optional

	// SampleAge is the age of the newest glucose sample at evaluation time.
	// Meaningless when Glucose is absent.
	SampleAge time.Duration

	// IOB is the insulin currently on board, U.
	IOB float64

	// OverrideDisabled is the explicit external delivery-disable signal.
	OverrideDisabled bool

	Profile model.ResolvedProfile
}

// #endregion context

// #region gate

// Gate is one pure clamp in the chain. Apply returns the possibly adjusted
// dosing, whether the gate fired, and a human-readable detail for the
// decision record.
type Gate struct {
	Code  model.ReasonCode
	Apply func(d Dosing, ctx Context) (Dosing, bool, string)
}

// #endregion gate
