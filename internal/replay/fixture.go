package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/glucoloop/dosing-controller/internal/model"
	"github.com/glucoloop/dosing-controller/internal/profile"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: one shared
// profile plus a list of independent snapshot cases with their expected
// outcomes.
type Fixture struct {
	Description string          `json:"description"`
	Profile     profile.Profile `json:"profile"`
	Cases       []FixtureCase   `json:"cases"`
}

// FixtureCase is one recorded snapshot plus the outcome the reference
// controller produced for it. Optional inputs use JSON null or omission
// for absence, which round-trips through model.Optional.
type FixtureCase struct {
	Name    string                `json:"name"`
	At      time.Time             `json:"at"`
	Glucose []model.GlucoseSample `json:"glucose"`
	Doses   []model.DoseEvent     `json:"doses,omitempty"`
	Carbs   []model.CarbEvent     `json:"carbs,omitempty"`

	IOB           model.Optional `json:"iob"`
	COB           model.Optional `json:"cob"`
	AutosensRatio model.Optional `json:"autosens_ratio"`

	CurrentTemp *model.TempBasal   `json:"current_temp,omitempty"`
	Override    *model.OverrideSet `json:"override,omitempty"`

	Expected Expected `json:"expected"`
}

// Expected captures the reference outcome for one case. Every field is
// optional; only present fields are compared, so fixtures can pin down as
// much or as little of the output as the recording captured.
type Expected struct {
	Rate            *float64 `json:"rate,omitempty"`
	Bolus           *float64 `json:"bolus,omitempty"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	EventualBG      *float64 `json:"eventual_bg,omitempty"`
	InsulinReq      *float64 `json:"insulin_req,omitempty"`

	// Reasons lists the gate codes expected to have fired, order-sensitive.
	Reasons []string `json:"reasons,omitempty"`

	// Trace pins individual intermediate values by stage and name.
	Trace []ExpectedTraceValue `json:"trace,omitempty"`
}

// ExpectedTraceValue pins one intermediate value from the audit trace.
type ExpectedTraceValue struct {
	Stage string  `json:"stage"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Cases) == 0 {
		return nil, fmt.Errorf("fixture %s: no cases", path)
	}
	return &f, nil
}

// ToSnapshot converts a fixture case to a domain snapshot, resolving the
// shared profile at the case's evaluation time.
func (c *FixtureCase) ToSnapshot(prof *profile.Profile) (model.Snapshot, error) {
	resolved, err := prof.Resolve(c.At)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("case %s: resolve profile: %w", c.Name, err)
	}
	return model.Snapshot{
		At:            c.At,
		Glucose:       c.Glucose,
		Doses:         c.Doses,
		Carbs:         c.Carbs,
		Profile:       resolved,
		IOB:           c.IOB,
		COB:           c.COB,
		AutosensRatio: c.AutosensRatio,
		CurrentTemp:   c.CurrentTemp,
		Override:      c.Override,
	}, nil
}

// #endregion fixture-loader
