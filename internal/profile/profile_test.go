package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glucoloop/dosing-controller/internal/model"
)

func dayTime(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.UTC)
}

func TestScheduleValueAt(t *testing.T) {
	s := Schedule{
		{StartMinutes: 0, Value: 0.8},
		{StartMinutes: 6 * 60, Value: 1.2},
		{StartMinutes: 22 * 60, Value: 0.9},
	}

	if got := s.ValueAt(dayTime(3, 0)); got != 0.8 {
		t.Fatalf("03:00: want 0.8, got %v", got)
	}
	if got := s.ValueAt(dayTime(6, 0)); got != 1.2 {
		t.Fatalf("06:00: want 1.2, got %v", got)
	}
	if got := s.ValueAt(dayTime(15, 30)); got != 1.2 {
		t.Fatalf("15:30: want 1.2, got %v", got)
	}
	if got := s.ValueAt(dayTime(23, 59)); got != 0.9 {
		t.Fatalf("23:59: want 0.9, got %v", got)
	}
}

func TestScheduleWrapsBeforeFirstPoint(t *testing.T) {
	// A schedule starting at 06:00 means yesterday's last segment holds
	// through the early morning.
	s := Schedule{
		{StartMinutes: 6 * 60, Value: 1.2},
		{StartMinutes: 22 * 60, Value: 0.9},
	}
	if got := s.ValueAt(dayTime(2, 0)); got != 0.9 {
		t.Fatalf("02:00 should carry yesterday's 22:00 value, got %v", got)
	}
}

func TestScheduleUnsortedInput(t *testing.T) {
	s := Schedule{
		{StartMinutes: 12 * 60, Value: 1.5},
		{StartMinutes: 0, Value: 1.0},
	}
	if got := s.ValueAt(dayTime(13, 0)); got != 1.5 {
		t.Fatalf("unsorted schedule resolved wrong: got %v", got)
	}
}

func TestDefaultProfileResolves(t *testing.T) {
	p := Default()
	rp, err := p.Resolve(dayTime(10, 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rp.CurrentBasal != 1.0 {
		t.Fatalf("current basal: want 1.0, got %v", rp.CurrentBasal)
	}
	if diff := rp.TargetBG - 6.4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("target midpoint: want 6.4, got %v", rp.TargetBG)
	}
	if rp.StaleAfter != 12*time.Minute {
		t.Fatalf("stale window: want 12m, got %v", rp.StaleAfter)
	}
}

func TestResolveConvertsMgdlUnits(t *testing.T) {
	p := Default()
	p.Units = UnitsMgdl
	p.TargetLow = 100
	p.TargetHigh = 120
	p.SuspendThreshold = 65
	p.Sens = Schedule{{StartMinutes: 0, Value: 50}}

	rp, err := p.Resolve(dayTime(10, 0))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	const eps = 1e-9
	if diff := rp.TargetBG - 110.0/18.0; diff > eps || diff < -eps {
		t.Fatalf("target midpoint: want %.6f, got %.6f", 110.0/18.0, rp.TargetBG)
	}
	if diff := rp.Sens - 50.0/18.0; diff > eps || diff < -eps {
		t.Fatalf("sens: want %.6f, got %.6f", 50.0/18.0, rp.Sens)
	}
	if diff := rp.SuspendThreshold - 65.0/18.0; diff > eps || diff < -eps {
		t.Fatalf("suspend: want %.6f, got %.6f", 65.0/18.0, rp.SuspendThreshold)
	}
}

func TestValidateRejectsBadProfiles(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"bad units", func(p *Profile) { p.Units = "moles" }},
		{"empty basal schedule", func(p *Profile) { p.Basal = nil }},
		{"schedule minute out of range", func(p *Profile) { p.Basal = Schedule{{StartMinutes: 1500, Value: 1}} }},
		{"negative schedule value", func(p *Profile) { p.Sens = Schedule{{StartMinutes: 0, Value: -2}} }},
		{"zero carb ratio", func(p *Profile) { p.CarbRatio = 0 }},
		{"zero stale window", func(p *Profile) { p.StaleAfterMinutes = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			tc.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var cfgErr *model.ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %T", err)
			}
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	yaml := `
units: mgdl
target_low: 100
target_high: 120
suspend_threshold: 65
sens:
  - start_minutes: 0
    value: 50
basal:
  - start_minutes: 0
    value: 0.9
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Units != UnitsMgdl {
		t.Fatalf("units not loaded: %v", p.Units)
	}
	if p.Basal.ValueAt(dayTime(10, 0)) != 0.9 {
		t.Fatalf("basal not loaded")
	}
	// Fields absent from the file keep the defaults.
	if p.MaxBasalMultiplier != 4.0 {
		t.Fatalf("default multiplier lost: %v", p.MaxBasalMultiplier)
	}
	if p.DIAMinutes != 300 {
		t.Fatalf("default DIA lost: %v", p.DIAMinutes)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("carb_ratio: -1\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for negative carb ratio")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
