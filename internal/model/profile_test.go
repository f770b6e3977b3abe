package model

import (
	"errors"
	"testing"
	"time"
)

func validProfile() ResolvedProfile {
	return ResolvedProfile{
		CurrentBasal:          1.0,
		Sens:                  2.0,
		CarbRatio:             10,
		TargetLow:             5.6,
		TargetHigh:            7.2,
		TargetBG:              6.4,
		MaxBasalMultiplier:    4.0,
		MaxIOB:                6.0,
		MaxDeltaRate:          2.0,
		SuspendThreshold:      3.6,
		StaleAfter:            12 * time.Minute,
		AutosensMin:           0.7,
		AutosensMax:           1.3,
		DIAMinutes:            300,
		InsulinPeakMinutes:    75,
		CarbAbsorptionMinutes: 180,
		SMBDeliveryRatio:      0.5,
		MaxSMBBasalMinutes:    90,
		BolusIncrement:        0.05,
		BolusThreshold:        0.3,
	}
}

func TestProfileValidateAccepts(t *testing.T) {
	if err := validProfile().Validate(); err != nil {
		t.Fatalf("valid profile rejected: %v", err)
	}
}

func TestProfileValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ResolvedProfile)
		field  string
	}{
		{"zero sens", func(p *ResolvedProfile) { p.Sens = 0 }, "sens"},
		{"negative basal", func(p *ResolvedProfile) { p.CurrentBasal = -0.5 }, "current_basal"},
		{"zero carb ratio", func(p *ResolvedProfile) { p.CarbRatio = 0 }, "carb_ratio"},
		{"zero target", func(p *ResolvedProfile) { p.TargetBG = 0 }, "target_bg"},
		{"inverted range", func(p *ResolvedProfile) { p.TargetLow, p.TargetHigh = 8, 5 }, "target_low"},
		{"zero multiplier", func(p *ResolvedProfile) { p.MaxBasalMultiplier = 0 }, "max_basal_multiplier"},
		{"floor above ceiling", func(p *ResolvedProfile) { p.MinBasal = 5.0 }, "min_basal"},
		{"zero dia", func(p *ResolvedProfile) { p.DIAMinutes = 0 }, "dia_minutes"},
		{"peak past dia", func(p *ResolvedProfile) { p.InsulinPeakMinutes = 400 }, "insulin_peak_minutes"},
		{"bad autosens bounds", func(p *ResolvedProfile) { p.AutosensMax = 0.5 }, "autosens_min"},
		{"smb ratio out of range", func(p *ResolvedProfile) { p.SMBEnabled = true; p.SMBDeliveryRatio = 1.5 }, "smb_delivery_ratio"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validProfile()
			tc.mutate(&p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %T", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, cfgErr.Field)
			}
		})
	}
}

func TestMaxBasal(t *testing.T) {
	p := validProfile()
	if got := p.MaxBasal(); got != 4.0 {
		t.Fatalf("max basal: want 4.0, got %v", got)
	}
}

func TestClampAutosens(t *testing.T) {
	p := validProfile()
	if got := p.ClampAutosens(0.2); got != 0.7 {
		t.Fatalf("low clamp: want 0.7, got %v", got)
	}
	if got := p.ClampAutosens(2.5); got != 1.3 {
		t.Fatalf("high clamp: want 1.3, got %v", got)
	}
	if got := p.ClampAutosens(1.1); got != 1.1 {
		t.Fatalf("in-range ratio changed: got %v", got)
	}
}
