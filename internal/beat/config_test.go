// SPDX-License-Identifier: MIT
package beat

import (
	"errors"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	for _, rate := range []float64{22050, 44100, 48000, 96000} {
		if err := DefaultConfig(rate).Validate(); err != nil {
			t.Errorf("DefaultConfig(%g).Validate() = %v", rate, err)
		}
	}
}

func TestConfigDerivedValues(t *testing.T) {
	cfg := DefaultConfig(44100)

	if got, want := cfg.FrameRate(), 44100.0/64; got != want {
		t.Errorf("FrameRate() = %g, want %g", got, want)
	}
	if got := cfg.MinFrames(); got != 230 {
		t.Errorf("MinFrames() = %d, want 230", got)
	}
	if got := cfg.EnergySamples(); got != 4410 {
		t.Errorf("EnergySamples() = %d, want 4410", got)
	}
	if got := cfg.ShortFrames(); got != 689 {
		t.Errorf("ShortFrames() = %d, want 689", got)
	}
	if got := cfg.StartBPM(); got != 130 {
		t.Errorf("StartBPM() = %d, want midpoint 130", got)
	}

	cfg.InitialBPM = 100
	if got := cfg.StartBPM(); got != 100 {
		t.Errorf("StartBPM() = %d, want explicit 100", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"zero slowest", func(c *Config) { c.SlowestBPM = 0 }},
		{"slowest equals fastest", func(c *Config) { c.SlowestBPM = 120; c.FastestBPM = 120 }},
		{"slowest above fastest", func(c *Config) { c.SlowestBPM = 200 }},
		{"initial out of range", func(c *Config) { c.InitialBPM = 200 }},
		{"decimation not power of two", func(c *Config) { c.Decimation = 100 }},
		{"zero decimation", func(c *Config) { c.Decimation = 0 }},
		{"filter above nyquist", func(c *Config) { c.FilterFrequency = 30000 }},
		{"zero Q", func(c *Config) { c.FilterQ = 0 }},
		{"normalizer alpha one", func(c *Config) { c.NormalizerAlpha = 1 }},
		{"zero floor", func(c *Config) { c.NormalizerFloor = 0 }},
		{"long alpha zero", func(c *Config) { c.LongAlpha = 0 }},
		{"energy window rounds to zero", func(c *Config) { c.EnergyWindow = 1e-6 }},
		{"short window rounds to zero", func(c *Config) { c.ShortWindow = 1e-4 }},
		{"empty beat history", func(c *Config) { c.BeatHistory = 0 }},
		{"zero validate interval", func(c *Config) { c.ValidateEvery = 0 }},
		{"single phase candidate", func(c *Config) { c.PhaseCandidates = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(44100)
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if _, err := NewDetector(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewDetector() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
