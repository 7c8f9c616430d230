// SPDX-License-Identifier: MIT
package beat

import (
	"fmt"
	"math"

	"beatsync/pkg/bitint"
)

// SampleIndex counts samples since the start of the stream. It is the time
// base for all tempo math.
type SampleIndex uint64

// Config is the immutable parameter set of a Detector. Durations are in
// seconds and converted to sample or frame counts at construction.
type Config struct {
	SampleRate float64 // Hz

	SlowestBPM uint32
	FastestBPM uint32
	InitialBPM uint32 // 0 selects the midpoint of the BPM range

	Decimation int // PCM samples per onset frame, power of two

	FilterFrequency float64 // band-pass centre in Hz
	FilterQ         float64

	EnergyWindow    float64 // running energy window
	NormalizerAlpha float32 // per-sample decay of the normaliser maximum
	NormalizerFloor float32

	ShortWindow    float64 // short-window statistics length
	LongAlpha      float64 // per-frame decay of the long-window average
	BeatSigma      float64 // standard deviations above the short mean that grade High
	NoiseThreshold float64 // minimum normalised energy that can start an onset

	BeatHistory     int // buffered beat timestamps used for phase fitting
	DeltaHistory    int // buffered inter-beat deltas used for the raw BPM
	ModeHistory     int // raw BPM estimates voting on the candidate
	ValidateEvery   int // beats between candidate validations
	PhaseCandidates int // evenly spaced phases tried when validating
}

// DefaultConfig returns the tuning used for bass-band beat tracking of music.
func DefaultConfig(sampleRate float64) Config {
	return Config{
		SampleRate:      sampleRate,
		SlowestBPM:      80,
		FastestBPM:      180,
		Decimation:      64,
		FilterFrequency: 50,
		FilterQ:         1,
		EnergyWindow:    0.1,
		NormalizerAlpha: 0.9999,
		NormalizerFloor: 1e-3,
		ShortWindow:     1,
		LongAlpha:       0.9999,
		BeatSigma:       1,
		NoiseThreshold:  0.05,
		BeatHistory:     16,
		DeltaHistory:    8,
		ModeHistory:     16,
		ValidateEvery:   4,
		PhaseCandidates: 10,
	}
}

// Validate reports the first parameter that cannot produce a working pipeline.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidConfig, c.SampleRate)
	}
	if c.SlowestBPM == 0 {
		return fmt.Errorf("%w: slowest bpm must be positive", ErrInvalidConfig)
	}
	if c.SlowestBPM >= c.FastestBPM {
		return fmt.Errorf("%w: slowest bpm %d must be below fastest bpm %d", ErrInvalidConfig, c.SlowestBPM, c.FastestBPM)
	}
	if c.InitialBPM != 0 && (c.InitialBPM < c.SlowestBPM || c.InitialBPM > c.FastestBPM) {
		return fmt.Errorf("%w: initial bpm %d outside [%d, %d]", ErrInvalidConfig, c.InitialBPM, c.SlowestBPM, c.FastestBPM)
	}
	if !bitint.IsPowerOfTwo(c.Decimation) {
		return fmt.Errorf("%w: decimation must be a power of two, got %d", ErrInvalidConfig, c.Decimation)
	}
	if c.FilterFrequency <= 0 || c.FilterFrequency >= c.SampleRate/2 {
		return fmt.Errorf("%w: filter frequency %f outside (0, %f)", ErrInvalidConfig, c.FilterFrequency, c.SampleRate/2)
	}
	if c.FilterQ <= 0 {
		return fmt.Errorf("%w: filter Q must be positive, got %f", ErrInvalidConfig, c.FilterQ)
	}
	if c.NormalizerAlpha <= 0 || c.NormalizerAlpha >= 1 {
		return fmt.Errorf("%w: normalizer alpha must be in (0, 1), got %f", ErrInvalidConfig, c.NormalizerAlpha)
	}
	if c.NormalizerFloor <= 0 {
		return fmt.Errorf("%w: normalizer floor must be positive, got %f", ErrInvalidConfig, c.NormalizerFloor)
	}
	if c.LongAlpha <= 0 || c.LongAlpha >= 1 {
		return fmt.Errorf("%w: long alpha must be in (0, 1), got %f", ErrInvalidConfig, c.LongAlpha)
	}
	if c.BeatSigma < 0 {
		return fmt.Errorf("%w: beat sigma must not be negative, got %f", ErrInvalidConfig, c.BeatSigma)
	}
	if c.EnergySamples() < 1 {
		return fmt.Errorf("%w: energy window %fs rounds to zero samples", ErrInvalidConfig, c.EnergyWindow)
	}
	if c.ShortFrames() < 1 {
		return fmt.Errorf("%w: short window %fs rounds to zero frames", ErrInvalidConfig, c.ShortWindow)
	}
	if c.BeatHistory < 1 || c.DeltaHistory < 1 || c.ModeHistory < 1 {
		return fmt.Errorf("%w: history sizes must be positive (beats %d, deltas %d, mode %d)",
			ErrInvalidConfig, c.BeatHistory, c.DeltaHistory, c.ModeHistory)
	}
	if c.ValidateEvery < 1 {
		return fmt.Errorf("%w: validate interval must be positive, got %d", ErrInvalidConfig, c.ValidateEvery)
	}
	if c.PhaseCandidates < 2 {
		return fmt.Errorf("%w: need at least 2 phase candidates, got %d", ErrInvalidConfig, c.PhaseCandidates)
	}
	return nil
}

// FrameRate is the onset detector rate in frames per second.
func (c Config) FrameRate() float64 {
	return c.SampleRate / float64(c.Decimation)
}

// EnergySamples is the running energy window length in samples.
func (c Config) EnergySamples() int {
	return int(math.Round(c.SampleRate * c.EnergyWindow))
}

// ShortFrames is the short statistics window length in frames.
func (c Config) ShortFrames() int {
	return int(math.Round(c.FrameRate() * c.ShortWindow))
}

// MinFrames is the minimum number of frames between two onsets, derived from
// the fastest accepted tempo.
func (c Config) MinFrames() uint64 {
	return uint64(math.Round(c.FrameRate() * 60 / float64(c.FastestBPM)))
}

// StartBPM is the tempo the tracker assumes before any beat was seen.
func (c Config) StartBPM() uint32 {
	if c.InitialBPM != 0 {
		return c.InitialBPM
	}
	return (c.SlowestBPM + c.FastestBPM) / 2
}
