// SPDX-License-Identifier: MIT
package beat

import (
	"fmt"
	"math"

	applog "beatsync/internal/log"

	"gonum.org/v1/gonum/floats"
)

// Maximum drift, in seconds, tolerated when the phase origin moves.
const rebaseTolerance = 1e-5

// Tracker turns beat timestamps into a tempo and a phase. The beat grid is
// phaseOrigin + phase + k*Period() for integer k.
type Tracker struct {
	sampleRate float64

	slowest, fastest     uint32
	deltaFast, deltaSlow float64 // accepted inter-beat interval, seconds

	bpm       uint32
	candidate uint32

	phaseOrigin SampleIndex
	phase       float64 // seconds after phaseOrigin, in [0, Period())

	lastBeats   *Ring[SampleIndex]
	lastDelta   *Ring[float64]
	deltaSum    float64
	deltaPushes int

	mode          *ModeTracker
	beats         uint64
	validateEvery uint64

	phaseError   float64
	phaseErrorDt float64

	// scratch for candidate validation
	candidates []float64
	errs       []float64
}

// NewTracker returns a tracker at the configured start tempo with phase zero.
func NewTracker(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := NewModeTracker(int(cfg.SlowestBPM), int(cfg.FastestBPM)+1, cfg.ModeHistory)
	if err != nil {
		return nil, err
	}

	bpm := cfg.StartBPM()
	return &Tracker{
		sampleRate:    cfg.SampleRate,
		slowest:       cfg.SlowestBPM,
		fastest:       cfg.FastestBPM,
		deltaFast:     60 / float64(cfg.FastestBPM),
		deltaSlow:     60 / float64(cfg.SlowestBPM),
		bpm:           bpm,
		candidate:     bpm,
		lastBeats:     NewRing[SampleIndex](cfg.BeatHistory),
		lastDelta:     NewRing[float64](cfg.DeltaHistory),
		mode:          mode,
		validateEvery: uint64(cfg.ValidateEvery),
		candidates:    make([]float64, cfg.PhaseCandidates),
		errs:          make([]float64, cfg.PhaseCandidates),
	}, nil
}

// OnBeat folds a detected beat at idx into the tempo model.
func (t *Tracker) OnBeat(idx SampleIndex) {
	t.rebaseOrigin(idx)
	t.recordBeat(idx)
	t.estimateBPM()

	t.beats++
	if t.beats%t.validateEvery == 0 {
		t.validateCandidate()
	}

	t.refinePhase()
}

// rebaseOrigin moves phaseOrigin to the oldest buffered beat so relative
// times stay small. The grid itself must not move.
func (t *Tracker) rebaseOrigin(idx SampleIndex) {
	if !t.lastBeats.Full() {
		return
	}
	oldest, _ := t.lastBeats.Oldest()
	if oldest == t.phaseOrigin {
		return
	}

	p := t.Period()
	before := t.gridOffset(idx, p)

	shift := t.seconds(oldest, t.phaseOrigin)
	t.phaseOrigin = oldest
	t.phase = wrap(t.phase-shift, p)

	after := t.gridOffset(idx, p)
	drift := math.Abs(before - after)
	drift = min(drift, p-drift)
	if drift > rebaseTolerance {
		applog.Warnf("Tracker: phase drifted %.3gs while rebasing origin to sample %d", drift, oldest)
	}
}

func (t *Tracker) recordBeat(idx SampleIndex) {
	if prev, ok := t.lastBeats.Newest(); ok {
		d := t.seconds(idx, prev)
		if t.deltaFast < d && d < t.deltaSlow {
			old, evicted := t.lastDelta.Push(d)
			t.deltaSum += d
			if evicted {
				t.deltaSum -= old
			}

			t.deltaPushes++
			if t.deltaPushes == t.lastDelta.Cap() {
				t.deltaPushes = 0
				t.deltaSum = 0
				for i := range t.lastDelta.Len() {
					t.deltaSum += t.lastDelta.At(i)
				}
			}
		}
	}
	t.lastBeats.Push(idx)
}

func (t *Tracker) estimateBPM() {
	n := t.lastDelta.Len()
	if n == 0 || t.deltaSum <= 0 {
		return
	}
	raw := int(math.Round(60 * float64(n) / t.deltaSum))
	t.candidate = uint32(t.mode.Push(raw))
}

// validateCandidate fits an evenly spaced set of phases at the candidate
// period. A different candidate replaces the current tempo only if its best
// phase explains the buffered beats strictly better than the current model.
// When the candidate already is the tempo, a much better phase re-locks the grid.
func (t *Tracker) validateCandidate() {
	p := 60 / float64(t.candidate)
	n := float64(len(t.candidates))
	floats.Span(t.candidates, 0, p*(1-1/n))
	for i, ph := range t.candidates {
		t.errs[i] = t.fitError(ph, p)
	}
	best := floats.MinIdx(t.errs)

	current := t.fitError(t.phase, t.Period())
	if t.candidate != t.bpm {
		if t.errs[best] < current {
			t.bpm = t.candidate
			t.phase = t.candidates[best]
		}
		return
	}
	if t.errs[best] < 0.5*current {
		t.phase = t.candidates[best]
	}
}

// refinePhase takes one gradient step on the fit error.
func (t *Tracker) refinePhase() {
	p := t.Period()
	now := t.fitError(t.phase, p)
	dt := 0.001 * p
	g := (t.fitError(t.phase+dt, p) - now) / dt

	limit := 0.05 * p
	step := min(max(0.0005*g, -limit), limit)
	t.phase = wrap(t.phase-step, p)

	t.phaseError = now
	t.phaseErrorDt = g
}

// fitError is the sum of squared distances, in periods, between the buffered
// beats and the nearest line of the grid (phase, period).
func (t *Tracker) fitError(phase, period float64) float64 {
	var sum float64
	for i := range t.lastBeats.Len() {
		x := (t.seconds(t.lastBeats.At(i), t.phaseOrigin) - phase) / period
		r := x - math.Round(x)
		sum += r * r
	}
	return sum
}

// gridOffset is the time since the last grid line at idx, in seconds.
func (t *Tracker) gridOffset(idx SampleIndex, period float64) float64 {
	return wrap(t.seconds(idx, t.phaseOrigin)-t.phase, period)
}

// seconds returns a-b in seconds. The difference is taken in integer samples
// first so large indices keep full precision.
func (t *Tracker) seconds(a, b SampleIndex) float64 {
	return float64(int64(a-b)) / t.sampleRate
}

// wrap maps x into [0, period).
func wrap(x, period float64) float64 {
	m := math.Mod(x, period)
	if m < 0 {
		m += period
	}
	if m >= period {
		m = 0
	}
	return m
}

// PhaseAt returns the position of idx within the current beat, in [0, 1).
// Zero is on a predicted beat.
func (t *Tracker) PhaseAt(idx SampleIndex) float64 {
	p := t.Period()
	return t.gridOffset(idx, p) / p
}

// BeatProbability is high near predicted beats and scaled down while the
// grid fits the recent beats poorly.
func (t *Tracker) BeatProbability(idx SampleIndex) float64 {
	conf := 1.0
	if t.phaseError > 0 {
		conf = min(0.5/t.phaseError, 1)
	}
	tri := 2 * math.Abs(t.PhaseAt(idx)-0.5)
	return conf * tri
}

// PhaseErrorNormalized maps the fit error into [0, 1]. 1 means every buffered
// beat sits half a period off the grid; beats at random average about 1/3.
func (t *Tracker) PhaseErrorNormalized() float64 {
	n := t.lastBeats.Len()
	if n == 0 {
		return 0
	}
	return min(t.phaseError/(0.25*float64(n)), 1)
}

func (t *Tracker) BPM() uint32           { return t.bpm }
func (t *Tracker) Candidate() uint32     { return t.candidate }
func (t *Tracker) Period() float64       { return 60 / float64(t.bpm) }
func (t *Tracker) Phase() float64        { return t.phase }
func (t *Tracker) PhaseError() float64   { return t.phaseError }
func (t *Tracker) PhaseErrorDt() float64 { return t.phaseErrorDt }
func (t *Tracker) Beats() uint64         { return t.beats }

func (t *Tracker) String() string {
	return fmt.Sprintf("bpm=%d candidate=%d phase=%.4fs err=%.4f beats=%d",
		t.bpm, t.candidate, t.phase, t.phaseError, t.beats)
}
