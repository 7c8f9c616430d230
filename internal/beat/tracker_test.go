// SPDX-License-Identifier: MIT
package beat

import (
	"bytes"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	applog "beatsync/internal/log"
)

const testRate = 44100

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(DefaultConfig(testRate))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

// captureLog redirects the package logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	applog.SetOutput(&buf)
	t.Cleanup(applog.ResetOutput)
	return &buf
}

func TestTrackerInitialState(t *testing.T) {
	tr := newTestTracker(t)
	if tr.BPM() != 130 || tr.Candidate() != 130 {
		t.Errorf("BPM() = %d, Candidate() = %d, want 130", tr.BPM(), tr.Candidate())
	}
	if tr.Phase() != 0 || tr.PhaseError() != 0 || tr.Beats() != 0 {
		t.Errorf("non-zero initial phase state: %s", tr)
	}
	if p := tr.BeatProbability(0); p != 1 {
		t.Errorf("BeatProbability(0) = %g, want 1 on the initial grid", p)
	}
}

func TestTrackerRoundTrip(t *testing.T) {
	tr := newTestTracker(t)
	const period = 26460 // 0.6 s, 100 BPM

	for k := range 40 {
		tr.OnBeat(SampleIndex(k * period))
		if k == 3 && tr.BPM() != 100 {
			t.Errorf("BPM() after 4 beats = %d, want 100", tr.BPM())
		}
	}
	if tr.BPM() != 100 {
		t.Fatalf("BPM() = %d, want 100", tr.BPM())
	}
	if tr.PhaseError() > 1e-4 {
		t.Errorf("PhaseError() = %g, want ~0 for exact beats", tr.PhaseError())
	}
	if math.Abs(tr.PhaseErrorDt()) > 1 {
		t.Errorf("PhaseErrorDt() = %g, want a flat error surface at the fit", tr.PhaseErrorDt())
	}
}

func TestTrackerClean120(t *testing.T) {
	buf := captureLog(t)
	tr := newTestTracker(t)

	for k := range 60 {
		idx := SampleIndex(1000 + k*22050)
		tr.OnBeat(idx)

		if k == 3 && tr.BPM() != 120 {
			t.Errorf("BPM() after 4 beats = %d, want 120", tr.BPM())
		}
		if k >= 8 {
			if p := tr.BeatProbability(idx); p <= 0.9 {
				t.Errorf("beat %d: BeatProbability = %.3f, want > 0.9", k, p)
			}
		}
	}

	if tr.BPM() != 120 {
		t.Errorf("BPM() = %d, want 120", tr.BPM())
	}
	if e := tr.PhaseErrorNormalized(); e > 0.006 {
		t.Errorf("PhaseErrorNormalized() = %g, want <= 0.006", e)
	}
	// Half-way between beats the probability collapses.
	if p := tr.BeatProbability(SampleIndex(1000 + 60*22050 + 11025)); p > 0.05 {
		t.Errorf("off-beat BeatProbability = %.3f, want ~0", p)
	}
	if strings.Contains(buf.String(), "drifted") {
		t.Errorf("origin rebasing moved the grid:\n%s", buf.String())
	}
}

func TestTrackerTempoChange(t *testing.T) {
	tr := newTestTracker(t)

	idx := SampleIndex(1000)
	for range 40 {
		tr.OnBeat(idx)
		idx += 22050
	}
	if tr.BPM() != 120 {
		t.Fatalf("BPM() = %d before the change, want 120", tr.BPM())
	}

	switched := 0
	changes := 0
	prev := tr.BPM()
	for k := range 46 { // 20 s at 140 BPM
		tr.OnBeat(idx)
		idx += 18900

		if tr.BPM() != prev {
			changes++
			prev = tr.BPM()
		}
		if switched == 0 && tr.BPM() == 140 {
			switched = k + 1
		}
	}

	if tr.BPM() != 140 {
		t.Fatalf("BPM() = %d after 20 s at 140, want 140", tr.BPM())
	}
	if switched > 32 {
		t.Errorf("switched to 140 after %d beats, want within 32", switched)
	}
	if changes != 1 {
		t.Errorf("BPM changed %d times, want a single switch", changes)
	}
}

// Ten seconds at 120 BPM, then ten at 140. The new tempo has to take over
// well before the track ends, without stopping at the tempos in between.
func TestTrackerTempoChangeAfterTenSeconds(t *testing.T) {
	const (
		rate   = 44100
		tenSec = 10 * rate
	)
	tr := newTestTracker(t)

	start := SampleIndex(1000)
	for k := 0; k*22050 < tenSec; k++ {
		tr.OnBeat(start + SampleIndex(k*22050))
	}
	if tr.BPM() != 120 {
		t.Fatalf("BPM() = %d after 10 s at 120, want 120", tr.BPM())
	}

	switched := -1
	changes := 0
	prev := tr.BPM()
	for k := 0; k*18900 < tenSec; k++ {
		tr.OnBeat(start + tenSec + SampleIndex(k*18900))
		if bpm := tr.BPM(); bpm != prev {
			changes++
			prev = bpm
			if bpm == 140 && switched < 0 {
				switched = k
			}
		}
	}

	if tr.BPM() != 140 {
		t.Fatalf("BPM() = %d after 10 s at 140, want 140", tr.BPM())
	}
	if switched < 0 || switched > 20 {
		t.Errorf("switched to 140 on beat %d of the new tempo, want within 20", switched)
	}
	if changes != 1 {
		t.Errorf("BPM changed %d times, want a single switch", changes)
	}
}

func TestTrackerRelocksAfterPhaseJump(t *testing.T) {
	tr := newTestTracker(t)

	idx := SampleIndex(1000)
	for range 32 {
		tr.OnBeat(idx)
		idx += 22050
	}

	// Half a period late: the 0.75 s delta is outside the valid range, so the
	// tempo stays and only the phase has to move.
	idx += 11025
	for k := range 32 {
		tr.OnBeat(idx)
		if tr.BPM() != 120 {
			t.Fatalf("beat %d after the jump: BPM() = %d, want 120", k, tr.BPM())
		}
		if k >= 24 {
			if p := tr.BeatProbability(idx); p <= 0.9 {
				t.Errorf("beat %d after the jump: BeatProbability = %.3f, want > 0.9", k, p)
			}
		}
		idx += 22050
	}
}

func TestTrackerIgnoresOutlierDelta(t *testing.T) {
	tr := newTestTracker(t)

	idx := SampleIndex(0)
	for k := range 30 {
		tr.OnBeat(idx)
		idx += 22050
		if k == 20 {
			idx += 22050 // one missed beat: a 1.0 s gap
		}
	}

	if tr.BPM() != 120 {
		t.Errorf("BPM() = %d, want 120 despite the gap", tr.BPM())
	}
	for i := range tr.lastDelta.Len() {
		if d := tr.lastDelta.At(i); math.Abs(d-0.5) > 1e-9 {
			t.Errorf("delta %d = %g, want only 0.5 s deltas", i, d)
		}
	}
}

func TestTrackerStaysBounded(t *testing.T) {
	cfg := DefaultConfig(testRate)
	tr, _ := NewTracker(cfg)
	rng := rand.New(rand.NewPCG(3, 5))

	idx := SampleIndex(0)
	for i := range 2000 {
		idx += SampleIndex(1 + rng.IntN(2*testRate))
		tr.OnBeat(idx)

		if b := tr.BPM(); b < cfg.SlowestBPM || b > cfg.FastestBPM {
			t.Fatalf("beat %d: BPM() = %d outside [%d, %d]", i, b, cfg.SlowestBPM, cfg.FastestBPM)
		}
		if c := tr.Candidate(); c < cfg.SlowestBPM || c > cfg.FastestBPM {
			t.Fatalf("beat %d: Candidate() = %d out of range", i, c)
		}
		if ph := tr.Phase(); ph < 0 || ph >= tr.Period() {
			t.Fatalf("beat %d: Phase() = %g outside [0, %g)", i, ph, tr.Period())
		}
		if p := tr.BeatProbability(idx); p < 0 || p > 1 {
			t.Fatalf("beat %d: BeatProbability() = %g outside [0, 1]", i, p)
		}
		if e := tr.PhaseErrorNormalized(); e < 0 || e > 1 {
			t.Fatalf("beat %d: PhaseErrorNormalized() = %g outside [0, 1]", i, e)
		}
	}
}

func TestPhaseErrorNormalizedScale(t *testing.T) {
	cfg := DefaultConfig(testRate)
	cfg.BeatHistory = 2000
	cfg.InitialBPM = 120 // period of 22050 samples
	rng := rand.New(rand.NewPCG(7, 11))

	tests := []struct {
		name     string
		at       func(k int) SampleIndex
		min, max float64
	}{
		{"on the grid", func(k int) SampleIndex { return SampleIndex(k * 22050) }, 0, 1e-9},
		{"half a period off", func(k int) SampleIndex { return SampleIndex(k*22050 + 11025) }, 0.999, 1},
		{"random", func(int) SampleIndex { return SampleIndex(rng.IntN(100 * testRate)) }, 0.3, 0.37},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTracker(cfg)
			if err != nil {
				t.Fatal(err)
			}
			for k := range cfg.BeatHistory {
				tr.lastBeats.Push(tt.at(k))
			}
			tr.phaseError = tr.fitError(tr.phase, tr.Period())

			if got := tr.PhaseErrorNormalized(); got < tt.min || got > tt.max {
				t.Errorf("PhaseErrorNormalized() = %.4f, want in [%g, %g]", got, tt.min, tt.max)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		x, p, want float64
	}{
		{0.25, 0.5, 0.25},
		{0.5, 0.5, 0},
		{-0.1, 0.5, 0.4},
		{1.3, 0.5, 0.3},
		{-1e-18, 0.5, 0}, // rounds up to the period
	}
	for _, tt := range tests {
		got := wrap(tt.x, tt.p)
		if math.Abs(got-tt.want) > 1e-12 || got >= tt.p || got < 0 {
			t.Errorf("wrap(%g, %g) = %g, want %g", tt.x, tt.p, got, tt.want)
		}
	}
}

func BenchmarkTrackerOnBeat(b *testing.B) {
	tr, _ := NewTracker(DefaultConfig(testRate))
	idx := SampleIndex(0)
	for b.Loop() {
		tr.OnBeat(idx)
		idx += 22050
	}
}
