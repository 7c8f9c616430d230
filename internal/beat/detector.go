// SPDX-License-Identifier: MIT
package beat

// Frame is the per-frame snapshot published by the Detector. It is a plain
// value so it can be copied across goroutines without sharing state.
type Frame struct {
	SampleIndex SampleIndex

	BassEnergy float32 // normalised band energy
	ShortAvg   float32
	LongAvg    float32

	BeatFired            bool
	BeatProbability      float32
	PhaseErrorNormalized float32

	BPM   uint32
	Phase float32 // position within the current beat, [0, 1)
	Beats uint64  // beats detected since start
}

// Detector runs the full chain for one mono stream: band-pass, running
// energy, normaliser, onset detection every Decimation samples and tempo
// tracking on each onset.
type Detector struct {
	mask SampleIndex

	filter  *BandPass
	energy  *RunningEnergy
	norm    *Normalizer
	onset   *OnsetDetector
	tracker *Tracker
}

// NewDetector validates cfg and allocates all detector state.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	filter, err := NewBandPass(cfg.SampleRate, cfg.FilterFrequency, cfg.FilterQ)
	if err != nil {
		return nil, err
	}
	onset, err := NewOnsetDetector(cfg)
	if err != nil {
		return nil, err
	}
	tracker, err := NewTracker(cfg)
	if err != nil {
		return nil, err
	}
	return &Detector{
		mask:    SampleIndex(cfg.Decimation - 1),
		filter:  filter,
		energy:  NewRunningEnergy(cfg.EnergySamples()),
		norm:    NewNormalizer(cfg.NormalizerAlpha, cfg.NormalizerFloor),
		onset:   onset,
		tracker: tracker,
	}, nil
}

// OnSample consumes one sample. On frame boundaries (idx a multiple of the
// decimation) it runs onset detection and returns the frame with ok set.
func (d *Detector) OnSample(idx SampleIndex, x float32) (f Frame, ok bool) {
	energy := d.norm.Sample(d.energy.Sample(d.filter.Sample(x)))
	if idx&d.mask != 0 {
		return f, false
	}

	fired := d.onset.OnFrame(energy)
	if fired {
		d.tracker.OnBeat(idx)
	}

	t := d.tracker
	return Frame{
		SampleIndex:          idx,
		BassEnergy:           energy,
		ShortAvg:             float32(d.onset.ShortMean()),
		LongAvg:              float32(d.onset.LongAverage()),
		BeatFired:            fired,
		BeatProbability:      float32(t.BeatProbability(idx)),
		PhaseErrorNormalized: float32(t.PhaseErrorNormalized()),
		BPM:                  t.BPM(),
		Phase:                float32(t.PhaseAt(idx)),
		Beats:                t.Beats(),
	}, true
}

// Process feeds a block of consecutive samples starting at start and calls
// emit for every completed frame. It returns the index following the block.
func (d *Detector) Process(start SampleIndex, block []float32, emit func(Frame)) SampleIndex {
	idx := start
	for _, x := range block {
		if f, ok := d.OnSample(idx, x); ok && emit != nil {
			emit(f)
		}
		idx++
	}
	return idx
}

func (d *Detector) Tracker() *Tracker { return d.tracker }
