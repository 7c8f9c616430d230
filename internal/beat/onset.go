// SPDX-License-Identifier: MIT
package beat

// Latch is the hysteresis state of the onset detector. Exactly one state is
// active at any time.
type Latch uint8

const (
	Quiet    Latch = iota // energy has dropped back; the next rise may be an onset
	Elevated              // an onset was seen; waiting for energy to drop again
)

func (l Latch) String() string {
	switch l {
	case Quiet:
		return "quiet"
	case Elevated:
		return "elevated"
	default:
		return "unknown"
	}
}

// Grade classifies a frame's energy against the short-window statistics.
type Grade uint8

const (
	Low  Grade = iota // below the short-window mean
	Mid               // between the mean and the beat threshold
	High              // more than BeatSigma deviations above the mean
)

// next is the single transition function of the latch. Rising requires a
// High grade that also clears the long-term floor; falling requires Low.
func (l Latch) next(g Grade, longtermHigh bool) Latch {
	switch l {
	case Quiet:
		if g == High && longtermHigh {
			return Elevated
		}
	case Elevated:
		if g == Low {
			return Quiet
		}
	}
	return l
}

// OnsetDetector decides once per frame whether a new beat onset started.
type OnsetDetector struct {
	short *WindowStats
	long  ExpAverage

	beatSigma      float64
	noiseThreshold float64

	latch           Latch
	framesSinceBeat uint64
	minFrames       uint64
	grade           Grade
}

// NewOnsetDetector builds a detector from a validated configuration.
func NewOnsetDetector(cfg Config) (*OnsetDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &OnsetDetector{
		short:          NewWindowStats(cfg.ShortFrames()),
		long:           NewExpAverage(cfg.LongAlpha),
		beatSigma:      cfg.BeatSigma,
		noiseThreshold: cfg.NoiseThreshold,
		latch:          Quiet,
		minFrames:      cfg.MinFrames(),
	}, nil
}

// OnFrame consumes one frame of normalised energy and reports whether an
// onset was confirmed on this frame.
func (o *OnsetDetector) OnFrame(energy float32) bool {
	e := float64(energy)

	o.short.Push(e)
	longAvg := o.long.Push(e)

	o.grade = o.classify(e)
	longtermHigh := e > max(longAvg, o.noiseThreshold)

	prev := o.latch
	o.latch = prev.next(o.grade, longtermHigh)

	fired := prev == Quiet && o.latch == Elevated && o.framesSinceBeat > o.minFrames
	if fired {
		o.framesSinceBeat = 0
	}
	o.framesSinceBeat++

	return fired
}

// classify grades the frame energy e against the short window: High above
// mean+BeatSigma*stddev, Low below the mean. This grades the current frame,
// not the short-window mean against the long average, so a single loud frame
// is enough to go High.
func (o *OnsetDetector) classify(e float64) Grade {
	mean := o.short.Mean()
	switch {
	case e > mean+o.beatSigma*o.short.StdDev():
		return High
	case e < mean:
		return Low
	default:
		return Mid
	}
}

func (o *OnsetDetector) Latch() Latch         { return o.latch }
func (o *OnsetDetector) ShortMean() float64   { return o.short.Mean() }
func (o *OnsetDetector) LongAverage() float64 { return o.long.Value() }
func (o *OnsetDetector) MinFrames() uint64    { return o.minFrames }
