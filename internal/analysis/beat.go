// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"beatsync/internal/beat"
	applog "beatsync/internal/log"
	"beatsync/internal/transport"
)

// BeatProcessor feeds capture buffers through a beat.Detector and publishes
// every frame. It owns the stream's sample clock: each buffer continues the
// index where the previous one ended.
type BeatProcessor struct {
	detector  *beat.Detector
	transport transport.Transport
	channels  int

	index beat.SampleIndex
	mono  []float32

	last      beat.Frame
	sendFails uint64
}

// NewBeatProcessor builds the detector from cfg. framesPerBuffer sizes the
// mono scratch buffer so steady-state processing does not allocate.
func NewBeatProcessor(cfg beat.Config, channels, framesPerBuffer int, t transport.Transport) (*BeatProcessor, error) {
	if channels < 1 {
		return nil, fmt.Errorf("beat processor: channels must be positive, got %d", channels)
	}
	d, err := beat.NewDetector(cfg)
	if err != nil {
		return nil, fmt.Errorf("beat processor: %w", err)
	}

	applog.Infof("Analysis: Initializing BeatProcessor (%.0f Hz, %d-%d BPM, %d samples/frame)",
		cfg.SampleRate, cfg.SlowestBPM, cfg.FastestBPM, cfg.Decimation)

	return &BeatProcessor{
		detector:  d,
		transport: t,
		channels:  channels,
		mono:      make([]float32, max(framesPerBuffer, 0)),
	}, nil
}

// Process runs the detector over one interleaved buffer.
func (bp *BeatProcessor) Process(inputBuffer []int32) {
	bp.mono = MixDown(bp.mono, inputBuffer, bp.channels)
	bp.ProcessMono(bp.mono)
}

// ProcessMono runs the detector over samples that are already mono floats.
func (bp *BeatProcessor) ProcessMono(samples []float32) {
	for _, x := range samples {
		f, ok := bp.detector.OnSample(bp.index, x)
		bp.index++
		if !ok {
			continue
		}
		bp.last = f
		if bp.transport == nil {
			continue
		}
		if err := bp.transport.Send(f); err != nil {
			// Log the first failure only; this runs per frame.
			if bp.sendFails == 0 {
				applog.Warnf("BeatProcessor: transport send failed: %v", err)
			}
			bp.sendFails++
		}
	}
}

// Last returns the most recent frame. Not safe to call concurrently with Process.
func (bp *BeatProcessor) Last() beat.Frame { return bp.last }

// Index is the sample index the next sample will get.
func (bp *BeatProcessor) Index() beat.SampleIndex { return bp.index }

func (bp *BeatProcessor) Close() error {
	applog.Infof("Analysis: Closing BeatProcessor after %d samples, %d beats at %d BPM",
		bp.index, bp.detector.Tracker().Beats(), bp.detector.Tracker().BPM())
	if bp.sendFails > 0 {
		applog.Warnf("BeatProcessor: %d frames failed to send", bp.sendFails)
	}
	return nil
}

var _ ClosableProcessor = (*BeatProcessor)(nil)
