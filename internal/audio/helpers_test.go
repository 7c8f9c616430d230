// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"strconv"
	"testing"

	"beatsync/internal/analysis"
	"beatsync/internal/config"
)

const (
	testSampleRate = 48000
	testFrameSize  = 256
	testChannels   = 2

	lowThreshold  = int32(math.MaxInt32 / 1000)
	highThreshold = int32(math.MaxInt32 / 10 * 9)
)

var (
	quietBuffer = constantBuffer(testFrameSize*testChannels, math.MaxInt32/200)
	loudBuffer  = constantBuffer(testFrameSize*testChannels, math.MaxInt32/2)
	testBuffer  = rampBuffer(testFrameSize * testChannels)
)

// constantBuffer alternates +amplitude and -amplitude.
func constantBuffer(n int, amplitude int32) []int32 {
	b := make([]int32, n)
	for i := range b {
		if i%2 == 0 {
			b[i] = amplitude
		} else {
			b[i] = -amplitude
		}
	}
	return b
}

func rampBuffer(n int) []int32 {
	b := make([]int32, n)
	for i := range b {
		b[i] = int32((i%100)*10000000) * int32(1-2*(i%2))
	}
	return b
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}

func absFloat(x float64) float64 {
	return math.Abs(x)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.SampleRate = testSampleRate
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Audio.InputChannels = testChannels
	cfg.Audio.GateEnabled = false
	cfg.Recording.BitDepth = 16
	return cfg
}

func newTestEngine(processors ...analysis.AudioProcessor) *Engine {
	return newEngine(testConfig(), nil, processors...)
}

// countingProcessor records what the engine hands to processors.
type countingProcessor struct {
	calls   int
	samples int
	peak    int32
	closed  bool
}

func (c *countingProcessor) Process(buf []int32) {
	c.calls++
	c.samples += len(buf)
	c.peak = peakAmplitude(buf)
}

func (c *countingProcessor) Close() error {
	c.closed = true
	return nil
}

func mustEngine(t *testing.T, processors ...analysis.AudioProcessor) *Engine {
	t.Helper()
	e := newTestEngine(processors...)
	t.Cleanup(func() { _ = e.StopRecording() })
	return e
}
