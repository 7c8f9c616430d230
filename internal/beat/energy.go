// SPDX-License-Identifier: MIT
package beat

// RunningEnergy is the mean of squares over a sliding window of samples.
type RunningEnergy struct {
	window *WindowStats
}

// NewRunningEnergy averages the last n squared samples.
func NewRunningEnergy(n int) *RunningEnergy {
	return &RunningEnergy{window: NewWindowStats(n)}
}

// Sample pushes x and returns the windowed energy.
func (r *RunningEnergy) Sample(x float32) float32 {
	v := float64(x)
	r.window.Push(v * v)
	return float32(r.window.Mean())
}

// Normalizer divides its input by a slowly decaying maximum so loud passages
// do not saturate the onset detector. The floor keeps silence from being
// amplified into noise.
type Normalizer struct {
	alpha float32
	floor float32
	max   float32
}

func NewNormalizer(alpha, floor float32) *Normalizer {
	return &Normalizer{alpha: alpha, floor: floor, max: floor}
}

// Sample returns x scaled into roughly [0, 1].
func (n *Normalizer) Sample(x float32) float32 {
	n.max = max(n.max*n.alpha, x, n.floor)
	return x / n.max
}

// Max returns the current decaying maximum.
func (n *Normalizer) Max() float32 { return n.max }
