// SPDX-License-Identifier: MIT
package beat

import "math"

// WindowStats keeps the mean and standard deviation of the last n pushed
// values in O(1) per push. The window starts full of zeros, so statistics
// ramp up naturally from silence instead of needing a warm-up phase.
type WindowStats struct {
	ring   *Ring[float64]
	sum    float64
	sumSq  float64
	pushes int
}

// NewWindowStats returns statistics over a window of n values.
func NewWindowStats(n int) *WindowStats {
	return &WindowStats{
		ring: NewFilledRing(n, func(int) float64 { return 0 }),
	}
}

// Push adds x and evicts the oldest value.
func (w *WindowStats) Push(x float64) {
	old, _ := w.ring.Push(x)
	w.sum += x - old
	w.sumSq += x*x - old*old

	// Running sums accumulate rounding error; rebuild them once per window.
	w.pushes++
	if w.pushes == w.ring.Cap() {
		w.pushes = 0
		w.resync()
	}
}

func (w *WindowStats) resync() {
	w.sum, w.sumSq = 0, 0
	for i := range w.ring.Len() {
		v := w.ring.At(i)
		w.sum += v
		w.sumSq += v * v
	}
}

func (w *WindowStats) Mean() float64 {
	return w.sum / float64(w.ring.Cap())
}

func (w *WindowStats) Variance() float64 {
	m := w.Mean()
	v := w.sumSq/float64(w.ring.Cap()) - m*m
	if v < 0 {
		return 0
	}
	return v
}

func (w *WindowStats) StdDev() float64 {
	return math.Sqrt(w.Variance())
}


// ExpAverage is a single-pole exponential moving average.
type ExpAverage struct {
	alpha float64
	value float64
}

func NewExpAverage(alpha float64) ExpAverage {
	return ExpAverage{alpha: alpha}
}

// Push folds x into the average and returns the new value.
func (e *ExpAverage) Push(x float64) float64 {
	e.value = e.alpha*e.value + (1-e.alpha)*x
	return e.value
}

func (e *ExpAverage) Value() float64 { return e.value }
