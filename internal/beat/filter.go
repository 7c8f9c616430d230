// SPDX-License-Identifier: MIT
package beat

import (
	"fmt"
	"math"
)

// BandPass is a second-order IIR band-pass (RBJ cookbook, constant 0 dB peak
// gain) evaluated in Direct Form I. Coefficients and state are float64 because
// the poles of a 50 Hz filter at audio rates sit close to the unit circle.
type BandPass struct {
	b0, b2 float64 // b1 is zero for this topology
	a1, a2 float64

	x1, x2 float64
	y1, y2 float64
}

// NewBandPass designs a band-pass centred on freq Hz with quality factor q.
func NewBandPass(sampleRate, freq, q float64) (*BandPass, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %f", ErrInvalidConfig, sampleRate)
	}
	if freq <= 0 || freq >= sampleRate/2 {
		return nil, fmt.Errorf("%w: filter frequency %f outside (0, %f)", ErrInvalidConfig, freq, sampleRate/2)
	}
	if q <= 0 {
		return nil, fmt.Errorf("%w: filter Q must be positive, got %f", ErrInvalidConfig, q)
	}

	w0 := 2 * math.Pi * freq / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha

	return &BandPass{
		b0: alpha / a0,
		b2: -alpha / a0,
		a1: -2 * math.Cos(w0) / a0,
		a2: (1 - alpha) / a0,
	}, nil
}

// Sample filters one input sample.
func (f *BandPass) Sample(x float32) float32 {
	in := float64(x)
	out := f.b0*in + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2

	f.x2, f.x1 = f.x1, in
	f.y2, f.y1 = f.y1, out

	return float32(out)
}

// Reset clears the filter history.
func (f *BandPass) Reset() {
	f.x1, f.x2 = 0, 0
	f.y1, f.y2 = 0, 0
}
