// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"runtime"
	"strings"
	"sync/atomic"

	applog "beatsync/internal/log"
	"beatsync/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the FFT window.
type WindowFunc int

const (
	BartlettHann WindowFunc = iota
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

func (w WindowFunc) String() string {
	switch w {
	case BartlettHann:
		return "bartletthann"
	case Blackman:
		return "blackman"
	case BlackmanNuttall:
		return "blackmannuttall"
	case Hann:
		return "hann"
	case Hamming:
		return "hamming"
	case Lanczos:
		return "lanczos"
	case Nuttall:
		return "nuttall"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// FrequencyBand is a named frequency range [LowHz, HighHz).
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the spectrum the way lighting consoles usually do.
// The top band ends at Nyquist.
func DefaultBands(sampleRate float64) []FrequencyBand {
	return []FrequencyBand{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: sampleRate / 2},
	}
}

// bandBins is the precomputed bin range of one band.
type bandBins struct {
	first, last int // inclusive; last < first means the band is empty
}

// Pre-allocated buffers for FFT calculations, owned by Process.
type spectrumWorkspace struct {
	input     []float64
	fftOutput []complex128
	magnitude []float64
	window    []float64
}

// SpectrumProcessor runs a windowed FFT over the first channel of each
// capture buffer and reduces it to per-band energies.
type SpectrumProcessor struct {
	fft        *fourier.FFT
	fftSize  int
	channels int

	bands []FrequencyBand
	bins  []bandBins

	workspace spectrumWorkspace

	// Band energies published to other goroutines as float64 bits. seq is odd
	// while Process is writing them.
	energy []atomic.Uint64
	seq    atomic.Uint64
}

var _ ClosableProcessor = (*SpectrumProcessor)(nil)

// Readers retry a torn snapshot this many times before settling for it.
const snapshotRetries = 4

// NewSpectrumProcessor validates the FFT size (a power of two) and maps every
// band onto FFT bins once. A nil bands slice selects DefaultBands.
func NewSpectrumProcessor(fftSize int, sampleRate float64, channels int, windowType WindowFunc, bands []FrequencyBand) (*SpectrumProcessor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("channels must be positive, got %d", channels)
	}
	if bands == nil {
		bands = DefaultBands(sampleRate)
	}

	coeffs := make([]float64, fftSize)
	applyWindow(coeffs, windowType)

	nbins := fftSize/2 + 1
	p := &SpectrumProcessor{
		fft:      fourier.NewFFT(fftSize),
		fftSize:  fftSize,
		channels: channels,
		bands:    bands,
		bins:     make([]bandBins, len(bands)),
		workspace: spectrumWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, nbins),
			magnitude: make([]float64, nbins),
			window:    coeffs,
		},
		energy: make([]atomic.Uint64, len(bands)),
	}

	resolution := sampleRate / float64(fftSize)
	for i, b := range bands {
		if b.HighHz <= b.LowHz {
			return nil, fmt.Errorf("band %q: high %f must exceed low %f", b.Name, b.HighHz, b.LowHz)
		}
		first := int(math.Ceil(b.LowHz / resolution))
		last := min(int(math.Ceil(b.HighHz/resolution))-1, nbins-1)
		p.bins[i] = bandBins{first: first, last: last}
		if last < first {
			applog.Warnf("Analysis: band %q is narrower than one FFT bin (%.1f Hz)", b.Name, resolution)
		}
	}

	applog.Infof("Analysis: Initializing SpectrumProcessor (Size: %d, SampleRate: %.1f Hz, Window: %v, Bands: %d)",
		fftSize, sampleRate, windowType, len(bands))
	return p, nil
}

// Process windows the first channel, runs the FFT and updates magnitudes and
// band energies. Short buffers are zero-padded.
func (p *SpectrumProcessor) Process(inputBuffer []int32) {
	ws := &p.workspace
	frames := len(inputBuffer) / p.channels
	for i := range p.fftSize {
		if i < frames {
			ws.input[i] = float64(inputBuffer[i*p.channels]) * pcmScale * ws.window[i]
		} else {
			ws.input[i] = 0
		}
	}
	p.fft.Coefficients(ws.fftOutput, ws.input)

	// A full-scale sine peaks near N/4 with a Hann window.
	norm := 4 / float64(p.fftSize)

	for i, c := range ws.fftOutput {
		ws.magnitude[i] = cmplx.Abs(c) * norm
	}

	p.seq.Add(1)
	for b, r := range p.bins {
		var e float64
		if r.last >= r.first {
			var sum float64
			for _, m := range ws.magnitude[r.first : r.last+1] {
				sum += m * m
			}
			e = math.Sqrt(sum / float64(r.last-r.first+1))
		}
		p.energy[b].Store(math.Float64bits(e))
	}
	p.seq.Add(1)
}

// BandEnergiesInto copies the RMS magnitude of each band into dst, which must
// hold BandCount values. It never blocks the audio thread: a copy that
// overlapped an update is retried a few times.
func (p *SpectrumProcessor) BandEnergiesInto(dst []float64) error {
	if len(dst) != len(p.energy) {
		return fmt.Errorf("destination slice length %d does not match band count %d", len(dst), len(p.energy))
	}
	for range snapshotRetries {
		before := p.seq.Load()
		if before&1 == 0 {
			p.loadEnergies(dst)
			if p.seq.Load() == before {
				return nil
			}
		}
		runtime.Gosched()
	}
	p.loadEnergies(dst)
	return nil
}

func (p *SpectrumProcessor) loadEnergies(dst []float64) {
	for i := range dst {
		dst[i] = math.Float64frombits(p.energy[i].Load())
	}
}

func (p *SpectrumProcessor) BandCount() int { return len(p.bands) }

// BandNames returns the band names in BandEnergiesInto order.
func (p *SpectrumProcessor) BandNames() []string {
	names := make([]string, len(p.bands))
	for i, b := range p.bands {
		names[i] = b.Name
	}
	return names
}

func (p *SpectrumProcessor) Close() error {
	applog.Debugf("Analysis: Closing SpectrumProcessor")
	return nil
}

// ParseWindowFunc converts a window name (case-insensitive). Unknown names
// return Hann and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(name) {
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning", "":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

func applyWindow(coeffs []float64, windowType WindowFunc) {
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		window.Hann(coeffs)
	}
}
