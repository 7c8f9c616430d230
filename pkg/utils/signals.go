// SPDX-License-Identifier: MIT
package utils

import "math"

// GenerateComplexWave returns a 440 Hz tone with two harmonics as full-scale
// int32 PCM, the sample format of the capture callback.
func GenerateComplexWave(size int, sampleRate float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = int32(signal * math.MaxInt32 * 0.9)
	}
	return buffer
}

func GenerateSineWave(size int, sampleRate, frequency float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = int32(math.Sin(2*math.Pi*frequency*t) * math.MaxInt32 * 0.9)
	}
	return buffer
}

// GenerateToneBursts returns size samples of silence with a burst of cycles
// periods of a sine at frequency Hz starting at sample start and repeating
// every interval samples. Short bass bursts make a synthetic kick drum.
func GenerateToneBursts(size int, sampleRate, frequency float64, cycles int, amplitude float64, start, interval int) []float32 {
	buffer := make([]float32, size)
	burst := int(sampleRate * float64(cycles) / frequency)
	if interval <= 0 {
		interval = size
	}

	for at := start; at < size; at += interval {
		for i := range burst {
			if at+i >= size {
				break
			}
			buffer[at+i] = float32(amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate))
		}
	}
	return buffer
}

// ToInt32 converts float samples in [-1, 1] to int32 PCM.
func ToInt32(samples []float32) []int32 {
	out := make([]int32, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		out[i] = int32(v * math.MaxInt32)
	}
	return out
}

// Interleave spreads a mono signal across channels, as a multichannel
// device would deliver it.
func Interleave(mono []int32, channels int) []int32 {
	out := make([]int32, len(mono)*channels)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)

	peakBin := startBin
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > magnitudes[peakBin] {
			peakBin = bin
		}
	}
	return peakBin
}
