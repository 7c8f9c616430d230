// SPDX-License-Identifier: MIT
package analysis

// int32 full scale, mapping PCM to [-1, 1).
const pcmScale = 1.0 / float64(0x80000000)

// MixDown averages the channels of an interleaved int32 buffer into dst and
// returns the mono samples. dst is reused when it has enough capacity.
func MixDown(dst []float32, src []int32, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(src) / channels
	if cap(dst) < frames {
		dst = make([]float32, frames)
	}
	dst = dst[:frames]

	if channels == 1 {
		for i, s := range src[:frames] {
			dst[i] = float32(float64(s) * pcmScale)
		}
		return dst
	}

	scale := pcmScale / float64(channels)
	for i := range frames {
		var sum int64
		for _, s := range src[i*channels : (i+1)*channels] {
			sum += int64(s)
		}
		dst[i] = float32(float64(sum) * scale)
	}
	return dst
}
