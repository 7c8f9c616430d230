// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/binary"
	"fmt"
	"math"

	"beatsync/internal/beat"
)

/*
Frame wire format (LittleEndian), one WebSocket binary message per frame.

| Field                | Type    | Bytes |
|----------------------|---------|-------|
| Sample index         | uint64  | 8     |
| Beats                | uint64  | 8     |
| BPM                  | uint32  | 4     |
| Flags (bit 0: fired) | uint8   | 1     |
| Bass energy          | float32 | 4     |
| Short average        | float32 | 4     |
| Long average         | float32 | 4     |
| Beat probability     | float32 | 4     |
| Phase error (norm.)  | float32 | 4     |
| Phase                | float32 | 4     |
*/

// FrameSize is the encoded length of a frame.
const FrameSize = 8 + 8 + 4 + 1 + 6*4

const flagBeatFired = 1

// AppendFrame appends the binary encoding of f to dst.
func AppendFrame(dst []byte, f beat.Frame) []byte {
	le := binary.LittleEndian
	dst = le.AppendUint64(dst, uint64(f.SampleIndex))
	dst = le.AppendUint64(dst, f.Beats)
	dst = le.AppendUint32(dst, f.BPM)

	var flags byte
	if f.BeatFired {
		flags |= flagBeatFired
	}
	dst = append(dst, flags)

	for _, v := range [...]float32{
		f.BassEnergy, f.ShortAvg, f.LongAvg,
		f.BeatProbability, f.PhaseErrorNormalized, f.Phase,
	} {
		dst = le.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodeFrame parses a frame encoded by AppendFrame.
func DecodeFrame(b []byte) (beat.Frame, error) {
	var f beat.Frame
	if len(b) != FrameSize {
		return f, fmt.Errorf("%w: frame is %d bytes, want %d", ErrMalformed, len(b), FrameSize)
	}
	le := binary.LittleEndian
	f.SampleIndex = beat.SampleIndex(le.Uint64(b[0:]))
	f.Beats = le.Uint64(b[8:])
	f.BPM = le.Uint32(b[16:])
	f.BeatFired = b[20]&flagBeatFired != 0

	float := func(off int) float32 { return math.Float32frombits(le.Uint32(b[off:])) }
	f.BassEnergy = float(21)
	f.ShortAvg = float(25)
	f.LongAvg = float(29)
	f.BeatProbability = float(33)
	f.PhaseErrorNormalized = float(37)
	f.Phase = float(41)
	return f, nil
}
