// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"beatsync/internal/beat"
)

/*
UDP packet layout (BigEndian)

| Field             | Type      | Bytes | Description                       |
|-------------------|-----------|-------|-----------------------------------|
| Sequence number   | uint32    | 4     | Monotonically increasing          |
| Timestamp         | int64     | 8     | Nanoseconds since epoch           |
| Sample index      | uint64    | 8     | Stream position of the frame      |
| Beats             | uint64    | 8     | Beats detected since start        |
| BPM               | uint32    | 4     |                                   |
| Flags             | uint8     | 1     | Bit 0: a beat fired on this frame |
| Beat probability  | float32   | 4     |                                   |
| Phase             | float32   | 4     | Position within the beat, [0, 1)  |
| Phase error       | float32   | 4     | Normalised                        |
| Bass energy       | float32   | 4     |                                   |
| Band count        | uint16    | 2     | N                                 |
| Band energies     | []float32 | N * 4 | Spectrum band energies            |
*/

const headerSize = 4 + 8 + 8 + 8 + 4 + 1 + 4*4 + 2

var ErrShortPacket = errors.New("short udp packet")

// Packet is the decoded form of one publisher datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Frame     beat.Frame
	Bands     []float32
}

// appendPacket encodes the packet into dst. Fields of Frame that are not on
// the wire are ignored.
func appendPacket(dst []byte, seq uint32, ts int64, f beat.Frame, bands []float32) []byte {
	be := binary.BigEndian
	dst = be.AppendUint32(dst, seq)
	dst = be.AppendUint64(dst, uint64(ts))
	dst = be.AppendUint64(dst, uint64(f.SampleIndex))
	dst = be.AppendUint64(dst, f.Beats)
	dst = be.AppendUint32(dst, f.BPM)
	if f.BeatFired {
		dst = append(dst, 1)
	} else {
		dst = append(dst, 0)
	}
	dst = be.AppendUint32(dst, math.Float32bits(f.BeatProbability))
	dst = be.AppendUint32(dst, math.Float32bits(f.Phase))
	dst = be.AppendUint32(dst, math.Float32bits(f.PhaseErrorNormalized))
	dst = be.AppendUint32(dst, math.Float32bits(f.BassEnergy))
	dst = be.AppendUint16(dst, uint16(len(bands)))
	for _, v := range bands {
		dst = be.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodePacket parses a datagram produced by UDPPublisher.
func DecodePacket(b []byte) (Packet, error) {
	var p Packet
	if len(b) < headerSize {
		return p, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortPacket, len(b), headerSize)
	}
	be := binary.BigEndian
	f32 := func(off int) float32 { return math.Float32frombits(be.Uint32(b[off:])) }

	p.Sequence = be.Uint32(b[0:])
	p.Timestamp = int64(be.Uint64(b[4:]))
	p.Frame.SampleIndex = beat.SampleIndex(be.Uint64(b[12:]))
	p.Frame.Beats = be.Uint64(b[20:])
	p.Frame.BPM = be.Uint32(b[28:])
	p.Frame.BeatFired = b[32]&1 != 0
	p.Frame.BeatProbability = f32(33)
	p.Frame.Phase = f32(37)
	p.Frame.PhaseErrorNormalized = f32(41)
	p.Frame.BassEnergy = f32(45)

	n := int(be.Uint16(b[49:]))
	if len(b) != headerSize+4*n {
		return p, fmt.Errorf("%w: %d bytes for %d bands", ErrShortPacket, len(b), n)
	}
	p.Bands = make([]float32, n)
	for i := range p.Bands {
		p.Bands[i] = f32(headerSize + 4*i)
	}
	return p, nil
}
