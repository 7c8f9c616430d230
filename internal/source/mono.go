// SPDX-License-Identifier: MIT
package source

// MonoMixer averages the channels of a Source into a mono Source.
type MonoMixer struct {
	src   Source
	tmp   []float32
	carry []float32 // partial frame left over from the previous read
}

func NewMonoMixer(src Source) *MonoMixer {
	return &MonoMixer{src: src, tmp: make([]float32, 8192)}
}

func (m *MonoMixer) SampleRate() int { return m.src.SampleRate() }
func (m *MonoMixer) Channels() int   { return 1 }
func (m *MonoMixer) Close() error    { return m.src.Close() }

// ReadSamples fills dst with mono frames and returns how many were written.
func (m *MonoMixer) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	channels := m.src.Channels()
	if channels == 1 {
		return m.src.ReadSamples(dst)
	}

	need := len(dst) * channels
	if cap(m.tmp) < need {
		m.tmp = make([]float32, need)
	}
	m.tmp = m.tmp[:need]

	off := copy(m.tmp, m.carry)
	m.carry = m.carry[:0]

	n, err := m.src.ReadSamples(m.tmp[off:])
	n += off
	frames := n / channels
	m.carry = append(m.carry, m.tmp[frames*channels:n]...)
	if frames == 0 {
		return 0, err
	}

	inv := 1 / float32(channels)
	for f := range frames {
		var sum float32
		for _, x := range m.tmp[f*channels : (f+1)*channels] {
			sum += x
		}
		dst[f] = sum * inv
	}
	return frames, err
}
