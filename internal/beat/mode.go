// SPDX-License-Identifier: MIT
package beat

import "fmt"

// ModeTracker reports the most frequent of the last K integer samples drawn
// from [min, max). Counts are kept in a histogram updated on every push, so
// queries are O(1) and pushes are O(1) except when the mode itself is evicted.
type ModeTracker struct {
	min, max int
	history  *Ring[int]
	counts   []int
	mode     int
}

// NewModeTracker returns a tracker over [min, max) remembering size samples.
// The history starts spread evenly across the range so no value is favoured
// before real samples arrive.
func NewModeTracker(min, max, size int) (*ModeTracker, error) {
	if min >= max {
		return nil, fmt.Errorf("%w: mode range [%d, %d) is empty", ErrInvalidConfig, min, max)
	}
	if size < 1 {
		return nil, fmt.Errorf("%w: mode history must be positive, got %d", ErrInvalidConfig, size)
	}

	span := max - min
	m := &ModeTracker{
		min:     min,
		max:     max,
		history: NewFilledRing(size, func(i int) int { return min + i%span }),
		counts:  make([]int, span),
	}
	for i := range m.history.Len() {
		m.counts[m.history.At(i)-min]++
	}
	m.mode = min
	for v := min + 1; v < max; v++ {
		if m.count(v) > m.count(m.mode) {
			m.mode = v
		}
	}
	return m, nil
}

// Push records v, clamped into [min, max), and returns the new mode.
func (m *ModeTracker) Push(v int) int {
	v = min(max(v, m.min), m.max-1)

	evicted, _ := m.history.Push(v)
	m.counts[evicted-m.min]--
	m.counts[v-m.min]++

	// Losing a sample of the mode can let any other value overtake it, not
	// only v.
	if evicted == m.mode && v != evicted {
		m.rescan()
	}
	if m.count(v) >= m.count(m.mode) {
		m.mode = v
	}
	return m.mode
}

// rescan looks for a value that overtook the mode, starting at the old mode so
// ties keep the current answer.
func (m *ModeTracker) rescan() {
	best := m.mode
	span := m.max - m.min
	for i := 1; i < span; i++ {
		v := m.min + (m.mode-m.min+i)%span
		if m.count(v) > m.count(best) {
			best = v
		}
	}
	m.mode = best
}

func (m *ModeTracker) count(v int) int { return m.counts[v-m.min] }

// Sample returns the current mode.
func (m *ModeTracker) Sample() int { return m.mode }

// Count returns how many of the remembered samples equal v.
func (m *ModeTracker) Count(v int) int {
	if v < m.min || v >= m.max {
		return 0
	}
	return m.count(v)
}

