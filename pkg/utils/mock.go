// SPDX-License-Identifier: MIT
package utils

import (
	"sync"

	"beatsync/internal/beat"
)

// MockTransport records every frame it is sent instead of transmitting.
type MockTransport struct {
	mu     sync.Mutex
	frames []beat.Frame
	closed bool
	Err    error // returned from Send when set
}

func NewMockTransport(capacity int) *MockTransport {
	return &MockTransport{frames: make([]beat.Frame, 0, capacity)}
}

func (m *MockTransport) Send(f beat.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Frames returns a copy of every recorded frame.
func (m *MockTransport) Frames() []beat.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]beat.Frame(nil), m.frames...)
}

// Beats returns the recorded frames on which a beat fired.
func (m *MockTransport) Beats() []beat.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []beat.Frame
	for _, f := range m.frames {
		if f.BeatFired {
			out = append(out, f)
		}
	}
	return out
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
