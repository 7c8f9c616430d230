// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	"beatsync/internal/beat"
)

// Transport delivers detector frames to consumers outside the audio path.
// Send is called from the audio callback: implementations must not block
// and should not allocate. Implementations must be safe for concurrent use.
type Transport interface {
	Send(f beat.Frame) error
	Close() error
}

// Multi fans every frame out to several transports.
type Multi struct {
	transports []Transport
}

func NewMulti(ts ...Transport) *Multi {
	m := &Multi{}
	for _, t := range ts {
		if t != nil {
			m.transports = append(m.transports, t)
		}
	}
	return m
}

// Send forwards f to every transport, even after one of them fails, and
// returns the first error.
func (m *Multi) Send(f beat.Frame) error {
	var first error
	for _, t := range m.transports {
		if err := t.Send(f); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every transport and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Len() int { return len(m.transports) }

var _ Transport = (*Multi)(nil)
