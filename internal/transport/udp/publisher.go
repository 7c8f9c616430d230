// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"beatsync/internal/beat"
	applog "beatsync/internal/log"
	"beatsync/internal/transport"
)

// BandSource provides the latest spectrum band energies.
type BandSource interface {
	BandCount() int
	BandNames() []string
	BandEnergiesInto(dst []float64) error
}

// PacketSender is satisfied by UDPSender.
type PacketSender interface {
	Send(data []byte) error
	Close() error
}

// UDPPublisher keeps the most recent detector frame and sends it, together
// with the spectrum bands, at a fixed rate. Receivers that poll slower than
// the frame rate still see every beat: the fired flag is held until the next
// packet and the Beats counter is cumulative.
//
// Send runs on the audio thread and never takes a lock. Frames travel through
// a one-slot latest-wins channel, and beats through an atomic flag.
type UDPPublisher struct {
	sender   PacketSender
	bands    BandSource // optional
	interval time.Duration

	frames chan beat.Frame
	fired  atomic.Bool // a beat fired since the last packet

	// owned by the publishing goroutine
	latest    beat.Frame
	haveFrame bool

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // protects ticker and doneChan during Start/Stop

	sequenceNum uint32

	// reused by buildAndSendPacket
	bandBuffer []float64
	f32Buffer  []float32
	packet     []byte
}

// NewUDPPublisher returns a stopped publisher. A non-positive interval
// defaults to 16ms (~60Hz). bands may be nil.
func NewUDPPublisher(interval time.Duration, sender PacketSender, bands BandSource) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: sender cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	n := 0
	if bands != nil {
		n = bands.BandCount()
	}
	names := "none"
	if n > 0 {
		names = strings.Join(bands.BandNames(), ", ")
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bands: %s)", interval, names)

	return &UDPPublisher{
		sender:     sender,
		bands:      bands,
		interval:   interval,
		frames:     make(chan beat.Frame, 1),
		bandBuffer: make([]float64, n),
		f32Buffer:  make([]float32, n),
		packet:     make([]byte, 0, headerSize+4*n),
	}, nil
}

// Send records f as the latest frame. It never blocks and never locks; an
// unpublished frame is replaced.
func (p *UDPPublisher) Send(f beat.Frame) error {
	select {
	case <-p.frames:
	default:
	}
	select {
	case p.frames <- f:
	default:
	}
	if f.BeatFired {
		p.fired.Store(true)
	}
	return nil
}

// Start launches the publishing goroutine. Calling Start on a running
// publisher is a no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ticker != nil {
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker, done := p.ticker, p.doneChan

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-done:
				return
			}
		}
	}()
}

// Stop terminates the publishing goroutine and waits for it. It is safe to
// call Stop on a stopped publisher.
func (p *UDPPublisher) Stop() {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Stopped after %d packets", p.sequenceNum)
}

// buildAndSendPacket runs on every tick. Nothing is sent until the first
// frame arrives.
func (p *UDPPublisher) buildAndSendPacket() {
	select {
	case f := <-p.frames:
		p.latest = f
		p.haveFrame = true
	default:
	}
	if !p.haveFrame {
		return
	}
	f := p.latest
	f.BeatFired = p.fired.Swap(false)

	if p.bands != nil {
		if err := p.bands.BandEnergiesInto(p.bandBuffer); err != nil {
			applog.Errorf("UDPPublisher: Error getting band energies: %v", err)
			return
		}
		for i, v := range p.bandBuffer {
			p.f32Buffer[i] = float32(v)
		}
	}

	p.sequenceNum++
	p.packet = appendPacket(p.packet[:0], p.sequenceNum, time.Now().UnixNano(), f, p.f32Buffer)

	if err := p.sender.Send(p.packet); err != nil {
		applog.Warnf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
}

// Close stops publishing and closes the sender.
func (p *UDPPublisher) Close() error {
	p.Stop()
	return p.sender.Close()
}

var _ transport.Transport = (*UDPPublisher)(nil)
