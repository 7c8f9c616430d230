// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"beatsync/internal/beat"
)

type fixedBands []float64

func (b fixedBands) BandCount() int { return len(b) }

func (b fixedBands) BandNames() []string {
	names := make([]string, len(b))
	for i := range b {
		names[i] = "band" + strconv.Itoa(i)
	}
	return names
}

func (b fixedBands) BandEnergiesInto(dst []float64) error {
	if len(dst) != len(b) {
		return errors.New("size mismatch")
	}
	copy(dst, b)
	return nil
}

// recordingSender keeps every packet in memory.
type recordingSender struct {
	packets chan []byte
	closed  bool
}

func (r *recordingSender) Send(data []byte) error {
	select {
	case r.packets <- append([]byte(nil), data...):
	default:
	}
	return nil
}

func (r *recordingSender) Close() error {
	r.closed = true
	return nil
}

func receive(t *testing.T, ch <-chan []byte) Packet {
	t.Helper()
	select {
	case b := <-ch:
		p, err := DecodePacket(b)
		if err != nil {
			t.Fatalf("DecodePacket: %v", err)
		}
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no packet published")
	}
	return Packet{}
}

func TestPublisherHoldsBeatUntilNextPacket(t *testing.T) {
	sender := &recordingSender{packets: make(chan []byte, 64)}
	pub, err := NewUDPPublisher(5*time.Millisecond, sender, fixedBands{0.5, 0.25})
	if err != nil {
		t.Fatal(err)
	}

	// A beat followed by a quiet frame before any tick.
	pub.Send(beat.Frame{SampleIndex: 64, BeatFired: true, Beats: 1, BPM: 120})
	pub.Send(beat.Frame{SampleIndex: 128, Beats: 1, BPM: 120})
	pub.Start()
	defer pub.Close()

	p := receive(t, sender.packets)
	if !p.Frame.BeatFired {
		t.Error("beat between ticks was lost")
	}
	if p.Frame.SampleIndex != 128 || p.Frame.Beats != 1 || p.Frame.BPM != 120 {
		t.Errorf("packet frame = %+v, want latest frame", p.Frame)
	}
	if len(p.Bands) != 2 || p.Bands[0] != 0.5 || p.Bands[1] != 0.25 {
		t.Errorf("bands = %v, want [0.5 0.25]", p.Bands)
	}
	if p.Sequence != 1 {
		t.Errorf("first sequence = %d, want 1", p.Sequence)
	}

	next := receive(t, sender.packets)
	if next.Frame.BeatFired {
		t.Error("fired flag should clear after it was published")
	}
	if next.Sequence != 2 {
		t.Errorf("second sequence = %d, want 2", next.Sequence)
	}
}

func TestPublisherWaitsForFirstFrame(t *testing.T) {
	sender := &recordingSender{packets: make(chan []byte, 8)}
	pub, _ := NewUDPPublisher(2*time.Millisecond, sender, nil)
	pub.Start()
	time.Sleep(20 * time.Millisecond)
	pub.Stop()
	pub.Stop()

	if n := len(sender.packets); n != 0 {
		t.Errorf("published %d packets without a frame", n)
	}
	if err := pub.Close(); err != nil || !sender.closed {
		t.Errorf("Close() = %v, sender closed = %v", err, sender.closed)
	}
}

func TestPublisherSendZeroAlloc(t *testing.T) {
	sender := &recordingSender{packets: make(chan []byte, 1)}
	pub, _ := NewUDPPublisher(time.Millisecond, sender, fixedBands{1})
	f := beat.Frame{SampleIndex: 64, BPM: 120, BeatFired: true}

	allocs := testing.AllocsPerRun(200, func() {
		f.SampleIndex += 64
		pub.Send(f)
	})
	if allocs != 0 {
		t.Errorf("Send allocated %.1f times, want 0", allocs)
	}
}

// Sending from one goroutine while the ticker publishes must neither race nor
// lose beats: every beat shows up in at least one packet or is still pending.
func TestPublisherConcurrentSend(t *testing.T) {
	sender := &recordingSender{packets: make(chan []byte, 4096)}
	pub, _ := NewUDPPublisher(time.Millisecond, sender, fixedBands{0.5, 0.25})
	pub.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 20000 {
			f := beat.Frame{SampleIndex: beat.SampleIndex(64 * i), BPM: 120, Beats: uint64(i/500 + 1)}
			f.BeatFired = i%500 == 0
			pub.Send(f)
		}
	}()
	wg.Wait()
	time.Sleep(10 * time.Millisecond)
	pub.Close()

	var last Packet
	fired := 0
	for len(sender.packets) > 0 {
		p, err := DecodePacket(<-sender.packets)
		if err != nil {
			t.Fatal(err)
		}
		if p.Sequence <= last.Sequence && last.Sequence != 0 {
			t.Fatalf("sequence went from %d to %d", last.Sequence, p.Sequence)
		}
		if p.Frame.SampleIndex < last.Frame.SampleIndex {
			t.Fatalf("frame went back from %d to %d", last.Frame.SampleIndex, p.Frame.SampleIndex)
		}
		if p.Frame.BeatFired {
			fired++
		}
		last = p
	}
	if last.Frame.Beats != 40 {
		t.Errorf("last packet has %d beats, want the cumulative 40", last.Frame.Beats)
	}
	if fired == 0 {
		t.Error("no packet carried a beat")
	}
}

func TestSenderOverLoopback(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer conn.Close()

	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender: %v", err)
	}
	pub, err := NewUDPPublisher(5*time.Millisecond, sender, nil)
	if err != nil {
		t.Fatal(err)
	}
	pub.Send(beat.Frame{SampleIndex: 1024, BPM: 140, Beats: 7})
	pub.Start()
	defer pub.Close()

	buf := make([]byte, 1500)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	p, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if p.Frame.BPM != 140 || p.Frame.Beats != 7 || len(p.Bands) != 0 {
		t.Errorf("packet = %+v, want BPM 140, 7 beats, no bands", p)
	}
}

func TestSenderClosed(t *testing.T) {
	sender, err := NewUDPSender("127.0.0.1:9")
	if err != nil {
		t.Fatal(err)
	}
	sender.Close()
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestDecodePacketErrors(t *testing.T) {
	if _, err := DecodePacket(make([]byte, 10)); !errors.Is(err, ErrShortPacket) {
		t.Errorf("short header error = %v", err)
	}
	b := appendPacket(nil, 1, 0, beat.Frame{}, []float32{1, 2})
	if _, err := DecodePacket(b[:len(b)-1]); !errors.Is(err, ErrShortPacket) {
		t.Errorf("truncated bands error = %v", err)
	}
}
