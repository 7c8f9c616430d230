// SPDX-License-Identifier: MIT
package source

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// sliceSource serves interleaved samples in chunks of at most step values.
type sliceSource struct {
	rate, channels int
	data           []float32
	step           int
	closed         bool
}

func (s *sliceSource) SampleRate() int { return s.rate }
func (s *sliceSource) Channels() int   { return s.channels }
func (s *sliceSource) Close() error    { s.closed = true; return nil }

func (s *sliceSource) ReadSamples(dst []float32) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := min(len(dst), len(s.data))
	if s.step > 0 {
		n = min(n, s.step)
	}
	copy(dst, s.data[:n])
	s.data = s.data[n:]
	return n, nil
}

func readAll(t *testing.T, src Source, chunk int) []float32 {
	t.Helper()
	var out []float32
	buf := make([]float32, chunk)
	for range 1 << 20 {
		n, err := src.ReadSamples(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadSamples: %v", err)
		}
	}
	t.Fatal("source never reached EOF")
	return nil
}

func writeWAV(t *testing.T, path string, rate, channels, depth int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, depth, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	for _, ext := range []string{"wav", ".WAV", "mp3", ".ogg", "oga"} {
		if _, ok := r.Get(ext); !ok {
			t.Errorf("Get(%q) not found", ext)
		}
	}
	if _, ok := r.Get("flac"); ok {
		t.Error("Get(flac) should not be registered")
	}

	got := r.Formats()
	want := []string{"mp3", "oga", "ogg", "wav", "wave"}
	if len(got) != len(want) {
		t.Fatalf("Formats = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Formats[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOpenUnsupportedFormat(t *testing.T) {
	_, err := DefaultRegistry().Open(filepath.Join(t.TempDir(), "song.flac"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := DefaultRegistry().Open(filepath.Join(t.TempDir(), "missing.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	tests := []struct {
		depth    int
		channels int
	}{
		{16, 1},
		{16, 2},
		{24, 2},
		{32, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dbit_%dch", tt.depth, tt.channels), func(t *testing.T) {
			full := 1 << (tt.depth - 1)
			data := make([]int, 1000*tt.channels)
			for i := range data {
				data[i] = int(0.5*float64(full)*math.Sin(float64(i)/10)) * (1 - 2*(i%tt.channels))
			}
			path := filepath.Join(t.TempDir(), "tone.wav")
			writeWAV(t, path, 22050, tt.channels, tt.depth, data)

			src, err := DefaultRegistry().Open(path)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer src.Close()

			if src.SampleRate() != 22050 || src.Channels() != tt.channels {
				t.Fatalf("format = %d Hz, %d ch", src.SampleRate(), src.Channels())
			}
			got := readAll(t, src, 333)
			if len(got) != len(data) {
				t.Fatalf("samples = %d, want %d", len(got), len(data))
			}
			for i, v := range data {
				want := float32(v) / float32(full)
				if d := got[i] - want; d > 1e-4 || d < -1e-4 {
					t.Fatalf("sample %d = %f, want %f", i, got[i], want)
				}
			}
		})
	}
}

func TestWAVDecoderRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("this is not a riff file at all, not even close"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := DefaultRegistry().Open(path); err == nil {
		t.Error("Open should fail on garbage")
	}
}

func TestMonoMixer(t *testing.T) {
	src := &sliceSource{rate: 8000, channels: 2, data: []float32{1, 0, 0.5, 0.5, -1, 1, 0.25, 0.75}, step: 3}
	m := NewMonoMixer(src)

	if m.Channels() != 1 || m.SampleRate() != 8000 {
		t.Fatalf("format = %d Hz, %d ch", m.SampleRate(), m.Channels())
	}
	got := readAll(t, m, 4)
	want := []float32{0.5, 0.5, 0, 0.5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %f, want %f", i, got[i], want[i])
		}
	}

	if err := m.Close(); err != nil || !src.closed {
		t.Error("Close should close the wrapped source")
	}
}

func TestMonoMixerPassThrough(t *testing.T) {
	src := &sliceSource{rate: 8000, channels: 1, data: []float32{0.1, 0.2, 0.3}}
	got := readAll(t, NewMonoMixer(src), 2)
	if len(got) != 3 || got[2] != 0.3 {
		t.Errorf("got %v", got)
	}
}
