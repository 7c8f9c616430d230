// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func TestRecordingStartStopHotPath(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_recording.wav")
	engine := mustEngine(t)

	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if !engine.IsRecording() {
		t.Error("Engine should be in recording state")
	}
	if engine.recorder == nil || engine.recorder.Path() != filename {
		t.Fatal("Recorder should be initialized")
	}

	buf := engine.recorder.buf
	if buf.Format.NumChannels != testChannels {
		t.Errorf("Buffer channels mismatch: got %d, want %d", buf.Format.NumChannels, testChannels)
	}
	if buf.Format.SampleRate != testSampleRate {
		t.Errorf("Buffer sample rate mismatch: got %d, want %d", buf.Format.SampleRate, testSampleRate)
	}
	if len(buf.Data) != testFrameSize*testChannels {
		t.Errorf("Buffer size mismatch: got %d, want %d", len(buf.Data), testFrameSize*testChannels)
	}

	file := engine.recorder.file
	if err := engine.StopRecording(); err != nil {
		t.Fatalf("Failed to stop recording: %v", err)
	}
	if engine.IsRecording() {
		t.Error("Engine should not be in recording state after stopping")
	}
	if engine.recorder != nil {
		t.Error("Recorder should be nil after stopping")
	}
	if err := file.Close(); err == nil {
		t.Error("File should already be closed")
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Error("Recording file was not created")
	}
}

func TestRecordingErrorCases(t *testing.T) {
	dir := t.TempDir()

	t.Run("Already recording", func(t *testing.T) {
		engine := mustEngine(t)
		if err := engine.StartRecording(filepath.Join(dir, "a.wav")); err != nil {
			t.Fatal(err)
		}
		err := engine.StartRecording(filepath.Join(dir, "b.wav"))
		if !errors.Is(err, ErrAlreadyRecording) {
			t.Errorf("error = %v, want ErrAlreadyRecording", err)
		}
	})

	t.Run("Invalid path", func(t *testing.T) {
		engine := mustEngine(t)
		if err := engine.StartRecording("/nonexistent/path/file.wav"); err == nil {
			t.Error("Expected error but got none")
		}
		if engine.IsRecording() {
			t.Error("Failed start should leave the engine idle")
		}
	})

	t.Run("Unsupported bit depth", func(t *testing.T) {
		engine := mustEngine(t)
		engine.recording.BitDepth = 12
		err := engine.StartRecording(filepath.Join(dir, "c.wav"))
		if !errors.Is(err, ErrUnsupportedBitDepth) {
			t.Errorf("error = %v, want ErrUnsupportedBitDepth", err)
		}
	})

	t.Run("Stop when not recording", func(t *testing.T) {
		engine := mustEngine(t)
		if err := engine.StopRecording(); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
	})
}

func TestRecordingWritesRawInput(t *testing.T) {
	for _, depth := range []int{16, 24, 32} {
		t.Run(strconv.Itoa(depth)+"bit", func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), "raw.wav")
			engine := mustEngine(t)
			engine.recording.BitDepth = depth
			engine.EnableGate()
			engine.SetGateThreshold(0.5)

			if err := engine.StartRecording(filename); err != nil {
				t.Fatal(err)
			}
			const buffers = 5
			for range buffers {
				engine.processInputStream(quietBuffer)
			}
			if err := engine.StopRecording(); err != nil {
				t.Fatal(err)
			}

			f, err := os.Open(filename)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			dec := wav.NewDecoder(f)
			buf, err := dec.FullPCMBuffer()
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if int(dec.BitDepth) != depth || int(dec.NumChans) != testChannels || int(dec.SampleRate) != testSampleRate {
				t.Errorf("header = %d bit, %d ch, %d Hz", dec.BitDepth, dec.NumChans, dec.SampleRate)
			}
			if got, want := len(buf.Data), buffers*len(quietBuffer); got != want {
				t.Fatalf("samples = %d, want %d", got, want)
			}
			// The recording holds the signal from before the gate.
			want := int(quietBuffer[0] >> (32 - depth))
			if buf.Data[0] != want || buf.Data[1] != -want {
				t.Errorf("first samples = %d, %d, want %d, %d", buf.Data[0], buf.Data[1], want, -want)
			}
		})
	}
}

func TestStartRecordingIn(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recordings")
	engine := mustEngine(t)

	path, err := engine.StartRecordingIn(dir)
	if err != nil {
		t.Fatalf("StartRecordingIn: %v", err)
	}
	if filepath.Dir(path) != dir || !strings.HasPrefix(filepath.Base(path), "beatsync-") {
		t.Errorf("path = %q", path)
	}
	if err := engine.StopRecording(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("recording missing: %v", err)
	}
}

func TestRecordingPath(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	got := RecordingPath("out", now)
	if want := filepath.Join("out", "beatsync-20250304-050607.wav"); got != want {
		t.Errorf("RecordingPath = %q, want %q", got, want)
	}
}

func TestCloseEngineWithRecording(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "test_close_engine.wav")
	engine := newTestEngine()

	if err := engine.StartRecording(filename); err != nil {
		t.Fatalf("Failed to start recording: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Failed to close engine: %v", err)
	}
	if engine.IsRecording() {
		t.Error("Engine should not be in recording state after Close()")
	}
	if engine.recorder != nil {
		t.Error("Recorder should be nil after Close()")
	}
}

func BenchmarkRecordingStartStopHotPath(b *testing.B) {
	engine := newTestEngine()
	filename := filepath.Join(b.TempDir(), "bench.wav")

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		_ = engine.StartRecording(filename)
		_ = engine.StopRecording()
	}
}

func BenchmarkRecordingProcessHotPath(b *testing.B) {
	engine := newTestEngine()
	_ = engine.StartRecording(filepath.Join(b.TempDir(), "bench_process.wav"))
	defer engine.StopRecording()

	b.ReportAllocs()
	b.ResetTimer()

	for b.Loop() {
		engine.record(testBuffer)
	}
}
