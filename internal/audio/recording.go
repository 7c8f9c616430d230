// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	applog "beatsync/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes interleaved int32 capture buffers to a PCM WAV file at a
// fixed bit depth.
type Recorder struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *audio.IntBuffer
	shift   uint
	frames  uint64
}

// NewRecorder creates path and writes the WAV header. bitDepth is 16, 24 or 32.
func NewRecorder(path string, sampleRate, channels, bitDepth, framesPerBuffer int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if channels < 1 {
		return nil, fmt.Errorf("recorder: channels must be positive, got %d", channels)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, channels, 1),
		buf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			Data:           make([]int, framesPerBuffer*channels),
			SourceBitDepth: bitDepth,
		},
		shift: uint(32 - bitDepth),
	}, nil
}

// Write converts samples to the recording bit depth and appends them.
// The conversion buffer grows only if a larger buffer than announced arrives.
func (r *Recorder) Write(samples []int32) error {
	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(s >> r.shift)
	}
	if err := r.encoder.Write(r.buf); err != nil {
		return err
	}
	r.frames += uint64(len(samples) / r.buf.Format.NumChannels)
	return nil
}

// Close finalises the WAV header and closes the file.
func (r *Recorder) Close() error {
	return errors.Join(r.encoder.Close(), r.file.Close())
}

func (r *Recorder) Path() string   { return r.path }
func (r *Recorder) Frames() uint64 { return r.frames }

// RecordingPath returns a timestamped file name inside dir.
func RecordingPath(dir string, now time.Time) string {
	return filepath.Join(dir, "beatsync-"+now.Format("20060102-150405")+".wav")
}

// StartRecording begins writing the raw input to filename.
func (e *Engine) StartRecording(filename string) error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder != nil {
		return ErrAlreadyRecording
	}

	bitDepth := e.recording.BitDepth
	if bitDepth == 0 {
		bitDepth = 32
	}
	rec, err := NewRecorder(filename, int(e.audio.SampleRate), e.audio.InputChannels,
		bitDepth, e.audio.FramesPerBuffer)
	if err != nil {
		return err
	}
	e.recorder = rec
	e.isRecording.Store(true)

	applog.Infof("Engine: Recording to %s (%d-bit)", filename, bitDepth)
	return nil
}

// StartRecordingIn records to a timestamped file in dir and returns its path.
func (e *Engine) StartRecordingIn(dir string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	path := RecordingPath(dir, time.Now())
	if err := e.StartRecording(path); err != nil {
		return "", err
	}
	return path, nil
}

// StopRecording finalises the current recording. It is a no-op when not recording.
func (e *Engine) StopRecording() error {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	if e.recorder == nil {
		return nil
	}

	e.isRecording.Store(false)
	rec := e.recorder
	e.recorder = nil

	applog.Infof("Engine: Stopped recording %s after %d frames", rec.Path(), rec.Frames())
	return rec.Close()
}

func (e *Engine) IsRecording() bool {
	return e.isRecording.Load()
}

// record writes buffer to the active recorder. It never waits on StopRecording:
// if the lock is held the buffer is skipped.
func (e *Engine) record(buffer []int32) {
	if !e.isRecording.Load() || !e.recMu.TryLock() {
		return
	}
	defer e.recMu.Unlock()

	if e.recorder == nil {
		return
	}
	if err := e.recorder.Write(buffer); err != nil {
		if e.recordErrors.Add(1) == 1 {
			applog.Errorf("Engine: Error writing to WAV file: %v", err)
		}
	}
}
