// SPDX-License-Identifier: MIT
package transport

import (
	"sync"
	"sync/atomic"

	"beatsync/internal/beat"
	applog "beatsync/internal/log"
)

// Beats waiting to be logged. Further beats are counted as dropped.
const logQueueSize = 64

// LoggingTransport writes beats to the application log at debug level. Send
// only queues the frame; a goroutine does the formatting and writing, since
// the logger takes a lock. Frames without a beat are counted but not logged.
type LoggingTransport struct {
	queue    chan beat.Frame
	quit     chan struct{}
	finished chan struct{}
	once     sync.Once

	frames  atomic.Uint64
	beats   atomic.Uint64
	dropped atomic.Uint64
}

func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	lt := &LoggingTransport{
		queue:    make(chan beat.Frame, logQueueSize),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go lt.run()
	return lt
}

func (lt *LoggingTransport) Send(f beat.Frame) error {
	lt.frames.Add(1)
	if !f.BeatFired {
		return nil
	}
	lt.beats.Add(1)
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	select {
	case lt.queue <- f:
	default:
		lt.dropped.Add(1)
	}
	return nil
}

func (lt *LoggingTransport) run() {
	defer close(lt.finished)
	for {
		select {
		case f := <-lt.queue:
			logBeat(f)
		case <-lt.quit:
			for {
				select {
				case f := <-lt.queue:
					logBeat(f)
				default:
					return
				}
			}
		}
	}
}

func logBeat(f beat.Frame) {
	applog.Debugf("LoggingTransport: beat #%d at sample %d, %d BPM, p=%.2f, err=%.3f",
		f.Beats, f.SampleIndex, f.BPM, f.BeatProbability, f.PhaseErrorNormalized)
}

// Close flushes queued beats and stops the writer. Send must not be called
// afterwards.
func (lt *LoggingTransport) Close() error {
	lt.once.Do(func() {
		close(lt.quit)
		<-lt.finished
		applog.Infof("LoggingTransport: closed after %d frames, %d beats", lt.frames.Load(), lt.beats.Load())
		if n := lt.dropped.Load(); n > 0 {
			applog.Warnf("LoggingTransport: %d beats not logged, queue full", n)
		}
	})
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
