// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"

	"beatsync/internal/beat"
	"beatsync/internal/cache"
	applog "beatsync/internal/log"
	"beatsync/internal/source"
)

const (
	offlineBlock = 4096
	// Consecutive empty reads tolerated before a source counts as stuck.
	maxEmptyReads = 64
)

// Result summarises the offline analysis of one file.
type Result struct {
	Path       string
	SampleRate int
	Duration   float64 // seconds
	BPM        uint32
	Beats      uint64
	BeatTimes  []float64 // seconds from the start, nil for cached results
	Cached     bool
}

// ConfigFunc builds the detector configuration for a file's sample rate.
type ConfigFunc func(sampleRate float64) beat.Config

// FileAnalyzer runs the live detector over decoded files and optionally
// caches the resulting tempo.
type FileAnalyzer struct {
	configAt  ConfigFunc
	registry  *source.Registry
	cache     *cache.Cache
	beatTimes bool
}

// NewFileAnalyzer returns an analyzer using registry for decoding. c may be nil.
func NewFileAnalyzer(configAt ConfigFunc, registry *source.Registry, c *cache.Cache) *FileAnalyzer {
	if registry == nil {
		registry = source.DefaultRegistry()
	}
	return &FileAnalyzer{configAt: configAt, registry: registry, cache: c}
}

// SetBeatTimes makes AnalyzeFile skip cache lookups, since cached entries
// carry no beat times. Fresh results are still stored.
func (a *FileAnalyzer) SetBeatTimes(need bool) { a.beatTimes = need }

// AnalyzeFile decodes path, mixes it to mono and runs the beat detector over
// it. A cached result for the same path, modification time and detector
// settings is returned without decoding.
func (a *FileAnalyzer) AnalyzeFile(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Result{}, err
	}
	modTime := info.ModTime().UnixNano()

	src, err := a.registry.Open(abs)
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	hash := configHash(a.configAt(float64(src.SampleRate())))
	if a.cache != nil && !a.beatTimes {
		if e, ok := a.cache.Get(abs, modTime, hash); ok {
			applog.Debugf("Analysis: Cache hit for %s", abs)
			return Result{Path: abs, SampleRate: src.SampleRate(), Duration: e.Duration, BPM: e.BPM, Beats: e.Beats, Cached: true}, nil
		}
	}

	res, err := a.AnalyzeSource(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("analyze %s: %w", abs, err)
	}
	res.Path = abs

	if a.cache != nil {
		entry := cache.Entry{Path: abs, ModTime: modTime, BPM: res.BPM, Beats: res.Beats, Duration: res.Duration, ConfigHash: hash}
		if err := a.cache.Set(entry); err != nil {
			applog.Warnf("Analysis: caching %s failed: %v", abs, err)
		}
	}
	return res, nil
}

// AnalyzeSource runs the detector over an already opened source, mixing it
// to mono first. The source is not closed.
func (a *FileAnalyzer) AnalyzeSource(ctx context.Context, src source.Source) (Result, error) {
	return a.analyze(ctx, source.NewMonoMixer(src))
}

// configHash identifies the detector settings a cached result came from.
func configHash(cfg beat.Config) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%+v", cfg)
	return fmt.Sprintf("%016x", h.Sum64())
}

func (a *FileAnalyzer) analyze(ctx context.Context, mono source.Source) (Result, error) {
	sr := mono.SampleRate()
	if sr <= 0 {
		return Result{}, fmt.Errorf("invalid sample rate %d", sr)
	}
	d, err := beat.NewDetector(a.configAt(float64(sr)))
	if err != nil {
		return Result{}, err
	}

	res := Result{SampleRate: sr}
	emit := func(f beat.Frame) {
		if f.BeatFired {
			res.BeatTimes = append(res.BeatTimes, float64(f.SampleIndex)/float64(sr))
		}
	}

	buf := make([]float32, offlineBlock)
	var idx beat.SampleIndex
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n, err := mono.ReadSamples(buf)
		if n > 0 {
			idx = d.Process(idx, buf[:n], emit)
			empty = 0
		} else if err == nil {
			if empty++; empty > maxEmptyReads {
				return Result{}, io.ErrNoProgress
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, err
		}
	}

	res.Duration = float64(idx) / float64(sr)
	res.BPM = d.Tracker().BPM()
	res.Beats = d.Tracker().Beats()
	applog.Infof("Analysis: %.1fs analysed, %d beats at %d BPM", res.Duration, res.Beats, res.BPM)
	return res, nil
}
