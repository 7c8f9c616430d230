// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"beatsync/internal/analysis"
	"beatsync/internal/beat"
	applog "beatsync/internal/log"
	"beatsync/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Files tried, in order, when LoadConfig gets an empty path.
var searchPaths = []string{"beatsync.yaml", "config.yaml"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			GateEnabled:     true,
			GateThreshold:   DefaultGateThreshold,
		},
		Beat: detectorFromBeat(beat.DefaultConfig(DefaultSampleRate)),
		Spectrum: SpectrumConfig{
			Enabled: true,
			FFTSize: DefaultFFTSize,
			Window:  DefaultFFTWindow,
		},
		Recording: RecordingConfig{
			OutputDir: "./recordings",
			Format:    DefaultRecordingFormat,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketEnabled:  true,
			WebSocketAddress:  DefaultWebSocketAddr,
			WebSocketQueue:    DefaultWebSocketQueue,
			WebSocketInterval: DefaultWebSocketRate,
			UDPTargetAddress:  DefaultUDPTarget,
			UDPSendInterval:   DefaultUDPInterval,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    DefaultCachePath,
		},
	}
}

// LoadConfig reads the YAML file at path over the built-in defaults. An empty
// path searches the working directory and falls back to the defaults when
// no file exists. Environment overrides are applied last, then the result is
// validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		applog.Debugf("Config: Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		invalid("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		invalid("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		invalid("audio.frames_per_buffer %d outside (0, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		invalid("audio.input_channels must be positive, got %d", a.InputChannels)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		invalid("audio.gate_threshold %.4f outside [0, 1]", a.GateThreshold)
	}

	if err := c.BeatConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: beat: %w", ErrInvalidConfig, err))
	}

	if c.Spectrum.Enabled {
		if !bitint.IsPowerOfTwo(c.Spectrum.FFTSize) {
			invalid("spectrum.fft_size must be a power of 2, got %d (try %d)", c.Spectrum.FFTSize, bitint.NextPowerOfTwo(c.Spectrum.FFTSize))
		}
		if _, err := analysis.ParseWindowFunc(c.Spectrum.Window); err != nil {
			invalid("spectrum.window: %v", err)
		}
	}

	if c.Recording.Enabled {
		if !strings.EqualFold(c.Recording.Format, "wav") {
			invalid("recording.format %q is not supported, only wav", c.Recording.Format)
		}
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			invalid("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth)
		}
	}

	t := c.Transport
	if t.WebSocketEnabled && t.WebSocketAddress == "" {
		invalid("transport.websocket_address must be set when the websocket is enabled")
	}
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			invalid("transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			invalid("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		invalid("cache.path must be set when the cache is enabled")
	}

	return errors.Join(errs...)
}

// BeatConfig returns the detector configuration at the capture sample rate.
func (c *Config) BeatConfig() beat.Config {
	return c.BeatConfigAt(c.Audio.SampleRate)
}

// BeatConfigAt returns the detector configuration for a stream at sampleRate,
// used when analysing files whose rate differs from the capture device.
func (c *Config) BeatConfigAt(sampleRate float64) beat.Config {
	d := c.Beat
	return beat.Config{
		SampleRate:      sampleRate,
		SlowestBPM:      d.SlowestBPM,
		FastestBPM:      d.FastestBPM,
		InitialBPM:      d.InitialBPM,
		Decimation:      d.Decimation,
		FilterFrequency: d.FilterFrequency,
		FilterQ:         d.FilterQ,
		EnergyWindow:    d.EnergyWindow,
		NormalizerAlpha: d.NormalizerAlpha,
		NormalizerFloor: d.NormalizerFloor,
		ShortWindow:     d.ShortWindow,
		LongAlpha:       d.LongAlpha,
		BeatSigma:       d.BeatSigma,
		NoiseThreshold:  d.NoiseThreshold,
		BeatHistory:     d.BeatHistory,
		DeltaHistory:    d.DeltaHistory,
		ModeHistory:     d.ModeHistory,
		ValidateEvery:   d.ValidateEvery,
		PhaseCandidates: d.PhaseCandidates,
	}
}

func detectorFromBeat(b beat.Config) DetectorConfig {
	return DetectorConfig{
		SlowestBPM:      b.SlowestBPM,
		FastestBPM:      b.FastestBPM,
		InitialBPM:      b.InitialBPM,
		Decimation:      b.Decimation,
		FilterFrequency: b.FilterFrequency,
		FilterQ:         b.FilterQ,
		EnergyWindow:    b.EnergyWindow,
		NormalizerAlpha: b.NormalizerAlpha,
		NormalizerFloor: b.NormalizerFloor,
		ShortWindow:     b.ShortWindow,
		LongAlpha:       b.LongAlpha,
		BeatSigma:       b.BeatSigma,
		NoiseThreshold:  b.NoiseThreshold,
		BeatHistory:     b.BeatHistory,
		DeltaHistory:    b.DeltaHistory,
		ModeHistory:     b.ModeHistory,
		ValidateEvery:   b.ValidateEvery,
		PhaseCandidates: b.PhaseCandidates,
	}
}

// applyEnvOverrides applies ENV_* variables on top of the loaded file.
// Unparseable values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	envBool("ENV_DEBUG", &c.Debug)
	envString("ENV_LOG_LEVEL", &c.LogLevel)

	envInt("ENV_INPUT_DEVICE", &c.Audio.InputDevice)
	envFloat("ENV_SAMPLE_RATE", &c.Audio.SampleRate)
	envInt("ENV_FRAMES_PER_BUFFER", &c.Audio.FramesPerBuffer)
	envBool("ENV_GATE_ENABLED", &c.Audio.GateEnabled)

	envUint32("ENV_SLOWEST_BPM", &c.Beat.SlowestBPM)
	envUint32("ENV_FASTEST_BPM", &c.Beat.FastestBPM)

	envBool("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	envString("ENV_WS_ADDRESS", &c.Transport.WebSocketAddress)
	envBool("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)

	envString("ENV_CACHE_PATH", &c.Cache.Path)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		applog.Infof("Config: Overriding from %s: %s", key, val)
	}
}

func envBool(key string, dst *bool) {
	envParse(key, dst, strconv.ParseBool)
}

func envInt(key string, dst *int) {
	envParse(key, dst, strconv.Atoi)
}

func envFloat(key string, dst *float64) {
	envParse(key, dst, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func envUint32(key string, dst *uint32) {
	envParse(key, dst, func(s string) (uint32, error) {
		v, err := strconv.ParseUint(s, 10, 32)
		return uint32(v), err
	})
}

func envDuration(key string, dst *time.Duration) {
	envParse(key, dst, time.ParseDuration)
}

func envParse[T any](key string, dst *T, parse func(string) (T, error)) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	v, err := parse(val)
	if err != nil {
		applog.Warnf("Config: Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = v
	applog.Infof("Config: Overriding from %s: %v", key, v)
}
