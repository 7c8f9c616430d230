// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"time"
)

// Defaults and limits of the engine configuration.
const (
	DefaultDeviceID        = -1 // system default input
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	DefaultChannels        = 2
	DefaultGateThreshold   = 0.001 // fraction of full scale
	DefaultFFTSize         = 1024
	DefaultFFTWindow       = "Hann"
	DefaultRecordingFormat = "wav"
	DefaultBitDepth        = 16
	DefaultWebSocketAddr   = ":8080"
	DefaultWebSocketQueue  = 256
	DefaultWebSocketRate   = 16 * time.Millisecond
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPInterval     = 33 * time.Millisecond
	DefaultCachePath       = "beatsync.db"

	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the application configuration, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error
	Audio     AudioConfig     `yaml:"audio"`
	Beat      DetectorConfig  `yaml:"beat"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
	Cache     CacheConfig     `yaml:"cache"`
}

// AudioConfig holds the capture device settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for default.
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // frames per callback
	LowLatency      bool    `yaml:"low_latency"`       // request the device's low latency setting
	InputChannels   int     `yaml:"input_channels"`    // channels captured and mixed to mono
	GateEnabled     bool    `yaml:"gate_enabled"`      // silence buffers below the gate threshold
	GateThreshold   float64 `yaml:"gate_threshold"`    // 0-1 of full scale
}

// DetectorConfig mirrors beat.Config. Durations are in seconds.
type DetectorConfig struct {
	SlowestBPM      uint32  `yaml:"slowest_bpm"`
	FastestBPM      uint32  `yaml:"fastest_bpm"`
	InitialBPM      uint32  `yaml:"initial_bpm"` // 0 for the middle of the range
	Decimation      int     `yaml:"decimation"`
	FilterFrequency float64 `yaml:"filter_frequency"`
	FilterQ         float64 `yaml:"filter_q"`
	EnergyWindow    float64 `yaml:"energy_window"`
	NormalizerAlpha float32 `yaml:"normalizer_alpha"`
	NormalizerFloor float32 `yaml:"normalizer_floor"`
	ShortWindow     float64 `yaml:"short_window"`
	LongAlpha       float64 `yaml:"long_alpha"`
	BeatSigma       float64 `yaml:"beat_sigma"`
	NoiseThreshold  float64 `yaml:"noise_threshold"`
	BeatHistory     int     `yaml:"beat_history"`
	DeltaHistory    int     `yaml:"delta_history"`
	ModeHistory     int     `yaml:"mode_history"`
	ValidateEvery   int     `yaml:"validate_every"`
	PhaseCandidates int     `yaml:"phase_candidates"`
}

// SpectrumConfig controls the band energy analysis.
type SpectrumConfig struct {
	Enabled bool   `yaml:"enabled"`
	FFTSize int    `yaml:"fft_size"`
	Window  string `yaml:"window"` // Hann, Hamming, Blackman, ...
}

// RecordingConfig holds settings for recording the input to WAV.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`    // only "wav"
	BitDepth  int    `yaml:"bit_depth"` // 16, 24 or 32
}

// TransportConfig selects where frames are published.
type TransportConfig struct {
	WebSocketEnabled  bool          `yaml:"websocket_enabled"`
	WebSocketAddress  string        `yaml:"websocket_address"`
	WebSocketQueue    int           `yaml:"websocket_queue"`
	WebSocketInterval time.Duration `yaml:"websocket_interval"` // minimum spacing of non-beat frames

	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`

	LogBeats bool `yaml:"log_beats"`
}

// CacheConfig locates the SQLite cache of offline analysis results.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}
