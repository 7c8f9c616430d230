// SPDX-License-Identifier: MIT

// Package cmd implements the beatsync command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"beatsync/internal/config"
	applog "beatsync/internal/log"
	"beatsync/pkg/build"

	"github.com/spf13/cobra"
)

// options holds the raw flag values. Only flags the user set override the
// loaded configuration.
type options struct {
	configPath string
	logLevel   string
	verbose    bool

	device          int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	gate            bool
	gateThreshold   float64

	slowestBPM uint32
	fastestBPM uint32

	record    bool
	outputDir string
	bitDepth  int

	tui        bool
	wsAddr     string
	noWS       bool
	udpTarget  string
	logBeats   bool
	noSpectrum bool
}

// Execute runs the command line until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. The root command runs the live
// detector.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runLive(cmd.Context(), cfg, opts.tui)
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.AddCommand(newListCommand(), newAnalyzeCommand(opts), newConfigCommand(opts), newCacheCommand(opts))

	flags := rootCmd.PersistentFlags()

	// General
	flags.StringVarP(&opts.configPath, "config", "f", "",
		"Path to a YAML config file (default: beatsync.yaml or config.yaml if present)")
	flags.StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output (same as --log-level debug)")

	// Audio Device Configuration
	flags.IntVarP(&opts.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&opts.channels, "channels", "c", config.DefaultChannels,
		"Number of input channels, mixed to mono for detection")
	flags.Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&opts.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	flags.BoolVarP(&opts.lowLatency, "low-latency", "l", false,
		"Use the device's low latency setting")
	flags.BoolVar(&opts.gate, "gate", true,
		"Silence buffers whose peak is below the gate threshold")
	flags.Float64Var(&opts.gateThreshold, "gate-threshold", config.DefaultGateThreshold,
		"Noise gate threshold as a fraction of full scale (0-1)")

	// Detector
	flags.Uint32Var(&opts.slowestBPM, "slowest-bpm", 0, "Slowest tempo to track")
	flags.Uint32Var(&opts.fastestBPM, "fastest-bpm", 0, "Fastest tempo to track")

	// Recording Configuration
	flags.BoolVarP(&opts.record, "record", "r", false,
		"Record the input stream to WAV")
	flags.StringVarP(&opts.outputDir, "output-dir", "o", "",
		"Directory for recordings")
	flags.IntVar(&opts.bitDepth, "bit-depth", config.DefaultBitDepth,
		"Recording bit depth: 16, 24 or 32")

	// Output
	flags.BoolVarP(&opts.tui, "tui", "t", false, "Show the live beat monitor")
	flags.StringVar(&opts.wsAddr, "ws-addr", config.DefaultWebSocketAddr, "WebSocket listen address")
	flags.BoolVar(&opts.noWS, "no-ws", false, "Disable the WebSocket transport")
	flags.StringVar(&opts.udpTarget, "udp", "", "Send UDP packets to host:port")
	flags.BoolVar(&opts.logBeats, "log-beats", false, "Log every beat at debug level")
	flags.BoolVar(&opts.noSpectrum, "no-spectrum", false, "Disable the spectrum band analysis")

	return rootCmd
}

// loadConfig reads the configuration file and environment, then applies the
// flags the user set on cmd.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	set := flags.Changed

	if set("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	}
	if set("device") {
		cfg.Audio.InputDevice = opts.device
	}
	if set("channels") {
		cfg.Audio.InputChannels = opts.channels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = opts.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = opts.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = opts.lowLatency
	}
	if set("gate") {
		cfg.Audio.GateEnabled = opts.gate
	}
	if set("gate-threshold") {
		cfg.Audio.GateThreshold = opts.gateThreshold
	}
	if set("slowest-bpm") {
		cfg.Beat.SlowestBPM = opts.slowestBPM
	}
	if set("fastest-bpm") {
		cfg.Beat.FastestBPM = opts.fastestBPM
	}
	if set("record") {
		cfg.Recording.Enabled = opts.record
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = opts.outputDir
	}
	if set("bit-depth") {
		cfg.Recording.BitDepth = opts.bitDepth
	}
	if set("ws-addr") {
		cfg.Transport.WebSocketAddress = opts.wsAddr
	}
	if opts.noWS {
		cfg.Transport.WebSocketEnabled = false
	}
	if opts.udpTarget != "" {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = opts.udpTarget
	}
	if opts.logBeats {
		cfg.Transport.LogBeats = true
	}
	if opts.noSpectrum {
		cfg.Spectrum.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	applog.SetLevel(level)
	return cfg, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
