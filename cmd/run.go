// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"beatsync/internal/analysis"
	"beatsync/internal/audio"
	"beatsync/internal/config"
	applog "beatsync/internal/log"
	"beatsync/internal/transport"
	"beatsync/internal/transport/udp"
	"beatsync/internal/tui"
)

// runLive captures from the configured device until ctx is done or, with
// the monitor, until the user quits.
//
// Startup and shutdown are cold paths. Between StartInputStream and Close
// the PortAudio callback drives the detector.
func runLive(ctx context.Context, cfg *config.Config, withTUI bool) (err error) {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	var spectrum *analysis.SpectrumProcessor
	if cfg.Spectrum.Enabled {
		window, _ := analysis.ParseWindowFunc(cfg.Spectrum.Window)
		spectrum, err = analysis.NewSpectrumProcessor(cfg.Spectrum.FFTSize, cfg.Audio.SampleRate,
			cfg.Audio.InputChannels, window, analysis.DefaultBands(cfg.Audio.SampleRate))
		if err != nil {
			return err
		}
	}

	transports, monitor, err := buildTransports(cfg, spectrum, withTUI)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := transports.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	beats, err := analysis.NewBeatProcessor(cfg.BeatConfig(), cfg.Audio.InputChannels,
		cfg.Audio.FramesPerBuffer, transports)
	if err != nil {
		return err
	}
	processors := []analysis.AudioProcessor{beats}
	if spectrum != nil {
		processors = append(processors, spectrum)
	}

	engine, err := audio.NewEngine(cfg, processors...)
	if err != nil {
		return err
	}
	var recording string
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if recording != "" {
			fmt.Printf("\nRecording saved to: %s\n", recording)
		}
	}()

	if err := engine.StartInputStream(); err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		if recording, err = engine.StartRecordingIn(cfg.Recording.OutputDir); err != nil {
			return err
		}
	}

	if monitor != nil {
		// The monitor owns the terminal; log output would tear the view.
		applog.SetOutput(io.Discard)
		defer applog.ResetOutput()
		return tui.RunMonitor(monitor, engine, cfg.Recording.OutputDir)
	}

	applog.Infof("Engine: Running, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

// buildTransports assembles the configured outputs. The monitor transport is
// returned separately so the caller can run its view.
func buildTransports(cfg *config.Config, spectrum *analysis.SpectrumProcessor, withTUI bool) (*transport.Multi, *tui.MonitorTransport, error) {
	var ts []transport.Transport
	fail := func(err error) (*transport.Multi, *tui.MonitorTransport, error) {
		return nil, nil, errors.Join(err, transport.NewMulti(ts...).Close())
	}

	t := cfg.Transport
	if t.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(t.WebSocketAddress, t.WebSocketQueue, t.WebSocketInterval)
		if err != nil {
			return fail(err)
		}
		ts = append(ts, ws)
	}

	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			return fail(err)
		}
		var bands udp.BandSource
		if spectrum != nil {
			bands = spectrum
		}
		pub, err := udp.NewUDPPublisher(t.UDPSendInterval, sender, bands)
		if err != nil {
			sender.Close()
			return fail(err)
		}
		pub.Start()
		ts = append(ts, pub)
	}

	if t.LogBeats {
		ts = append(ts, transport.NewLoggingTransport())
	}

	var monitor *tui.MonitorTransport
	if withTUI {
		monitor = tui.NewMonitorTransport()
		ts = append(ts, monitor)
	}

	return transport.NewMulti(ts...), monitor, nil
}
