// Command evsim emulates an OpenEVSE-style charging station on a serial
// link.
//
// The emulator speaks the RAPI line protocol over either a pseudo-terminal
// device or a TCP port, drives a simulated vehicle against the station
// state machine, and optionally records the protocol exchange to a capture
// file.
//
// Usage:
//
//	evsim [flags]
//
// Flags:
//
//	-config string    Configuration file path (YAML)
//	-mode string      Transport mode: pty, tcp
//	-pty string       Symlink path for the pty device
//	-port int         Listen port in tcp mode
//	-capture string   Capture file path (CBOR event stream)
//	-soc float        Initial vehicle state of charge (percent)
//	-max-current int  Maximum output current (amps)
//	-interactive      Start the operator console
//	-log-level string Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Emulate on /tmp/ttyEVSIM0 with the operator console
//	evsim -interactive
//
//	# Listen on TCP with a half-charged 60 kWh vehicle
//	evsim -mode tcp -port 8023 -soc 50
//
//	# Record the protocol exchange for later replay
//	evsim -config evsim.yaml -capture /tmp/session.rlog
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/enbility/zeroconf/v3"

	"github.com/evsim-project/evsim-go/pkg/config"
	"github.com/evsim-project/evsim-go/pkg/engine"
	"github.com/evsim-project/evsim-go/pkg/log"
	"github.com/evsim-project/evsim-go/pkg/serial"
)

var (
	flagConfig      = flag.String("config", "", "Configuration file path (YAML)")
	flagMode        = flag.String("mode", "", "Transport mode: pty, tcp")
	flagPTY         = flag.String("pty", "", "Symlink path for the pty device")
	flagPort        = flag.Int("port", 0, "Listen port in tcp mode")
	flagCapture     = flag.String("capture", "", "Capture file path (CBOR event stream)")
	flagSoC         = flag.Float64("soc", -1, "Initial vehicle state of charge (percent)")
	flagMaxCurrent  = flag.Int("max-current", 0, "Maximum output current (amps)")
	flagInteractive = flag.Bool("interactive", false, "Start the operator console")
	flagLogLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()
	setupLogging(*flagLogLevel)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	capture, closeCapture, err := buildCapture(cfg.Capture)
	if err != nil {
		slog.Error("failed to open capture sink", "error", err)
		os.Exit(1)
	}
	defer closeCapture()

	eng := engine.New(engine.Config{
		Evse:   cfg.EvseParams(),
		EV:     cfg.EVParams(),
		Logger: capture,
	})

	transport, err := buildTransport(cfg, capture)
	if err != nil {
		slog.Error("failed to start transport", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port := serial.NewPort(serial.PortConfig{
		Transport: transport,
		Engine:    eng,
		Logger:    capture,
		Backoff:   cfg.BackoffParams(),
	})
	port.Start(ctx)
	defer port.Stop()

	go eng.Run(ctx, cfg.TickInterval())

	if cfg.Serial.Mode == "tcp" && cfg.Serial.Advertise {
		shutdown, err := advertise(cfg, eng.FirmwareVersion())
		if err != nil {
			slog.Warn("mDNS advertisement failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	slog.Info("emulator running",
		"transport", transport.Name(),
		"firmware", eng.FirmwareVersion())

	if *flagInteractive {
		console, err := NewConsole(eng)
		if err != nil {
			slog.Error("failed to start console", "error", err)
			os.Exit(1)
		}
		console.Run(ctx, cancel)
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case <-ctx.Done():
	}
}

// loadConfig merges defaults, the optional config file, environment
// variables and command-line flags, in that order.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *flagConfig != "" {
		loaded, err := config.Load(*flagConfig)
		if err != nil && !os.IsNotExist(err) {
			return cfg, err
		}
		if os.IsNotExist(err) {
			slog.Warn("config file not found, using defaults", "path", *flagConfig)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	// Flags override everything, but only the ones actually set.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Serial.Mode = *flagMode
		case "pty":
			cfg.Serial.PTYPath = *flagPTY
		case "port":
			cfg.Serial.TCPPort = *flagPort
		case "capture":
			cfg.Capture.File = *flagCapture
		case "soc":
			cfg.EV.InitialSoC = *flagSoC
		case "max-current":
			cfg.Evse.MaxCurrentAmps = *flagMaxCurrent
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildCapture assembles the capture logger from the configured sinks.
func buildCapture(cfg config.CaptureConfig) (log.Logger, func(), error) {
	var sinks []log.Logger
	closeFn := func() {}

	if cfg.File != "" {
		fileLogger, err := log.NewFileLogger(cfg.File)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, fileLogger)
		closeFn = func() { fileLogger.Close() }
	}
	if cfg.Console {
		sinks = append(sinks, log.NewSlogAdapter(slog.Default()))
	}

	switch len(sinks) {
	case 0:
		return nil, closeFn, nil
	case 1:
		return sinks[0], closeFn, nil
	default:
		return log.NewMultiLogger(sinks...), closeFn, nil
	}
}

// buildTransport creates the configured serial backend.
func buildTransport(cfg config.Config, capture log.Logger) (serial.Transport, error) {
	switch cfg.Serial.Mode {
	case "tcp":
		transport, err := serial.ListenTCP(cfg.Serial.TCPPort, capture)
		if err != nil {
			return nil, err
		}
		slog.Info("listening", "addr", transport.Addr().String())
		return transport, nil
	default:
		transport := serial.NewPTY(cfg.Serial.PTYPath)
		if cfg.Serial.PTYPath != "" {
			slog.Info("serial device", "path", cfg.Serial.PTYPath)
		}
		return transport, nil
	}
}

// advertise registers the TCP endpoint as _rapi._tcp via mDNS.
func advertise(cfg config.Config, firmware string) (func(), error) {
	txt := []string{
		"version=" + firmware,
		"amps=" + strconv.Itoa(cfg.Evse.MaxCurrentAmps),
	}
	server, err := zeroconf.Register(
		"evsim",
		"_rapi._tcp",
		"local.",
		cfg.Serial.TCPPort,
		txt,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	slog.Info("advertising via mDNS", "service", "_rapi._tcp", "port", cfg.Serial.TCPPort)
	return server.Shutdown, nil
}

// setupLogging configures the global slog level.
func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: l,
	})))
}
