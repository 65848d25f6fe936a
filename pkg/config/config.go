// Package config loads the emulator configuration. The core packages never
// read files themselves; they receive plain parameter structs assembled
// here from defaults, an optional YAML file, environment overrides and
// command-line flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evsim-project/evsim-go/pkg/connection"
	"github.com/evsim-project/evsim-go/pkg/ev"
	"github.com/evsim-project/evsim-go/pkg/evse"
	"github.com/evsim-project/evsim-go/pkg/version"
)

// Config is the full emulator configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	Evse       EvseConfig       `yaml:"evse"`
	EV         EVConfig         `yaml:"ev"`
	Simulation SimulationConfig `yaml:"simulation"`
	Capture    CaptureConfig    `yaml:"capture"`
}

// SerialConfig selects and tunes the transport backend.
type SerialConfig struct {
	// Mode is "pty" or "tcp".
	Mode string `yaml:"mode"`
	// TCPPort is the listen port in tcp mode.
	TCPPort int `yaml:"tcp_port"`
	// PTYPath is the symlink kept pointing at the allocated device in
	// pty mode. Empty skips the symlink.
	PTYPath string `yaml:"pty_path"`
	// ReconnectTimeoutS bounds the reopen loop; 0 retries forever.
	ReconnectTimeoutS int `yaml:"reconnect_timeout_s"`
	// ReconnectBackoffMS is the initial reopen delay.
	ReconnectBackoffMS int `yaml:"reconnect_backoff_ms"`
	// Advertise publishes the TCP endpoint via mDNS.
	Advertise bool `yaml:"advertise"`
}

// EvseConfig tunes the station model.
type EvseConfig struct {
	FirmwareVersion string `yaml:"firmware_version"`
	ProtocolVersion string `yaml:"protocol_version"`
	MaxCurrentAmps  int    `yaml:"max_current_amps"`
	// ServiceLevel is "1", "2" or "A".
	ServiceLevel   string `yaml:"service_level"`
	GFCISelfTest   bool   `yaml:"gfci_self_test"`
	TemperatureSim bool   `yaml:"temperature_sim"`
}

// EVConfig tunes the vehicle model.
type EVConfig struct {
	BatteryCapacityKWh   float64 `yaml:"battery_capacity_kwh"`
	MaxChargeRateKW      float64 `yaml:"max_charge_rate_kw"`
	InitialSoC           float64 `yaml:"initial_soc"`
	RealisticChargeCurve bool    `yaml:"realistic_charge_curve"`
}

// SimulationConfig tunes the simulation clock.
type SimulationConfig struct {
	TickIntervalMS int `yaml:"tick_interval_ms"`
}

// CaptureConfig selects protocol capture sinks.
type CaptureConfig struct {
	// File receives CBOR capture events; empty disables the file sink.
	File string `yaml:"file"`
	// Console mirrors capture events to slog at debug level.
	Console bool `yaml:"console"`
}

// Default returns the configuration matching the physical reference device.
func Default() Config {
	return Config{
		Serial: SerialConfig{
			Mode:               "pty",
			TCPPort:            8023,
			PTYPath:            "/tmp/ttyEVSIM0",
			ReconnectTimeoutS:  60,
			ReconnectBackoffMS: 1000,
		},
		Evse: EvseConfig{
			FirmwareVersion: version.DefaultFirmware,
			ProtocolVersion: version.DefaultProtocol,
			MaxCurrentAmps:  32,
			ServiceLevel:    "2",
			TemperatureSim:  true,
		},
		EV: EVConfig{
			BatteryCapacityKWh:   75,
			MaxChargeRateKW:      7.2,
			InitialSoC:           50,
			RealisticChargeCurve: true,
		},
		Simulation: SimulationConfig{
			TickIntervalMS: 1000,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file returns the
// defaults together with the os.IsNotExist error so callers can warn.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from EVSIM_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EVSIM_SERIAL_MODE"); v != "" {
		c.Serial.Mode = v
	}
	if v := os.Getenv("EVSIM_TCP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Serial.TCPPort = port
		}
	}
	if v := os.Getenv("EVSIM_PTY_PATH"); v != "" {
		c.Serial.PTYPath = v
	}
	if v := os.Getenv("EVSIM_CAPTURE_FILE"); v != "" {
		c.Capture.File = v
	}
}

// Validate checks settings that would otherwise fail deep inside the stack.
func (c Config) Validate() error {
	switch c.Serial.Mode {
	case "pty", "tcp":
	default:
		return fmt.Errorf("serial.mode must be \"pty\" or \"tcp\", got %q", c.Serial.Mode)
	}
	if c.Serial.Mode == "tcp" && (c.Serial.TCPPort < 1 || c.Serial.TCPPort > 65535) {
		return fmt.Errorf("serial.tcp_port %d out of range", c.Serial.TCPPort)
	}
	if c.Serial.ReconnectTimeoutS < 0 || c.Serial.ReconnectBackoffMS < 0 {
		return fmt.Errorf("serial reconnect settings must not be negative")
	}
	if c.Evse.MaxCurrentAmps < evse.MinCurrentAmps || c.Evse.MaxCurrentAmps > evse.MaxCurrentAmps {
		return fmt.Errorf("evse.max_current_amps %d outside [%d, %d]",
			c.Evse.MaxCurrentAmps, evse.MinCurrentAmps, evse.MaxCurrentAmps)
	}
	if _, err := evse.ParseLevel(c.Evse.ServiceLevel); err != nil {
		return fmt.Errorf("evse.service_level: %w", err)
	}
	if _, err := version.Parse(c.Evse.FirmwareVersion); err != nil {
		return fmt.Errorf("evse.firmware_version: %w", err)
	}
	if c.EV.BatteryCapacityKWh <= 0 || c.EV.MaxChargeRateKW <= 0 {
		return fmt.Errorf("ev battery capacity and charge rate must be positive")
	}
	if c.EV.InitialSoC < 0 || c.EV.InitialSoC > 100 {
		return fmt.Errorf("ev.initial_soc %v outside [0, 100]", c.EV.InitialSoC)
	}
	if c.Simulation.TickIntervalMS <= 0 {
		return fmt.Errorf("simulation.tick_interval_ms must be positive")
	}
	return nil
}

// EvseParams converts to the station parameter struct.
func (c Config) EvseParams() evse.Config {
	level, _ := evse.ParseLevel(c.Evse.ServiceLevel)
	return evse.Config{
		FirmwareVersion: c.Evse.FirmwareVersion,
		ProtocolVersion: c.Evse.ProtocolVersion,
		MaxCurrentAmps:  c.Evse.MaxCurrentAmps,
		ServiceLevel:    level,
		GFCISelfTest:    c.Evse.GFCISelfTest,
		TemperatureSim:  c.Evse.TemperatureSim,
	}
}

// EVParams converts to the vehicle parameter struct.
func (c Config) EVParams() ev.Config {
	return ev.Config{
		BatteryCapacityKWh: c.EV.BatteryCapacityKWh,
		MaxChargeRateKW:    c.EV.MaxChargeRateKW,
		InitialSoC:         c.EV.InitialSoC,
		TaperEnabled:       c.EV.RealisticChargeCurve,
	}
}

// BackoffParams converts to the reopen policy parameters.
func (c Config) BackoffParams() connection.Config {
	return connection.Config{
		Initial: time.Duration(c.Serial.ReconnectBackoffMS) * time.Millisecond,
		Total:   time.Duration(c.Serial.ReconnectTimeoutS) * time.Second,
	}
}

// TickInterval returns the simulation clock period.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Simulation.TickIntervalMS) * time.Millisecond
}
