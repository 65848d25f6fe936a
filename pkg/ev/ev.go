// Package ev simulates the electric vehicle on the far side of the J1772
// connector. The vehicle decides the pilot state it presents and how much of
// the offered current it actually draws.
package ev

import "math/rand/v2"

// PilotState is the J1772 pilot state presented by the vehicle.
type PilotState byte

const (
	// PilotDisconnected means no vehicle is plugged in (state A).
	PilotDisconnected PilotState = 'A'
	// PilotConnected means the vehicle is plugged in but not requesting
	// charge (state B).
	PilotConnected PilotState = 'B'
	// PilotCharging means the vehicle requests energy transfer (state C).
	PilotCharging PilotState = 'C'
	// PilotVentilation signals a diode check failure and a ventilation
	// requirement (state D).
	PilotVentilation PilotState = 'D'
)

// String returns the single-letter pilot state name.
func (p PilotState) String() string {
	return string(rune(p))
}

// Charge-curve constants.
const (
	// taperStartSoC is the state of charge above which the acceptance
	// rate tapers off.
	taperStartSoC = 80.0
	// taperRange spans from taperStartSoC to full.
	taperRange = 20.0
	// taperMaxReduction is the fraction of the rate shed at 100% SoC.
	taperMaxReduction = 0.5

	// varianceRange is the per-tick random rate variation: up to -1% in
	// battery mode, ±1% in direct mode.
	varianceRange = 0.01

	// directOverdrawFactor bounds how far a direct-mode current setting
	// may exceed the advertised capacity.
	directOverdrawFactor = 1.1
)

// Config carries the initial parameters of a simulated vehicle.
type Config struct {
	// BatteryCapacityKWh is the usable battery capacity.
	BatteryCapacityKWh float64
	// MaxChargeRateKW is the onboard charger limit.
	MaxChargeRateKW float64
	// InitialSoC is the starting state of charge in percent.
	InitialSoC float64
	// TaperEnabled applies the realistic charge curve above 80% SoC.
	TaperEnabled bool
}

// Simulator models one vehicle. It is not safe for concurrent use; the
// engine serializes all access to it together with the rest of the device
// state.
type Simulator struct {
	batteryCapacityKWh float64
	maxChargeRateKW    float64
	taperEnabled       bool

	connected       bool
	chargeRequested bool
	soc             float64
	chargeRateKW    float64

	diodeCheckFailed bool

	directMode        bool
	directCurrentAmps float64

	varianceEnabled bool
	rand            func() float64
}

// NewSimulator creates a vehicle with the given parameters. Zero or negative
// capacity and rate fall back to a 75 kWh battery with a 7.2 kW charger.
func NewSimulator(cfg Config) *Simulator {
	if cfg.BatteryCapacityKWh <= 0 {
		cfg.BatteryCapacityKWh = 75.0
	}
	if cfg.MaxChargeRateKW <= 0 {
		cfg.MaxChargeRateKW = 7.2
	}
	return &Simulator{
		batteryCapacityKWh: cfg.BatteryCapacityKWh,
		maxChargeRateKW:    cfg.MaxChargeRateKW,
		taperEnabled:       cfg.TaperEnabled,
		soc:                clampSoC(cfg.InitialSoC),
		varianceEnabled:    true,
		rand:               rand.Float64,
	}
}

// Connect plugs the vehicle in.
func (s *Simulator) Connect() {
	s.connected = true
}

// Disconnect unplugs the vehicle. Any charge request ends with it.
func (s *Simulator) Disconnect() {
	s.connected = false
	s.chargeRequested = false
	s.chargeRateKW = 0
}

// Connected reports whether the vehicle is plugged in.
func (s *Simulator) Connected() bool {
	return s.connected
}

// RequestCharge starts or stops the vehicle's energy request. Requests while
// disconnected or with a full battery are ignored.
func (s *Simulator) RequestCharge(want bool) {
	if !want {
		s.chargeRequested = false
		s.chargeRateKW = 0
		return
	}
	if !s.connected || s.soc >= 100 {
		return
	}
	s.chargeRequested = true
}

// ChargeRequested reports whether the vehicle is asking for energy.
func (s *Simulator) ChargeRequested() bool {
	return s.chargeRequested
}

// SoC returns the state of charge in percent.
func (s *Simulator) SoC() float64 {
	return s.soc
}

// SetSoC overrides the state of charge, clamped to [0, 100].
func (s *Simulator) SetSoC(soc float64) {
	s.soc = clampSoC(soc)
	if s.soc >= 100 {
		s.chargeRequested = false
		s.chargeRateKW = 0
	}
}

// ChargeRateKW returns the rate the vehicle accepted on the last tick.
func (s *Simulator) ChargeRateKW() float64 {
	return s.chargeRateKW
}

// SetDiodeCheckFailed controls whether the vehicle presents pilot state D.
func (s *Simulator) SetDiodeCheckFailed(failed bool) {
	s.diodeCheckFailed = failed
}

// DiodeCheckFailed reports whether the vehicle presents pilot state D.
func (s *Simulator) DiodeCheckFailed() bool {
	return s.diodeCheckFailed
}

// SetDirectMode switches between battery simulation and a fixed current
// draw. Direct mode does not advance the state of charge.
func (s *Simulator) SetDirectMode(direct bool) {
	s.directMode = direct
}

// DirectMode reports whether the fixed current draw is active.
func (s *Simulator) DirectMode() bool {
	return s.directMode
}

// SetDirectCurrent sets the fixed current draw in amps. Negative values are
// treated as zero.
func (s *Simulator) SetDirectCurrent(amps float64) {
	if amps < 0 {
		amps = 0
	}
	s.directCurrentAmps = amps
}

// DirectCurrentAmps returns the configured fixed current draw.
func (s *Simulator) DirectCurrentAmps() float64 {
	return s.directCurrentAmps
}

// SetVariance enables or disables the per-tick random rate variation.
func (s *Simulator) SetVariance(enabled bool) {
	s.varianceEnabled = enabled
}

// VarianceEnabled reports whether the random rate variation is active.
func (s *Simulator) VarianceEnabled() bool {
	return s.varianceEnabled
}

// Pilot returns the J1772 pilot state the vehicle currently presents.
func (s *Simulator) Pilot() PilotState {
	switch {
	case !s.connected:
		return PilotDisconnected
	case s.diodeCheckFailed:
		return PilotVentilation
	case s.chargeRequested:
		return PilotCharging
	default:
		return PilotConnected
	}
}

// Advance moves the simulation forward by dt seconds with the given offer.
// offeredAmps is the advertised current capacity and voltageMV the line
// voltage in millivolts. The accepted charge rate for the tick is stored and
// returned in kW.
func (s *Simulator) Advance(offeredAmps int, voltageMV int, dt float64) float64 {
	if !s.connected || !s.chargeRequested || dt <= 0 {
		s.chargeRateKW = 0
		return 0
	}

	volts := float64(voltageMV) / 1000.0
	offeredKW := float64(offeredAmps) * volts / 1000.0

	if s.directMode {
		amps := s.directCurrentAmps
		if limit := float64(offeredAmps) * directOverdrawFactor; amps > limit {
			amps = limit
		}
		rate := amps * volts / 1000.0
		if s.varianceEnabled {
			rate *= 1 + (s.rand()*2-1)*varianceRange
		}
		s.chargeRateKW = rate
		return rate
	}

	rate := s.maxChargeRateKW
	if offeredKW < rate {
		rate = offeredKW
	}
	if s.taperEnabled && s.soc > taperStartSoC {
		rate *= 1 - ((s.soc-taperStartSoC)/taperRange)*taperMaxReduction
	}
	if s.varianceEnabled {
		// The battery only ever draws slightly less than the ideal rate.
		rate *= 1 - s.rand()*varianceRange
	}

	s.soc += rate * dt / 3600.0 / s.batteryCapacityKWh * 100.0
	if s.soc >= 100 {
		s.soc = 100
		s.chargeRequested = false
		s.chargeRateKW = 0
		return 0
	}

	s.chargeRateKW = rate
	return rate
}

// Snapshot is a point-in-time copy of the vehicle state.
type Snapshot struct {
	Connected         bool
	ChargeRequested   bool
	SoC               float64
	ChargeRateKW      float64
	Pilot             PilotState
	DirectMode        bool
	DirectCurrentAmps float64
	VarianceEnabled   bool
	DiodeCheckFailed  bool
}

// Snapshot returns a copy of the current vehicle state.
func (s *Simulator) Snapshot() Snapshot {
	return Snapshot{
		Connected:         s.connected,
		ChargeRequested:   s.chargeRequested,
		SoC:               s.soc,
		ChargeRateKW:      s.chargeRateKW,
		Pilot:             s.Pilot(),
		DirectMode:        s.directMode,
		DirectCurrentAmps: s.directCurrentAmps,
		VarianceEnabled:   s.varianceEnabled,
		DiodeCheckFailed:  s.diodeCheckFailed,
	}
}

func clampSoC(soc float64) float64 {
	switch {
	case soc < 0:
		return 0
	case soc > 100:
		return 100
	default:
		return soc
	}
}
