// Package evse models the charging station itself: the J1772 state machine,
// the session clock and meter, the current capacity settings and the
// simulated temperature sensors.
package evse

import (
	"errors"

	"github.com/evsim-project/evsim-go/pkg/ev"
	"github.com/evsim-project/evsim-go/pkg/fault"
)

// Hardware limits of the emulated controller.
const (
	// MinCurrentAmps is the lowest pilot current the hardware can advertise.
	MinCurrentAmps = 6
	// MaxCurrentAmps is the highest pilot current the hardware can advertise.
	MaxCurrentAmps = 80
)

// Temperature model constants, in tenths of a degree Celsius.
const (
	ambientTempDeciC  = 200
	overTempDeciC     = 650
	warmRateDeciCPerS = 0.5
	coolRateDeciCPerS = 2.0
)

var (
	// ErrCurrentOutOfRange is returned when a capacity setting lies outside
	// the hardware range.
	ErrCurrentOutOfRange = errors.New("current capacity outside hardware range")
	// ErrFaulted is returned when an operation requires a fault-free EVSE.
	ErrFaulted = errors.New("evse has active faults")
)

// Config carries the build-time parameters of the emulated station.
type Config struct {
	// FirmwareVersion reported by the version query.
	FirmwareVersion string
	// ProtocolVersion reported by the version query.
	ProtocolVersion string
	// MaxCurrentAmps is the configured maximum pilot current.
	MaxCurrentAmps int
	// ServiceLevel selects the line voltage.
	ServiceLevel Level
	// GFCISelfTest enables the startup GFCI self test.
	GFCISelfTest bool
	// TemperatureSim enables the thermal model and over-temperature trips.
	TemperatureSim bool
}

// Machine is the charging-station state. It is not safe for concurrent use;
// the engine serializes all access to it together with the rest of the
// device state.
type Machine struct {
	cfg    Config
	faults *fault.Registry

	state    State // physical J1772 state, never Sleep or Error
	sleeping bool

	capacityAmps int
	maxAmps      int
	level        Level

	chargeCurrentMA int

	echo           bool
	gfciSelfTest   bool
	timeLimitMin   int
	energyLimitKWh int

	sessionElapsedS float64
	sessionEnergyWh float64
	lifetimeWh      float64

	tempDSDeciC  float64
	tempMCPDeciC float64
	tempDSErr    bool
	tempMCPErr   bool
}

// NewMachine creates a station in the ready state with the session meter at
// zero and both temperature sensors at ambient.
func NewMachine(cfg Config, faults *fault.Registry) *Machine {
	if cfg.MaxCurrentAmps < MinCurrentAmps || cfg.MaxCurrentAmps > MaxCurrentAmps {
		cfg.MaxCurrentAmps = 32
	}
	return &Machine{
		cfg:          cfg,
		faults:       faults,
		state:        StateReady,
		capacityAmps: cfg.MaxCurrentAmps,
		maxAmps:      cfg.MaxCurrentAmps,
		level:        cfg.ServiceLevel,
		gfciSelfTest: cfg.GFCISelfTest,
		tempDSDeciC:  ambientTempDeciC,
		tempMCPDeciC: ambientTempDeciC,
	}
}

// State returns the effective state: any active fault forces StateError,
// sleep overrides the physical state, otherwise the physical state stands.
func (m *Machine) State() State {
	if m.faults.Faulted() {
		return StateError
	}
	if m.sleeping {
		return StateSleep
	}
	return m.state
}

// ApplyPilot recomputes the physical J1772 state from the pilot the vehicle
// presents. Pilot state D latches the diode check fault.
func (m *Machine) ApplyPilot(p ev.PilotState) {
	switch p {
	case ev.PilotDisconnected:
		m.state = StateReady
	case ev.PilotConnected:
		m.state = StateConnected
	case ev.PilotCharging:
		m.state = StateCharging
	case ev.PilotVentilation:
		m.state = StateVentRequired
		if !m.faults.IsActive(fault.DiodeCheckFailed) {
			m.faults.Trigger(fault.DiodeCheckFailed)
		}
	}
}

// NoteTransition updates the session clock for a committed effective state
// change. Entering StateCharging resets the clock and the session meter;
// leaving it freezes both.
func (m *Machine) NoteTransition(old, next State) {
	if next == StateCharging && old != StateCharging {
		m.sessionElapsedS = 0
		m.sessionEnergyWh = 0
	}
	if next != StateCharging {
		m.chargeCurrentMA = 0
	}
}

// Advance moves the station model forward by dt seconds. chargeRateKW is the
// rate the vehicle accepted this tick; it only applies while the effective
// state is StateCharging.
func (m *Machine) Advance(chargeRateKW float64, dt float64) {
	if dt <= 0 {
		return
	}

	charging := m.State() == StateCharging
	if charging {
		m.sessionElapsedS += dt
		wh := chargeRateKW * 1000 * dt / 3600
		m.sessionEnergyWh += wh
		m.lifetimeWh += wh
		m.chargeCurrentMA = int(chargeRateKW * 1e9 / float64(m.VoltageMV()))
	} else {
		m.chargeCurrentMA = 0
	}

	if m.cfg.TemperatureSim {
		m.advanceTemperature(charging, dt)
	}
}

func (m *Machine) advanceTemperature(charging bool, dt float64) {
	if charging {
		m.tempDSDeciC = warmToward(m.tempDSDeciC, overTempDeciC, warmRateDeciCPerS*dt)
		m.tempMCPDeciC = warmToward(m.tempMCPDeciC, overTempDeciC, warmRateDeciCPerS*dt)
	} else {
		m.tempDSDeciC = coolToward(m.tempDSDeciC, ambientTempDeciC, coolRateDeciCPerS*dt)
		m.tempMCPDeciC = coolToward(m.tempMCPDeciC, ambientTempDeciC, coolRateDeciCPerS*dt)
	}

	// The over-temperature trip latches; it is never cleared automatically.
	if m.tempDSDeciC >= overTempDeciC || m.tempMCPDeciC >= overTempDeciC {
		if !m.faults.IsActive(fault.OverTemperature) {
			m.faults.Trigger(fault.OverTemperature)
		}
	}
}

func warmToward(current, target, step float64) float64 {
	if current+step >= target {
		return target
	}
	return current + step
}

func coolToward(current, target, step float64) float64 {
	if current-step <= target {
		return target
	}
	return current - step
}

// SetCurrentCapacity changes the advertised pilot current. Values outside
// the hardware range are rejected; values above the configured maximum are
// clamped to it. The applied value is returned.
func (m *Machine) SetCurrentCapacity(amps int) (int, error) {
	if amps < MinCurrentAmps || amps > MaxCurrentAmps {
		return 0, ErrCurrentOutOfRange
	}
	if amps > m.maxAmps {
		amps = m.maxAmps
	}
	m.capacityAmps = amps
	return amps, nil
}

// SetMaxCurrent changes the configured maximum pilot current and clamps the
// advertised capacity to it.
func (m *Machine) SetMaxCurrent(amps int) error {
	if amps < MinCurrentAmps || amps > MaxCurrentAmps {
		return ErrCurrentOutOfRange
	}
	m.maxAmps = amps
	if m.capacityAmps > amps {
		m.capacityAmps = amps
	}
	return nil
}

// CurrentCapacity returns the advertised pilot current in amps.
func (m *Machine) CurrentCapacity() int {
	return m.capacityAmps
}

// MaxCurrent returns the configured maximum pilot current in amps.
func (m *Machine) MaxCurrent() int {
	return m.maxAmps
}

// SetServiceLevel changes the service level and with it the line voltage.
func (m *Machine) SetServiceLevel(l Level) {
	m.level = l
}

// ServiceLevel returns the configured service level.
func (m *Machine) ServiceLevel() Level {
	return m.level
}

// VoltageMV returns the line voltage in millivolts.
func (m *Machine) VoltageMV() int {
	return m.level.VoltageMV()
}

// ChargeCurrentMA returns the measured charge current in milliamps.
func (m *Machine) ChargeCurrentMA() int {
	return m.chargeCurrentMA
}

// Enable wakes the station from sleep. It fails while faults are active.
func (m *Machine) Enable() error {
	if m.faults.Faulted() {
		return ErrFaulted
	}
	m.sleeping = false
	return nil
}

// Disable puts the station to sleep. Charging stops until Enable.
func (m *Machine) Disable() {
	m.sleeping = true
}

// Sleeping reports whether the station was disabled by command.
func (m *Machine) Sleeping() bool {
	return m.sleeping
}

// Reset restores the configured defaults: capacity, service level, echo and
// limits. The session clock and meter restart from zero. Fault flags and
// counters are untouched.
func (m *Machine) Reset() {
	m.capacityAmps = m.cfg.MaxCurrentAmps
	m.maxAmps = m.cfg.MaxCurrentAmps
	m.level = m.cfg.ServiceLevel
	m.gfciSelfTest = m.cfg.GFCISelfTest
	m.echo = false
	m.timeLimitMin = 0
	m.energyLimitKWh = 0
	m.sleeping = false
	m.sessionElapsedS = 0
	m.sessionEnergyWh = 0
	m.chargeCurrentMA = 0
}

// SetEcho enables or disables command echo.
func (m *Machine) SetEcho(on bool) {
	m.echo = on
}

// Echo reports whether command echo is enabled.
func (m *Machine) Echo() bool {
	return m.echo
}

// SetGFCISelfTest enables or disables the GFCI self test.
func (m *Machine) SetGFCISelfTest(on bool) {
	m.gfciSelfTest = on
}

// GFCISelfTest reports whether the GFCI self test is enabled.
func (m *Machine) GFCISelfTest() bool {
	return m.gfciSelfTest
}

// SetTimeLimit sets the charge time limit in minutes. Zero disables it.
func (m *Machine) SetTimeLimit(minutes int) {
	m.timeLimitMin = minutes
}

// TimeLimit returns the charge time limit in minutes.
func (m *Machine) TimeLimit() int {
	return m.timeLimitMin
}

// SetEnergyLimit sets the charge energy limit in kWh. Zero disables it.
func (m *Machine) SetEnergyLimit(kwh int) {
	m.energyLimitKWh = kwh
}

// EnergyLimit returns the charge energy limit in kWh.
func (m *Machine) EnergyLimit() int {
	return m.energyLimitKWh
}

// SessionElapsedS returns the session clock in whole seconds.
func (m *Machine) SessionElapsedS() int {
	return int(m.sessionElapsedS)
}

// SessionEnergyWh returns the energy metered in the current session.
func (m *Machine) SessionEnergyWh() float64 {
	return m.sessionEnergyWh
}

// LifetimeWh returns the energy metered since startup.
func (m *Machine) LifetimeWh() float64 {
	return m.lifetimeWh
}

// Temperatures returns the two sensor readings in tenths of a degree
// Celsius.
func (m *Machine) Temperatures() (ds, mcp int) {
	return int(m.tempDSDeciC), int(m.tempMCPDeciC)
}

// SetSensorErrors injects read failures on the temperature sensors.
func (m *Machine) SetSensorErrors(ds, mcp bool) {
	m.tempDSErr = ds
	m.tempMCPErr = mcp
}

// SensorErrors reports the per-sensor failure flags.
func (m *Machine) SensorErrors() (ds, mcp bool) {
	return m.tempDSErr, m.tempMCPErr
}

// FirmwareVersion returns the configured firmware version string.
func (m *Machine) FirmwareVersion() string {
	return m.cfg.FirmwareVersion
}

// ProtocolVersion returns the configured protocol version string.
func (m *Machine) ProtocolVersion() string {
	return m.cfg.ProtocolVersion
}

// VFlags returns the 16-bit status word: active fault bits plus the
// connected and charging indicators.
func (m *Machine) VFlags() uint16 {
	flags := uint16(m.faults.Active())
	switch m.state {
	case StateCharging:
		flags |= VFlagConnected | VFlagCharging
	case StateConnected, StateVentRequired:
		flags |= VFlagConnected
	}
	return flags
}

// SettingsFlags returns the settings word reported by the capacity query.
func (m *Machine) SettingsFlags() uint16 {
	var flags uint16
	if m.level != Level1 {
		flags |= settingsFlagLevel2
	}
	if !m.gfciSelfTest {
		flags |= settingsFlagNoSelfTest
	}
	if m.echo {
		flags |= settingsFlagEchoEnabled
	}
	return flags
}

// Snapshot is a point-in-time copy of the station state.
type Snapshot struct {
	State           State
	Sleeping        bool
	CapacityAmps    int
	MaxAmps         int
	ServiceLevel    Level
	VoltageMV       int
	ChargeCurrentMA int
	Echo            bool
	GFCISelfTest    bool
	TimeLimitMin    int
	EnergyLimitKWh  int
	SessionElapsedS int
	SessionEnergyWh float64
	LifetimeWh      float64
	TempDSDeciC     int
	TempMCPDeciC    int
	TempDSErr       bool
	TempMCPErr      bool
	VFlags          uint16
	FirmwareVersion string
	ProtocolVersion string
}

// Snapshot returns a copy of the current station state.
func (m *Machine) Snapshot() Snapshot {
	ds, mcp := m.Temperatures()
	return Snapshot{
		State:           m.State(),
		Sleeping:        m.sleeping,
		CapacityAmps:    m.capacityAmps,
		MaxAmps:         m.maxAmps,
		ServiceLevel:    m.level,
		VoltageMV:       m.VoltageMV(),
		ChargeCurrentMA: m.chargeCurrentMA,
		Echo:            m.echo,
		GFCISelfTest:    m.gfciSelfTest,
		TimeLimitMin:    m.timeLimitMin,
		EnergyLimitKWh:  m.energyLimitKWh,
		SessionElapsedS: m.SessionElapsedS(),
		SessionEnergyWh: m.sessionEnergyWh,
		LifetimeWh:      m.lifetimeWh,
		TempDSDeciC:     ds,
		TempMCPDeciC:    mcp,
		TempDSErr:       m.tempDSErr,
		TempMCPErr:      m.tempMCPErr,
		VFlags:          m.VFlags(),
		FirmwareVersion: m.cfg.FirmwareVersion,
		ProtocolVersion: m.cfg.ProtocolVersion,
	}
}
