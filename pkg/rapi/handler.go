package rapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evsim-project/evsim-go/pkg/ev"
	"github.com/evsim-project/evsim-go/pkg/evse"
	"github.com/evsim-project/evsim-go/pkg/fault"
)

// Handler executes parsed commands against the station state. It performs
// no locking of its own; the engine serializes calls to Process together
// with simulation ticks.
type Handler struct {
	evse     *evse.Machine
	ev       *ev.Simulator
	faults   *fault.Registry
	commands map[string]command
}

// command declares the parameter arity of a code and its implementation.
// run returns the data fields of the response and whether the command
// succeeded. Handlers must not block.
type command struct {
	minParams int
	maxParams int
	run       func(h *Handler, params []string) (string, bool)
}

// NewHandler builds the dispatch table over the given station state.
func NewHandler(machine *evse.Machine, vehicle *ev.Simulator, faults *fault.Registry) *Handler {
	h := &Handler{
		evse:   machine,
		ev:     vehicle,
		faults: faults,
	}
	h.commands = map[string]command{
		"GS": {0, 0, (*Handler).cmdGetState},
		"GG": {0, 0, (*Handler).cmdGetChargingCurrent},
		"GP": {0, 0, (*Handler).cmdGetTemperatures},
		"GV": {0, 0, (*Handler).cmdGetVersion},
		"GU": {0, 0, (*Handler).cmdGetEnergyUsage},
		"GC": {0, 0, (*Handler).cmdGetCapacity},
		"GE": {0, 0, (*Handler).cmdGetSettings},
		"GF": {0, 0, (*Handler).cmdGetFaultCounters},
		"GT": {0, 0, (*Handler).cmdGetTimeLimit},
		"GH": {0, 0, (*Handler).cmdGetEnergyLimit},
		"SC": {1, 2, (*Handler).cmdSetCapacity},
		"SL": {1, 1, (*Handler).cmdSetServiceLevel},
		"SE": {1, 1, (*Handler).cmdSetEcho},
		"ST": {1, 1, (*Handler).cmdSetTimeLimit},
		"SH": {1, 1, (*Handler).cmdSetEnergyLimit},
		"FE": {0, 0, (*Handler).cmdEnable},
		"FD": {0, 0, (*Handler).cmdDisable},
		"FR": {0, 0, (*Handler).cmdReset},
		"F1": {0, 0, (*Handler).cmdSelfTestOn},
		"F0": {0, 0, (*Handler).cmdSelfTestOff},
	}
	return h
}

// Process handles one inbound line and returns the full wire response
// including the terminator. With echo enabled the raw line is repeated
// before the response, mirroring the physical device's debug behavior.
// Malformed lines never mutate state.
func (h *Handler) Process(line string) string {
	raw := strings.TrimRight(line, "\r\n")

	var prefix string
	if h.evse.Echo() && raw != "" {
		prefix = raw + LineEnding
	}

	cmd, err := ParseLine(line)
	if err != nil {
		return prefix + ResponseError + LineEnding
	}

	entry, ok := h.commands[cmd.Code]
	if !ok {
		return prefix + ResponseError + LineEnding
	}
	if len(cmd.Params) < entry.minParams || len(cmd.Params) > entry.maxParams {
		return prefix + ResponseError + LineEnding
	}

	data, ok := entry.run(h, cmd.Params)
	if !ok {
		return prefix + ResponseError + LineEnding
	}
	if data == "" {
		return prefix + ResponseOK + LineEnding
	}
	return prefix + ResponseOK + " " + data + LineEnding
}

func (h *Handler) cmdGetState(_ []string) (string, bool) {
	return fmt.Sprintf("%d %d", h.evse.State(), h.evse.SessionElapsedS()), true
}

func (h *Handler) cmdGetChargingCurrent(_ []string) (string, bool) {
	return fmt.Sprintf("%d %d %d %04X",
		h.evse.ChargeCurrentMA(), h.evse.VoltageMV(), h.evse.State(), h.evse.VFlags()), true
}

func (h *Handler) cmdGetTemperatures(_ []string) (string, bool) {
	ds, mcp := h.evse.Temperatures()
	dsErr, mcpErr := h.evse.SensorErrors()
	return fmt.Sprintf("%d %d %d %d", ds, mcp, boolBit(dsErr), boolBit(mcpErr)), true
}

func (h *Handler) cmdGetVersion(_ []string) (string, bool) {
	return h.evse.FirmwareVersion() + " " + h.evse.ProtocolVersion(), true
}

func (h *Handler) cmdGetEnergyUsage(_ []string) (string, bool) {
	wattSeconds := int(h.evse.SessionEnergyWh() * 3600)
	return fmt.Sprintf("%d %d", int(h.evse.LifetimeWh()), wattSeconds), true
}

func (h *Handler) cmdGetCapacity(_ []string) (string, bool) {
	return strconv.Itoa(h.evse.CurrentCapacity()), true
}

func (h *Handler) cmdGetSettings(_ []string) (string, bool) {
	return fmt.Sprintf("%d %04X", h.evse.CurrentCapacity(), h.evse.SettingsFlags()), true
}

func (h *Handler) cmdGetFaultCounters(_ []string) (string, bool) {
	return fmt.Sprintf("%d %d %d",
		h.faults.Count(fault.GFCITrip),
		h.faults.Count(fault.NoGround),
		h.faults.Count(fault.StuckRelay)), true
}

func (h *Handler) cmdGetTimeLimit(_ []string) (string, bool) {
	return strconv.Itoa(h.evse.TimeLimit()), true
}

func (h *Handler) cmdGetEnergyLimit(_ []string) (string, bool) {
	return strconv.Itoa(h.evse.EnergyLimit()), true
}

func (h *Handler) cmdSetCapacity(params []string) (string, bool) {
	amps, err := strconv.Atoi(params[0])
	if err != nil {
		return "", false
	}

	setMax := false
	if len(params) == 2 {
		switch strings.ToUpper(params[1]) {
		case "V":
			// Volatile set, not persisted. The emulator has no EEPROM, so
			// it behaves like a plain set.
		case "M":
			setMax = true
		default:
			return "", false
		}
	}

	if setMax {
		if err := h.evse.SetMaxCurrent(amps); err != nil {
			return "", false
		}
		return "", true
	}
	if _, err := h.evse.SetCurrentCapacity(amps); err != nil {
		return "", false
	}
	return "", true
}

func (h *Handler) cmdSetServiceLevel(params []string) (string, bool) {
	level, err := evse.ParseLevel(params[0])
	if err != nil {
		return "", false
	}
	h.evse.SetServiceLevel(level)
	return "", true
}

func (h *Handler) cmdSetEcho(params []string) (string, bool) {
	switch params[0] {
	case "0":
		h.evse.SetEcho(false)
	case "1":
		h.evse.SetEcho(true)
	default:
		return "", false
	}
	return "", true
}

func (h *Handler) cmdSetTimeLimit(params []string) (string, bool) {
	minutes, err := strconv.Atoi(params[0])
	if err != nil || minutes < 0 {
		return "", false
	}
	h.evse.SetTimeLimit(minutes)
	return "", true
}

func (h *Handler) cmdSetEnergyLimit(params []string) (string, bool) {
	kwh, err := strconv.Atoi(params[0])
	if err != nil || kwh < 0 {
		return "", false
	}
	h.evse.SetEnergyLimit(kwh)
	return "", true
}

func (h *Handler) cmdEnable(_ []string) (string, bool) {
	if err := h.evse.Enable(); err != nil {
		return "", false
	}
	return "", true
}

func (h *Handler) cmdDisable(_ []string) (string, bool) {
	h.evse.Disable()
	return "", true
}

func (h *Handler) cmdReset(_ []string) (string, bool) {
	h.evse.Reset()
	h.ev.RequestCharge(false)
	return "", true
}

func (h *Handler) cmdSelfTestOn(_ []string) (string, bool) {
	h.evse.SetGFCISelfTest(true)
	return "", true
}

func (h *Handler) cmdSelfTestOff(_ []string) (string, bool) {
	h.evse.SetGFCISelfTest(false)
	return "", true
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
