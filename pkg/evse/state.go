package evse

import "fmt"

// State is an EVSE state code as reported on the wire.
type State uint8

const (
	// StateReady means no vehicle is connected (J1772 state A).
	StateReady State = 0x01
	// StateConnected means a vehicle is connected but not charging (B).
	StateConnected State = 0x02
	// StateCharging means energy is being transferred (C).
	StateCharging State = 0x03
	// StateVentRequired means the vehicle requires ventilation (D).
	StateVentRequired State = 0x04
	// StateSleep means the EVSE was disabled by command.
	StateSleep State = 0xFD
	// StateError means at least one fault is active.
	StateError State = 0xFE
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateConnected:
		return "connected"
	case StateCharging:
		return "charging"
	case StateVentRequired:
		return "vent_required"
	case StateSleep:
		return "sleep"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("unknown(0x%02X)", uint8(s))
	}
}

// Level is the electrical service level of the installation.
type Level uint8

const (
	// LevelAuto lets the EVSE pick the service level. It resolves to L2.
	LevelAuto Level = 0
	// Level1 is a 120 V installation.
	Level1 Level = 1
	// Level2 is a 240 V installation.
	Level2 Level = 2
)

// String returns the RAPI encoding of the level: "1", "2" or "A".
func (l Level) String() string {
	switch l {
	case Level1:
		return "1"
	case Level2:
		return "2"
	default:
		return "A"
	}
}

// VoltageMV returns the nominal line voltage for the level in millivolts.
func (l Level) VoltageMV() int {
	if l == Level1 {
		return 120000
	}
	return 240000
}

// ParseLevel parses the RAPI service level encoding.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "1":
		return Level1, nil
	case "2":
		return Level2, nil
	case "A", "a":
		return LevelAuto, nil
	default:
		return 0, fmt.Errorf("invalid service level %q", s)
	}
}

// Status word bits reported alongside the state.
const (
	// VFlagCharging is set while energy is being transferred.
	VFlagCharging uint16 = 0x0040
	// VFlagConnected is set while a vehicle is connected.
	VFlagConnected uint16 = 0x0100
)

// Settings word bits reported by the capacity query.
const (
	settingsFlagLevel2      uint16 = 0x0001
	settingsFlagNoSelfTest  uint16 = 0x0020
	settingsFlagEchoEnabled uint16 = 0x0100
)
