// Package fault tracks EVSE safety fault conditions.
//
// The registry keeps two pieces of state per condition: whether it is
// currently active, and a monotonic counter of how many times it has been
// triggered since startup. Counters never reset, not even on a device reset.
package fault

import "strings"

// Flag identifies a single fault condition. Flags combine into a bitmask
// matching the low byte of the EVSE status word.
type Flag uint16

const (
	GFCITrip           Flag = 0x0001
	StuckRelay         Flag = 0x0002
	NoGround           Flag = 0x0004
	DiodeCheckFailed   Flag = 0x0008
	OverTemperature    Flag = 0x0010
	GFCISelfTestFailed Flag = 0x0020
)

// allFlags lists every known flag in bit order.
var allFlags = []Flag{
	GFCITrip,
	StuckRelay,
	NoGround,
	DiodeCheckFailed,
	OverTemperature,
	GFCISelfTestFailed,
}

var flagNames = map[Flag]string{
	GFCITrip:           "gfci_trip",
	StuckRelay:         "stuck_relay",
	NoGround:           "no_ground",
	DiodeCheckFailed:   "diode_check_failed",
	OverTemperature:    "over_temperature",
	GFCISelfTestFailed: "gfci_self_test_failed",
}

// String returns the name of a single flag, or a "|" separated list for a
// combined mask.
func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, known := range allFlags {
		if f&known != 0 {
			parts = append(parts, flagNames[known])
		}
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// Flags returns every defined fault flag in bit order.
func Flags() []Flag {
	out := make([]Flag, len(allFlags))
	copy(out, allFlags)
	return out
}

// ParseFlag resolves a fault name as used by the operator console.
func ParseFlag(name string) (Flag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range flagNames {
		if n == name {
			return f, true
		}
	}
	// Short aliases used interactively.
	switch name {
	case "gfci":
		return GFCITrip, true
	case "relay":
		return StuckRelay, true
	case "ground":
		return NoGround, true
	case "diode":
		return DiodeCheckFailed, true
	case "temp", "overtemp":
		return OverTemperature, true
	case "selftest":
		return GFCISelfTestFailed, true
	}
	return 0, false
}

// Registry holds the active fault mask and per-fault trip counters.
//
// Registry is not safe for concurrent use; the engine serializes all access
// to it together with the rest of the device state.
type Registry struct {
	active Flag
	counts map[Flag]uint32
}

// NewRegistry returns an empty registry with all counters at zero.
func NewRegistry() *Registry {
	counts := make(map[Flag]uint32, len(allFlags))
	for _, f := range allFlags {
		counts[f] = 0
	}
	return &Registry{counts: counts}
}

// Trigger activates the fault and increments its trip counter. Triggering an
// already-active fault increments the counter again.
func (r *Registry) Trigger(f Flag) {
	for _, known := range allFlags {
		if f&known != 0 {
			r.active |= known
			r.counts[known]++
		}
	}
}

// Set activates the fault without touching its counter. Used when restoring
// a condition that is already being counted, such as a latched over-temp
// check re-evaluated every tick.
func (r *Registry) Set(f Flag) {
	r.active |= f
}

// Clear deactivates the fault. The trip counter is retained.
func (r *Registry) Clear(f Flag) {
	r.active &^= f
}

// ClearAll deactivates every fault. All counters are retained.
func (r *Registry) ClearAll() {
	r.active = 0
}

// Active returns the current fault mask.
func (r *Registry) Active() Flag {
	return r.active
}

// IsActive reports whether any of the given flags is active.
func (r *Registry) IsActive(f Flag) bool {
	return r.active&f != 0
}

// Faulted reports whether any fault at all is active.
func (r *Registry) Faulted() bool {
	return r.active != 0
}

// Count returns the number of times the fault has been triggered.
func (r *Registry) Count(f Flag) uint32 {
	return r.counts[f]
}

// Counts returns a copy of all trip counters.
func (r *Registry) Counts() map[Flag]uint32 {
	out := make(map[Flag]uint32, len(r.counts))
	for f, c := range r.counts {
		out[f] = c
	}
	return out
}
