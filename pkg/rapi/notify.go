package rapi

import (
	"fmt"

	"github.com/evsim-project/evsim-go/pkg/ev"
	"github.com/evsim-project/evsim-go/pkg/evse"
)

// Asynchronous notifications always carry a checksum; synchronous responses
// never do. Clients use the checksum to tell unsolicited lines apart from
// command responses.

// BootNotification formats the "$AB" line announcing the firmware after the
// transport comes up.
func BootNotification(firmware string) string {
	return AppendChecksum("$AB 00 "+firmware) + LineEnding
}

// StateTransition formats the "$AT" line announcing a committed state
// change: the new state and pilot as two hex digits each, the advertised
// capacity in decimal and the status word as four hex digits.
func StateTransition(state evse.State, pilot ev.PilotState, capacityAmps int, vflags uint16) string {
	payload := fmt.Sprintf("$AT %02X %02X %d %04X", uint8(state), byte(pilot), capacityAmps, vflags)
	return AppendChecksum(payload) + LineEnding
}
