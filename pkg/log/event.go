package log

import "time"

// Event is one captured protocol event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport session (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates line flow relative to the emulator.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Transport names the backend ("pty" or "tcp").
	Transport string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address for TCP sessions.
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (exactly one is set).
	Line        *LineEvent        `cbor:"8,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"`
}

// Direction indicates the direction of line flow.
type Direction uint8

const (
	// DirectionIn is a line received from the client.
	DirectionIn Direction = 0
	// DirectionOut is a line sent to the client.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the byte/line framing layer.
	LayerTransport Layer = 0
	// LayerProtocol is the command/response layer.
	LayerProtocol Layer = 1
	// LayerEngine is the state machine layer.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryLine is a protocol line on the wire.
	CategoryLine Category = 0
	// CategoryNotification is an unsolicited outbound line.
	CategoryNotification Category = 1
	// CategoryState is a state change.
	CategoryState Category = 2
	// CategoryError is an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryLine:
		return "LINE"
	case CategoryNotification:
		return "NOTIFICATION"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LineEvent captures one line of serial traffic.
type LineEvent struct {
	// Text is the line without its terminator (may be truncated).
	Text string `cbor:"1,keyasint"`

	// Size is the original line length in bytes.
	Size int `cbor:"2,keyasint"`

	// Truncated indicates whether Text was shortened for capture.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// Code is the parsed command code for inbound lines.
	Code string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures a committed state change.
type StateChangeEvent struct {
	// Entity that changed state.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the state after the change.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection is a transport session state change.
	StateEntityConnection StateEntity = 0
	// StateEntityEvse is a charging-state change.
	StateEntityEvse StateEntity = 1
	// StateEntityFault is a fault flag change.
	StateEntityFault StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityEvse:
		return "EVSE"
	case StateEntityFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
