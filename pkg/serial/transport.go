// Package serial provides the virtual serial link of the emulator: a
// transport abstraction with a PTY and a TCP backend, CR-terminated line
// framing, and the reconnecting port loop that feeds lines to the engine
// and writes responses and asynchronous notifications back.
package serial

import (
	"context"
	"errors"
)

var (
	// ErrTransportClosed is returned by Open after Close.
	ErrTransportClosed = errors.New("transport closed")
	// ErrSessionClosed is returned by session reads/writes after the
	// session ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrLineTooLong is returned when an inbound line exceeds the frame
	// limit. The session stays usable; the oversized line is discarded.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// Transport produces byte-channel sessions. The PTY backend hands out one
// session per allocated device; the TCP backend hands out one session per
// accepted client, displacing the previous client when a new one connects.
type Transport interface {
	// Open blocks until the next session is available. It returns
	// ErrTransportClosed after Close and the context error on
	// cancellation.
	Open(ctx context.Context) (Session, error)

	// Name identifies the backend ("pty" or "tcp") for capture events.
	Name() string

	// Close releases the backend and interrupts a pending Open.
	Close() error
}

// Session is one established serial conversation.
type Session interface {
	// ID is the connection UUID used to correlate capture events.
	ID() string

	// RemoteAddr describes the peer: the client address for TCP, the
	// device path for PTY.
	RemoteAddr() string

	// ReadLine blocks until a full CR- or LF-terminated line arrives and
	// returns it without the terminator. Empty lines are skipped.
	ReadLine() (string, error)

	// Write sends raw bytes to the peer. Safe for concurrent use, so
	// responses and asynchronous notifications may interleave safely.
	Write(p []byte) error

	// Close ends the session and interrupts a blocked ReadLine.
	Close() error
}
