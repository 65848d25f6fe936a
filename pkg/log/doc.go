// Package log provides structured protocol capture for the emulator.
//
// This package defines the Logger interface and Event types for recording
// serial traffic and state machine activity. It is separate from operational
// logging (slog) - protocol capture produces a complete machine-readable
// trace of every line on the wire and every committed state transition,
// suitable for replay and post-mortem analysis.
//
// # Basic Usage
//
// Components receive a Logger at construction:
//
//	// For development: events on the console via slog
//	logger := log.NewSlogAdapter(slog.Default())
//
//	// For capture: CBOR events in a file
//	logger, _ := log.NewFileLogger("/var/log/evsim/session.rlog")
//
//	// Both at once
//	logger := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a raw concatenation of CBOR-encoded events with integer
// map keys. Reader streams them back, optionally filtered.
package log
