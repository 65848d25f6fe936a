package log

// Logger is the interface components use to emit protocol events.
// Pass NoopLogger to disable capture.
type Logger interface {
	// Log records a protocol event. Implementations must be safe for
	// concurrent use and should return quickly; blocking stalls the
	// serial read loop.
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}

// OrNoop returns the given logger, or NoopLogger if it is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}
