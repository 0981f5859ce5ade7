package log

// Logger is the interface components use to emit sync-layer events.
// Pass nil-safe NoopLogger to disable logging.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent
	// use and should return quickly; blocking affects the event loop.
	Log(event Event)
}

// NoopLogger discards all events. Usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
