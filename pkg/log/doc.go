// Package log provides structured event logging for the synchronization
// layer.
//
// Components emit Event values describing broadcast traffic, connection
// state changes, save attempts and errors. Applications choose where
// events go by supplying a Logger implementation:
//
//   - FileLogger writes CBOR-encoded events to a capture file
//   - SlogAdapter forwards events to a log/slog logger for the console
//   - MultiLogger fans out to several loggers at once
//   - NoopLogger discards everything
//
// Capture files use integer CBOR keys for compactness and can be read
// back with Reader, optionally filtered by context, component, category
// or time range. The surfacelink-log command is a thin CLI over Reader.
//
// Logging is never load-bearing: implementations must not block the
// caller for long, and encoding failures are swallowed.
package log
