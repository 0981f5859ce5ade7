// Package wire defines the message formats used by the synchronization
// layer: the broadcast envelope exchanged between surface contexts, and
// the telemetry frames delivered by the audio engine.
//
// Both formats are JSON. Envelopes and frames are tagged unions: every
// message carries a discriminator ("kind" for envelopes, "type" for
// frames) and decoding dispatches on it, so adding a new message kind is
// a compile-visible change at every dispatch site.
//
// # Envelopes
//
// All cross-context traffic multiplexes over one broadcast channel.
// The envelope kinds are:
//
//   - register / unregister: context lifecycle announcements
//   - ping / pong: membership heartbeat and discovery
//   - state-update: synced-state mutation for a single key
//
// The origin field carries the sender's context ID and is used for
// self-echo suppression: a context never processes its own envelopes.
//
// # Telemetry frames
//
// Frames are newline-delimited JSON documents. Each stream endpoint
// delivers exactly one frame type (transport position, per-track level
// meters, spectrum bins, waveform tiles, engine analytics).
//
// Delivery is best-effort in both directions: envelopes may be lost on
// the broadcast medium and frames may be lost across a reconnect. No
// format in this package is a source of truth.
package wire
