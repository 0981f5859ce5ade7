// Package store holds the in-memory session state of a surface
// context: the session document that persistence writes to disk, the
// dirty flag that drives the autosave debounce, and the latest
// telemetry frames for the UI to render.
//
// Session mutations mark the store dirty; the dirty flag fires its
// handlers only on the clean-to-dirty transition, so a burst of edits
// arms exactly one autosave. Telemetry is ephemeral engine output and
// never dirties the store.
package store
