// Package telemetry binds the engine's stream endpoints to the session
// store. A Feed subscribes each telemetry endpoint through the shared
// connection manager, decodes the tagged frame union into its concrete
// type, applies every frame to the store in arrival order, and fans the
// typed frames out to registered observers.
//
// Frames with an unknown discriminator are logged and dropped; a
// telemetry feed never takes a connection down over bad data.
package telemetry
