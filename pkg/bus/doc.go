// Package bus implements the broadcast channel shared by all surface
// contexts on one host.
//
// The bus is pure fan-out: publish is best-effort, fire-and-forget, and
// unacknowledged. There is no membership concept here; the window
// registry builds membership on top by multiplexing its own envelope
// kinds over the same channel.
//
// The default medium is loopback UDP multicast, so every surface
// process on the host sees every envelope. Tests and single-window
// setups use MemoryHub instead. If the multicast socket cannot be
// opened, construction still succeeds: the bus degrades to a no-op and
// surfaces one warning, so a missing broadcast primitive never takes
// the application down.
//
// Delivery guarantees match the medium: envelopes from one sender
// arrive in publish order, envelopes from different senders have no
// relative order, and any envelope may be silently lost.
package bus
