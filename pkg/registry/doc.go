// Package registry tracks which surface contexts (windows) are alive
// on the host.
//
// Membership is built entirely on the broadcast bus: there is no
// central coordinator. Each context announces itself with a register
// envelope, heartbeats with ping, and answers foreign pings with pong
// so late joiners discover existing contexts. An eviction sweep removes
// entries that have not been seen within the eviction timeout; this is
// the only mechanism that detects a context that died without
// unregistering.
//
// The timeout is deliberately much larger than the heartbeat period, so
// one or two missed heartbeats never evict a live context. A falsely
// evicted context reappears on its next heartbeat and the table
// self-heals.
//
// The membership table is owned exclusively by the Registry; other
// components observe it through OnJoin/OnLeave callbacks or Members
// snapshots, never by direct mutation.
package registry
