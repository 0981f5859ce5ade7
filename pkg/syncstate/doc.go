// Package syncstate mirrors per-key application state across all
// surface contexts and into durable local storage.
//
// Each key is one topic with last-write-wins semantics: a later update
// unconditionally overwrites the current value in every context's view.
// There are no version vectors and no merge; two contexts setting the
// same key within the broadcast propagation window race, and whichever
// update lands last at each receiver wins there. That inconsistency
// window is an accepted property of the design, not a bug.
//
// A local Set writes the durable mirror, publishes a state-update on
// the bus, and notifies local observers exactly once. A state-update
// received from another context applies to observers and the mirror
// but is never re-published: the applying guard breaks the broadcast
// loop that would otherwise amplify every update forever.
//
// On first use of a key the bridge hydrates from the durable mirror,
// falling back to the caller-supplied initial value on absence or
// parse failure, so popouts and restarts come up with the last known
// state.
package syncstate
