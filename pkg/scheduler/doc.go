// Package scheduler drives session persistence: a debounced autosave
// armed by the store's clean-to-dirty transition, a periodic snapshot
// checkpoint, and manual saves.
//
// All three paths share one in-flight guard so at most one save runs
// at a time. An autosave that finds the guard taken re-arms its
// debounce; a snapshot that finds it taken skips the tick; a manual
// save reports ErrSaveInFlight.
//
// Autosave failures are surfaced to the user through the Notifier and
// retried; snapshot failures are logged only, the next tick tries
// again.
package scheduler
