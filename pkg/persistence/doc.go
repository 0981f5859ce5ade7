// Package persistence writes session documents to disk: one live file
// per session plus timestamped snapshot checkpoints for crash recovery
// and session history.
package persistence
