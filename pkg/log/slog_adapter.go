package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes sync-layer events to an slog.Logger. Useful during
// development when you want events on the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger. Errors are logged at Warn
// level, everything else at Debug.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("context_id", event.ContextID),
		slog.String("component", event.Component.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", event.Endpoint))
	}
	if event.Key != "" {
		attrs = append(attrs, slog.String("key", event.Key))
	}

	level := slog.LevelDebug

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("direction", event.Direction.String()),
			slog.Int("size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Save != nil:
		attrs = append(attrs,
			slog.String("save_kind", event.Save.Kind),
			slog.String("session_id", event.Save.SessionID),
			slog.Duration("duration", event.Save.Duration),
		)
		if event.Save.Error != "" {
			attrs = append(attrs, slog.String("error", event.Save.Error))
			level = slog.LevelWarn
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		level = slog.LevelWarn
	}

	a.logger.LogAttrs(context.Background(), level, "sync", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
