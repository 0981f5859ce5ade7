// Package commands implements the surfacelink-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
)

// ParseComponentFlag parses a component name (case-insensitive).
func ParseComponentFlag(s string) (log.Component, error) {
	switch strings.ToLower(s) {
	case "bus":
		return log.ComponentBus, nil
	case "registry":
		return log.ComponentRegistry, nil
	case "syncstate":
		return log.ComponentSyncState, nil
	case "stream":
		return log.ComponentStream, nil
	case "scheduler":
		return log.ComponentScheduler, nil
	default:
		return 0, fmt.Errorf("invalid component: %s (must be bus, registry, syncstate, stream, or scheduler)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "save":
		return log.CategorySave, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, save, or error)", s)
	}
}

// RunView prints every matching event in human-readable form.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [ctx:id] COMPONENT CATEGORY label
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	ctx := shortenContextID(event.ContextID)

	var label string
	switch {
	case event.Frame != nil:
		label = event.Direction.String()
	case event.StateChange != nil:
		label = "Transition"
	case event.Save != nil:
		label = "Save"
	case event.Error != nil:
		label = "Error"
	default:
		label = ""
	}

	fmt.Fprintf(w, "%s [ctx:%s] %-9s %-7s %s\n",
		ts, ctx, event.Component, event.Category, label)

	if event.Endpoint != "" {
		fmt.Fprintf(w, "  Endpoint: %s\n", event.Endpoint)
	}
	if event.Key != "" {
		fmt.Fprintf(w, "  Key: %s\n", event.Key)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Save != nil:
		formatSaveDetails(w, event.Save)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenContextID returns the first 8 characters of the context ID.
func shortenContextID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", frame.Data)
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatSaveDetails(w io.Writer, save *log.SaveEvent) {
	fmt.Fprintf(w, "  Kind: %s  Session: %s\n", save.Kind, save.SessionID)
	if save.Duration > 0 {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(save.Duration))
	}
	if save.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", save.Error)
	}
}

func formatErrorDetails(w io.Writer, errEvent *log.ErrorEvent) {
	fmt.Fprintf(w, "  Message: %s\n", errEvent.Message)
	if errEvent.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", errEvent.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
