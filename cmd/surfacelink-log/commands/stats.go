package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByComponent map[log.Component]int
	EventsByCategory  map[log.Category]int
	Contexts          map[string]*ContextStats
	Endpoints         map[string]int
	Errors            int
	FailedSaves       int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ContextStats holds statistics for a single surface context.
type ContextStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Saves     int
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByComponent: make(map[log.Component]int),
		EventsByCategory:  make(map[log.Category]int),
		Contexts:          make(map[string]*ContextStats),
		Endpoints:         make(map[string]int),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		collect(stats, event)
	}

	printStats(w, stats)
	return nil
}

func collect(stats *Stats, event log.Event) {
	stats.TotalEvents++
	stats.EventsByComponent[event.Component]++
	stats.EventsByCategory[event.Category]++

	if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
		stats.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(stats.TimeRange.End) {
		stats.TimeRange.End = event.Timestamp
	}

	ctx, ok := stats.Contexts[event.ContextID]
	if !ok {
		ctx = &ContextStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		stats.Contexts[event.ContextID] = ctx
	}
	ctx.Events++
	if event.Timestamp.After(ctx.LastSeen) {
		ctx.LastSeen = event.Timestamp
	}

	if event.Endpoint != "" {
		stats.Endpoints[event.Endpoint]++
	}
	if event.Save != nil {
		ctx.Saves++
		if event.Save.Error != "" {
			stats.FailedSaves++
		}
	}
	if event.Error != nil {
		stats.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Sync-Layer Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Component:")
	for _, c := range []log.Component{log.ComponentBus, log.ComponentRegistry, log.ComponentSyncState, log.ComponentStream, log.ComponentScheduler} {
		if count := stats.EventsByComponent[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategorySave, log.CategoryError} {
		if count := stats.EventsByCategory[c]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Endpoints) > 0 {
		endpoints := make([]string, 0, len(stats.Endpoints))
		for ep := range stats.Endpoints {
			endpoints = append(endpoints, ep)
		}
		sort.Strings(endpoints)

		fmt.Fprintln(w, "Events by Endpoint:")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-24s %d\n", ep+":", stats.Endpoints[ep])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Contexts: %d\n", len(stats.Contexts))
	if len(stats.Contexts) > 0 {
		type ctxInfo struct {
			id    string
			stats *ContextStats
		}
		contexts := make([]ctxInfo, 0, len(stats.Contexts))
		for id, cs := range stats.Contexts {
			contexts = append(contexts, ctxInfo{id, cs})
		}
		sort.Slice(contexts, func(i, j int) bool {
			return contexts[i].stats.FirstSeen.Before(contexts[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, c := range contexts {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenContextID(c.id), c.stats.Events, duration)
			if c.stats.Saves > 0 {
				fmt.Fprintf(w, "             Saves: %d\n", c.stats.Saves)
			}
		}
	}

	if stats.Errors > 0 || stats.FailedSaves > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d (failed saves: %d)\n", stats.Errors, stats.FailedSaves)
	}
}
