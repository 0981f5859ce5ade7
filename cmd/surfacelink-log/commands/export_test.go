package commands

import (
	"bufio"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
)

func TestExportJSONL(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ContextID: "ctx-1", Component: log.ComponentBus, Category: log.CategoryMessage, Key: "mixer.zoom"},
		{Timestamp: ts, ContextID: "ctx-1", Component: log.ComponentStream, Category: log.CategoryMessage, Endpoint: "/stream/meters"},
	}

	path := createTestCaptureFile(t, events)
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, log.Filter{}, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
		if !strings.HasPrefix(scanner.Text(), "{") {
			t.Errorf("line %d is not a JSON object: %s", lines, scanner.Text())
		}
	}
	if lines != 2 {
		t.Errorf("exported %d lines, want 2", lines)
	}
}

func TestExportCSV(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ContextID: "ctx-1", Component: log.ComponentScheduler, Category: log.CategorySave,
			Save: &log.SaveEvent{Kind: "manual", SessionID: "s1"}},
	}

	path := createTestCaptureFile(t, events)
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, log.Filter{}, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("csv has %d rows, want header + 1", len(rows))
	}
	if rows[0][0] != "timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][7] != "save" {
		t.Errorf("event type = %q, want save", rows[1][7])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestCaptureFile(t, []log.Event{{Timestamp: time.Now()}})

	if err := RunExport(path, log.Filter{}, "xml", ""); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFilterWritesNewCapture(t *testing.T) {
	ts := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, ContextID: "ctx-keep", Component: log.ComponentBus, Category: log.CategoryMessage},
		{Timestamp: ts, ContextID: "ctx-drop", Component: log.ComponentBus, Category: log.CategoryMessage},
		{Timestamp: ts, ContextID: "ctx-keep", Component: log.ComponentStream, Category: log.CategoryState},
	}

	path := createTestCaptureFile(t, events)
	out := filepath.Join(t.TempDir(), "filtered.slcap")

	count, err := RunFilter(path, log.Filter{ContextID: "ctx-keep"}, out)
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if count != 2 {
		t.Errorf("wrote %d events, want 2", count)
	}

	// The output must be a readable capture file.
	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("NewReader on filtered output: %v", err)
	}
	defer reader.Close()

	got := 0
	for {
		event, err := reader.Next()
		if err != nil {
			break
		}
		got++
		if event.ContextID != "ctx-keep" {
			t.Errorf("filtered file contains context %q", event.ContextID)
		}
	}
	if got != 2 {
		t.Errorf("filtered file has %d events, want 2", got)
	}
}
