// Command surfacelink-log is a tool for viewing and analyzing sync-layer
// capture files.
//
// Capture files are created by running surfacelink-surface with the
// -capture flag.
//
// Usage:
//
//	surfacelink-log <command> [flags] <file.slcap>
//
// Commands:
//
//	view     View capture file in human-readable format
//	export   Export capture file to JSONL or CSV format
//	filter   Filter capture file and write to new file
//	stats    Show statistics about the capture file
//
// Examples:
//
//	# View all events
//	surfacelink-log view surface.slcap
//
//	# View only stream-layer events
//	surfacelink-log view -component stream surface.slcap
//
//	# View only persistence attempts
//	surfacelink-log view -category save surface.slcap
//
//	# Export to JSONL
//	surfacelink-log export -format jsonl surface.slcap
//
//	# Filter by context and save to new file
//	surfacelink-log filter -context abc12345 -o filtered.slcap surface.slcap
//
//	# Show statistics
//	surfacelink-log stats surface.slcap
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/surfacelink/surfacelink-go/cmd/surfacelink-log/commands"
	"github.com/surfacelink/surfacelink-go/pkg/log"
)

const usage = `surfacelink-log - Sync-Layer Capture Analyzer

Usage:
  surfacelink-log <command> [flags] <file.slcap>

Commands:
  view     View capture file in human-readable format
  export   Export capture file to JSONL or CSV format
  filter   Filter capture file and write to new file
  stats    Show statistics about the capture file

Use "surfacelink-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs and returns a
// builder that converts them into a log.Filter after parsing.
func filterFlags(fs *flag.FlagSet) func() (log.Filter, error) {
	contextID := fs.String("context", "", "Filter by context ID")
	component := fs.String("component", "", "Filter by component (bus, registry, syncstate, stream, scheduler)")
	category := fs.String("category", "", "Filter by category (message, state, save, error)")
	endpoint := fs.String("endpoint", "", "Filter by stream endpoint path")
	key := fs.String("key", "", "Filter by synced-state key")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")

	return func() (log.Filter, error) {
		filter := log.Filter{
			ContextID: *contextID,
			Endpoint:  *endpoint,
			Key:       *key,
		}

		if *component != "" {
			c, err := commands.ParseComponentFlag(*component)
			if err != nil {
				return log.Filter{}, err
			}
			filter.Component = &c
		}
		if *category != "" {
			c, err := commands.ParseCategoryFlag(*category)
			if err != nil {
				return log.Filter{}, err
			}
			filter.Category = &c
		}
		if *timeStart != "" {
			t, err := time.Parse(time.RFC3339, *timeStart)
			if err != nil {
				return log.Filter{}, fmt.Errorf("invalid -time-start: %w", err)
			}
			filter.TimeStart = &t
		}
		if *timeEnd != "" {
			t, err := time.Parse(time.RFC3339, *timeEnd)
			if err != nil {
				return log.Filter{}, fmt.Errorf("invalid -time-end: %w", err)
			}
			filter.TimeEnd = &t
		}
		return filter, nil
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `surfacelink-log view - View capture file in human-readable format

Usage:
  surfacelink-log view [flags] <file.slcap>

Flags:
`)
		fs.PrintDefaults()
	}

	buildFilter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := buildFilter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := commands.RunView(fs.Arg(0), filter, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `surfacelink-log export - Export capture file to JSONL or CSV format

Usage:
  surfacelink-log export [flags] <file.slcap>

Flags:
`)
		fs.PrintDefaults()
	}

	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	buildFilter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := buildFilter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := commands.RunExport(fs.Arg(0), filter, *format, *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `surfacelink-log filter - Filter capture file and write to new file

Usage:
  surfacelink-log filter [flags] <file.slcap>

Flags:
`)
		fs.PrintDefaults()
	}

	output := fs.String("o", "", "Output file (required)")
	buildFilter := filterFlags(fs)

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := buildFilter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	count, err := commands.RunFilter(fs.Arg(0), filter, *output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d event(s) to %s\n", count, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `surfacelink-log stats - Show statistics about the capture file

Usage:
  surfacelink-log stats <file.slcap>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunStats(fs.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
