// Command surfacelink-surface runs one surface context: the primary
// control-surface window or a detached popout panel.
//
// Every context joins the loopback broadcast bus, announces itself in
// the window registry, mirrors synced state, and shares the engine's
// telemetry streams through the connection multiplexer. The primary
// context additionally owns session persistence (debounced autosave
// plus periodic snapshots).
//
// Usage:
//
//	surfacelink-surface [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-session string    Session ID to open (default "default")
//	-name string       Session display name for new sessions
//	-engine string     Engine host:port; empty means discover over mDNS
//	-data-dir string   Directory for session documents and state mirrors
//	-capture string    CBOR event capture file path
//	-verbose           Mirror events to stderr
//	-popout            Run as a detached popout panel
//	-panel string      Panel to show in popout mode (mixer, spectrum, ...)
//	-geometry string   Popout window geometry (WxH)
//	-version           Print the version and exit
//
// Examples:
//
//	# Primary window, engine discovered over mDNS
//	surfacelink-surface -session mixdown
//
//	# Explicit engine address and event capture
//	surfacelink-surface -engine 127.0.0.1:17800 -capture session.slcap
//
//	# What the primary spawns for "open mixer":
//	surfacelink-surface -popout -panel mixer -geometry 800x600
//
// Interactive Commands:
//
//	windows     - List live surface contexts
//	get <key>   - Read a synced-state value
//	set <key> <json> - Write a synced-state value
//	open <panel> [WxH] - Open a popout panel window
//	save        - Save the session now
//	status      - Show connections, session and membership
//	engines     - Discover engines on the local network
//	quit        - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/bus"
	"github.com/surfacelink/surfacelink-go/pkg/config"
	"github.com/surfacelink/surfacelink-go/pkg/discovery"
	"github.com/surfacelink/surfacelink-go/pkg/log"
	"github.com/surfacelink/surfacelink-go/pkg/persistence"
	"github.com/surfacelink/surfacelink-go/pkg/registry"
	"github.com/surfacelink/surfacelink-go/pkg/scheduler"
	"github.com/surfacelink/surfacelink-go/pkg/store"
	"github.com/surfacelink/surfacelink-go/pkg/stream"
	"github.com/surfacelink/surfacelink-go/pkg/syncstate"
	"github.com/surfacelink/surfacelink-go/pkg/telemetry"
	"github.com/surfacelink/surfacelink-go/pkg/version"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

type flags struct {
	ConfigFile  string
	SessionID   string
	SessionName string
	Engine      string
	DataDir     string
	Capture     string
	Verbose     bool
	Popout      bool
	Panel       string
	Geometry    string
	Version     bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&f.SessionID, "session", "default", "Session ID to open")
	flag.StringVar(&f.SessionName, "name", "Untitled", "Session display name for new sessions")
	flag.StringVar(&f.Engine, "engine", "", "Engine host:port; empty means discover over mDNS")
	flag.StringVar(&f.DataDir, "data-dir", "", "Directory for session documents and state mirrors")
	flag.StringVar(&f.Capture, "capture", "", "CBOR event capture file path")
	flag.BoolVar(&f.Verbose, "verbose", false, "Mirror events to stderr")
	flag.BoolVar(&f.Popout, "popout", false, "Run as a detached popout panel")
	flag.StringVar(&f.Panel, "panel", "", "Panel to show in popout mode")
	flag.StringVar(&f.Geometry, "geometry", "", "Popout window geometry (WxH)")
	flag.BoolVar(&f.Version, "version", false, "Print the version and exit")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()
	if f.Version {
		fmt.Println("surfacelink-surface", version.Current)
		return
	}

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "surfacelink-surface: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		return err
	}
	if f.Engine != "" {
		cfg.Engine.Address = f.Engine
	}
	if f.DataDir != "" {
		cfg.Persistence.DataDir = f.DataDir
	}
	if f.Capture != "" {
		cfg.Log.CapturePath = f.Capture
	}
	if f.Verbose {
		cfg.Log.Verbose = true
	}

	role := wire.RolePrimary
	if f.Popout {
		if f.Panel == "" {
			return fmt.Errorf("-popout requires -panel")
		}
		role = wire.RolePopout
	}
	self := registry.NewIdentity(role)

	logger, closeLogger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Broadcast bus and window registry.
	b := bus.New(self.ID, bus.Config{GroupAddress: cfg.Bus.Group, Logger: logger})
	defer b.Close()

	reg := registry.New(b, self, registry.Config{
		HeartbeatInterval: cfg.Registry.HeartbeatInterval.Std(),
		SweepInterval:     cfg.Registry.SweepInterval.Std(),
		EvictionTimeout:   cfg.Registry.EvictionAfter.Std(),
		Logger:            logger,
	})
	reg.Start()
	defer reg.Stop()

	// Synced state, mirrored to disk per session.
	mirrorDir := filepath.Join(cfg.Persistence.DataDir, "state", f.SessionID)
	bridge := syncstate.New(b, syncstate.NewFileStorage(mirrorDir), logger)
	defer bridge.Close()

	// Session document.
	sessions := persistence.NewSessionStore(cfg.Persistence.DataDir)
	session, err := openSession(sessions, f.SessionID, f.SessionName)
	if err != nil {
		return err
	}
	st := store.New(session)

	// Engine connection.
	address := cfg.Engine.Address
	if address == "" {
		address, err = discoverEngine(ctx, cfg.Engine.DiscoverTimeout.Std())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "discovered engine at %s\n", address)
	}

	dialer := &stream.NetDialer{Address: address, Timeout: cfg.Engine.DialTimeout.Std()}
	manager := stream.NewManager(dialer, stream.Config{
		ReconnectDelay: cfg.Engine.ReconnectDelay.Std(),
		ContextID:      self.ID,
		Logger:         logger,
	})
	defer manager.Close()

	feed := telemetry.New(manager, st, self.ID, logger)
	feed.Start(panelEndpoints(f.Panel)...)
	defer feed.Stop()

	// Persistence runs in the primary context only; popouts observe the
	// same session through synced state.
	var sched *scheduler.Scheduler
	if role == wire.RolePrimary {
		sched = scheduler.New(st, saveFunc(sessions, self.ID, cfg.Persistence.KeepSnapshots), scheduler.Config{
			AutosaveDelay:    cfg.Persistence.AutosaveDelay.Std(),
			SnapshotInterval: cfg.Persistence.SnapshotInterval.Std(),
			ContextID:        self.ID,
			Logger:           logger,
			Notifier: scheduler.NotifierFunc(func(kind scheduler.Kind, err error) {
				fmt.Fprintf(os.Stderr, "save failed (%s): %v\n", kind, err)
			}),
		})
		sched.Start()
		defer sched.Stop()
	}

	console, err := newConsole(consoleDeps{
		Self:     self,
		Registry: reg,
		Bridge:   bridge,
		Store:    st,
		Manager:  manager,
		Sched:    sched,
	})
	if err != nil {
		return err
	}
	console.Run(ctx, stop)

	// Flush pending edits on the way out.
	if sched != nil && st.Dirty() {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sched.Save(saveCtx); err != nil {
			fmt.Fprintf(os.Stderr, "final save failed: %v\n", err)
		}
	}
	return nil
}

// buildLogger assembles the event logger from the log configuration.
func buildLogger(cfg config.LogConfig) (log.Logger, func(), error) {
	var loggers []log.Logger
	closer := func() {}

	if cfg.CapturePath != "" {
		fl, err := log.NewFileLogger(cfg.CapturePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open capture file: %w", err)
		}
		loggers = append(loggers, fl)
		closer = func() { fl.Close() }
	}
	if cfg.Verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(handler)))
	}

	switch len(loggers) {
	case 0:
		return log.NoopLogger{}, closer, nil
	case 1:
		return loggers[0], closer, nil
	default:
		return log.NewMultiLogger(loggers...), closer, nil
	}
}

// openSession loads the live session document or starts a fresh one.
func openSession(sessions *persistence.SessionStore, id, name string) (store.Session, error) {
	doc, err := sessions.Load(id)
	if err != nil {
		return store.Session{}, fmt.Errorf("load session %q: %w", id, err)
	}
	if doc != nil {
		return doc.Session, nil
	}
	return store.Session{ID: id, Name: name, TempoBPM: 120}, nil
}

// discoverEngine resolves an engine address over mDNS.
func discoverEngine(ctx context.Context, timeout time.Duration) (string, error) {
	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	svc, err := browser.FindEngine(ctx, timeout)
	if err != nil {
		return "", fmt.Errorf("discover engine: %w", err)
	}
	return svc.Address(), nil
}

// panelEndpoints maps a popout panel to the telemetry it needs. The
// primary window (empty panel) subscribes everything.
func panelEndpoints(panel string) []stream.Endpoint {
	switch panel {
	case "":
		return nil
	case "mixer":
		return []stream.Endpoint{stream.EndpointMeters, stream.EndpointTransport}
	case "spectrum":
		return []stream.Endpoint{stream.EndpointSpectrum}
	case "waveform":
		return []stream.Endpoint{stream.EndpointWaveform, stream.EndpointTransport}
	case "analytics":
		return []stream.Endpoint{stream.EndpointAnalytics}
	default:
		return []stream.Endpoint{stream.EndpointTransport}
	}
}

// saveFunc binds the scheduler to the session store: live document for
// autosave and manual saves, history checkpoint for snapshots.
func saveFunc(sessions *persistence.SessionStore, contextID string, keep int) scheduler.SaveFunc {
	return func(ctx context.Context, session store.Session, kind scheduler.Kind) error {
		if kind == scheduler.KindSnapshot {
			if _, err := sessions.Snapshot(session, contextID); err != nil {
				return err
			}
			if keep > 0 {
				return sessions.Prune(session.ID, keep)
			}
			return nil
		}
		return sessions.Save(session, contextID)
	}
}
