package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/surfacelink/surfacelink-go/pkg/discovery"
	"github.com/surfacelink/surfacelink-go/pkg/registry"
	"github.com/surfacelink/surfacelink-go/pkg/scheduler"
	"github.com/surfacelink/surfacelink-go/pkg/store"
	"github.com/surfacelink/surfacelink-go/pkg/stream"
	"github.com/surfacelink/surfacelink-go/pkg/syncstate"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// consoleDeps wires the console to the running context. Sched is nil
// for popouts.
type consoleDeps struct {
	Self     registry.Identity
	Registry *registry.Registry
	Bridge   *syncstate.Bridge
	Store    *store.Store
	Manager  *stream.Manager
	Sched    *scheduler.Scheduler
}

// console is the interactive command loop of a surface context.
type console struct {
	deps consoleDeps
	rl   *readline.Instance
}

func newConsole(deps consoleDeps) (*console, error) {
	prompt := "surface> "
	if deps.Self.Role == wire.RolePopout {
		prompt = "popout> "
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("create readline: %w", err)
	}
	return &console{deps: deps, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt. Use it for
// asynchronous output so it does not mangle the input line.
func (c *console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until EOF, interrupt or quit. cancel tears the
// context down so the surrounding goroutines exit too.
func (c *console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()
		case "windows", "w":
			c.cmdWindows()
		case "get", "g":
			c.cmdGet(args)
		case "set", "s":
			c.cmdSet(args)
		case "open", "o":
			c.cmdOpen(args)
		case "save":
			c.cmdSave()
		case "status", "st":
			c.cmdStatus()
		case "engines":
			c.cmdEngines(ctx)
		case "quit", "q", "exit":
			cancel()
			return
		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprint(c.rl.Stdout(), `Commands:
  windows            List live surface contexts
  get <key>          Read a synced-state value
  set <key> <json>   Write a synced-state value
  open <panel> [WxH] Open a popout panel window
  save               Save the session now
  status             Show connections, session and membership
  engines            Discover engines on the local network
  quit               Exit
`)
}

func (c *console) cmdWindows() {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "%s  %s (self)\n", c.deps.Self.ID, c.deps.Self.Role)
	for _, m := range c.deps.Registry.Members() {
		fmt.Fprintf(out, "%s  %s (last seen %s ago)\n",
			m.ID, m.Role, time.Since(m.LastSeen).Round(time.Millisecond))
	}
}

func (c *console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: get <key>")
		return
	}

	var value json.RawMessage
	found, err := c.deps.Bridge.Get(args[0], &value)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if !found {
		fmt.Fprintf(c.rl.Stdout(), "%s: (unset)\n", args[0])
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s: %s\n", args[0], value)
}

func (c *console) cmdSet(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: set <key> <json>")
		return
	}

	raw := strings.Join(args[1:], " ")
	if !json.Valid([]byte(raw)) {
		// Bare words are a convenience for strings.
		raw = strconv.Quote(raw)
	}
	if err := c.deps.Bridge.Set(args[0], json.RawMessage(raw)); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%s = %s\n", args[0], raw)
}

func (c *console) cmdOpen(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: open <panel> [WxH]")
		return
	}

	opts := registry.PopoutOptions{Panel: args[0]}
	if len(args) > 1 {
		w, h, err := parseGeometry(args[1])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
			return
		}
		opts.Width, opts.Height = w, h
	}

	proc, err := registry.OpenPopout("", opts)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Opened %s popout (pid %d)\n", opts.Panel, proc.Pid)
}

func (c *console) cmdSave() {
	if c.deps.Sched == nil {
		fmt.Fprintln(c.rl.Stdout(), "Popouts do not own persistence; save from the primary window")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.deps.Sched.Save(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Saved")
}

func (c *console) cmdStatus() {
	out := c.rl.Stdout()
	session := c.deps.Store.Session()

	fmt.Fprintf(out, "Context:  %s (%s)\n", c.deps.Self.ID, c.deps.Self.Role)
	fmt.Fprintf(out, "Session:  %s (%q, %.1f bpm, %d tracks)\n",
		session.ID, session.Name, session.TempoBPM, len(session.Tracks))
	fmt.Fprintf(out, "Dirty:    %v\n", c.deps.Store.Dirty())
	fmt.Fprintf(out, "Windows:  %d peer(s)\n", len(c.deps.Registry.Members()))

	states := c.deps.Manager.States()
	if len(states) == 0 {
		fmt.Fprintln(out, "Streams:  none")
		return
	}
	fmt.Fprintln(out, "Streams:")
	for ep, state := range states {
		fmt.Fprintf(out, "  %-20s %s\n", ep, state)
	}

	if transport, ok := c.deps.Store.Transport(); ok {
		fmt.Fprintf(out, "Transport: beat %.2f @ %.1f bpm playing=%v\n",
			transport.PositionBeats, transport.TempoBPM, transport.Playing)
	}
	if analytics, ok := c.deps.Store.Analytics(); ok {
		fmt.Fprintf(out, "Engine:    cpu %.0f%% xruns %d buffer %d\n",
			analytics.CPULoad*100, analytics.XRuns, analytics.BufferSize)
	}
}

func (c *console) cmdEngines(ctx context.Context) {
	out := c.rl.Stdout()
	fmt.Fprintln(out, "Browsing for engines (3s)...")

	browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	browser := discovery.NewBrowser(discovery.BrowserConfig{})
	engines, err := browser.Browse(browseCtx)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	found := 0
	for svc := range engines {
		found++
		fmt.Fprintf(out, "%s  %s  ver=%s session=%s\n",
			svc.InstanceName, svc.Address(), svc.Version, svc.SessionID)
	}
	if found == 0 {
		fmt.Fprintln(out, "No engines found")
	}
}

// parseGeometry parses "800x600".
func parseGeometry(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("bad geometry %q, want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("bad geometry width %q", ws)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("bad geometry height %q", hs)
	}
	return w, h, nil
}
