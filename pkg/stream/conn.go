package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
)

// State is the connection state of one endpoint stream.
type State int

const (
	// StateDisconnected means no channel is open and no dial is running.
	StateDisconnected State = iota
	// StateConnecting means a dial attempt is in progress.
	StateConnecting
	// StateConnected means the channel is open and frames flow.
	StateConnected
	// StateError means the last dial attempt failed.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultReconnectDelay is the fixed delay between a connection loss or
// failed attempt and the next dial. There is no backoff: the engine is
// local and a steady retry cadence keeps recovery predictable.
const DefaultReconnectDelay = 2 * time.Second

// Config carries the tunables shared by all connections of a manager.
type Config struct {
	// ReconnectDelay is the fixed delay before every reconnect attempt.
	// Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// MaxFrameSize bounds inbound frames. Zero means DefaultMaxFrameSize.
	MaxFrameSize int

	// ContextID tags log events with the owning surface context.
	ContextID string

	// Logger receives stream events. Nil disables logging.
	Logger log.Logger
}

func (c *Config) applyDefaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
}

// FrameHandler receives one raw inbound frame (valid JSON, no delimiter).
type FrameHandler func(data []byte)

// StateHandler receives state transitions in the order they happened.
type StateHandler func(oldState, newState State)

// Conn is one resilient connection to one endpoint. Create it through a
// Manager so concurrent subscribers share the underlying channel.
type Conn struct {
	endpoint Endpoint
	dialer   Dialer
	cfg      Config
	logger   log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// closing is set before intentional teardown and checked by every
	// event path, so a racing read error or timer cannot revive the
	// connection.
	closing atomic.Bool

	// notifyMu serializes state transitions including their handler
	// dispatch, so subscribers observe every transition in order.
	// Handlers must not call Close or Conn state mutators.
	notifyMu sync.Mutex

	mu            sync.Mutex
	state         State
	channel       io.ReadWriteCloser
	writer        *LineWriter
	generation    int
	reconnect     *time.Timer
	frameHandlers map[int]FrameHandler
	stateHandlers map[int]StateHandler
	nextID        int

	wg sync.WaitGroup
}

func newConn(endpoint Endpoint, dialer Dialer, cfg Config) *Conn {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		endpoint:      endpoint,
		dialer:        dialer,
		cfg:           cfg,
		logger:        cfg.Logger,
		ctx:           ctx,
		cancel:        cancel,
		state:         StateDisconnected,
		frameHandlers: make(map[int]FrameHandler),
		stateHandlers: make(map[int]StateHandler),
	}
}

// Endpoint returns the endpoint this connection serves.
func (c *Conn) Endpoint() Endpoint {
	return c.endpoint
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a dial attempt unless one is already running or the
// connection is up. Safe to call repeatedly.
func (c *Conn) Connect() {
	if c.closing.Load() {
		return
	}

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.attempt()
}

// attempt runs one dial attempt and, on success, the read loop setup.
func (c *Conn) attempt() {
	defer c.wg.Done()

	c.setState(StateConnecting, "")

	channel, err := c.dialer.Dial(c.ctx, c.endpoint)
	if c.closing.Load() {
		if err == nil {
			channel.Close()
		}
		return
	}
	if err != nil {
		c.logError(err, "connect attempt failed")
		c.setState(StateError, err.Error())
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.channel = channel
	c.writer = NewLineWriter(channel)
	c.mu.Unlock()

	c.setState(StateConnected, "")

	c.wg.Add(1)
	go c.readLoop(gen, channel)
}

// readLoop consumes frames until the channel fails or a newer
// generation replaces it.
func (c *Conn) readLoop(gen int, channel io.ReadWriteCloser) {
	defer c.wg.Done()

	reader := NewLineReaderWithMaxSize(channel, c.cfg.MaxFrameSize)
	for {
		data, err := reader.ReadFrame()
		if err != nil {
			c.handleLoss(gen, err)
			return
		}
		if c.closing.Load() {
			return
		}
		if !json.Valid(data) {
			// Malformed frames are dropped; the stream stays up.
			c.logError(fmt.Errorf("invalid JSON frame (%d bytes)", len(data)), "frame dropped")
			continue
		}

		c.logger.Log(log.Event{
			Timestamp: time.Now(),
			ContextID: c.cfg.ContextID,
			Component: log.ComponentStream,
			Category:  log.CategoryMessage,
			Direction: log.DirectionIn,
			Endpoint:  string(c.endpoint),
			Frame:     log.NewFrameEvent(data),
		})

		for _, fn := range c.frameHandlersSnapshot() {
			fn(data)
		}
	}
}

// handleLoss reacts to a failed read: unless the loss belongs to a
// stale generation or an intentional teardown, the connection drops to
// disconnected and a reconnect is scheduled.
func (c *Conn) handleLoss(gen int, err error) {
	if c.closing.Load() {
		return
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
		c.writer = nil
	}
	c.mu.Unlock()

	reason := "stream closed"
	if err != io.EOF {
		reason = err.Error()
	}
	c.setState(StateDisconnected, reason)
	c.scheduleReconnect()
}

// scheduleReconnect arms the fixed-delay reconnect timer.
func (c *Conn) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	c.reconnect = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		if c.closing.Load() {
			return
		}
		c.Connect()
	})
}

// Send writes one frame to the engine. While the connection is not up
// the frame is silently dropped: telemetry control messages are
// idempotent and the subscriber re-expresses its interest on reconnect.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	writer := c.writer
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || writer == nil {
		return nil
	}

	if err := writer.WriteFrame(data); err != nil {
		return fmt.Errorf("send on %s: %w", c.endpoint, err)
	}

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: c.cfg.ContextID,
		Component: log.ComponentStream,
		Category:  log.CategoryMessage,
		Direction: log.DirectionOut,
		Endpoint:  string(c.endpoint),
		Frame:     log.NewFrameEvent(data),
	})
	return nil
}

// OnFrame registers a handler for inbound frames and returns its
// unsubscribe function. Unsubscribing never closes the connection.
func (c *Conn) OnFrame(fn FrameHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.frameHandlers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.frameHandlers, id)
	}
}

// OnState registers a handler for state transitions and returns its
// unsubscribe function. Handlers run on the connection's event paths
// and must not block or call back into Close.
func (c *Conn) OnState(fn StateHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.stateHandlers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.stateHandlers, id)
	}
}

// Close tears the connection down for good: the pending reconnect is
// cancelled, the channel is closed, and the state settles at
// disconnected. Safe to call more than once.
func (c *Conn) Close() {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}

	c.cancel()

	c.mu.Lock()
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	channel := c.channel
	c.channel = nil
	c.writer = nil
	c.mu.Unlock()

	if channel != nil {
		channel.Close()
	}

	c.setState(StateDisconnected, "closed")
	c.wg.Wait()
}

// setState applies a transition and dispatches it to state handlers.
// notifyMu keeps transition order and dispatch order identical.
func (c *Conn) setState(next State, reason string) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	handlers := make([]StateHandler, 0, len(c.stateHandlers))
	for _, fn := range c.stateHandlers {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()

	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: c.cfg.ContextID,
		Component: log.ComponentStream,
		Category:  log.CategoryState,
		Endpoint:  string(c.endpoint),
		StateChange: &log.StateChangeEvent{
			OldState: prev.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})

	for _, fn := range handlers {
		fn(prev, next)
	}
}

func (c *Conn) frameHandlersSnapshot() []FrameHandler {
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers := make([]FrameHandler, 0, len(c.frameHandlers))
	for _, fn := range c.frameHandlers {
		handlers = append(handlers, fn)
	}
	return handlers
}

func (c *Conn) logError(err error, context string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: c.cfg.ContextID,
		Component: log.ComponentStream,
		Category:  log.CategoryError,
		Endpoint:  string(c.endpoint),
		Error:     &log.ErrorEvent{Message: err.Error(), Context: context},
	})
}
