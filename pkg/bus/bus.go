package bus

import (
	"sync"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// Listener receives envelopes for a subscription. Listeners are invoked
// sequentially on the bus's receive goroutine; a slow listener delays
// later envelopes from the same sender but never reorders them.
type Listener func(env wire.Envelope)

// Config configures a Bus.
type Config struct {
	// GroupAddress is the multicast group to join. Defaults to
	// DefaultGroupAddress. Ignored when Medium is set.
	GroupAddress string

	// Medium overrides the broadcast medium. Used by tests and
	// single-window setups (see MemoryHub).
	Medium Medium

	// Logger receives bus events. Defaults to NoopLogger.
	Logger log.Logger
}

// Bus is one context's handle on the shared broadcast channel.
type Bus struct {
	origin string
	medium Medium
	logger log.Logger

	mu       sync.Mutex
	keySubs  map[string]map[int]Listener
	kindSubs map[wire.Kind]map[int]Listener
	nextID   int
	closed   bool
	degraded bool

	wg sync.WaitGroup
}

// New creates a bus for the given context ID. Construction never
// fails: if the broadcast medium is unavailable the bus degrades to a
// no-op and surfaces a single warning through the logger.
func New(origin string, cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}

	b := &Bus{
		origin:   origin,
		logger:   cfg.Logger,
		keySubs:  make(map[string]map[int]Listener),
		kindSubs: make(map[wire.Kind]map[int]Listener),
	}

	medium := cfg.Medium
	if medium == nil {
		addr := cfg.GroupAddress
		if addr == "" {
			addr = DefaultGroupAddress
		}
		m, err := newUDPMedium(addr)
		if err != nil {
			b.degraded = true
			b.logger.Log(log.Event{
				Timestamp: time.Now(),
				ContextID: origin,
				Component: log.ComponentBus,
				Category:  log.CategoryError,
				Error: &log.ErrorEvent{
					Message: err.Error(),
					Context: "broadcast medium unavailable, bus degraded to no-op",
				},
			})
			return b
		}
		medium = m
	}

	b.medium = medium
	b.wg.Add(1)
	go b.receiveLoop()

	return b
}

// Origin returns the context ID this bus publishes as.
func (b *Bus) Origin() string { return b.origin }

// Degraded reports whether the bus is running without a medium.
func (b *Bus) Degraded() bool { return b.degraded }

// Publish broadcasts a state-update for key. Best-effort: errors from
// the medium are logged and swallowed, and a degraded bus drops the
// publish entirely.
func (b *Bus) Publish(key string, value any) {
	env, err := wire.NewEnvelope(wire.KindStateUpdate, b.origin, key, value)
	if err != nil {
		b.logError(err, "encode state-update payload")
		return
	}
	b.publish(env)
}

// PublishKind broadcasts a lifecycle envelope (register, unregister,
// ping, pong). Best-effort like Publish.
func (b *Bus) PublishKind(kind wire.Kind, payload any) {
	env, err := wire.NewEnvelope(kind, b.origin, "", payload)
	if err != nil {
		b.logError(err, "encode lifecycle payload")
		return
	}
	b.publish(env)
}

// publish sends one envelope to the medium.
func (b *Bus) publish(env wire.Envelope) {
	b.mu.Lock()
	medium := b.medium
	closed := b.closed || b.degraded
	b.mu.Unlock()

	if closed || medium == nil {
		return
	}

	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		b.logError(err, "encode envelope")
		return
	}
	if err := medium.Send(data); err != nil {
		b.logError(err, "send envelope")
		return
	}

	b.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: b.origin,
		Component: log.ComponentBus,
		Category:  log.CategoryMessage,
		Direction: log.DirectionOut,
		Key:       env.Key,
		Frame:     log.NewFrameEvent(data),
	})
}

// Subscribe registers a listener for state-update envelopes on key and
// returns its unsubscribe function. Unsubscribing after Close is a
// no-op, not an error.
func (b *Bus) Subscribe(key string, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	if b.keySubs[key] == nil {
		b.keySubs[key] = make(map[int]Listener)
	}
	b.keySubs[key][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs := b.keySubs[key]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.keySubs, key)
			}
		}
	}
}

// SubscribeKind registers a listener for all envelopes of one
// lifecycle kind and returns its unsubscribe function.
func (b *Bus) SubscribeKind(kind wire.Kind, fn Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	if b.kindSubs[kind] == nil {
		b.kindSubs[kind] = make(map[int]Listener)
	}
	b.kindSubs[kind][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs := b.kindSubs[kind]; subs != nil {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.kindSubs, kind)
			}
		}
	}
}

// Close releases the medium and stops the receive loop. Safe to call
// multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	medium := b.medium
	b.mu.Unlock()

	if medium != nil {
		_ = medium.Close()
	}
	b.wg.Wait()
}

// receiveLoop dispatches inbound envelopes until the medium closes.
func (b *Bus) receiveLoop() {
	defer b.wg.Done()

	for {
		data, err := b.medium.Receive()
		if err != nil {
			// ErrMediumClosed is the normal shutdown path; anything
			// else means the medium died underneath us. Either way
			// the bus stops receiving.
			return
		}

		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			b.logError(err, "malformed envelope dropped")
			continue
		}

		// Self-echo suppression.
		if env.Origin == b.origin {
			continue
		}

		b.logger.Log(log.Event{
			Timestamp: time.Now(),
			ContextID: b.origin,
			Component: log.ComponentBus,
			Category:  log.CategoryMessage,
			Direction: log.DirectionIn,
			Key:       env.Key,
			Frame:     log.NewFrameEvent(data),
		})

		b.dispatch(env)
	}
}

// dispatch delivers an envelope to its listeners. The listener set is
// copied under lock so subscribe/unsubscribe during dispatch never
// affects in-flight delivery.
func (b *Bus) dispatch(env wire.Envelope) {
	b.mu.Lock()
	var listeners []Listener
	if env.Kind == wire.KindStateUpdate {
		for _, fn := range b.keySubs[env.Key] {
			listeners = append(listeners, fn)
		}
	} else {
		for _, fn := range b.kindSubs[env.Kind] {
			listeners = append(listeners, fn)
		}
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(env)
	}
}

// logError emits one error event.
func (b *Bus) logError(err error, context string) {
	b.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: b.origin,
		Component: log.ComponentBus,
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Message: err.Error(), Context: context},
	})
}
