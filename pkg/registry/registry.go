package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/bus"
	"github.com/surfacelink/surfacelink-go/pkg/log"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// Membership timing constants. The eviction timeout is three heartbeat
// periods so scheduling jitter or one or two lost heartbeats never
// evict a live context.
const (
	// DefaultHeartbeatInterval is the ping period.
	DefaultHeartbeatInterval = 5 * time.Second

	// DefaultSweepInterval is the eviction sweep period.
	DefaultSweepInterval = 10 * time.Second

	// DefaultEvictionTimeout is how stale an entry may be before the
	// sweep removes it.
	DefaultEvictionTimeout = 15 * time.Second
)

// Config configures a Registry.
type Config struct {
	// HeartbeatInterval is the ping period (default 5s).
	HeartbeatInterval time.Duration

	// SweepInterval is the eviction sweep period (default 10s).
	SweepInterval time.Duration

	// EvictionTimeout is the staleness limit (default 15s).
	EvictionTimeout time.Duration

	// Logger receives registry events. Defaults to NoopLogger.
	Logger log.Logger
}

// Registry maintains the membership table for one surface context.
type Registry struct {
	self   Identity
	bus    *bus.Bus
	config Config
	logger log.Logger

	mu      sync.Mutex
	members map[string]Identity
	onJoin  []func(Identity)
	onLeave []func(Identity)
	unsubs  []func()
	started bool

	// closing is set before timers are stopped so envelopes racing the
	// teardown are ignored rather than acted upon.
	closing atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a registry for the given identity on the given bus. The
// bus must have been constructed with the identity's ID as its origin.
// Call Start to begin announcing and tracking.
func New(b *bus.Bus, self Identity, config Config) *Registry {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.EvictionTimeout <= 0 {
		config.EvictionTimeout = DefaultEvictionTimeout
	}
	if config.Logger == nil {
		config.Logger = log.NoopLogger{}
	}

	return &Registry{
		self:    self,
		bus:     b,
		config:  config,
		logger:  config.Logger,
		members: make(map[string]Identity),
		stopCh:  make(chan struct{}),
	}
}

// Self returns the local identity.
func (r *Registry) Self() Identity { return r.self }

// Start announces this context and begins heartbeating and sweeping.
// Calling Start twice is a no-op.
func (r *Registry) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true

	r.unsubs = append(r.unsubs,
		r.bus.SubscribeKind(wire.KindRegister, r.handleAnnounce),
		r.bus.SubscribeKind(wire.KindPong, r.handleAnnounce),
		r.bus.SubscribeKind(wire.KindPing, r.handlePing),
		r.bus.SubscribeKind(wire.KindUnregister, r.handleUnregister),
	)
	r.mu.Unlock()

	// Announce ourselves, then solicit pongs from existing contexts so
	// the table fills without waiting a full heartbeat period.
	r.bus.PublishKind(wire.KindRegister, wire.Announce{Role: r.self.Role})
	r.bus.PublishKind(wire.KindPing, nil)

	r.wg.Add(2)
	go r.heartbeatLoop()
	go r.sweepLoop()
}

// Stop publishes unregister and stops all timers and subscriptions.
// The bus itself is left open; it belongs to the caller.
func (r *Registry) Stop() {
	if !r.closing.CompareAndSwap(false, true) {
		return
	}

	// Unregister before teardown so peers drop us immediately instead
	// of waiting for eviction.
	r.bus.PublishKind(wire.KindUnregister, nil)

	close(r.stopCh)
	r.wg.Wait()

	r.mu.Lock()
	unsubs := r.unsubs
	r.unsubs = nil
	r.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// Members returns a snapshot of the membership table (peers only, not
// the local identity), sorted by ID.
func (r *Registry) Members() []Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Identity, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnJoin registers a callback invoked when a context first appears or
// reappears after eviction.
func (r *Registry) OnJoin(fn func(Identity)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoin = append(r.onJoin, fn)
}

// OnLeave registers a callback invoked when a context unregisters or
// is evicted.
func (r *Registry) OnLeave(fn func(Identity)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onLeave = append(r.onLeave, fn)
}

// handleAnnounce upserts the sender on register and pong envelopes.
func (r *Registry) handleAnnounce(env wire.Envelope) {
	if r.closing.Load() {
		return
	}
	announce, err := wire.DecodeAnnounce(env)
	if err != nil {
		r.logError(err, "malformed announce dropped")
		return
	}
	r.upsert(env.Origin, announce.Role)
}

// handlePing upserts the sender and replies with our identity so late
// joiners discover existing contexts.
func (r *Registry) handlePing(env wire.Envelope) {
	if r.closing.Load() {
		return
	}
	r.upsert(env.Origin, "")
	r.bus.PublishKind(wire.KindPong, wire.Announce{Role: r.self.Role})
}

// handleUnregister removes the sender immediately.
func (r *Registry) handleUnregister(env wire.Envelope) {
	if r.closing.Load() {
		return
	}

	r.mu.Lock()
	member, known := r.members[env.Origin]
	if known {
		delete(r.members, env.Origin)
	}
	onLeave := append([]func(Identity){}, r.onLeave...)
	r.mu.Unlock()

	if !known {
		return
	}
	r.logMembership(member.ID, "member", "unregistered")
	for _, fn := range onLeave {
		fn(member)
	}
}

// upsert inserts or refreshes a membership entry. LastSeen only moves
// forward. An empty role preserves whatever role is already known.
func (r *Registry) upsert(id string, role wire.Role) {
	now := time.Now()

	r.mu.Lock()
	member, known := r.members[id]
	if !known {
		member = Identity{ID: id, Role: role}
	} else if role != "" {
		member.Role = role
	}
	if member.LastSeen.Before(now) {
		member.LastSeen = now
	}
	r.members[id] = member
	onJoin := append([]func(Identity){}, r.onJoin...)
	r.mu.Unlock()

	if !known {
		r.logMembership(id, "absent", "member")
		for _, fn := range onJoin {
			fn(member)
		}
	}
}

// heartbeatLoop publishes ping on the heartbeat interval.
func (r *Registry) heartbeatLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.closing.Load() {
				return
			}
			r.bus.PublishKind(wire.KindPing, nil)
		}
	}
}

// sweepLoop evicts stale entries on the sweep interval.
func (r *Registry) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.closing.Load() {
				return
			}
			r.sweep()
		}
	}
}

// sweep removes every entry whose LastSeen is older than the eviction
// timeout.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.config.EvictionTimeout)

	r.mu.Lock()
	var evicted []Identity
	for id, member := range r.members {
		if member.LastSeen.Before(cutoff) {
			evicted = append(evicted, member)
			delete(r.members, id)
		}
	}
	onLeave := append([]func(Identity){}, r.onLeave...)
	r.mu.Unlock()

	for _, member := range evicted {
		r.logMembership(member.ID, "member", "evicted")
		for _, fn := range onLeave {
			fn(member)
		}
	}
}

// logMembership emits one membership state-change event.
func (r *Registry) logMembership(id, oldState, newState string) {
	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: r.self.ID,
		Component: log.ComponentRegistry,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: oldState,
			NewState: newState,
			Reason:   id,
		},
	})
}

// logError emits one error event.
func (r *Registry) logError(err error, context string) {
	r.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: r.self.ID,
		Component: log.ComponentRegistry,
		Category:  log.CategoryError,
		Error:     &log.ErrorEvent{Message: err.Error(), Context: context},
	})
}
