package syncstate

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/bus"
	"github.com/surfacelink/surfacelink-go/pkg/log"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// Observer receives the new raw value after a key changes, whether the
// change was local or arrived from another context.
type Observer func(value json.RawMessage)

// Bridge mirrors keyed state across contexts and into durable storage.
type Bridge struct {
	bus     *bus.Bus
	storage Storage
	logger  log.Logger

	mu        sync.Mutex
	values    map[string]json.RawMessage
	hydrated  map[string]bool
	observers map[string]map[int]Observer
	busUnsubs map[string]func()
	nextID    int
	closed    bool

	// applying marks keys currently being written from a received
	// state-update. A Set issued while its key is marked (an observer
	// reacting synchronously to the remote change) applies locally but
	// is not re-published; without this guard two contexts reacting to
	// each other would broadcast forever.
	applying map[string]bool
}

// New creates a bridge over the given bus and mirror storage.
func New(b *bus.Bus, storage Storage, logger log.Logger) *Bridge {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Bridge{
		bus:       b,
		storage:   storage,
		logger:    logger,
		values:    make(map[string]json.RawMessage),
		hydrated:  make(map[string]bool),
		observers: make(map[string]map[int]Observer),
		busUnsubs: make(map[string]func()),
		applying:  make(map[string]bool),
	}
}

// Get unmarshals the current value for key into v. On first use the
// key is hydrated from durable storage. Returns false when the key has
// no value anywhere.
func (br *Bridge) Get(key string, v any) (bool, error) {
	br.mu.Lock()
	br.ensureLocked(key)
	raw, ok := br.values[key]
	br.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode value for %q: %w", key, err)
	}
	return true, nil
}

// Hydrate ensures key has a value: the durable mirror if present and
// parseable, otherwise initial. Hydration never publishes.
func (br *Bridge) Hydrate(key string, initial any) error {
	br.mu.Lock()
	br.ensureLocked(key)
	_, ok := br.values[key]
	br.mu.Unlock()

	if ok {
		return nil
	}

	raw, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("marshal initial for %q: %w", key, err)
	}

	br.mu.Lock()
	if _, ok := br.values[key]; !ok {
		br.values[key] = raw
	}
	br.mu.Unlock()
	return nil
}

// Set applies a local mutation: durable mirror, broadcast, local
// observers, in that order. Observers are notified exactly once per
// Set; the broadcast round-trip never re-delivers a context's own
// update to it.
func (br *Bridge) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value for %q: %w", key, err)
	}

	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return nil
	}
	br.ensureLocked(key)
	br.values[key] = raw
	republish := !br.applying[key]
	if err := br.storage.Store(key, raw); err != nil {
		br.logError(key, err, "mirror write failed")
	}
	observers := br.observersLocked(key)
	br.mu.Unlock()

	if republish {
		br.bus.Publish(key, json.RawMessage(raw))
	}
	for _, fn := range observers {
		fn(raw)
	}
	return nil
}

// OnChange registers an observer for key and returns its unsubscribe
// function. Calling it after Close is a no-op.
func (br *Bridge) OnChange(key string, fn Observer) func() {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.closed {
		return func() {}
	}
	br.ensureLocked(key)

	id := br.nextID
	br.nextID++
	if br.observers[key] == nil {
		br.observers[key] = make(map[int]Observer)
	}
	br.observers[key][id] = fn

	return func() {
		br.mu.Lock()
		defer br.mu.Unlock()
		if obs := br.observers[key]; obs != nil {
			delete(obs, id)
		}
	}
}

// Close detaches the bridge from the bus. Mirrored values stay on
// disk for the next session.
func (br *Bridge) Close() {
	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return
	}
	br.closed = true
	unsubs := make([]func(), 0, len(br.busUnsubs))
	for _, unsub := range br.busUnsubs {
		unsubs = append(unsubs, unsub)
	}
	br.busUnsubs = make(map[string]func())
	br.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// ensureLocked performs first-use setup for a key: hydrate from the
// durable mirror and subscribe to remote updates. Caller holds br.mu.
func (br *Bridge) ensureLocked(key string) {
	if br.hydrated[key] {
		return
	}
	br.hydrated[key] = true

	if data, err := br.storage.Load(key); err == nil {
		if json.Valid(data) {
			br.values[key] = data
		} else {
			br.logError(key, fmt.Errorf("invalid JSON"), "mirror discarded")
		}
	} else if err != ErrNotFound {
		br.logError(key, err, "mirror read failed")
	}

	br.busUnsubs[key] = br.bus.Subscribe(key, func(env wire.Envelope) {
		br.applyRemote(key, env)
	})
}

// applyRemote applies a state-update from another context: observers
// and mirror, but never a re-publish.
func (br *Bridge) applyRemote(key string, env wire.Envelope) {
	raw := json.RawMessage(env.Payload)

	br.mu.Lock()
	if br.closed {
		br.mu.Unlock()
		return
	}
	br.values[key] = raw
	br.applying[key] = true
	if err := br.storage.Store(key, raw); err != nil {
		br.logError(key, err, "mirror write failed")
	}
	observers := br.observersLocked(key)
	br.mu.Unlock()

	for _, fn := range observers {
		fn(raw)
	}

	br.mu.Lock()
	delete(br.applying, key)
	br.mu.Unlock()
}

// observersLocked snapshots the observer set for key. Caller holds
// br.mu; the copy keeps observer add/remove from affecting in-flight
// dispatch.
func (br *Bridge) observersLocked(key string) []Observer {
	obs := br.observers[key]
	out := make([]Observer, 0, len(obs))
	for _, fn := range obs {
		out = append(out, fn)
	}
	return out
}

// logError emits one error event.
func (br *Bridge) logError(key string, err error, context string) {
	br.logger.Log(log.Event{
		Timestamp: time.Now(),
		ContextID: br.bus.Origin(),
		Component: log.ComponentSyncState,
		Category:  log.CategoryError,
		Key:       key,
		Error:     &log.ErrorEvent{Message: err.Error(), Context: context},
	})
}
