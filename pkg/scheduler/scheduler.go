package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
	"github.com/surfacelink/surfacelink-go/pkg/store"
)

// Kind names the save path that triggered a persistence attempt.
type Kind string

const (
	// KindAutosave is the debounced save after session edits.
	KindAutosave Kind = "autosave"
	// KindSnapshot is the periodic history checkpoint.
	KindSnapshot Kind = "snapshot"
	// KindManual is a user-requested save.
	KindManual Kind = "manual"
)

// ErrSaveInFlight is returned by Save when another save is running.
var ErrSaveInFlight = errors.New("save already in flight")

// Timing defaults.
const (
	// DefaultAutosaveDelay is the debounce between the dirty transition
	// and the autosave write.
	DefaultAutosaveDelay = 3 * time.Second

	// DefaultSnapshotInterval is the period between history checkpoints.
	DefaultSnapshotInterval = 60 * time.Second
)

// SaveFunc performs one persistence attempt for the given session copy.
type SaveFunc func(ctx context.Context, session store.Session, kind Kind) error

// Notifier surfaces save failures the user must know about. Snapshot
// failures bypass it; the session document on disk is still current.
type Notifier interface {
	NotifySaveFailure(kind Kind, err error)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(kind Kind, err error)

// NotifySaveFailure calls the function.
func (f NotifierFunc) NotifySaveFailure(kind Kind, err error) { f(kind, err) }

// Config carries the scheduler tunables.
type Config struct {
	// AutosaveDelay overrides DefaultAutosaveDelay. Zero means default.
	AutosaveDelay time.Duration

	// SnapshotInterval overrides DefaultSnapshotInterval. Zero means
	// default; negative disables the snapshot loop.
	SnapshotInterval time.Duration

	// ContextID tags log events with the owning surface context.
	ContextID string

	// Logger receives save events. Nil disables logging.
	Logger log.Logger

	// Notifier receives autosave and manual save failures. Nil drops
	// them (they are still logged).
	Notifier Notifier
}

// Scheduler owns the persistence timing for one store.
type Scheduler struct {
	store  *store.Store
	save   SaveFunc
	cfg    Config
	logger log.Logger

	// inFlight is the shared guard: autosave, snapshot and manual saves
	// all take it, so saves never overlap.
	inFlight atomic.Bool

	// closing is set before teardown and checked by every timer path.
	closing atomic.Bool

	mu         sync.Mutex
	debounce   *time.Timer
	unsubDirty func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	started    bool
}

// New creates a scheduler persisting st through save.
func New(st *store.Store, save SaveFunc, cfg Config) *Scheduler {
	if cfg.AutosaveDelay == 0 {
		cfg.AutosaveDelay = DefaultAutosaveDelay
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NoopLogger{}
	}
	return &Scheduler{
		store:  st,
		save:   save,
		cfg:    cfg,
		logger: cfg.Logger,
		stopCh: make(chan struct{}),
	}
}

// Start arms the dirty subscription and the snapshot loop. If the
// store is already dirty the debounce is armed immediately.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.closing.Load() {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.unsubDirty = s.store.OnDirty(s.armDebounce)
	if s.store.Dirty() {
		s.armDebounce()
	}

	if s.cfg.SnapshotInterval > 0 {
		s.wg.Add(1)
		go s.snapshotLoop()
	}
}

// Stop cancels pending work and waits for a running save to finish.
// Pending dirty state is not flushed; call Save first for a clean
// shutdown.
func (s *Scheduler) Stop() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}

	if s.unsubDirty != nil {
		s.unsubDirty()
	}

	s.mu.Lock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// Save runs a manual save now, sharing the in-flight guard with the
// timed paths.
func (s *Scheduler) Save(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrSaveInFlight
	}
	defer s.inFlight.Store(false)

	return s.runLocked(ctx, KindManual)
}

// armDebounce starts (or restarts) the autosave countdown.
func (s *Scheduler) armDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing.Load() {
		return
	}
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.cfg.AutosaveDelay, s.autosave)
}

// autosave fires when the debounce elapses.
func (s *Scheduler) autosave() {
	if s.closing.Load() {
		return
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		// Another save is running; try again after a fresh delay.
		s.armDebounce()
		return
	}
	defer s.inFlight.Store(false)

	// On failure runLocked re-dirties the store, which re-arms the
	// debounce through the OnDirty subscription: the retry is free.
	_ = s.runLocked(context.Background(), KindAutosave)
}

// snapshotLoop writes a history checkpoint on every tick.
func (s *Scheduler) snapshotLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.closing.Load() {
				return
			}
			if !s.inFlight.CompareAndSwap(false, true) {
				// A save is running; this tick is skipped, not queued.
				continue
			}
			_ = s.runLocked(context.Background(), KindSnapshot)
			s.inFlight.Store(false)
		}
	}
}

// runLocked performs one save attempt. Caller holds the in-flight
// guard. The dirty flag is cleared before the write so edits landing
// during the save re-arm the debounce; on failure it is restored.
func (s *Scheduler) runLocked(ctx context.Context, kind Kind) error {
	session := s.store.Session()
	if kind != KindSnapshot {
		s.store.ClearDirty()
	}

	start := time.Now()
	err := s.save(ctx, session, kind)
	duration := time.Since(start)

	event := log.Event{
		Timestamp: time.Now(),
		ContextID: s.cfg.ContextID,
		Component: log.ComponentScheduler,
		Category:  log.CategorySave,
		Save: &log.SaveEvent{
			Kind:      string(kind),
			SessionID: session.ID,
			Duration:  duration,
		},
	}
	if err != nil {
		event.Save.Error = err.Error()
	}
	s.logger.Log(event)

	if err == nil {
		return nil
	}

	if kind != KindSnapshot {
		s.store.MarkDirty()
		if s.cfg.Notifier != nil {
			s.cfg.Notifier.NotifySaveFailure(kind, err)
		}
	}
	return err
}
