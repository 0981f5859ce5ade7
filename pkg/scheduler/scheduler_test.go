package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/store"
)

// recordingSaver counts saves per kind and can fail or stall on demand.
type recordingSaver struct {
	mu    sync.Mutex
	saves map[Kind]int
	last  store.Session
	fail  error
	block chan struct{}
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{saves: make(map[Kind]int)}
}

func (r *recordingSaver) save(ctx context.Context, session store.Session, kind Kind) error {
	r.mu.Lock()
	block := r.block
	r.mu.Unlock()
	if block != nil {
		<-block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves[kind]++
	r.last = session
	return r.fail
}

func (r *recordingSaver) count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[kind]
}

func (r *recordingSaver) setFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func testStore() *store.Store {
	return store.New(store.Session{ID: "sess-1", Name: "Demo", TempoBPM: 120})
}

func TestScheduler(t *testing.T) {
	t.Run("DebouncedAutosave", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		s := New(st, saver.save, Config{
			AutosaveDelay:    20 * time.Millisecond,
			SnapshotInterval: -1,
		})
		s.Start()
		defer s.Stop()

		// A burst of edits lands as one autosave.
		st.Update(func(sess *store.Session) { sess.TempoBPM = 121 })
		st.Update(func(sess *store.Session) { sess.TempoBPM = 122 })
		st.Update(func(sess *store.Session) { sess.TempoBPM = 123 })

		waitFor(t, func() bool { return saver.count(KindAutosave) == 1 })

		saver.mu.Lock()
		tempo := saver.last.TempoBPM
		saver.mu.Unlock()
		if tempo != 123 {
			t.Errorf("saved tempo = %v, want the final edit 123", tempo)
		}

		// No further edits, no further autosaves.
		time.Sleep(60 * time.Millisecond)
		if got := saver.count(KindAutosave); got != 1 {
			t.Errorf("autosaves = %d, want 1", got)
		}
		if st.Dirty() {
			t.Error("store still dirty after successful autosave")
		}
	})

	t.Run("EditAfterSaveArmsAgain", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		s := New(st, saver.save, Config{
			AutosaveDelay:    20 * time.Millisecond,
			SnapshotInterval: -1,
		})
		s.Start()
		defer s.Stop()

		st.MarkDirty()
		waitFor(t, func() bool { return saver.count(KindAutosave) == 1 })

		st.MarkDirty()
		waitFor(t, func() bool { return saver.count(KindAutosave) == 2 })
	})

	t.Run("SnapshotLoop", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		s := New(st, saver.save, Config{
			AutosaveDelay:    time.Hour,
			SnapshotInterval: 25 * time.Millisecond,
		})
		s.Start()
		defer s.Stop()

		waitFor(t, func() bool { return saver.count(KindSnapshot) >= 2 })

		// Snapshots never touch the dirty flag.
		if st.Dirty() {
			t.Error("snapshot dirtied the store")
		}
	})

	t.Run("ManualSave", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		s := New(st, saver.save, Config{SnapshotInterval: -1})
		s.Start()
		defer s.Stop()

		st.MarkDirty()
		if err := s.Save(context.Background()); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if got := saver.count(KindManual); got != 1 {
			t.Errorf("manual saves = %d, want 1", got)
		}
		if st.Dirty() {
			t.Error("store dirty after manual save")
		}
	})

	t.Run("InFlightGuardIsShared", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		saver.block = make(chan struct{})

		s := New(st, saver.save, Config{SnapshotInterval: -1})
		s.Start()

		done := make(chan error, 1)
		go func() { done <- s.Save(context.Background()) }()

		// The first save is stalled inside SaveFunc; a second manual
		// save must refuse rather than overlap.
		waitFor(t, func() bool { return s.inFlight.Load() })
		if err := s.Save(context.Background()); !errors.Is(err, ErrSaveInFlight) {
			t.Errorf("concurrent Save = %v, want ErrSaveInFlight", err)
		}

		close(saver.block)
		if err := <-done; err != nil {
			t.Fatalf("first Save: %v", err)
		}
		s.Stop()
	})

	t.Run("AutosaveFailureNotifiesAndRetries", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		saver.setFail(errors.New("disk full"))

		var mu sync.Mutex
		var notified []Kind
		s := New(st, saver.save, Config{
			AutosaveDelay:    15 * time.Millisecond,
			SnapshotInterval: -1,
			Notifier: NotifierFunc(func(kind Kind, err error) {
				mu.Lock()
				notified = append(notified, kind)
				mu.Unlock()
			}),
		})
		s.Start()
		defer s.Stop()

		st.MarkDirty()
		waitFor(t, func() bool { return saver.count(KindAutosave) >= 1 })

		mu.Lock()
		if len(notified) == 0 || notified[0] != KindAutosave {
			t.Errorf("notified = %v, want autosave failure", notified)
		}
		mu.Unlock()

		if !st.Dirty() {
			t.Error("store clean after failed autosave")
		}

		// Once the disk recovers the pending retry succeeds.
		saver.setFail(nil)
		waitFor(t, func() bool { return !st.Dirty() })
	})

	t.Run("SnapshotFailureStaysQuiet", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		saver.setFail(errors.New("disk full"))

		var mu sync.Mutex
		notified := 0
		s := New(st, saver.save, Config{
			AutosaveDelay:    time.Hour,
			SnapshotInterval: 15 * time.Millisecond,
			Notifier: NotifierFunc(func(Kind, error) {
				mu.Lock()
				notified++
				mu.Unlock()
			}),
		})
		s.Start()
		defer s.Stop()

		waitFor(t, func() bool { return saver.count(KindSnapshot) >= 1 })

		mu.Lock()
		defer mu.Unlock()
		if notified != 0 {
			t.Errorf("snapshot failure notified the user %d times", notified)
		}
		if st.Dirty() {
			t.Error("snapshot failure dirtied the store")
		}
	})

	t.Run("StopCancelsPendingAutosave", func(t *testing.T) {
		st := testStore()
		saver := newRecordingSaver()
		s := New(st, saver.save, Config{
			AutosaveDelay:    30 * time.Millisecond,
			SnapshotInterval: -1,
		})
		s.Start()

		st.MarkDirty()
		s.Stop()

		time.Sleep(80 * time.Millisecond)
		if got := saver.count(KindAutosave); got != 0 {
			t.Errorf("autosaves after Stop = %d, want 0", got)
		}
	})
}
