package store

import (
	"sync"
	"testing"

	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

func testSession() Session {
	return Session{
		ID:       "sess-1",
		Name:     "Untitled",
		TempoBPM: 120,
		Tracks: []Track{
			{ID: "t1", Name: "Drums", Volume: 0.8},
			{ID: "t2", Name: "Bass", Volume: 0.7, Pan: -0.2},
		},
	}
}

func TestStore(t *testing.T) {
	t.Run("DirtyTransitionFiresOnce", func(t *testing.T) {
		s := New(testSession())

		var mu sync.Mutex
		fired := 0
		s.OnDirty(func() {
			mu.Lock()
			fired++
			mu.Unlock()
		})

		// A burst of edits is one clean-to-dirty transition.
		s.Update(func(sess *Session) { sess.TempoBPM = 128 })
		s.Update(func(sess *Session) { sess.Tracks[0].Volume = 0.9 })
		s.MarkDirty()

		mu.Lock()
		if fired != 1 {
			t.Errorf("handler fired %d times, want 1", fired)
		}
		mu.Unlock()

		// Cleaning re-arms the transition.
		s.ClearDirty()
		s.MarkDirty()

		mu.Lock()
		defer mu.Unlock()
		if fired != 2 {
			t.Errorf("handler fired %d times after clean, want 2", fired)
		}
	})

	t.Run("UpdateMutatesDocument", func(t *testing.T) {
		s := New(testSession())
		s.Update(func(sess *Session) {
			sess.Tracks[1].Muted = true
		})

		got := s.Session()
		if !got.Tracks[1].Muted {
			t.Error("mutation not visible in Session()")
		}
		if !s.Dirty() {
			t.Error("Update did not dirty the store")
		}
	})

	t.Run("SessionReturnsCopy", func(t *testing.T) {
		s := New(testSession())
		got := s.Session()
		got.Tracks[0].Volume = 0

		if s.Session().Tracks[0].Volume != 0.8 {
			t.Error("Session() aliases internal track slice")
		}
	})

	t.Run("TelemetryNeverDirties", func(t *testing.T) {
		s := New(testSession())

		fired := false
		s.OnDirty(func() { fired = true })

		s.ApplyFrame(wire.TransportFrame{PositionBeats: 4, TempoBPM: 120, Playing: true})
		s.ApplyFrame(wire.AnalyticsFrame{CPULoad: 0.3, BufferSize: 256})
		s.ApplyFrame(wire.WaveformFrame{TrackID: "t1", Samples: []float64{0.1, -0.1}})

		if s.Dirty() || fired {
			t.Error("telemetry dirtied the store")
		}
	})

	t.Run("LatestFrameWins", func(t *testing.T) {
		s := New(testSession())

		s.ApplyFrame(wire.TransportFrame{PositionBeats: 1})
		s.ApplyFrame(wire.TransportFrame{PositionBeats: 2})

		got, ok := s.Transport()
		if !ok || got.PositionBeats != 2 {
			t.Errorf("Transport = %+v ok=%v, want latest frame", got, ok)
		}

		if _, ok := s.Meters(); ok {
			t.Error("Meters reported a frame before any arrived")
		}
	})

	t.Run("WaveformPerTrack", func(t *testing.T) {
		s := New(testSession())

		s.ApplyFrame(wire.WaveformFrame{TrackID: "t1", StartBeats: 0, Samples: []float64{0.5}})
		s.ApplyFrame(wire.WaveformFrame{TrackID: "t2", StartBeats: 8, Samples: []float64{0.2}})

		f1, ok := s.Waveform("t1")
		if !ok || f1.Samples[0] != 0.5 {
			t.Errorf("Waveform(t1) = %+v ok=%v", f1, ok)
		}
		if _, ok := s.Waveform("t3"); ok {
			t.Error("Waveform(t3) reported a tile for an unknown track")
		}
	})

	t.Run("UnsubscribeDirtyHandler", func(t *testing.T) {
		s := New(testSession())

		fired := false
		unsub := s.OnDirty(func() { fired = true })
		unsub()

		s.MarkDirty()
		if fired {
			t.Error("handler fired after unsubscribe")
		}
	})
}
