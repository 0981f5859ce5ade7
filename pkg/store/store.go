package store

import (
	"sync"

	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// Track is one mixer channel of the session document.
type Track struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
	Pan    float64 `json:"pan"`
	Muted  bool    `json:"muted,omitempty"`
	Soloed bool    `json:"soloed,omitempty"`
}

// Session is the persisted session document.
type Session struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	TempoBPM float64 `json:"tempo_bpm"`
	Tracks   []Track `json:"tracks"`
}

// clone returns a deep copy so callers cannot alias store internals.
func (s Session) clone() Session {
	out := s
	out.Tracks = make([]Track, len(s.Tracks))
	copy(out.Tracks, s.Tracks)
	return out
}

// DirtyHandler is called when the store transitions from clean to
// dirty. It is not called again until the store has been cleaned.
type DirtyHandler func()

// Store is the session state of one surface context.
type Store struct {
	mu            sync.Mutex
	session       Session
	dirty         bool
	dirtyHandlers map[int]DirtyHandler
	nextID        int

	transport *wire.TransportFrame
	meters    *wire.MetersFrame
	spectrum  *wire.SpectrumFrame
	waveforms map[string]*wire.WaveformFrame
	analytics *wire.AnalyticsFrame
}

// New creates a clean store around the given session document.
func New(session Session) *Store {
	return &Store{
		session:       session.clone(),
		dirtyHandlers: make(map[int]DirtyHandler),
		waveforms:     make(map[string]*wire.WaveformFrame),
	}
}

// SessionID returns the session document's ID.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ID
}

// Session returns a copy of the current session document.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.clone()
}

// Update mutates the session document under the store lock and marks
// the store dirty. fn must not call back into the store.
func (s *Store) Update(fn func(*Session)) {
	s.mu.Lock()
	fn(&s.session)
	handlers := s.markDirtyLocked()
	s.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// MarkDirty flags unsaved changes. Only the clean-to-dirty transition
// notifies handlers.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	handlers := s.markDirtyLocked()
	s.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// markDirtyLocked flips the flag and snapshots handlers to notify.
// Caller holds s.mu. Returns nil when the store was already dirty.
func (s *Store) markDirtyLocked() []DirtyHandler {
	if s.dirty {
		return nil
	}
	s.dirty = true

	handlers := make([]DirtyHandler, 0, len(s.dirtyHandlers))
	for _, h := range s.dirtyHandlers {
		handlers = append(handlers, h)
	}
	return handlers
}

// ClearDirty marks the store clean, typically after a successful save.
func (s *Store) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// Dirty reports whether the store has unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// OnDirty registers a clean-to-dirty handler and returns its
// unsubscribe function.
func (s *Store) OnDirty(fn DirtyHandler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.dirtyHandlers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.dirtyHandlers, id)
	}
}

// ApplyFrame stores the latest telemetry reading of the frame's kind.
// Frames apply in arrival order and never dirty the store.
func (s *Store) ApplyFrame(f wire.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch fr := f.(type) {
	case wire.TransportFrame:
		s.transport = &fr
	case wire.MetersFrame:
		s.meters = &fr
	case wire.SpectrumFrame:
		s.spectrum = &fr
	case wire.WaveformFrame:
		s.waveforms[fr.TrackID] = &fr
	case wire.AnalyticsFrame:
		s.analytics = &fr
	}
}

// Transport returns the latest transport frame, if any arrived yet.
func (s *Store) Transport() (wire.TransportFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transport == nil {
		return wire.TransportFrame{}, false
	}
	return *s.transport, true
}

// Meters returns the latest meters frame.
func (s *Store) Meters() (wire.MetersFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meters == nil {
		return wire.MetersFrame{}, false
	}
	return *s.meters, true
}

// Spectrum returns the latest spectrum frame.
func (s *Store) Spectrum() (wire.SpectrumFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spectrum == nil {
		return wire.SpectrumFrame{}, false
	}
	return *s.spectrum, true
}

// Waveform returns the latest waveform tile for a track.
func (s *Store) Waveform(trackID string) (wire.WaveformFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.waveforms[trackID]
	if !ok {
		return wire.WaveformFrame{}, false
	}
	return *f, true
}

// Analytics returns the latest analytics frame.
func (s *Store) Analytics() (wire.AnalyticsFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analytics == nil {
		return wire.AnalyticsFrame{}, false
	}
	return *s.analytics, true
}
