package telemetry

import (
	"sync"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/log"
	"github.com/surfacelink/surfacelink-go/pkg/store"
	"github.com/surfacelink/surfacelink-go/pkg/stream"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// AllEndpoints lists every telemetry endpoint a feed can attach to.
var AllEndpoints = []stream.Endpoint{
	stream.EndpointTransport,
	stream.EndpointMeters,
	stream.EndpointSpectrum,
	stream.EndpointWaveform,
	stream.EndpointAnalytics,
}

// Feed routes decoded telemetry into the store and typed observers.
type Feed struct {
	manager   *stream.Manager
	store     *store.Store
	logger    log.Logger
	contextID string

	mu        sync.Mutex
	unsubs    []func()
	started   bool
	observers map[wire.FrameType]map[int]func(wire.Frame)
	nextID    int
}

// New creates a feed over manager, applying frames to st. logger may
// be nil.
func New(manager *stream.Manager, st *store.Store, contextID string, logger log.Logger) *Feed {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Feed{
		manager:   manager,
		store:     st,
		logger:    logger,
		contextID: contextID,
		observers: make(map[wire.FrameType]map[int]func(wire.Frame)),
	}
}

// Start attaches the feed to the given endpoints, or to all telemetry
// endpoints when none are named. Calling Start twice is a no-op.
func (f *Feed) Start(endpoints ...stream.Endpoint) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return
	}
	f.started = true

	if len(endpoints) == 0 {
		endpoints = AllEndpoints
	}
	for _, ep := range endpoints {
		conn := f.manager.Get(ep)
		if conn == nil {
			continue
		}
		f.unsubs = append(f.unsubs, conn.OnFrame(f.handleFrame))
	}
}

// Stop detaches the feed from its endpoints. The underlying
// connections stay up for other subscribers.
func (f *Feed) Stop() {
	f.mu.Lock()
	unsubs := f.unsubs
	f.unsubs = nil
	f.started = false
	f.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

// handleFrame decodes one raw frame and distributes it.
func (f *Feed) handleFrame(data []byte) {
	frame, err := wire.DecodeFrame(data)
	if err != nil {
		f.logger.Log(log.Event{
			Timestamp: time.Now(),
			ContextID: f.contextID,
			Component: log.ComponentStream,
			Category:  log.CategoryError,
			Error:     &log.ErrorEvent{Message: err.Error(), Context: "telemetry frame dropped"},
		})
		return
	}

	f.store.ApplyFrame(frame)

	f.mu.Lock()
	obs := f.observers[frame.FrameType()]
	handlers := make([]func(wire.Frame), 0, len(obs))
	for _, fn := range obs {
		handlers = append(handlers, fn)
	}
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(frame)
	}
}

// observe registers an untyped observer for one frame type.
func (f *Feed) observe(ft wire.FrameType, fn func(wire.Frame)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	if f.observers[ft] == nil {
		f.observers[ft] = make(map[int]func(wire.Frame))
	}
	f.observers[ft][id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if obs := f.observers[ft]; obs != nil {
			delete(obs, id)
		}
	}
}

// OnTransport registers a transport observer.
func (f *Feed) OnTransport(fn func(wire.TransportFrame)) func() {
	return f.observe(wire.FrameTransport, func(fr wire.Frame) {
		fn(fr.(wire.TransportFrame))
	})
}

// OnMeters registers a meters observer.
func (f *Feed) OnMeters(fn func(wire.MetersFrame)) func() {
	return f.observe(wire.FrameMeters, func(fr wire.Frame) {
		fn(fr.(wire.MetersFrame))
	})
}

// OnSpectrum registers a spectrum observer.
func (f *Feed) OnSpectrum(fn func(wire.SpectrumFrame)) func() {
	return f.observe(wire.FrameSpectrum, func(fr wire.Frame) {
		fn(fr.(wire.SpectrumFrame))
	})
}

// OnWaveform registers a waveform observer.
func (f *Feed) OnWaveform(fn func(wire.WaveformFrame)) func() {
	return f.observe(wire.FrameWaveform, func(fr wire.Frame) {
		fn(fr.(wire.WaveformFrame))
	})
}

// OnAnalytics registers an analytics observer.
func (f *Feed) OnAnalytics(fn func(wire.AnalyticsFrame)) func() {
	return f.observe(wire.FrameAnalytics, func(fr wire.Frame) {
		fn(fr.(wire.AnalyticsFrame))
	})
}
