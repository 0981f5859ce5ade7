package main

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/stream"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// Synth produces plausible telemetry for a session that is always
// playing. All frames derive from wall-clock time so independent
// subscribers see a consistent engine.
type Synth struct {
	tempo  float64
	tracks []string
	start  time.Time

	mu    sync.Mutex
	xruns int
}

// NewSynth creates a synthesizer with the given tempo and track count.
func NewSynth(tempo float64, trackCount int) *Synth {
	if tempo <= 0 {
		tempo = 120
	}
	if trackCount <= 0 {
		trackCount = 8
	}
	tracks := make([]string, trackCount)
	for i := range tracks {
		tracks[i] = fmt.Sprintf("track-%d", i+1)
	}
	return &Synth{tempo: tempo, tracks: tracks, start: time.Now()}
}

// Frame produces the next frame for an endpoint.
func (s *Synth) Frame(endpoint stream.Endpoint, now time.Time) wire.Frame {
	switch endpoint {
	case stream.EndpointTransport:
		return s.transport(now)
	case stream.EndpointMeters:
		return s.meters(now)
	case stream.EndpointSpectrum:
		return s.spectrum(now)
	case stream.EndpointWaveform:
		return s.waveform(now)
	case stream.EndpointAnalytics:
		return s.analytics(now)
	default:
		return nil
	}
}

// beats converts elapsed time to transport position.
func (s *Synth) beats(now time.Time) float64 {
	return now.Sub(s.start).Minutes() * s.tempo
}

func (s *Synth) transport(now time.Time) wire.Frame {
	return wire.TransportFrame{
		PositionBeats: s.beats(now),
		TempoBPM:      s.tempo,
		Playing:       true,
		Loop: wire.LoopRegion{
			Enabled:    true,
			StartBeats: 0,
			EndBeats:   64,
		},
	}
}

func (s *Synth) meters(now time.Time) wire.Frame {
	t := now.Sub(s.start).Seconds()
	levels := make([]wire.TrackLevels, len(s.tracks))
	for i, id := range s.tracks {
		// Each track pulses at its own phase.
		phase := t*2 + float64(i)*0.7
		peak := 0.5 + 0.45*math.Abs(math.Sin(phase))
		levels[i] = wire.TrackLevels{
			TrackID: id,
			PeakL:   peak,
			PeakR:   peak * 0.95,
			RMSL:    peak * 0.7,
			RMSR:    peak * 0.66,
		}
	}
	return wire.MetersFrame{Tracks: levels}
}

func (s *Synth) spectrum(now time.Time) wire.Frame {
	t := now.Sub(s.start).Seconds()
	bins := make([]float64, 64)
	for i := range bins {
		// Pink-ish slope with a slow-moving resonance.
		slope := 1 / (1 + float64(i)*0.25)
		resonance := 0.4 * math.Exp(-math.Pow(float64(i)-20*math.Abs(math.Sin(t/5)), 2)/18)
		bins[i] = slope + resonance
	}
	return wire.SpectrumFrame{SampleRate: 48000, Bins: bins}
}

func (s *Synth) waveform(now time.Time) wire.Frame {
	beats := s.beats(now)
	track := s.tracks[int(beats)%len(s.tracks)]

	samples := make([]float64, 256)
	for i := range samples {
		x := beats + float64(i)/64
		samples[i] = 0.8 * math.Sin(x*math.Pi) * math.Sin(x*0.13)
	}
	return wire.WaveformFrame{
		TrackID:    track,
		StartBeats: math.Floor(beats),
		Samples:    samples,
	}
}

func (s *Synth) analytics(now time.Time) wire.Frame {
	t := now.Sub(s.start).Seconds()
	cpu := 0.3 + 0.15*math.Sin(t/7)

	s.mu.Lock()
	// A rare xrun keeps the counter honest.
	if int(t)%97 == 0 && int(t) > 0 {
		s.xruns++
	}
	xruns := s.xruns
	s.mu.Unlock()

	return wire.AnalyticsFrame{
		CPULoad:      cpu,
		DiskLoad:     0.1 + 0.05*math.Sin(t/13),
		XRuns:        xruns,
		BufferSize:   256,
		ActiveVoices: 12 + int(6*math.Abs(math.Sin(t/3))),
	}
}
