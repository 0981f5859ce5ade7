package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame errors.
var (
	ErrUnknownFrameType = errors.New("unknown frame type")
	ErrEmptyFrame       = errors.New("empty frame")
)

// FrameType discriminates telemetry frames. Each stream endpoint
// delivers exactly one frame type.
type FrameType string

const (
	// FrameTransport carries playback position, tempo and loop state.
	FrameTransport FrameType = "transport"

	// FrameMeters carries per-track peak/RMS level pairs.
	FrameMeters FrameType = "meters"

	// FrameSpectrum carries magnitude bins of the master-bus FFT.
	FrameSpectrum FrameType = "spectrum"

	// FrameWaveform carries a tile of rendered waveform samples.
	FrameWaveform FrameType = "waveform"

	// FrameAnalytics carries engine health counters.
	FrameAnalytics FrameType = "analytics"
)

// Frame is the telemetry frame union. Concrete types are
// TransportFrame, MetersFrame, SpectrumFrame, WaveformFrame and
// AnalyticsFrame.
type Frame interface {
	FrameType() FrameType
}

// LoopRegion describes the transport loop selection in beats.
type LoopRegion struct {
	Enabled    bool    `json:"enabled"`
	StartBeats float64 `json:"start_beats"`
	EndBeats   float64 `json:"end_beats"`
}

// TransportFrame reports the engine's playback transport.
type TransportFrame struct {
	Type          FrameType  `json:"type"`
	PositionBeats float64    `json:"position_beats"`
	TempoBPM      float64    `json:"tempo_bpm"`
	Playing       bool       `json:"playing"`
	Recording     bool       `json:"recording,omitempty"`
	Loop          LoopRegion `json:"loop"`
}

// FrameType returns FrameTransport.
func (TransportFrame) FrameType() FrameType { return FrameTransport }

// TrackLevels is one track's meter reading. Levels are linear gain in
// [0, 1+]; values above 1 indicate clipping.
type TrackLevels struct {
	TrackID string  `json:"track_id"`
	PeakL   float64 `json:"peak_l"`
	PeakR   float64 `json:"peak_r"`
	RMSL    float64 `json:"rms_l"`
	RMSR    float64 `json:"rms_r"`
}

// MetersFrame reports level meters for every audible track.
type MetersFrame struct {
	Type   FrameType     `json:"type"`
	Tracks []TrackLevels `json:"tracks"`
}

// FrameType returns FrameMeters.
func (MetersFrame) FrameType() FrameType { return FrameMeters }

// SpectrumFrame reports FFT magnitude bins of the master bus.
type SpectrumFrame struct {
	Type       FrameType `json:"type"`
	SampleRate int       `json:"sample_rate"`
	Bins       []float64 `json:"bins"`
}

// FrameType returns FrameSpectrum.
func (SpectrumFrame) FrameType() FrameType { return FrameSpectrum }

// WaveformFrame carries a rendered waveform tile for one track.
type WaveformFrame struct {
	Type       FrameType `json:"type"`
	TrackID    string    `json:"track_id"`
	StartBeats float64   `json:"start_beats"`
	Samples    []float64 `json:"samples"`
}

// FrameType returns FrameWaveform.
func (WaveformFrame) FrameType() FrameType { return FrameWaveform }

// AnalyticsFrame reports engine health counters.
type AnalyticsFrame struct {
	Type         FrameType `json:"type"`
	CPULoad      float64   `json:"cpu_load"`
	DiskLoad     float64   `json:"disk_load"`
	XRuns        int       `json:"xruns"`
	BufferSize   int       `json:"buffer_size"`
	ActiveVoices int       `json:"active_voices,omitempty"`
}

// FrameType returns FrameAnalytics.
func (AnalyticsFrame) FrameType() FrameType { return FrameAnalytics }

// frameHeader is used to peek at the discriminator before decoding the
// concrete frame type.
type frameHeader struct {
	Type FrameType `json:"type"`
}

// DecodeFrame decodes one JSON telemetry frame into its concrete type.
// Unknown discriminators are an error; the caller decides whether to
// drop the frame or fail.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var hdr frameHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return nil, fmt.Errorf("decode frame header: %w", err)
	}

	switch hdr.Type {
	case FrameTransport:
		var f TransportFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode transport frame: %w", err)
		}
		return f, nil
	case FrameMeters:
		var f MetersFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode meters frame: %w", err)
		}
		return f, nil
	case FrameSpectrum:
		var f SpectrumFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode spectrum frame: %w", err)
		}
		return f, nil
	case FrameWaveform:
		var f WaveformFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode waveform frame: %w", err)
		}
		return f, nil
	case FrameAnalytics:
		var f AnalyticsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode analytics frame: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, hdr.Type)
	}
}

// EncodeFrame encodes a frame to JSON bytes, stamping the type
// discriminator from the concrete type so callers cannot mislabel it.
func EncodeFrame(f Frame) ([]byte, error) {
	switch fr := f.(type) {
	case TransportFrame:
		fr.Type = FrameTransport
		return json.Marshal(fr)
	case MetersFrame:
		fr.Type = FrameMeters
		return json.Marshal(fr)
	case SpectrumFrame:
		fr.Type = FrameSpectrum
		return json.Marshal(fr)
	case WaveformFrame:
		fr.Type = FrameWaveform
		return json.Marshal(fr)
	case AnalyticsFrame:
		fr.Type = FrameAnalytics
		return json.Marshal(fr)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownFrameType, f)
	}
}
