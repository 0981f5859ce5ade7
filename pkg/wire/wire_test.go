package wire

import (
	"errors"
	"testing"
)

func TestEnvelope(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		env, err := NewEnvelope(KindStateUpdate, "ctx-1", "mixer.fader.3", 0.75)
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}

		data, err := EncodeEnvelope(env)
		if err != nil {
			t.Fatalf("EncodeEnvelope: %v", err)
		}

		got, err := DecodeEnvelope(data)
		if err != nil {
			t.Fatalf("DecodeEnvelope: %v", err)
		}
		if got.Kind != KindStateUpdate {
			t.Errorf("Kind = %q, want %q", got.Kind, KindStateUpdate)
		}
		if got.Origin != "ctx-1" {
			t.Errorf("Origin = %q, want ctx-1", got.Origin)
		}
		if got.Key != "mixer.fader.3" {
			t.Errorf("Key = %q, want mixer.fader.3", got.Key)
		}
		if string(got.Payload) != "0.75" {
			t.Errorf("Payload = %s, want 0.75", got.Payload)
		}
	})

	t.Run("AnnouncePayload", func(t *testing.T) {
		env, err := NewEnvelope(KindPong, "ctx-2", "", Announce{Role: RolePopout})
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}

		a, err := DecodeAnnounce(env)
		if err != nil {
			t.Fatalf("DecodeAnnounce: %v", err)
		}
		if a.Role != RolePopout {
			t.Errorf("Role = %q, want %q", a.Role, RolePopout)
		}
	})

	t.Run("EmptyAnnounce", func(t *testing.T) {
		env := Envelope{Kind: KindPing, Origin: "ctx-3"}
		a, err := DecodeAnnounce(env)
		if err != nil {
			t.Fatalf("DecodeAnnounce: %v", err)
		}
		if a.Role != "" {
			t.Errorf("Role = %q, want empty", a.Role)
		}
	})

	t.Run("RejectUnknownKind", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{"kind":"gossip","origin":"x"}`)); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("err = %v, want ErrUnknownKind", err)
		}
		if _, err := EncodeEnvelope(Envelope{Kind: "gossip", Origin: "x"}); !errors.Is(err, ErrUnknownKind) {
			t.Errorf("encode err = %v, want ErrUnknownKind", err)
		}
	})

	t.Run("RejectMissingOrigin", func(t *testing.T) {
		if _, err := DecodeEnvelope([]byte(`{"kind":"ping"}`)); !errors.Is(err, ErrMissingOrigin) {
			t.Errorf("err = %v, want ErrMissingOrigin", err)
		}
	})
}

func TestFrames(t *testing.T) {
	t.Run("TransportRoundTrip", func(t *testing.T) {
		in := TransportFrame{
			PositionBeats: 33.5,
			TempoBPM:      128,
			Playing:       true,
			Loop:          LoopRegion{Enabled: true, StartBeats: 32, EndBeats: 64},
		}

		data, err := EncodeFrame(in)
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}

		out, err := DecodeFrame(data)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}

		f, ok := out.(TransportFrame)
		if !ok {
			t.Fatalf("decoded %T, want TransportFrame", out)
		}
		if f.PositionBeats != 33.5 || f.TempoBPM != 128 || !f.Playing {
			t.Errorf("unexpected frame: %+v", f)
		}
		if !f.Loop.Enabled || f.Loop.StartBeats != 32 || f.Loop.EndBeats != 64 {
			t.Errorf("unexpected loop: %+v", f.Loop)
		}
	})

	t.Run("MetersRoundTrip", func(t *testing.T) {
		in := MetersFrame{Tracks: []TrackLevels{
			{TrackID: "drums", PeakL: 0.9, PeakR: 0.85, RMSL: 0.4, RMSR: 0.38},
			{TrackID: "bass", PeakL: 0.6, PeakR: 0.6, RMSL: 0.3, RMSR: 0.3},
		}}

		data, err := EncodeFrame(in)
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}

		out, err := DecodeFrame(data)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}

		f, ok := out.(MetersFrame)
		if !ok {
			t.Fatalf("decoded %T, want MetersFrame", out)
		}
		if len(f.Tracks) != 2 || f.Tracks[0].TrackID != "drums" {
			t.Errorf("unexpected tracks: %+v", f.Tracks)
		}
	})

	t.Run("DiscriminatorStamped", func(t *testing.T) {
		// Even if the caller mislabels the struct, the concrete type wins.
		data, err := EncodeFrame(SpectrumFrame{Type: "bogus", Bins: []float64{1, 2}})
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		out, err := DecodeFrame(data)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		if _, ok := out.(SpectrumFrame); !ok {
			t.Fatalf("decoded %T, want SpectrumFrame", out)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if _, err := DecodeFrame([]byte(`{"type":"midi"}`)); !errors.Is(err, ErrUnknownFrameType) {
			t.Errorf("err = %v, want ErrUnknownFrameType", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := DecodeFrame(nil); !errors.Is(err, ErrEmptyFrame) {
			t.Errorf("err = %v, want ErrEmptyFrame", err)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		if _, err := DecodeFrame([]byte(`{"type":"meters","tracks":`)); err == nil {
			t.Error("expected error for truncated JSON")
		}
	})
}
