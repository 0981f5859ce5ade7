package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope errors.
var (
	ErrUnknownKind   = errors.New("unknown envelope kind")
	ErrMissingOrigin = errors.New("envelope has no origin")
)

// Kind discriminates envelope payloads on the broadcast channel.
type Kind string

const (
	// KindRegister announces a new context.
	KindRegister Kind = "register"

	// KindUnregister announces a graceful context shutdown.
	KindUnregister Kind = "unregister"

	// KindPing solicits pongs from all live contexts.
	KindPing Kind = "ping"

	// KindPong answers a ping with the sender's identity.
	KindPong Kind = "pong"

	// KindStateUpdate carries a synced-state mutation for one key.
	KindStateUpdate Kind = "state-update"
)

// Valid reports whether k is a known envelope kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRegister, KindUnregister, KindPing, KindPong, KindStateUpdate:
		return true
	}
	return false
}

// Role identifies what kind of surface context sent an announcement.
type Role string

const (
	// RolePrimary is the main control-surface window.
	RolePrimary Role = "primary"

	// RolePopout is a detached panel window.
	RolePopout Role = "popout"
)

// Envelope is the unit of cross-context broadcast traffic. All registry
// and synced-state messages share one channel, discriminated by Kind.
// Envelopes exist only on the wire; they are never stored.
type Envelope struct {
	// Kind discriminates the payload.
	Kind Kind `json:"kind"`

	// Origin is the sending context's ID, used for echo suppression.
	Origin string `json:"origin"`

	// Timestamp is when the envelope was published.
	Timestamp time.Time `json:"ts"`

	// Key is the state topic for state-update envelopes.
	Key string `json:"key,omitempty"`

	// Payload is the kind-specific body, decoded by the consumer.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Announce is the payload of register and pong envelopes.
type Announce struct {
	// Role is the announcing context's role.
	Role Role `json:"role"`
}

// NewEnvelope builds an envelope with the payload marshalled to JSON.
// A nil payload produces an envelope with no body.
func NewEnvelope(kind Kind, origin, key string, payload any) (Envelope, error) {
	env := Envelope{
		Kind:      kind,
		Origin:    origin,
		Timestamp: time.Now(),
		Key:       key,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload: %w", err)
		}
		env.Payload = data
	}
	return env, nil
}

// EncodeEnvelope encodes an envelope to JSON bytes.
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if !env.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if env.Origin == "" {
		return nil, ErrMissingOrigin
	}
	return json.Marshal(env)
}

// DecodeEnvelope decodes JSON bytes into an envelope. Envelopes with an
// unknown kind or no origin are rejected so consumers only ever see
// well-formed traffic.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Kind.Valid() {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if env.Origin == "" {
		return Envelope{}, ErrMissingOrigin
	}
	return env, nil
}

// DecodeAnnounce decodes the payload of a register or pong envelope.
// A missing payload yields a zero Announce rather than an error; older
// senders may omit it.
func DecodeAnnounce(env Envelope) (Announce, error) {
	if len(env.Payload) == 0 {
		return Announce{}, nil
	}
	var a Announce
	if err := json.Unmarshal(env.Payload, &a); err != nil {
		return Announce{}, fmt.Errorf("decode announce: %w", err)
	}
	return a, nil
}
