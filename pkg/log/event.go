package log

import (
	"time"
)

// Event represents one sync-layer occurrence. CBOR encoding uses
// integer keys for compactness in capture files.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ContextID identifies the surface context that emitted the event.
	ContextID string `cbor:"2,keyasint"`

	// Component that emitted the event.
	Component Component `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Direction of message flow, for message events.
	Direction Direction `cbor:"5,keyasint,omitempty"`

	// Endpoint is the stream endpoint path, for stream events.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// Key is the synced-state topic, for bus and bridge events.
	Key string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (at most one is set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`
	Save        *SaveEvent        `cbor:"10,keyasint,omitempty"`
	Error       *ErrorEvent       `cbor:"11,keyasint,omitempty"`
}

// Component identifies which sync-layer component emitted an event.
type Component uint8

const (
	// ComponentBus is the broadcast bus.
	ComponentBus Component = 0
	// ComponentRegistry is the window registry.
	ComponentRegistry Component = 1
	// ComponentSyncState is the synced-state bridge.
	ComponentSyncState Component = 2
	// ComponentStream is the stream connection layer.
	ComponentStream Component = 3
	// ComponentScheduler is the persistence scheduler.
	ComponentScheduler Component = 4
)

// String returns the component name.
func (c Component) String() string {
	switch c {
	case ComponentBus:
		return "BUS"
	case ComponentRegistry:
		return "REGISTRY"
	case ComponentSyncState:
		return "SYNCSTATE"
	case ComponentStream:
		return "STREAM"
	case ComponentScheduler:
		return "SCHEDULER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates broadcast or stream traffic.
	CategoryMessage Category = 0
	// CategoryState indicates a state change (connection, membership).
	CategoryState Category = 1
	// CategorySave indicates a persistence attempt.
	CategorySave Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategorySave:
		return "SAVE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent describes one message seen at a boundary. Payloads larger
// than MaxLoggedPayload are truncated before capture.
type FrameEvent struct {
	// Size is the full payload size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the (possibly truncated) payload.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data was cut at MaxLoggedPayload.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MaxLoggedPayload is the maximum payload size captured per event.
// Larger payloads are truncated to keep capture files bounded.
const MaxLoggedPayload = 4096

// NewFrameEvent builds a FrameEvent, truncating oversized payloads.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data), Data: data}
	if len(data) > MaxLoggedPayload {
		fe.Data = data[:MaxLoggedPayload]
		fe.Truncated = true
	}
	return fe
}

// StateChangeEvent describes a state transition.
type StateChangeEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason gives optional context for the transition.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// SaveEvent describes one persistence attempt.
type SaveEvent struct {
	// Kind is the save kind (autosave, snapshot, manual).
	Kind string `cbor:"1,keyasint"`

	// SessionID is the session that was saved.
	SessionID string `cbor:"2,keyasint"`

	// Duration is how long the save took.
	Duration time.Duration `cbor:"3,keyasint,omitempty"`

	// Error is the failure message, empty on success.
	Error string `cbor:"4,keyasint,omitempty"`
}

// ErrorEvent describes an error at any layer.
type ErrorEvent struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`

	// Context describes what the component was doing.
	Context string `cbor:"2,keyasint,omitempty"`
}
