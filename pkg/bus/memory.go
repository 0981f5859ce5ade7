package bus

import (
	"sync"
)

// MemoryHub is an in-process broadcast medium. Every datagram sent
// through one of its mediums is delivered to all mediums on the hub,
// the sender included, matching loopback multicast semantics. Used by
// tests and by single-window setups that have no peers.
type MemoryHub struct {
	mu      sync.Mutex
	members map[*memMedium]struct{}
	closed  bool
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{members: make(map[*memMedium]struct{})}
}

// Medium joins a new medium to the hub.
func (h *MemoryHub) Medium() Medium {
	m := &memMedium{
		hub:   h,
		inbox: make(chan []byte, 64),
	}

	h.mu.Lock()
	if !h.closed {
		h.members[m] = struct{}{}
	} else {
		m.closed = true
		close(m.inbox)
	}
	h.mu.Unlock()

	return m
}

// Close detaches and closes every medium on the hub.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for m := range h.members {
		m.detach()
		delete(h.members, m)
	}
}

// broadcast delivers data to every member, dropping for members whose
// inbox is full (best-effort, like the real medium).
func (h *MemoryHub) broadcast(data []byte) {
	h.mu.Lock()
	members := make([]*memMedium, 0, len(h.members))
	for m := range h.members {
		members = append(members, m)
	}
	h.mu.Unlock()

	for _, m := range members {
		m.deliver(data)
	}
}

// remove detaches a single medium.
func (h *MemoryHub) remove(m *memMedium) {
	h.mu.Lock()
	delete(h.members, m)
	h.mu.Unlock()
}

// memMedium is one member of a MemoryHub.
type memMedium struct {
	hub   *MemoryHub
	inbox chan []byte

	mu     sync.Mutex
	closed bool
}

// Send broadcasts to every hub member.
func (m *memMedium) Send(data []byte) error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrMediumClosed
	}

	// Copy so the caller can reuse its buffer.
	cp := make([]byte, len(data))
	copy(cp, data)
	m.hub.broadcast(cp)
	return nil
}

// Receive blocks until the next datagram arrives.
func (m *memMedium) Receive() ([]byte, error) {
	data, ok := <-m.inbox
	if !ok {
		return nil, ErrMediumClosed
	}
	return data, nil
}

// Close detaches the medium from its hub.
func (m *memMedium) Close() error {
	m.hub.remove(m)
	m.detach()
	return nil
}

// deliver queues one datagram, dropping when the inbox is full.
func (m *memMedium) deliver(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	select {
	case m.inbox <- data:
	default:
		// Best-effort: drop on overflow.
	}
}

// detach marks the medium closed and unblocks Receive.
func (m *memMedium) detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.inbox)
}

// Compile-time interface satisfaction check.
var _ Medium = (*memMedium)(nil)
