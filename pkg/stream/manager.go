package stream

import (
	"sync"
	"sync/atomic"
)

// Manager multiplexes connections so all subscribers to an endpoint
// share exactly one Conn.
type Manager struct {
	dialer Dialer
	cfg    Config

	mu    sync.Mutex
	conns map[Endpoint]*Conn

	closing atomic.Bool
}

// NewManager creates a manager dialing through dialer.
func NewManager(dialer Dialer, cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		dialer: dialer,
		cfg:    cfg,
		conns:  make(map[Endpoint]*Conn),
	}
}

// Get returns the shared connection for endpoint, creating and
// connecting it on first use. Returns nil after Close.
func (m *Manager) Get(endpoint Endpoint) *Conn {
	if m.closing.Load() {
		return nil
	}

	m.mu.Lock()
	conn, ok := m.conns[endpoint]
	if !ok {
		conn = newConn(endpoint, m.dialer, m.cfg)
		m.conns[endpoint] = conn
	}
	m.mu.Unlock()

	if !ok {
		conn.Connect()
	}
	return conn
}

// Disconnect closes the connection for endpoint, for every subscriber.
// The next Get dials fresh.
func (m *Manager) Disconnect(endpoint Endpoint) {
	m.mu.Lock()
	conn, ok := m.conns[endpoint]
	if ok {
		delete(m.conns, endpoint)
	}
	m.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// States reports the current state of every known endpoint.
func (m *Manager) States() map[Endpoint]State {
	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.mu.Unlock()

	states := make(map[Endpoint]State, len(conns))
	for _, conn := range conns {
		states[conn.Endpoint()] = conn.State()
	}
	return states
}

// Close tears down every connection. Safe to call more than once.
func (m *Manager) Close() {
	if !m.closing.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[Endpoint]*Conn)
	m.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
