package bus

import (
	"errors"
	"fmt"
	"net"
)

// DefaultGroupAddress is the loopback multicast group shared by all
// surface contexts on the host.
const DefaultGroupAddress = "239.255.77.77:17799"

// maxDatagramSize bounds inbound envelope datagrams. Synced-state
// values are small; anything larger is dropped by the medium.
const maxDatagramSize = 65536

// ErrMediumClosed is returned by Receive after the medium is closed.
var ErrMediumClosed = errors.New("medium closed")

// Medium abstracts the host broadcast primitive. Implementations must
// deliver each sent datagram to every medium joined to the same group,
// including (on most stacks) the sender itself; the bus suppresses
// self-echo by envelope origin.
type Medium interface {
	// Send broadcasts one datagram to the group. Best-effort.
	Send(data []byte) error

	// Receive blocks until the next datagram arrives. Returns
	// ErrMediumClosed after Close.
	Receive() ([]byte, error)

	// Close releases the medium. Pending Receive calls unblock.
	Close() error
}

// udpMedium implements Medium over a loopback UDP multicast group.
type udpMedium struct {
	recv *net.UDPConn
	send *net.UDPConn
}

// newUDPMedium joins the multicast group at addr.
func newUDPMedium(addr string) (*udpMedium, error) {
	group, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve group %q: %w", addr, err)
	}

	recv, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("join group %q: %w", addr, err)
	}
	_ = recv.SetReadBuffer(maxDatagramSize)

	send, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("dial group %q: %w", addr, err)
	}

	return &udpMedium{recv: recv, send: send}, nil
}

// Send broadcasts one datagram to the group.
func (m *udpMedium) Send(data []byte) error {
	_, err := m.send.Write(data)
	return err
}

// Receive blocks until the next datagram arrives.
func (m *udpMedium) Receive() ([]byte, error) {
	buf := make([]byte, maxDatagramSize)
	n, _, err := m.recv.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrMediumClosed
		}
		return nil, err
	}
	return buf[:n], nil
}

// Close releases both sockets.
func (m *udpMedium) Close() error {
	err := m.recv.Close()
	if cerr := m.send.Close(); err == nil {
		err = cerr
	}
	return err
}

// Compile-time interface satisfaction check.
var _ Medium = (*udpMedium)(nil)
