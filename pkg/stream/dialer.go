package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// Endpoint is a logical telemetry stream path on the engine.
type Endpoint string

// Well-known engine endpoints.
const (
	EndpointTransport Endpoint = "/stream/transport"
	EndpointMeters    Endpoint = "/stream/meters"
	EndpointSpectrum  Endpoint = "/stream/spectrum"
	EndpointWaveform  Endpoint = "/stream/waveform"
	EndpointAnalytics Endpoint = "/stream/analytics"
)

// SubscribeRequest is the first line a client sends after connecting,
// naming the endpoint it wants frames for.
type SubscribeRequest struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// SubscribeRequestType is the discriminator value of a SubscribeRequest.
const SubscribeRequestType = "subscribe"

// Dialer opens a duplex channel to one endpoint. Implementations must
// honor ctx cancellation while dialing.
type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint) (io.ReadWriteCloser, error)
}

// NetDialer dials the engine's TCP stream port and subscribes to the
// requested endpoint before handing the channel over.
type NetDialer struct {
	// Address is the engine host:port.
	Address string

	// Timeout bounds the TCP dial. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// Dial connects to the engine and sends the subscribe line for endpoint.
func (d *NetDialer) Dial(ctx context.Context, endpoint Endpoint) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.Address, err)
	}

	req, err := json.Marshal(SubscribeRequest{Type: SubscribeRequestType, Path: string(endpoint)})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encode subscribe request: %w", err)
	}
	if err := NewLineWriter(conn).WriteFrame(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", endpoint, err)
	}
	return conn, nil
}

// Compile-time interface satisfaction check.
var _ Dialer = (*NetDialer)(nil)
