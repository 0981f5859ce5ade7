package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/stream"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// frameCadence is how often each endpoint emits a frame.
var frameCadence = map[stream.Endpoint]time.Duration{
	stream.EndpointTransport: 33 * time.Millisecond,
	stream.EndpointMeters:    33 * time.Millisecond,
	stream.EndpointSpectrum:  50 * time.Millisecond,
	stream.EndpointWaveform:  250 * time.Millisecond,
	stream.EndpointAnalytics: time.Second,
}

// Server accepts stream subscriptions and feeds them synthetic frames.
type Server struct {
	listener net.Listener
	synth    *Synth
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewServer starts listening on addr.
func NewServer(addr string, synth *Synth, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: listener, synth: synth, logger: logger}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the bound TCP port.
func (s *Server) Port() uint16 {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return 0
}

// Serve accepts connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle serves one subscriber: read the subscribe line, then stream
// frames at the endpoint's cadence until the peer goes away.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	endpoint, err := s.readSubscribe(conn)
	if err != nil {
		s.logger.Warn("subscribe rejected", "peer", conn.RemoteAddr(), "err", err)
		return
	}
	s.logger.Info("subscriber attached", "peer", conn.RemoteAddr(), "endpoint", endpoint)

	cadence := frameCadence[endpoint]
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	writer := stream.NewLineWriter(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frame := s.synth.Frame(endpoint, now)
			if frame == nil {
				continue
			}
			data, err := wire.EncodeFrame(frame)
			if err != nil {
				s.logger.Error("encode frame failed", "endpoint", endpoint, "err", err)
				return
			}
			if err := writer.WriteFrame(data); err != nil {
				s.logger.Info("subscriber detached", "peer", conn.RemoteAddr(), "endpoint", endpoint)
				return
			}
		}
	}
}

// readSubscribe reads and validates the subscribe line.
func (s *Server) readSubscribe(conn net.Conn) (stream.Endpoint, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	reader := stream.NewLineReader(conn)
	line, err := reader.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errors.New("connection closed before subscribe")
		}
		return "", err
	}

	var req stream.SubscribeRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return "", fmt.Errorf("malformed subscribe line: %w", err)
	}
	if req.Type != stream.SubscribeRequestType {
		return "", fmt.Errorf("unexpected request type %q", req.Type)
	}

	endpoint := stream.Endpoint(req.Path)
	if _, ok := frameCadence[endpoint]; !ok {
		return "", fmt.Errorf("unknown endpoint %q", req.Path)
	}
	return endpoint, nil
}
