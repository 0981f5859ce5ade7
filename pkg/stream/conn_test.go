package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

const testReconnectDelay = 20 * time.Millisecond

// fakeDialer hands out in-memory pipes and exposes the server ends.
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	fail    bool
	servers chan net.Conn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{servers: make(chan net.Conn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint Endpoint) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	d.dials++
	fail := d.fail
	d.mu.Unlock()

	if fail {
		return nil, errors.New("engine unreachable")
	}
	client, server := net.Pipe()
	d.servers <- server
	return client, nil
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	d.fail = fail
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// server waits for the next accepted connection.
func (d *fakeDialer) server(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-d.servers:
		return conn
	case <-time.After(time.Second):
		t.Fatal("no connection dialed")
		return nil
	}
}

// recorder collects state transitions in arrival order.
type recorder struct {
	mu          sync.Mutex
	transitions []string
}

func (r *recorder) handler(oldState, newState State) {
	r.mu.Lock()
	r.transitions = append(r.transitions, fmt.Sprintf("%s->%s", oldState, newState))
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.transitions))
	copy(out, r.transitions)
	return out
}

// waitTransitions blocks until the recorder has seen at least n
// transitions. State() alone is not enough for ordering assertions:
// the state is visible before handler dispatch completes.
func waitTransitions(t *testing.T, rec *recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(rec.snapshot()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("saw %d transitions, want %d: %v", len(rec.snapshot()), n, rec.snapshot())
}

func waitState(t *testing.T, conn *Conn, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if conn.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", conn.State(), want)
}

func testConn(t *testing.T, dialer Dialer) *Conn {
	t.Helper()
	conn := newConn(EndpointTransport, dialer, Config{ReconnectDelay: testReconnectDelay})
	t.Cleanup(conn.Close)
	return conn
}

func TestConn(t *testing.T) {
	t.Run("ConnectTransitions", func(t *testing.T) {
		dialer := newFakeDialer()
		conn := testConn(t, dialer)

		rec := &recorder{}
		conn.OnState(rec.handler)

		conn.Connect()
		waitState(t, conn, StateConnected)
		dialer.server(t)
		waitTransitions(t, rec, 2)

		got := rec.snapshot()
		want := []string{"disconnected->connecting", "connecting->connected"}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("transitions = %v, want %v", got, want)
		}
	})

	t.Run("DialFailureEntersErrorState", func(t *testing.T) {
		dialer := newFakeDialer()
		dialer.setFail(true)
		conn := testConn(t, dialer)

		conn.Connect()
		waitState(t, conn, StateError)
	})

	t.Run("RetriesAfterFailedAttempt", func(t *testing.T) {
		dialer := newFakeDialer()
		dialer.setFail(true)
		conn := testConn(t, dialer)

		conn.Connect()
		waitState(t, conn, StateError)

		dialer.setFail(false)
		waitState(t, conn, StateConnected)
		dialer.server(t)

		if dialer.dialCount() < 2 {
			t.Errorf("dialCount = %d, want at least 2", dialer.dialCount())
		}
	})

	t.Run("LossReconnectOrdering", func(t *testing.T) {
		dialer := newFakeDialer()
		conn := testConn(t, dialer)

		rec := &recorder{}
		conn.OnState(rec.handler)

		conn.Connect()
		waitState(t, conn, StateConnected)
		server := dialer.server(t)

		// Engine drops the stream; the connection must come back on its
		// own after the fixed delay.
		lost := time.Now()
		server.Close()
		waitTransitions(t, rec, 3)
		waitTransitions(t, rec, 5)
		dialer.server(t)

		if elapsed := time.Since(lost); elapsed < testReconnectDelay {
			t.Errorf("reconnected after %v, want at least %v", elapsed, testReconnectDelay)
		}

		got := rec.snapshot()
		want := []string{
			"disconnected->connecting",
			"connecting->connected",
			"connected->disconnected",
			"disconnected->connecting",
			"connecting->connected",
		}
		if len(got) != len(want) {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("transition %d = %s, want %s (all: %v)", i, got[i], want[i], got)
			}
		}
	})

	t.Run("MalformedFrameDropped", func(t *testing.T) {
		dialer := newFakeDialer()
		conn := testConn(t, dialer)

		var mu sync.Mutex
		var frames []string
		conn.OnFrame(func(data []byte) {
			mu.Lock()
			frames = append(frames, string(data))
			mu.Unlock()
		})

		conn.Connect()
		waitState(t, conn, StateConnected)
		server := dialer.server(t)

		w := NewLineWriter(server)
		if err := w.WriteFrame([]byte("not-json{")); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteFrame([]byte(`{"type":"analytics","cpuLoad":0.4}`)); err != nil {
			t.Fatal(err)
		}

		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			n := len(frames)
			mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(2 * time.Millisecond)
		}

		mu.Lock()
		defer mu.Unlock()
		if len(frames) != 1 || frames[0] != `{"type":"analytics","cpuLoad":0.4}` {
			t.Errorf("frames = %v, want only the valid frame", frames)
		}
		if conn.State() != StateConnected {
			t.Errorf("state = %s, want connected after malformed frame", conn.State())
		}
	})

	t.Run("SendDroppedWhileDown", func(t *testing.T) {
		dialer := newFakeDialer()
		dialer.setFail(true)
		conn := testConn(t, dialer)

		if err := conn.Send([]byte(`{"type":"subscribe"}`)); err != nil {
			t.Errorf("Send while disconnected = %v, want silent drop", err)
		}
	})

	t.Run("CloseCancelsReconnect", func(t *testing.T) {
		dialer := newFakeDialer()
		dialer.setFail(true)
		conn := newConn(EndpointMeters, dialer, Config{ReconnectDelay: testReconnectDelay})

		conn.Connect()
		waitState(t, conn, StateError)
		conn.Close()

		dials := dialer.dialCount()
		time.Sleep(4 * testReconnectDelay)
		if got := dialer.dialCount(); got != dials {
			t.Errorf("dialCount grew from %d to %d after Close", dials, got)
		}
		if conn.State() != StateDisconnected {
			t.Errorf("state after Close = %s, want disconnected", conn.State())
		}
	})
}
