package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/surfacelink/surfacelink-go/pkg/bus"
	"github.com/surfacelink/surfacelink-go/pkg/wire"
)

// fast timings so tests complete quickly while preserving the
// heartbeat << timeout relationship.
func fastConfig() Config {
	return Config{
		HeartbeatInterval: 20 * time.Millisecond,
		SweepInterval:     40 * time.Millisecond,
		EvictionTimeout:   70 * time.Millisecond,
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// newContext creates an identity, bus and registry on the hub.
func newContext(hub *bus.MemoryHub, role wire.Role) (*Registry, *bus.Bus) {
	id := NewIdentity(role)
	b := bus.New(id.ID, bus.Config{Medium: hub.Medium()})
	return New(b, id, fastConfig()), b
}

func TestIdentity(t *testing.T) {
	a := NewIdentity(wire.RolePrimary)
	b := NewIdentity(wire.RolePrimary)

	if a.ID == "" || b.ID == "" {
		t.Fatal("empty identity ID")
	}
	if a.ID == b.ID {
		t.Fatalf("identity collision: %q", a.ID)
	}
	if a.Role != wire.RolePrimary {
		t.Errorf("Role = %q, want primary", a.Role)
	}
}

func TestRegistry(t *testing.T) {
	t.Run("MutualDiscovery", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()
		rb, bb := newContext(hub, wire.RolePopout)
		defer bb.Close()

		ra.Start()
		defer ra.Stop()
		rb.Start()
		defer rb.Stop()

		// Both see each other via register/ping/pong, without waiting
		// for a heartbeat period.
		waitFor(t, time.Second, func() bool {
			return len(ra.Members()) == 1 && len(rb.Members()) == 1
		})

		if got := ra.Members()[0]; got.ID != rb.Self().ID {
			t.Errorf("a sees %q, want %q", got.ID, rb.Self().ID)
		}
		if got := rb.Members()[0]; got.Role != wire.RolePrimary {
			t.Errorf("b sees role %q, want primary", got.Role)
		}
	})

	t.Run("LateJoinerDiscoversExisting", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()
		ra.Start()
		defer ra.Stop()

		time.Sleep(30 * time.Millisecond)

		rb, bb := newContext(hub, wire.RolePopout)
		defer bb.Close()
		rb.Start()
		defer rb.Stop()

		// The late joiner's initial ping solicits a pong carrying the
		// existing context's identity.
		waitFor(t, time.Second, func() bool {
			members := rb.Members()
			return len(members) == 1 && members[0].ID == ra.Self().ID
		})
	})

	t.Run("GracefulUnregister", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()
		rb, bb := newContext(hub, wire.RolePopout)
		defer bb.Close()

		var mu sync.Mutex
		var left []string
		ra.OnLeave(func(id Identity) {
			mu.Lock()
			left = append(left, id.ID)
			mu.Unlock()
		})

		ra.Start()
		defer ra.Stop()
		rb.Start()

		waitFor(t, time.Second, func() bool { return len(ra.Members()) == 1 })

		rb.Stop()
		bb.Close()

		// Removal is immediate, not eviction-delayed.
		waitFor(t, time.Second, func() bool { return len(ra.Members()) == 0 })

		mu.Lock()
		defer mu.Unlock()
		if len(left) != 1 || left[0] != rb.Self().ID {
			t.Errorf("OnLeave got %v, want [%s]", left, rb.Self().ID)
		}
	})

	t.Run("CrashEviction", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()
		rb, bb := newContext(hub, wire.RolePopout)

		ra.Start()
		defer ra.Stop()
		rb.Start()

		waitFor(t, time.Second, func() bool { return len(ra.Members()) == 1 })

		// Simulate a crash: the peer's bus dies without unregistering.
		// Closing the bus first suppresses Stop's unregister publish.
		bb.Close()
		go rb.Stop()

		// Evicted after the timeout plus at most one sweep interval.
		waitFor(t, time.Second, func() bool { return len(ra.Members()) == 0 })
	})

	t.Run("NotEvictedWhileHeartbeating", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()
		rb, bb := newContext(hub, wire.RolePopout)
		defer bb.Close()

		ra.Start()
		defer ra.Stop()
		rb.Start()
		defer rb.Stop()

		waitFor(t, time.Second, func() bool { return len(ra.Members()) == 1 })

		// Several eviction timeouts pass; the live peer must remain.
		time.Sleep(3 * fastConfig().EvictionTimeout)
		if len(ra.Members()) != 1 {
			t.Fatal("live context was evicted")
		}
	})

	t.Run("JoinCallback", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()

		var mu sync.Mutex
		joins := 0
		ra.OnJoin(func(Identity) {
			mu.Lock()
			joins++
			mu.Unlock()
		})

		ra.Start()
		defer ra.Stop()

		rb, bb := newContext(hub, wire.RolePopout)
		defer bb.Close()
		rb.Start()
		defer rb.Stop()

		waitFor(t, time.Second, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return joins == 1
		})

		// Continued heartbeats refresh the entry but do not re-fire
		// the join callback.
		time.Sleep(4 * fastConfig().HeartbeatInterval)
		mu.Lock()
		defer mu.Unlock()
		if joins != 1 {
			t.Errorf("joins = %d, want 1", joins)
		}
	})

	t.Run("DoubleStartAndStop", func(t *testing.T) {
		hub := bus.NewMemoryHub()
		defer hub.Close()

		ra, ba := newContext(hub, wire.RolePrimary)
		defer ba.Close()

		ra.Start()
		ra.Start()
		ra.Stop()
		ra.Stop()
	})
}
