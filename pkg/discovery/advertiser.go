package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface selects one network interface. Empty means all.
	Interface string

	// TTL is the DNS record TTL. Zero means 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: 120 * time.Second}
}

// Advertiser registers the engine's stream service over mDNS.
type Advertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewAdvertiser creates an advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	if config.TTL == 0 {
		config.TTL = DefaultAdvertiserConfig().TTL
	}
	return &Advertiser{config: config}
}

// Advertise registers the engine service. A prior registration for
// this advertiser is replaced.
func (a *Advertiser) Advertise(info *EngineInfo) error {
	if info.Name == "" {
		return fmt.Errorf("advertise engine: %w: name", ErrMissingRequired)
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Name,
		ServiceType,
		Domain,
		port,
		encodeTXT(info),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("register engine service: %w", err)
	}

	a.mu.Lock()
	old := a.server
	a.server = server
	a.mu.Unlock()

	if old != nil {
		old.Shutdown()
	}
	return nil
}

// Stop withdraws the advertisement. Safe to call without a prior
// Advertise.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	server := a.server
	a.server = nil
	a.mu.Unlock()

	if server != nil {
		server.Shutdown()
	}
}

// interfaces resolves the configured interface; nil means all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
