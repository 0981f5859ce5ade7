package discovery

import (
	"context"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface selects one network interface. Empty means all.
	Interface string
}

// Browser searches the local network for engines.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser with the given configuration.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Browse emits engines as they resolve, until ctx is done. Entries for
// the same instance seen on multiple interfaces are aggregated: the
// instance is emitted once and its address list grows in place.
func (b *Browser) Browse(ctx context.Context) (<-chan *EngineService, error) {
	out := make(chan *EngineService)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	opts := b.browserOptions()

	go func() {
		defer close(out)

		services := make(map[string]*EngineService)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToEngine(entry)
				if svc == nil {
					continue
				}

				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entryAddresses(entry))
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindEngine returns the first engine that resolves within timeout.
func (b *Browser) FindEngine(ctx context.Context, timeout time.Duration) (*EngineService, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	engines, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	select {
	case svc, ok := <-engines:
		if !ok {
			return nil, ErrNoEngine
		}
		return svc, nil
	case <-ctx.Done():
		return nil, ErrNoEngine
	}
}

// browserOptions returns zeroconf client options based on config.
func (b *Browser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// ServiceEntry is the raw mDNS entry data, decoupled from the
// zeroconf types for testability.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToEngineService converts a ServiceEntry to an EngineService.
func (e *ServiceEntry) ToEngineService() *EngineService {
	version, sessionID := decodeTXT(e.Text)
	return &EngineService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Addresses:    e.Addrs,
		Port:         e.Port,
		Version:      version,
		SessionID:    sessionID,
	}
}

// entryToEngine converts a zeroconf entry to an EngineService.
func entryToEngine(entry *zeroconf.ServiceEntry) *EngineService {
	port, err := parsePort(entry.Port)
	if err != nil {
		return nil
	}

	se := ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     port,
		Text:     entry.Text,
		Addrs:    entryAddresses(entry),
	}
	return se.ToEngineService()
}

// mergeAddresses appends addresses not already present.
func mergeAddresses(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range extra {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the addresses a removal entry carried.
func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}

	kept := addresses[:0]
	for _, addr := range addresses {
		if !drop[addr] {
			kept = append(kept, addr)
		}
	}
	return kept
}

// entryAddresses flattens a zeroconf entry's IPs to strings.
func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}
