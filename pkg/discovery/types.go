package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type for engine stream ports.
	ServiceType = "_surfacelink._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the engine's default stream port.
	DefaultPort = 17800
)

// TXT record keys.
const (
	txtKeyVersion = "ver"
	txtKeySession = "session"
)

// ProtocolVersion is the stream protocol version advertised in TXT
// records.
const ProtocolVersion = "1"

// Discovery errors.
var (
	// ErrMissingRequired indicates required service info is missing.
	ErrMissingRequired = errors.New("missing required field")

	// ErrNoEngine indicates no engine was found before the deadline.
	ErrNoEngine = errors.New("no engine found")
)

// EngineInfo describes one engine to advertise.
type EngineInfo struct {
	// Name is the service instance name, unique per engine.
	Name string

	// Port is the stream port. Zero means DefaultPort.
	Port uint16

	// Version is the protocol version. Empty means ProtocolVersion.
	Version string

	// SessionID is the engine's active session, if any.
	SessionID string
}

// EngineService is one engine resolved from the network.
type EngineService struct {
	// InstanceName is the advertised service instance name.
	InstanceName string

	// Host is the engine's mDNS host name.
	Host string

	// Addresses holds the engine's IP addresses as strings, aggregated
	// across interfaces.
	Addresses []string

	// Port is the stream port.
	Port uint16

	// Version is the advertised protocol version.
	Version string

	// SessionID is the engine's active session, if any.
	SessionID string
}

// Address returns a dialable host:port for the engine, preferring the
// first resolved IP.
func (s *EngineService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(host, "."), s.Port)
}

// encodeTXT builds the TXT record strings for an engine.
func encodeTXT(info *EngineInfo) []string {
	version := info.Version
	if version == "" {
		version = ProtocolVersion
	}
	txt := []string{txtKeyVersion + "=" + version}
	if info.SessionID != "" {
		txt = append(txt, txtKeySession+"="+info.SessionID)
	}
	return txt
}

// decodeTXT extracts the known keys from TXT record strings. Unknown
// keys are ignored for forward compatibility.
func decodeTXT(txt []string) (version, sessionID string) {
	for _, record := range txt {
		key, value, ok := strings.Cut(record, "=")
		if !ok {
			continue
		}
		switch key {
		case txtKeyVersion:
			version = value
		case txtKeySession:
			sessionID = value
		}
	}
	return version, sessionID
}

// parsePort keeps ports in uint16 range.
func parsePort(port int) (uint16, error) {
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return uint16(port), nil
}
