package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML duration strings.
type Duration time.Duration

// UnmarshalYAML parses "3s"-style duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BusConfig configures the broadcast bus.
type BusConfig struct {
	// Group is the loopback multicast group the bus binds to.
	Group string `yaml:"group"`
}

// RegistryConfig configures window membership timings.
type RegistryConfig struct {
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
	SweepInterval     Duration `yaml:"sweep_interval"`
	EvictionAfter     Duration `yaml:"eviction_after"`
}

// EngineConfig configures the engine connection.
type EngineConfig struct {
	// Address is the engine host:port. Empty means discover over mDNS.
	Address string `yaml:"address"`

	// DiscoverTimeout bounds the mDNS search when Address is empty.
	DiscoverTimeout Duration `yaml:"discover_timeout"`

	// ReconnectDelay is the fixed delay between reconnect attempts.
	ReconnectDelay Duration `yaml:"reconnect_delay"`

	// DialTimeout bounds one TCP dial.
	DialTimeout Duration `yaml:"dial_timeout"`
}

// PersistenceConfig configures session persistence.
type PersistenceConfig struct {
	// DataDir is where session documents and mirrors live.
	DataDir string `yaml:"data_dir"`

	// AutosaveDelay is the debounce between an edit and the autosave.
	AutosaveDelay Duration `yaml:"autosave_delay"`

	// SnapshotInterval is the period between history checkpoints.
	SnapshotInterval Duration `yaml:"snapshot_interval"`

	// KeepSnapshots caps the history per session. Zero keeps all.
	KeepSnapshots int `yaml:"keep_snapshots"`
}

// LogConfig configures event capture.
type LogConfig struct {
	// CapturePath is the CBOR capture file. Empty disables capture.
	CapturePath string `yaml:"capture_path"`

	// Verbose mirrors events to stderr.
	Verbose bool `yaml:"verbose"`
}

// Config is the full surface configuration.
type Config struct {
	Bus         BusConfig         `yaml:"bus"`
	Registry    RegistryConfig    `yaml:"registry"`
	Engine      EngineConfig      `yaml:"engine"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bus: BusConfig{
			Group: "239.255.77.77:17799",
		},
		Registry: RegistryConfig{
			HeartbeatInterval: Duration(5 * time.Second),
			SweepInterval:     Duration(10 * time.Second),
			EvictionAfter:     Duration(15 * time.Second),
		},
		Engine: EngineConfig{
			DiscoverTimeout: Duration(5 * time.Second),
			ReconnectDelay:  Duration(2 * time.Second),
			DialTimeout:     Duration(5 * time.Second),
		},
		Persistence: PersistenceConfig{
			DataDir:          defaultDataDir(),
			AutosaveDelay:    Duration(3 * time.Second),
			SnapshotInterval: Duration(60 * time.Second),
			KeepSnapshots:    20,
		},
	}
}

// Load returns the defaults overlaid by the YAML file at path. A
// missing file is not an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// defaultDataDir resolves the per-user data directory, falling back to
// the working directory when the user config dir is unknown.
func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "surfacelink-data"
	}
	return filepath.Join(base, "surfacelink")
}
