package config

import (
	"fmt"
	"os"
	"time"

	"github.com/tandem-ha/tandem/pkg/types"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "5s" or "2m" parse
// directly into timing fields.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Timings holds every interval and grace period used by the failover
// protocol. All values are process-wide and immutable after load.
type Timings struct {
	// HeartbeatInterval is how often the primary sends heartbeats
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// CheckHeartbeatInterval is how often the backup checks staleness
	CheckHeartbeatInterval Duration `yaml:"check_heartbeat_interval"`

	// HeartbeatTimeout is the staleness threshold that triggers failover
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`

	// StartupGracePeriod suppresses workload checks after becoming primary
	StartupGracePeriod Duration `yaml:"startup_grace_period"`

	// RestartGracePeriod suppresses failure verdicts while a workload is
	// presumed to be restarting
	RestartGracePeriod Duration `yaml:"restart_grace_period"`

	// VerifyChecks is the number of consecutive polls used to confirm a
	// workload is really down
	VerifyChecks int `yaml:"verify_checks"`

	// VerifyCheckInterval is the delay between confirmation polls
	VerifyCheckInterval Duration `yaml:"verify_check_interval"`

	// HealthCheckInterval is the primary health loop cycle time
	HealthCheckInterval Duration `yaml:"health_check_interval"`

	// StartPollInterval is the poll period while waiting for workloads to
	// come up after a start
	StartPollInterval Duration `yaml:"start_poll_interval"`

	// StartTimeout bounds how long become-primary waits for workloads
	StartTimeout Duration `yaml:"start_timeout"`
}

// Node describes one member of the active/passive pair
type Node struct {
	Name        string     `yaml:"name"`
	Listen      string     `yaml:"listen"`
	PeerURL     string     `yaml:"peer_url"`
	InitialRole types.Role `yaml:"initial_role"`
	Workloads   []string   `yaml:"workloads"`
}

// Config is the full cluster configuration for both nodes
type Config struct {
	LogLevel       string  `yaml:"log_level"`
	DataDir        string  `yaml:"data_dir"`
	ContainerdSock string  `yaml:"containerd_socket"`
	Timings        Timings `yaml:"timings"`
	Nodes          []Node  `yaml:"nodes"`
}

// DefaultTimings returns the timings used by the reference deployment
func DefaultTimings() Timings {
	return Timings{
		HeartbeatInterval:      Duration(5 * time.Second),
		CheckHeartbeatInterval: Duration(5 * time.Second),
		HeartbeatTimeout:       Duration(20 * time.Second),
		StartupGracePeriod:     Duration(20 * time.Second),
		RestartGracePeriod:     Duration(30 * time.Second),
		VerifyChecks:           3,
		VerifyCheckInterval:    Duration(5 * time.Second),
		HealthCheckInterval:    Duration(10 * time.Second),
		StartPollInterval:      Duration(10 * time.Second),
		StartTimeout:           Duration(5 * time.Minute),
	}
}

// Default returns a two-node configuration suitable for local testing
func Default() *Config {
	return &Config{
		LogLevel: "info",
		DataDir:  "/var/lib/tandem",
		Timings:  DefaultTimings(),
		Nodes: []Node{
			{
				Name:        "node-a",
				Listen:      ":8000",
				PeerURL:     "http://127.0.0.1:8001",
				InitialRole: types.RolePrimary,
				Workloads:   []string{"container-1", "container-2"},
			},
			{
				Name:        "node-b",
				Listen:      ":8001",
				PeerURL:     "http://127.0.0.1:8000",
				InitialRole: types.RoleBackup,
				Workloads:   []string{"container-1", "container-2"},
			},
		},
	}
}

// Load reads and validates a cluster configuration file. Timing fields
// left unset fall back to the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{Timings: DefaultTimings()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks structural invariants of the configuration
func (c *Config) Validate() error {
	if len(c.Nodes) != 2 {
		return fmt.Errorf("expected exactly 2 nodes, got %d", len(c.Nodes))
	}

	primaries := 0
	seen := make(map[string]bool)
	for i := range c.Nodes {
		n := &c.Nodes[i]
		if n.Name == "" {
			return fmt.Errorf("node %d: name is required", i)
		}
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = true

		if n.Listen == "" {
			return fmt.Errorf("node %s: listen address is required", n.Name)
		}
		if n.PeerURL == "" {
			return fmt.Errorf("node %s: peer_url is required", n.Name)
		}
		if !n.InitialRole.Valid() {
			return fmt.Errorf("node %s: invalid initial_role %q", n.Name, n.InitialRole)
		}
		if n.InitialRole == types.RolePrimary {
			primaries++
		}
		if len(n.Workloads) == 0 {
			return fmt.Errorf("node %s: at least one workload is required", n.Name)
		}
	}

	if primaries != 1 {
		return fmt.Errorf("expected exactly 1 initial primary, got %d", primaries)
	}

	t := &c.Timings
	if t.HeartbeatTimeout.Std() <= t.HeartbeatInterval.Std() {
		return fmt.Errorf("heartbeat_timeout (%s) must exceed heartbeat_interval (%s)",
			t.HeartbeatTimeout.Std(), t.HeartbeatInterval.Std())
	}
	if t.VerifyChecks < 1 {
		return fmt.Errorf("verify_checks must be at least 1, got %d", t.VerifyChecks)
	}

	return nil
}

// Node returns the configuration for the named node
func (c *Config) Node(name string) (*Node, error) {
	for i := range c.Nodes {
		if c.Nodes[i].Name == name {
			return &c.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("node %q not found in configuration", name)
}
