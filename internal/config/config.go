// Package config loads the cluster configuration file: partitions, node
// inventory, and the scheduling/launch timeouts named throughout spec.md.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeSpec is one statically-configured node entry.
type NodeSpec struct {
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	CPUs     int      `yaml:"cpus"`
	MemoryMB int64    `yaml:"memory_mb"`
	DiskMB   int64    `yaml:"disk_mb"`
	Weight   int      `yaml:"weight"`
	Features []string `yaml:"features"`
}

// PartitionSpec is one statically-configured partition entry.
type PartitionSpec struct {
	Name          string   `yaml:"name"`
	Nodes         []string `yaml:"nodes"`
	MinNodes      int      `yaml:"min_nodes"`
	MaxNodes      int      `yaml:"max_nodes"`
	MaxTimeLimit  string   `yaml:"max_time_limit"`
	Priority      int      `yaml:"priority"`
	Share         string   `yaml:"share"` // "exclusive" | "no" | "yes:N" | "force:N"
	RootOnly      bool     `yaml:"root_only"`
	Hidden        bool     `yaml:"hidden"`
	AllowedGroups []string `yaml:"allowed_groups"`
	Default       bool     `yaml:"default"`
}

// TopologySpec configures the topology placement backend, when present.
type TopologySpec struct {
	Geometry [3]int `yaml:"geometry"`
	ConnType string `yaml:"conn_type"` // torus | mesh | small | nav
}

// Cluster is the top-level cluster configuration file. Durations are
// parsed from their raw YAML string form (e.g. "30s") after unmarshal.
type Cluster struct {
	Nodes      []NodeSpec      `yaml:"nodes"`
	Partitions []PartitionSpec `yaml:"partitions"`
	Topology   *TopologySpec   `yaml:"topology,omitempty"`

	SchedIntervalRaw   string `yaml:"sched_interval"`
	SlurmdTimeoutRaw   string `yaml:"slurmd_timeout"`
	LaunchTimeoutRaw   string `yaml:"launch_timeout"`
	MaxRetries         int    `yaml:"max_retries"`
	DeadlineScanRaw    string `yaml:"deadline_scan_interval"`
	CredentialGraceRaw string `yaml:"credential_grace"`

	SchedInterval   time.Duration `yaml:"-"`
	SlurmdTimeout   time.Duration `yaml:"-"`
	LaunchTimeout   time.Duration `yaml:"-"`
	DeadlineScan    time.Duration `yaml:"-"`
	CredentialGrace time.Duration `yaml:"-"`
}

// Defaults returns the config with spec-mandated defaults applied, per
// spec.md §4.4 (sched_interval), §4.5 (launch_timeout/grace), §7.4
// (max_retries), and §5 (credential grace).
func Defaults() Cluster {
	return Cluster{
		SchedInterval:   30 * time.Second,
		SlurmdTimeout:   60 * time.Second,
		LaunchTimeout:   30 * time.Second,
		MaxRetries:      10,
		DeadlineScan:    30 * time.Second,
		CredentialGrace: 5 * time.Minute,
	}
}

// Load reads and parses a cluster config file, filling in defaults for any
// zero-valued timing field.
func Load(path string) (*Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse cluster config: %w", err)
	}

	if err := resolveDurations(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveDurations(cfg *Cluster) error {
	d := Defaults()
	fields := []struct {
		raw string
		out *time.Duration
		def time.Duration
	}{
		{cfg.SchedIntervalRaw, &cfg.SchedInterval, d.SchedInterval},
		{cfg.SlurmdTimeoutRaw, &cfg.SlurmdTimeout, d.SlurmdTimeout},
		{cfg.LaunchTimeoutRaw, &cfg.LaunchTimeout, d.LaunchTimeout},
		{cfg.DeadlineScanRaw, &cfg.DeadlineScan, d.DeadlineScan},
		{cfg.CredentialGraceRaw, &cfg.CredentialGrace, d.CredentialGrace},
	}
	for _, f := range fields {
		if f.raw == "" {
			*f.out = f.def
			continue
		}
		parsed, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", f.raw, err)
		}
		*f.out = parsed
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	return nil
}
