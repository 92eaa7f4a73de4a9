// Package config loads the YAML configuration that names socket
// addresses, liveness intervals, and the IPC root directory: read the
// file, unmarshal, apply defaults, validate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document.
type Config struct {
	IPCRoot string `yaml:"ipc_root"`

	PacketFanOut PubSubConfig  `yaml:"packet_fan_out"`
	PickFanOut   PubSubConfig  `yaml:"pick_fan_out"`
	PacketCache  ReqRepConfig  `yaml:"packet_cache"`
	CommandProxy CommandConfig `yaml:"command_proxy"`

	PollingTimeoutMillis int `yaml:"polling_timeout_ms"`
}

type PubSubConfig struct {
	FrontendAddress string `yaml:"frontend_address"`
	BackendAddress  string `yaml:"backend_address"`
}

type ReqRepConfig struct {
	FrontendAddress string `yaml:"frontend_address"`
	BackendAddress  string `yaml:"backend_address"`
	RingCapacity    int    `yaml:"ring_capacity"`
}

type CommandConfig struct {
	FrontendAddress  string `yaml:"frontend_address"`
	BackendAddress   string `yaml:"backend_address"`
	PingIntervalsSec []int  `yaml:"ping_intervals_seconds"`
	GraceMillis      int    `yaml:"grace_ms"`
	SweepIntervalMs  int    `yaml:"sweep_interval_ms"`
	ModuleTablePath  string `yaml:"module_table_path"`
}

// Load reads and validates a configuration file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.IPCRoot == "" {
		cfg.IPCRoot = "/tmp/umps"
	}
	if cfg.PollingTimeoutMillis == 0 {
		cfg.PollingTimeoutMillis = 100
	}
	if cfg.PacketCache.RingCapacity == 0 {
		cfg.PacketCache.RingCapacity = 4096
	}
	if len(cfg.CommandProxy.PingIntervalsSec) == 0 {
		cfg.CommandProxy.PingIntervalsSec = []int{5, 15, 30}
	}
	if cfg.CommandProxy.GraceMillis == 0 {
		cfg.CommandProxy.GraceMillis = 100
	}
	if cfg.CommandProxy.SweepIntervalMs == 0 {
		cfg.CommandProxy.SweepIntervalMs = 100
	}
}

func (c *Config) validate() error {
	if c.PollingTimeoutMillis < 0 {
		return fmt.Errorf("config: polling_timeout_ms cannot be negative: %d", c.PollingTimeoutMillis)
	}
	last := -1
	for _, v := range c.CommandProxy.PingIntervalsSec {
		if v <= last {
			return fmt.Errorf("config: ping_intervals_seconds must be strictly increasing, got %v", c.CommandProxy.PingIntervalsSec)
		}
		last = v
	}
	return nil
}

// PollingTimeout is the configured polling quantum as a time.Duration.
func (c *Config) PollingTimeout() time.Duration {
	return time.Duration(c.PollingTimeoutMillis) * time.Millisecond
}

// PingIntervals converts the configured seconds list to durations, in
// the strictly-increasing form the heartbeat sweeper requires.
func (c *CommandConfig) PingIntervals() []time.Duration {
	out := make([]time.Duration, len(c.PingIntervalsSec))
	for i, s := range c.PingIntervalsSec {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}
