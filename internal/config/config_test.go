package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "umps.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
packet_cache:
  frontend_address: "tcp://127.0.0.1:5555"
  backend_address: "tcp://127.0.0.1:5556"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IPCRoot != "/tmp/umps" {
		t.Errorf("IPCRoot = %q", cfg.IPCRoot)
	}
	if cfg.PollingTimeoutMillis != 100 {
		t.Errorf("PollingTimeoutMillis = %d", cfg.PollingTimeoutMillis)
	}
	if cfg.PacketCache.RingCapacity != 4096 {
		t.Errorf("RingCapacity = %d", cfg.PacketCache.RingCapacity)
	}
	if len(cfg.CommandProxy.PingIntervalsSec) != 3 {
		t.Errorf("PingIntervalsSec = %v", cfg.CommandProxy.PingIntervalsSec)
	}
}

func TestLoad_RejectsNonIncreasingPingIntervals(t *testing.T) {
	path := writeConfig(t, `
command_proxy:
  ping_intervals_seconds: [10, 5, 30]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-increasing ping intervals")
	}
}

func TestCommandConfig_PingIntervals(t *testing.T) {
	cfg := CommandConfig{PingIntervalsSec: []int{5, 15, 30}}
	durations := cfg.PingIntervals()
	if len(durations) != 3 || durations[0].Seconds() != 5 {
		t.Errorf("PingIntervals() = %v", durations)
	}
}
