package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadIni_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadIni(filepath.Join(t.TempDir(), "does-not-exist.ini"))
	if err != nil {
		t.Fatalf("LoadIni returned an error for a missing file: %v", err)
	}
	if cfg.ListenConf.Host != "0.0.0.0" || cfg.ListenConf.Port != 8080 {
		t.Errorf("Unexpected listen defaults: %s:%d", cfg.ListenConf.Host, cfg.ListenConf.Port)
	}
	if cfg.LogConf.Level != "info" {
		t.Errorf("Unexpected default log level: %s", cfg.LogConf.Level)
	}
	if cfg.WebConf.Port != 0 {
		t.Errorf("Monitoring endpoint must be disabled by default, got port %d", cfg.WebConf.Port)
	}
}

func TestLoadIni_MapsSections(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "harness.ini")
	content := `[listen]
host = 127.0.0.1
port = 9090
max_connections = 8
buffer_size = 512

[log]
level = debug

[web]
port = 8081

[client]
device_id = DEV-42
heartbeat = true
heartbeat_interval = 3
`
	if err := os.WriteFile(iniPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing test ini failed: %v", err)
	}

	cfg, err := LoadIni(iniPath)
	if err != nil {
		t.Fatalf("LoadIni failed: %v", err)
	}
	if cfg.ListenConf.Host != "127.0.0.1" || cfg.ListenConf.Port != 9090 {
		t.Errorf("listen section not mapped: %s:%d", cfg.ListenConf.Host, cfg.ListenConf.Port)
	}
	if cfg.ListenConf.MaxConnections != 8 || cfg.ListenConf.BufferSize != 512 {
		t.Errorf("listen limits not mapped: max=%d buf=%d", cfg.ListenConf.MaxConnections, cfg.ListenConf.BufferSize)
	}
	if cfg.LogConf.Level != "debug" {
		t.Errorf("log level not mapped: %s", cfg.LogConf.Level)
	}
	if cfg.WebConf.Port != 8081 {
		t.Errorf("web port not mapped: %d", cfg.WebConf.Port)
	}
	if !cfg.ClientConf.Heartbeat || cfg.ClientConf.DeviceID != "DEV-42" || cfg.ClientConf.HeartbeatInterval != 3 {
		t.Errorf("client section not mapped: %+v", cfg.ClientConf)
	}
}

func TestLoadIni_ClampsNonPositiveLimits(t *testing.T) {
	iniPath := filepath.Join(t.TempDir(), "harness.ini")
	content := `[listen]
max_connections = 0
buffer_size = -1

[client]
heartbeat_interval = 0
`
	if err := os.WriteFile(iniPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing test ini failed: %v", err)
	}

	cfg, err := LoadIni(iniPath)
	if err != nil {
		t.Fatalf("LoadIni failed: %v", err)
	}
	def := Default()
	if cfg.ListenConf.MaxConnections != def.ListenConf.MaxConnections {
		t.Errorf("max_connections=0 not clamped, got %d", cfg.ListenConf.MaxConnections)
	}
	if cfg.ListenConf.BufferSize != def.ListenConf.BufferSize {
		t.Errorf("buffer_size=-1 not clamped, got %d", cfg.ListenConf.BufferSize)
	}
	if cfg.ClientConf.HeartbeatInterval != def.ClientConf.HeartbeatInterval {
		t.Errorf("heartbeat_interval=0 not clamped, got %d", cfg.ClientConf.HeartbeatInterval)
	}
}

func TestLoadIni_EnvOverride(t *testing.T) {
	t.Setenv("HARNESS_PORT", "7070")
	t.Setenv("HARNESS_HOST", "10.1.2.3")

	cfg, err := LoadIni(filepath.Join(t.TempDir(), "missing.ini"))
	if err != nil {
		t.Fatalf("LoadIni failed: %v", err)
	}
	if cfg.ListenConf.Port != 7070 {
		t.Errorf("HARNESS_PORT override not applied: %d", cfg.ListenConf.Port)
	}
	if cfg.ListenConf.Host != "10.1.2.3" {
		t.Errorf("HARNESS_HOST override not applied: %s", cfg.ListenConf.Host)
	}
}
