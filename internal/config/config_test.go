package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Generator.DescriptionLatency.BaseMS != 1000 || cfg.Generator.DescriptionLatency.JitterMS != 2000 {
		t.Fatalf("unexpected description latency %+v", cfg.Generator.DescriptionLatency)
	}
	if cfg.Generator.ChecklistLatency.BaseMS != 800 || cfg.Generator.ChecklistLatency.JitterMS != 1500 {
		t.Fatalf("unexpected checklist latency %+v", cfg.Generator.ChecklistLatency)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TASKGEN_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("TASKGEN_BUS_USERNAME", "alice")
	t.Setenv("TASKGEN_BUS_PASSWORD", "secret")
	t.Setenv("TASKGEN_BUS_TLS_INSECURE", "true")
	t.Setenv("TASKGEN_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("TASKGEN_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("TASKGEN_EVENT_STORE_RETENTION_MODE", "ephemeral")
	t.Setenv("TASKGEN_EVENT_STORE_RETENTION_DAYS", "3")
	t.Setenv("TASKGEN_EVENT_STORE_MAX_RECORDS", "123")
	t.Setenv("TASKGEN_EVENT_STORE_VACUUM_ON_START", "true")
	t.Setenv("TASKGEN_GENERATOR_SEED", "77")
	t.Setenv("TASKGEN_GENERATOR_DESCRIPTION_BASE_MS", "10")
	t.Setenv("TASKGEN_GENERATOR_CHECKLIST_JITTER_MS", "0")
	t.Setenv("TASKGEN_SERVICE_QUEUE_GROUP", "workers")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.EventStore.RetentionDays != 3 {
		t.Fatalf("expected event store retention days override")
	}
	if cfg.EventStore.MaxRecords != 123 {
		t.Fatalf("expected event store max records override")
	}
	if !cfg.EventStore.VacuumOnStart {
		t.Fatalf("expected event store vacuum flag override")
	}
	if cfg.Generator.Seed != 77 {
		t.Fatalf("expected seed override, got %d", cfg.Generator.Seed)
	}
	if cfg.Generator.DescriptionLatency.BaseMS != 10 {
		t.Fatalf("expected description base override")
	}
	if cfg.Generator.ChecklistLatency.JitterMS != 0 {
		t.Fatalf("expected checklist jitter override")
	}
	if cfg.Service.QueueGroup != "workers" {
		t.Fatalf("expected queue group override")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskgen.yaml")
	data := []byte(`runtime_name: taskgen-test
http:
  port: 9090
bus:
  enabled: false
event_store:
  retention_mode: ephemeral
generator:
  seed: 5
  description_latency:
    base_ms: 1
    jitter_ms: 2
service:
  enabled: false
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "taskgen-test" || cfg.HTTP.Port != 9090 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Bus.Enabled || cfg.Service.Enabled {
		t.Fatalf("expected bus and service disabled")
	}
	if cfg.Generator.DescriptionLatency != (LatencyConfig{BaseMS: 1, JitterMS: 2}) {
		t.Fatalf("unexpected description latency %+v", cfg.Generator.DescriptionLatency)
	}
	// untouched keys keep their defaults
	if cfg.Generator.ChecklistLatency.BaseMS != 800 {
		t.Fatalf("expected default checklist latency, got %+v", cfg.Generator.ChecklistLatency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty runtime name":   func(c *Config) { c.RuntimeName = "" },
		"bad port":             func(c *Config) { c.HTTP.Port = 70000 },
		"bad log level":        func(c *Config) { c.Telemetry.LogLevel = "verbose" },
		"bad retention mode":   func(c *Config) { c.EventStore.RetentionMode = "session" },
		"negative jitter":      func(c *Config) { c.Generator.ChecklistLatency.JitterMS = -1 },
		"negative base":        func(c *Config) { c.Generator.DescriptionLatency.BaseMS = -5 },
		"service without bus":  func(c *Config) { c.Bus.Enabled = false },
		"no servers":           func(c *Config) { c.Bus.Embedded = false; c.Bus.Servers = nil },
		"zero request timeout": func(c *Config) { c.Service.RequestTimeoutMS = 0 },
		"zero embedded port":   func(c *Config) { c.Bus.Port = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := validate(Default()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRandomEmbeddedPort(t *testing.T) {
	cfg := Default()
	cfg.Bus.Port = -1
	if err := validate(cfg); err != nil {
		t.Fatalf("port -1 should select a random port: %v", err)
	}
}
