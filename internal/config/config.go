package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	TraceStdout  bool   `yaml:"trace_stdout"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Generator   GeneratorConfig  `yaml:"generator"`
	Service     ServiceConfig    `yaml:"service"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// LatencyConfig is a simulated delay: base plus uniform jitter, in milliseconds.
type LatencyConfig struct {
	BaseMS   int `yaml:"base_ms"`
	JitterMS int `yaml:"jitter_ms"`
}

type GeneratorConfig struct {
	Seed               uint64        `yaml:"seed"` // 0 = random
	DescriptionLatency LatencyConfig `yaml:"description_latency"`
	ChecklistLatency   LatencyConfig `yaml:"checklist_latency"`
}

type ServiceConfig struct {
	Enabled          bool   `yaml:"enabled"`
	QueueGroup       string `yaml:"queue_group"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "taskgen",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Enabled:        true,
			Embedded:       true,
			Host:           "127.0.0.1",
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/taskgen.db",
			RetentionMode: "persistent",
			RetentionDays: 7,
			MaxRecords:    10000,
		},
		Generator: GeneratorConfig{
			DescriptionLatency: LatencyConfig{BaseMS: 1000, JitterMS: 2000},
			ChecklistLatency:   LatencyConfig{BaseMS: 800, JitterMS: 1500},
		},
		Service: ServiceConfig{
			Enabled:          true,
			QueueGroup:       "taskgen",
			RequestTimeoutMS: 30000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "TASKGEN_RUNTIME_NAME")
	overrideString(&cfg.Environment, "TASKGEN_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "TASKGEN_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "TASKGEN_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "TASKGEN_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "TASKGEN_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "TASKGEN_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.TraceStdout, "TASKGEN_TELEMETRY_TRACE_STDOUT")
	overrideBool(&cfg.Bus.Enabled, "TASKGEN_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "TASKGEN_BUS_EMBEDDED")
	overrideString(&cfg.Bus.Host, "TASKGEN_BUS_HOST")
	overrideInt(&cfg.Bus.Port, "TASKGEN_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "TASKGEN_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "TASKGEN_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "TASKGEN_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "TASKGEN_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "TASKGEN_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "TASKGEN_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "TASKGEN_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "TASKGEN_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "TASKGEN_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRecords, "TASKGEN_EVENT_STORE_MAX_RECORDS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "TASKGEN_EVENT_STORE_VACUUM_ON_START")
	overrideUint64(&cfg.Generator.Seed, "TASKGEN_GENERATOR_SEED")
	overrideInt(&cfg.Generator.DescriptionLatency.BaseMS, "TASKGEN_GENERATOR_DESCRIPTION_BASE_MS")
	overrideInt(&cfg.Generator.DescriptionLatency.JitterMS, "TASKGEN_GENERATOR_DESCRIPTION_JITTER_MS")
	overrideInt(&cfg.Generator.ChecklistLatency.BaseMS, "TASKGEN_GENERATOR_CHECKLIST_BASE_MS")
	overrideInt(&cfg.Generator.ChecklistLatency.JitterMS, "TASKGEN_GENERATOR_CHECKLIST_JITTER_MS")
	overrideBool(&cfg.Service.Enabled, "TASKGEN_SERVICE_ENABLED")
	overrideString(&cfg.Service.QueueGroup, "TASKGEN_SERVICE_QUEUE_GROUP")
	overrideInt(&cfg.Service.RequestTimeoutMS, "TASKGEN_SERVICE_REQUEST_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideUint64(target *uint64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseUint(value, 10, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port != -1 && (cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535) {
				return errors.New("bus.port must be -1 or between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.ConnectTimeout <= 0 {
			return errors.New("bus.connect_timeout_ms must be positive")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty when retention_mode=persistent")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.EventStore.MaxRecords < 0 {
		return errors.New("event_store.max_records must be >= 0")
	}
	if err := validateLatency("generator.description_latency", cfg.Generator.DescriptionLatency); err != nil {
		return err
	}
	if err := validateLatency("generator.checklist_latency", cfg.Generator.ChecklistLatency); err != nil {
		return err
	}
	if cfg.Service.Enabled {
		if !cfg.Bus.Enabled {
			return errors.New("service.enabled requires bus.enabled")
		}
		if cfg.Service.RequestTimeoutMS <= 0 {
			return errors.New("service.request_timeout_ms must be positive")
		}
	}
	return nil
}

func validateLatency(key string, l LatencyConfig) error {
	if l.BaseMS < 0 {
		return fmt.Errorf("%s.base_ms must be >= 0", key)
	}
	if l.JitterMS < 0 {
		return fmt.Errorf("%s.jitter_ms must be >= 0", key)
	}
	return nil
}
