package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Engine    EngineConfig    `yaml:"engine"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type GRPCConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	// DSN empty means the in-memory store.
	DSN string `yaml:"dsn"`
}

// EngineConfig mirrors the engine settings of the wider platform. The
// interpreter reads MaxWorkflowSteps at definition validation; the timeout and
// retry settings are declared for parity but not consumed by the run loop.
type EngineConfig struct {
	MaxWorkflowSteps int           `yaml:"max_workflow_steps"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
}

type NotifierConfig struct {
	EventBusURL string        `yaml:"event_bus_url"`
	AuditURL    string        `yaml:"audit_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8200,
		},
		GRPC: GRPCConfig{
			Host: "0.0.0.0",
			Port: 9200,
		},
		Engine: EngineConfig{
			MaxWorkflowSteps: 50,
			ExecutionTimeout: time.Hour,
			MaxRetryAttempts: 3,
			RetryDelay:       time.Minute,
		},
		Notifier: NotifierConfig{
			Timeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:        true,
			ReloadInterval: 30 * time.Second,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("APP_SERVER_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_SERVER_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_GRPC_HOST")); v != "" {
		cfg.GRPC.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_GRPC_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.GRPC.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_EVENT_BUS_URL")); v != "" {
		cfg.Notifier.EventBusURL = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_AUDIT_URL")); v != "" {
		cfg.Notifier.AuditURL = v
	}
	if v := strings.TrimSpace(os.Getenv("APP_MAX_WORKFLOW_STEPS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxWorkflowSteps = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("APP_SCHEDULER_ENABLED")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = parsed
		}
	}

	return cfg, nil
}

func Module(path string) fx.Option {
	return fx.Provide(func() (Config, error) {
		return Load(path)
	})
}
