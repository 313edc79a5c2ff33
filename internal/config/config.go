package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the agent.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	AI           AIConfig           `yaml:"ai"`
	Actions      ActionsConfig      `yaml:"actions"`
	Database     DatabaseConfig     `yaml:"database"`
	Cache        CacheConfig        `yaml:"cache"`
	ControlPlane ControlPlaneConfig `yaml:"controlPlane"`
	Tasks        TasksConfig        `yaml:"tasks"`
	Logging      LoggingConfig      `yaml:"logging"`
	Targets      []string           `yaml:"targets"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// MonitorConfig controls the sampling loop and anomaly thresholds.
type MonitorConfig struct {
	Interval      time.Duration    `yaml:"interval"`
	MaxConcurrent int              `yaml:"maxConcurrent"`
	Thresholds    ThresholdsConfig `yaml:"thresholds"`
}

// ThresholdsConfig holds the anomaly rule boundaries. All values are
// injectable so boundary behaviour can be tested exactly.
type ThresholdsConfig struct {
	CPUPercent        float64 `yaml:"cpuPercent"`
	MemoryPercent     float64 `yaml:"memoryPercent"`
	ActiveConnections int     `yaml:"activeConnections"`
	MaxConnections    int     `yaml:"maxConnections"`
	SlowQueries       int     `yaml:"slowQueries"`
}

// AIConfig selects and configures the generative-AI backend.
type AIConfig struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	EmbeddingDims int           `yaml:"embeddingDims"`
	Timeout       time.Duration `yaml:"timeout"`
	OpenAIKey     string        `yaml:"openaiKey"`
	AnthropicKey  string        `yaml:"anthropicKey"`
}

// ActionsConfig controls the auto-remediation policy.
type ActionsConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"`
	// ResolveOnFailure keeps the original behaviour of marking an
	// incident resolved even when the remediation command failed. Set
	// false to route failed executions to the failed status instead.
	ResolveOnFailure bool `yaml:"resolveOnFailure"`
	AnalysisWorkers  int  `yaml:"analysisWorkers"`
	QueueSize        int  `yaml:"queueSize"`
	SimilarCases     int  `yaml:"similarCases"`
}

// DatabaseConfig configures the Postgres store. An empty DSN selects the
// in-memory stores (simulation mode).
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	MigrationsPath  string        `yaml:"migrationsPath"`
}

// CacheConfig controls Valkey-backed caching of expensive lookups.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	SimilarCasesTTL time.Duration `yaml:"similarCasesTTL"`
	SummaryTTL      time.Duration `yaml:"summaryTTL"`
}

// ControlPlaneConfig points the action executor at the remediation tool.
// An empty base URL runs executions in simulated mode.
type ControlPlaneConfig struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// TasksConfig controls the scheduled housekeeping jobs.
type TasksConfig struct {
	Enabled             bool          `yaml:"enabled"`
	BackupInterval      time.Duration `yaml:"backupInterval"`
	HealthInterval      time.Duration `yaml:"healthInterval"`
	PerformanceInterval time.Duration `yaml:"performanceInterval"`
	ConnectionInterval  time.Duration `yaml:"connectionInterval"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("NIGHTWATCH_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":3000",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Monitor: MonitorConfig{
			Interval:      30 * time.Second,
			MaxConcurrent: 8,
			Thresholds: ThresholdsConfig{
				CPUPercent:        90,
				MemoryPercent:     85,
				ActiveConnections: 120,
				MaxConnections:    150,
				SlowQueries:       3,
			},
		},
		AI: AIConfig{
			Provider:      "openai",
			EmbeddingDims: 768,
			Timeout:       30 * time.Second,
		},
		Actions: ActionsConfig{
			ConfidenceThreshold: 85,
			ResolveOnFailure:    true,
			AnalysisWorkers:     4,
			QueueSize:           64,
			SimilarCases:        5,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    8,
			ConnMaxLifetime: 30 * time.Minute,
			MigrationsPath:  "migrations",
		},
		Cache: CacheConfig{
			Enabled:         false,
			SimilarCasesTTL: 2 * time.Minute,
			SummaryTTL:      30 * time.Second,
		},
		ControlPlane: ControlPlaneConfig{Timeout: 10 * time.Second},
		Tasks: TasksConfig{
			Enabled:             true,
			BackupInterval:      time.Minute,
			HealthInterval:      45 * time.Second,
			PerformanceInterval: 30 * time.Second,
			ConnectionInterval:  30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Targets: []string{"Orders", "Products", "Users", "Analytics"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NIGHTWATCH_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("NIGHTWATCH_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	// MONITOR_INTERVAL_MS is honoured for compatibility with earlier
	// deployments that configured the interval in milliseconds.
	if v := os.Getenv("MONITOR_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Monitor.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("NIGHTWATCH_MONITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.Interval = d
		}
	}
	if v := os.Getenv("NIGHTWATCH_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitor.Thresholds.MaxConnections = n
		}
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		cfg.AI.Provider = v
	}
	if v := os.Getenv("NIGHTWATCH_AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AI.AnthropicKey = v
	}
	if v := os.Getenv("NIGHTWATCH_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AI.Timeout = d
		}
	}
	if v := os.Getenv("ACTION_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Actions.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("NIGHTWATCH_RESOLVE_ON_FAILURE"); v != "" {
		cfg.Actions.ResolveOnFailure = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("NIGHTWATCH_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
		cfg.Cache.Enabled = true
	}
	if v := os.Getenv("NIGHTWATCH_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("NIGHTWATCH_CONTROL_PLANE_URL"); v != "" {
		cfg.ControlPlane.BaseURL = v
	}
	if v := os.Getenv("NIGHTWATCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NIGHTWATCH_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("NIGHTWATCH_TARGETS"); v != "" {
		names := strings.Split(v, ",")
		cfg.Targets = cfg.Targets[:0]
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Targets = append(cfg.Targets, name)
			}
		}
	}
}
