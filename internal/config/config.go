package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run probes and serve the dashboard.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Roster  RosterConfig  `yaml:"roster"`
	Data    DataConfig    `yaml:"data"`
	Probe   ProbeConfig   `yaml:"probe"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	FrontendDir     string        `yaml:"frontendDir"`
	ImagesDir       string        `yaml:"imagesDir"`
}

// RosterConfig locates the roster file and the upstream config it is synced from.
type RosterConfig struct {
	Path       string `yaml:"path"`
	SourcePath string `yaml:"sourcePath"`
}

// DataConfig locates the snapshot and history files.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ProbeConfig controls the external liveness check.
type ProbeConfig struct {
	Command     []string      `yaml:"command"`
	Prompt      string        `yaml:"prompt"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	Simulate    bool          `yaml:"simulate"`
	Seed        int64         `yaml:"seed"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey mirroring of the current snapshot.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GRAVEYARD_CONFIG")
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would make every probe fail.
func (c *Config) Validate() error {
	var errs []error
	if c.Probe.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("probe.concurrency must be >= 1, got %d", c.Probe.Concurrency))
	}
	if c.Probe.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("probe.timeout must be positive, got %s", c.Probe.Timeout))
	}
	if len(c.Probe.Command) == 0 || strings.TrimSpace(c.Probe.Command[0]) == "" {
		errs = append(errs, errors.New("probe.command must name an executable"))
	}
	if c.Roster.Path == "" {
		errs = append(errs, errors.New("roster.path is required"))
	}
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	return errors.Join(errs...)
}

func defaultConfig() Config {
	sourcePath := ""
	if home, err := os.UserHomeDir(); err == nil {
		sourcePath = filepath.Join(home, ".config", "opencode", "oh-my-opencode.json")
	}
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			FrontendDir:     "frontend",
			ImagesDir:       "images",
		},
		Roster: RosterConfig{
			Path:       filepath.Join("data", "roster.json"),
			SourcePath: sourcePath,
		},
		Data: DataConfig{Dir: "data"},
		Probe: ProbeConfig{
			Command:     []string{"opencode", "run", "--format", "json", "-m", "{model}", "{prompt}"},
			Prompt:      "Reply PONG",
			Timeout:     60 * time.Second,
			Concurrency: 3,
			Seed:        42,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			SnapshotTTL:  24 * time.Hour,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAVEYARD_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GRAVEYARD_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("GRAVEYARD_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("GRAVEYARD_ROSTER_PATH"); v != "" {
		cfg.Roster.Path = v
	}
	if v := os.Getenv("GRAVEYARD_ROSTER_SOURCE"); v != "" {
		cfg.Roster.SourcePath = v
	}
	if v := os.Getenv("GRAVEYARD_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("GRAVEYARD_PROBE_COMMAND"); v != "" {
		cfg.Probe.Command = strings.Fields(v)
	}
	if v := os.Getenv("GRAVEYARD_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Probe.Timeout = d
		}
	}
	if v := os.Getenv("GRAVEYARD_PROBE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Probe.Concurrency = n
		}
	}
	if v := os.Getenv("GRAVEYARD_SIMULATE"); v != "" {
		cfg.Probe.Simulate = isTrue(v)
	}
	if v := os.Getenv("GRAVEYARD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GRAVEYARD_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("GRAVEYARD_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("GRAVEYARD_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("GRAVEYARD_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("GRAVEYARD_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("GRAVEYARD_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("GRAVEYARD_CACHE_TLS"); isTrue(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("GRAVEYARD_CACHE_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SnapshotTTL = d
		}
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
