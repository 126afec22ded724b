// Package config loads the scheduler configuration from .cascade/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CurrentVersion is the config schema version this build understands.
const CurrentVersion = 1

// Config represents the complete scheduler configuration
type Config struct {
	Version int    `json:"version" mapstructure:"version"`
	Root    string `json:"root" mapstructure:"root"`

	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Scan      ScanConfig      `json:"scan" mapstructure:"scan"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Storage   StorageConfig   `json:"storage" mapstructure:"storage"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string `json:"level" mapstructure:"level"`

	// File, when set, sends serve logs to a rotating file instead of stderr
	File       string `json:"file,omitempty" mapstructure:"file"`
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups,omitempty" mapstructure:"maxBackups"`
}

// SchedulerConfig controls wave execution
type SchedulerConfig struct {
	// MaxParallel bounds concurrent regenerations inside one wave
	MaxParallel int `json:"maxParallel" mapstructure:"maxParallel"`
	// RegenCommand is the shell command run per artifact; empty means dry run
	RegenCommand        string `json:"regenCommand" mapstructure:"regenCommand"`
	RegenTimeoutSeconds int    `json:"regenTimeoutSeconds" mapstructure:"regenTimeoutSeconds"`

	// MaxRetained caps planned reports and unsaved finished executions kept in memory
	MaxRetained int `json:"maxRetained" mapstructure:"maxRetained"`
}

// ScanConfig lists the scan inputs fed into the graph and weakness index
type ScanConfig struct {
	Manifests []string `json:"manifests" mapstructure:"manifests"`
	ScipIndex string   `json:"scipIndex" mapstructure:"scipIndex"`
	Ignore    []string `json:"ignore" mapstructure:"ignore"`

	// Watch makes serve reload manifests and the SCIP index when they change
	Watch           bool `json:"watch" mapstructure:"watch"`
	PollIntervalMs  int  `json:"pollIntervalMs" mapstructure:"pollIntervalMs"`
	WatchDebounceMs int  `json:"watchDebounceMs" mapstructure:"watchDebounceMs"`
}

// ServerConfig contains HTTP API configuration
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// StorageConfig contains audit history configuration
type StorageConfig struct {
	DataDir       string `json:"dataDir" mapstructure:"dataDir"`
	RetentionDays int    `json:"retentionDays" mapstructure:"retentionDays"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Root:    ".",
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
		Scheduler: SchedulerConfig{
			MaxParallel:         4,
			RegenCommand:        "",
			RegenTimeoutSeconds: 600,
			MaxRetained:         256,
		},
		Scan: ScanConfig{
			Manifests:       []string{},
			ScipIndex:       "",
			Ignore:          []string{"**/vendor/**", "**/node_modules/**"},
			PollIntervalMs:  2000,
			WatchDebounceMs: 500,
		},
		Server: ServerConfig{
			Addr: "localhost:9130",
		},
		Storage: StorageConfig{
			DataDir:       ".cascade",
			RetentionDays: 90,
		},
	}
}

// LoadConfig loads configuration from <root>/.cascade/config.json.
// CASCADE_* environment variables override file values
// (e.g. CASCADE_SCHEDULER_MAXPARALLEL=8).
func LoadConfig(root string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("version", def.Version)
	v.SetDefault("root", root)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)
	v.SetDefault("logging.maxSize", def.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", def.Logging.MaxBackups)
	v.SetDefault("scheduler.maxParallel", def.Scheduler.MaxParallel)
	v.SetDefault("scheduler.regenCommand", def.Scheduler.RegenCommand)
	v.SetDefault("scheduler.regenTimeoutSeconds", def.Scheduler.RegenTimeoutSeconds)
	v.SetDefault("scheduler.maxRetained", def.Scheduler.MaxRetained)
	v.SetDefault("scan.manifests", def.Scan.Manifests)
	v.SetDefault("scan.scipIndex", def.Scan.ScipIndex)
	v.SetDefault("scan.ignore", def.Scan.Ignore)
	v.SetDefault("scan.watch", def.Scan.Watch)
	v.SetDefault("scan.pollIntervalMs", def.Scan.PollIntervalMs)
	v.SetDefault("scan.watchDebounceMs", def.Scan.WatchDebounceMs)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("storage.dataDir", def.Storage.DataDir)
	v.SetDefault("storage.retentionDays", def.Storage.RetentionDays)

	v.SetEnvPrefix("CASCADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(root, ".cascade"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to <root>/.cascade/config.json
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ".cascade")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// DataDir resolves the storage directory against the config root.
func (c *Config) DataDir() string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(c.Root, c.Storage.DataDir)
}

// LogFile returns the serve log path resolved against Root, or "".
func (c *Config) LogFile() string {
	if c.Logging.File == "" || filepath.IsAbs(c.Logging.File) {
		return c.Logging.File
	}
	return filepath.Join(c.Root, c.Logging.File)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Scheduler.MaxParallel < 1 {
		return &ConfigError{Field: "scheduler.maxParallel", Message: "must be at least 1"}
	}
	if c.Scheduler.RegenTimeoutSeconds < 0 {
		return &ConfigError{Field: "scheduler.regenTimeoutSeconds", Message: "must not be negative"}
	}
	if c.Scheduler.MaxRetained < 1 {
		return &ConfigError{Field: "scheduler.maxRetained", Message: "must be at least 1"}
	}
	if c.Scan.Watch && c.Scan.PollIntervalMs < 100 {
		return &ConfigError{Field: "scan.pollIntervalMs", Message: "must be at least 100 when watching"}
	}
	if c.Logging.MaxBackups < 0 {
		return &ConfigError{Field: "logging.maxBackups", Message: "must not be negative"}
	}
	if c.Storage.RetentionDays < 0 {
		return &ConfigError{Field: "storage.retentionDays", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
