package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patchpilot/patchpilot/internal/logging"
)

// Config represents the complete patchpilot configuration
type Config struct {
	// API server configuration
	API APIConfig `yaml:"api" json:"api"`

	// Vulnerability catalog (NVD) configuration
	NVD NVDConfig `yaml:"nvd" json:"nvd"`

	// Generative advisory service configuration
	LLM LLMConfig `yaml:"llm" json:"llm"`

	// Enrichment pipeline configuration
	Enrich EnrichConfig `yaml:"enrich" json:"enrich"`

	// Report store configuration
	Store StoreConfig `yaml:"store" json:"store"`

	// Report retention configuration
	Retention RetentionConfig `yaml:"retention" json:"retention"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Listen address
	Host string `yaml:"host" json:"host"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// HTTP timeouts
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// Maximum request header size
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// CORS settings
	EnableCORS  bool     `yaml:"enable_cors" json:"enable_cors"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// NVDConfig holds vulnerability catalog client settings
type NVDConfig struct {
	// Catalog base URL
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Optional API key sent with each request
	APIKey string `yaml:"api_key" json:"api_key"`

	// Per-request timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Maximum results requested per keyword search
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// LLMConfig holds generative advisory service settings
type LLMConfig struct {
	// Chat completions base URL
	BaseURL string `yaml:"base_url" json:"base_url"`

	// API key; empty means the advisory subsystem runs unconfigured
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model identifier
	Model string `yaml:"model" json:"model"`

	// Per-request timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// EnrichConfig holds enrichment pipeline settings
type EnrichConfig struct {
	// Number of concurrent enrichment workers
	Workers int `yaml:"workers" json:"workers"`

	// Maximum number of queued enrichment jobs
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// StoreConfig holds report store settings
type StoreConfig struct {
	// Backend: "memory" or "postgres"
	Backend string `yaml:"backend" json:"backend"`

	// Postgres DSN, used only when backend is "postgres"
	DSN string `yaml:"dsn" json:"dsn"`
}

// RetentionConfig holds report retention settings
type RetentionConfig struct {
	// Enable the retention janitor
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Cron schedule for retention sweeps
	Schedule string `yaml:"schedule" json:"schedule"`

	// Reports older than this are deleted
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   5 * time.Minute,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
			EnableCORS:     true,
			CORSOrigins:    []string{"*"},
		},
		NVD: NVDConfig{
			BaseURL:    "https://services.nvd.nist.gov",
			APIKey:     "",
			Timeout:    10 * time.Second,
			MaxResults: 5,
		},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com",
			APIKey:  "",
			Model:   "gpt-4",
			Timeout: 60 * time.Second,
		},
		Enrich: EnrichConfig{
			Workers:   8,
			QueueSize: 64,
		},
		Store: StoreConfig{
			Backend: "memory",
			DSN:     "",
		},
		Retention: RetentionConfig{
			Enabled:  false,
			Schedule: "@hourly",
			MaxAge:   24 * time.Hour,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	// Start with defaults
	config := Default()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate API configuration
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.API.Host == "" {
		return fmt.Errorf("API listen address is required")
	}

	// Validate catalog configuration
	if c.NVD.BaseURL == "" {
		return fmt.Errorf("NVD base URL is required")
	}
	if c.NVD.Timeout <= 0 {
		return fmt.Errorf("NVD timeout must be positive")
	}
	if c.NVD.MaxResults <= 0 {
		return fmt.Errorf("NVD max results must be positive")
	}

	// Validate advisory configuration
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("LLM base URL is required")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive")
	}

	// Validate enrichment configuration
	if c.Enrich.Workers <= 0 {
		return fmt.Errorf("enrichment worker count must be positive")
	}
	if c.Enrich.QueueSize <= 0 {
		return fmt.Errorf("enrichment queue size must be positive")
	}

	// Validate store configuration
	validBackends := map[string]bool{
		"memory":   true,
		"postgres": true,
	}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store DSN is required for the postgres backend")
	}

	// Validate retention configuration
	if c.Retention.Enabled {
		if c.Retention.Schedule == "" {
			return fmt.Errorf("retention schedule is required when retention is enabled")
		}
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention max age must be positive")
		}
	}

	// Validate logging configuration
	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// AdvisoryConfigured returns true if the advisory service has a credential
func (c *Config) AdvisoryConfigured() bool {
	return c.LLM.APIKey != ""
}
