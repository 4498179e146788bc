package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is the YAML file read by Load when it exists.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-notebook.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3001"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Debug    bool   `yaml:"debug" env:"DEBUG" env-default:"false"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database server that hosts the system registry, the master sample
	// database and every owned notebook database.
	Database DatabaseConfig `yaml:"database"`

	// LLM endpoint used for metadata inference and by ai_complete() in Python.
	LLM LLMConfig `yaml:"llm"`

	// Python execution bridge
	Python PythonConfig `yaml:"python"`

	// First-boot provisioning
	Provisioning ProvisioningConfig `yaml:"provisioning"`
}

// DatabaseConfig holds the configured database server.
type DatabaseConfig struct {
	// Dialect selects the adapter: "mysql" or "postgres".
	Dialect  string `yaml:"dialect" env:"DB_DIALECT" env-default:"mysql"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"0"` // 0 means the dialect default
	User     string `yaml:"user" env:"DB_USER" env-default:"root"`
	Password string `yaml:"-" env:"DB_PASSWORD"` // Secret - not in YAML
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`

	// SystemDatabase holds the notebook/app/share/settings registry tables.
	SystemDatabase string `yaml:"system_database" env:"DB_SYSTEM_NAME" env-default:"notebook_system"`
	// MasterDatabase holds the bundled sample datasets.
	MasterDatabase string `yaml:"master_database" env:"DB_MASTER_NAME" env-default:"notebook_master"`

	// PoolMaxConns is the maximum number of connections per database pool.
	PoolMaxConns int `yaml:"pool_max_conns" env:"DB_POOL_MAX_CONNS" env-default:"10"`
	// ConnectTimeoutSeconds bounds establishing a single connection.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" env:"DB_CONNECT_TIMEOUT_SECONDS" env-default:"10"`
}

// ConnectTimeout returns the connect timeout as a duration.
func (c *DatabaseConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// LLMConfig holds the language model endpoint.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	BaseURL  string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
}

// IsAvailable returns true if an LLM endpoint is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.APIKey != "" && c.Model != ""
}

// PythonConfig holds settings for the Python subprocess bridge.
type PythonConfig struct {
	// InterpreterPath overrides interpreter discovery when set.
	InterpreterPath string `yaml:"interpreter_path" env:"PYTHON_PATH" env-default:""`
	// VenvDir is the project-local virtualenv checked before PATH lookup.
	VenvDir string `yaml:"venv_dir" env:"PYTHON_VENV_DIR" env-default:".venv"`
	// TempDir is where composed scripts are written. Empty uses os.TempDir().
	TempDir string `yaml:"temp_dir" env:"PYTHON_TEMP_DIR" env-default:""`
	// TimeoutSeconds is the wall-clock limit per run. 0 disables it.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"PYTHON_TIMEOUT_SECONDS" env-default:"300"`
	// DBConnectTimeoutSeconds is passed to the driver inside sql().
	DBConnectTimeoutSeconds int `yaml:"db_connect_timeout_seconds" env:"PYTHON_DB_CONNECT_TIMEOUT_SECONDS" env-default:"10"`
}

// Timeout returns the run timeout as a duration.
func (c *PythonConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProvisioningConfig controls first-boot seeding.
type ProvisioningConfig struct {
	// SentinelPath marks a completed provisioning run.
	SentinelPath string `yaml:"sentinel_path" env:"PROVISION_SENTINEL" env-default:".provisioned"`
	LoadSamples  bool   `yaml:"load_samples" env:"PROVISION_LOAD_SAMPLES" env-default:"true"`
	SeedDemo     bool   `yaml:"seed_demo" env:"PROVISION_SEED_DEMO" env-default:"true"`
}

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. Without a config file only the environment is read.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigPath, version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Database.Dialect = strings.ToLower(strings.TrimSpace(cfg.Database.Dialect))
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Dialect {
	case "mysql", "postgres":
	case "postgresql":
		c.Database.Dialect = "postgres"
	default:
		return fmt.Errorf("unsupported database dialect %q", c.Database.Dialect)
	}

	if c.Database.SystemDatabase == "" || c.Database.MasterDatabase == "" {
		return fmt.Errorf("system and master database names are required")
	}
	if c.Database.SystemDatabase == c.Database.MasterDatabase {
		return fmt.Errorf("system and master database must differ (both %q)", c.Database.SystemDatabase)
	}
	if c.Database.PoolMaxConns <= 0 {
		return fmt.Errorf("pool_max_conns must be positive, got %d", c.Database.PoolMaxConns)
	}
	if c.Python.TimeoutSeconds < 0 {
		return fmt.Errorf("python timeout_seconds must not be negative")
	}

	return nil
}
