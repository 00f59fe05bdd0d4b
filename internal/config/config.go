package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for leibridge.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	FMR      FMRConfig
	Registry RegistryConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	APIKeyHash     string
	RequestsPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// FMRConfig describes the FMR instance datasets are validated against.
type FMRConfig struct {
	Host         string
	Port         int
	UseHTTPS     bool
	Delimiter    string
	HTTPTimeout  time.Duration
	MaxAttempts  int
	PollInterval time.Duration
}

// RegistryConfig locates the SDMX registry and the artifacts the pipeline
// resolves from it.
type RegistryConfig struct {
	Endpoint      string
	Timeout       time.Duration
	SchemaAgency  string
	SchemaID      string
	SchemaVersion string
	SchemeAgency  string
	SchemeID      string
	SchemeVersion string
}

type PipelineConfig struct {
	InputPath  string
	RowLimit   int
	ActiveOnly bool
	OutputPath string
	LogsDir    string
}

var validDelimiters = map[string]bool{
	"comma":     true,
	"semicolon": true,
	"tab":       true,
	"space":     true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any value is invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("LEIBRIDGE_PORT", 8090),
			Env:            envString("LEIBRIDGE_ENV", "development"),
			APIKeyHash:     os.Getenv("LEIBRIDGE_API_KEY_HASH"),
			RequestsPerMin: envInt("LEIBRIDGE_REQUESTS_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		FMR: FMRConfig{
			Host:         os.Getenv("FMR_HOST"),
			Port:         envInt("FMR_PORT", 8080),
			UseHTTPS:     envBool("FMR_USE_HTTPS", false),
			Delimiter:    envString("FMR_DELIMITER", "comma"),
			HTTPTimeout:  envDuration("FMR_HTTP_TIMEOUT", 30*time.Second),
			MaxAttempts:  envInt("FMR_MAX_ATTEMPTS", 10),
			PollInterval: envDuration("FMR_POLL_INTERVAL", 500*time.Millisecond),
		},
		Registry: RegistryConfig{
			Endpoint:      os.Getenv("REGISTRY_ENDPOINT"),
			Timeout:       envDuration("REGISTRY_TIMEOUT", 30*time.Second),
			SchemaAgency:  envString("REGISTRY_SCHEMA_AGENCY", "MD"),
			SchemaID:      envString("REGISTRY_SCHEMA_ID", "LEI_DATA"),
			SchemaVersion: envString("REGISTRY_SCHEMA_VERSION", "1.0"),
			SchemeAgency:  envString("REGISTRY_SCHEME_AGENCY", "MD"),
			SchemeID:      envString("REGISTRY_SCHEME_ID", "LEI_VALIDATIONS"),
			SchemeVersion: envString("REGISTRY_SCHEME_VERSION", "1.0"),
		},
		Pipeline: PipelineConfig{
			InputPath:  os.Getenv("PIPELINE_INPUT_PATH"),
			RowLimit:   envInt("PIPELINE_ROW_LIMIT", 10000),
			ActiveOnly: envBool("PIPELINE_ACTIVE_ONLY", true),
			OutputPath: os.Getenv("PIPELINE_OUTPUT_PATH"),
			LogsDir:    os.Getenv("PIPELINE_LOGS_DIR"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.FMR.Host == "" {
		return fmt.Errorf("FMR_HOST is required")
	}
	if !validDelimiters[c.FMR.Delimiter] {
		return fmt.Errorf("FMR_DELIMITER must be one of comma, semicolon, tab, space; got %q", c.FMR.Delimiter)
	}
	if c.FMR.MaxAttempts <= 0 {
		return fmt.Errorf("FMR_MAX_ATTEMPTS must be positive, got %d", c.FMR.MaxAttempts)
	}
	if c.FMR.PollInterval <= 0 {
		return fmt.Errorf("FMR_POLL_INTERVAL must be positive, got %s", c.FMR.PollInterval)
	}

	if c.Registry.Endpoint == "" {
		return fmt.Errorf("REGISTRY_ENDPOINT is required")
	}
	if !strings.HasPrefix(c.Registry.Endpoint, "http://") && !strings.HasPrefix(c.Registry.Endpoint, "https://") {
		return fmt.Errorf("REGISTRY_ENDPOINT must start with http:// or https://, got %q", c.Registry.Endpoint)
	}

	return nil
}

// ValidateServer checks the additional settings the gateway server needs.
// The one-shot pipeline runs without a database or Redis; the server does not.
func (c *Config) ValidateServer() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Server.APIKeyHash == "" {
		return fmt.Errorf("LEIBRIDGE_API_KEY_HASH is required")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
