// Package config loads biplane configuration from YAML files and BIPLANE_*
// environment variables.
//
// Precedence, highest first:
//  1. Environment variables (BIPLANE_*)
//  2. YAML file values
//  3. Defaults
//
// Environment variables:
//
//	BIPLANE_DRIVER_URI                  Bolt endpoint (bolt://host:7687)
//	BIPLANE_DRIVER_USERNAME             Bolt username
//	BIPLANE_DRIVER_PASSWORD             Bolt password
//	BIPLANE_DRIVER_DATABASE             Target database name
//	BIPLANE_DRIVER_CONNECT_TIMEOUT      Connect verification timeout ("5s")
//	BIPLANE_DRIVER_CONNECT_RETRIES      Extra connect attempts
//	BIPLANE_DRIVER_RETRY_BACKOFF        Pause between connect attempts ("1s")
//	BIPLANE_ENGINE_HIERARCHY_EDGE_TYPE  Edge type hierarchy operations follow
//	BIPLANE_ENGINE_MAX_DEPTH            Depth cap for subtree scans, 0 = unbounded
//	BIPLANE_LOG_LEVEL                   debug, info, warn or error
//	BIPLANE_LOG_FORMAT                  text or json
//
// Example:
//
//	cfg, err := config.Load("./biplane.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	cfg.ApplyLogging()
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// Config holds all biplane configuration.
type Config struct {
	// Driver configures the Bolt transport behind the Cypher backend.
	Driver DriverConfig `yaml:"driver"`

	// Engine configures defaults for the in-memory backend.
	Engine EngineConfig `yaml:"engine"`

	// Logging configures the process-wide logger.
	Logging LoggingConfig `yaml:"logging"`
}

// DriverConfig holds Bolt connection settings. The zero password is valid;
// some deployments run without auth.
type DriverConfig struct {
	URI            string        `yaml:"uri"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ConnectRetries int           `yaml:"connect_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

// EngineConfig holds interpreter defaults used by the facade when a call
// does not name them explicitly.
type EngineConfig struct {
	// HierarchyEdgeType is the edge type hierarchy operations follow.
	HierarchyEdgeType string `yaml:"hierarchy_edge_type"`

	// MaxDepth caps descendant and subtree scans. 0 means unbounded.
	MaxDepth int `yaml:"max_depth"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the configuration with every default applied. The result
// passes Validate.
func Default() *Config {
	return &Config{
		Driver: DriverConfig{
			URI:            "bolt://localhost:7687",
			Username:       "neo4j",
			Database:       "neo4j",
			ConnectTimeout: 5 * time.Second,
			RetryBackoff:   time.Second,
		},
		Engine: EngineConfig{
			HierarchyEdgeType: "childOf",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the effective configuration: defaults first, then the YAML
// file at path, then environment overrides. A missing file is not an error
// (environment-only deployments), a malformed one is. An empty path skips
// the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			log.Debug("config file absent, using defaults and environment", "path", path)
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults and BIPLANE_*
// environment variables only.
func LoadFromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	c.Driver.URI = getEnv("BIPLANE_DRIVER_URI", c.Driver.URI)
	c.Driver.Username = getEnv("BIPLANE_DRIVER_USERNAME", c.Driver.Username)
	c.Driver.Password = getEnv("BIPLANE_DRIVER_PASSWORD", c.Driver.Password)
	c.Driver.Database = getEnv("BIPLANE_DRIVER_DATABASE", c.Driver.Database)
	c.Driver.ConnectTimeout = getEnvDuration("BIPLANE_DRIVER_CONNECT_TIMEOUT", c.Driver.ConnectTimeout)
	c.Driver.ConnectRetries = getEnvInt("BIPLANE_DRIVER_CONNECT_RETRIES", c.Driver.ConnectRetries)
	c.Driver.RetryBackoff = getEnvDuration("BIPLANE_DRIVER_RETRY_BACKOFF", c.Driver.RetryBackoff)

	c.Engine.HierarchyEdgeType = getEnv("BIPLANE_ENGINE_HIERARCHY_EDGE_TYPE", c.Engine.HierarchyEdgeType)
	c.Engine.MaxDepth = getEnvInt("BIPLANE_ENGINE_MAX_DEPTH", c.Engine.MaxDepth)

	c.Logging.Level = getEnv("BIPLANE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("BIPLANE_LOG_FORMAT", c.Logging.Format)
}

// Validate checks the configuration for values that cannot work. Call it
// after Load and before wiring the config into a database handle.
func (c *Config) Validate() error {
	if c.Driver.URI == "" {
		return fmt.Errorf("driver: uri must not be empty")
	}
	if c.Driver.ConnectTimeout <= 0 {
		return fmt.Errorf("driver: connect_timeout must be positive, got %s", c.Driver.ConnectTimeout)
	}
	if c.Driver.ConnectRetries < 0 {
		return fmt.Errorf("driver: connect_retries must not be negative, got %d", c.Driver.ConnectRetries)
	}
	if c.Driver.RetryBackoff < 0 {
		return fmt.Errorf("driver: retry_backoff must not be negative, got %s", c.Driver.RetryBackoff)
	}
	if c.Engine.HierarchyEdgeType == "" {
		return fmt.Errorf("engine: hierarchy_edge_type must not be empty")
	}
	if c.Engine.MaxDepth < 0 {
		return fmt.Errorf("engine: max_depth must not be negative, got %d", c.Engine.MaxDepth)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

// ApplyLogging configures the default logger from the Logging section.
// Values Validate would reject are ignored.
func (c *Config) ApplyLogging() {
	if lvl, err := log.ParseLevel(c.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	if strings.EqualFold(c.Logging.Format, "json") {
		log.SetFormatter(log.JSONFormatter)
	}
}

// String returns a log-safe summary. The password never appears in it.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Driver: %s@%s/%s, HierarchyEdge: %s, Log: %s/%s}",
		c.Driver.Username, c.Driver.URI, c.Driver.Database,
		c.Engine.HierarchyEdgeType, c.Logging.Level, c.Logging.Format)
}

// Environment parsing helpers.

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
