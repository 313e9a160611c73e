package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config configures a Server. It may be loaded from a YAML file; flags of
// `libsql serve` override individual fields.
type Config struct {
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen,omitempty"`
	// DataDir holds one database file per namespace.
	DataDir string `yaml:"data_dir"`
	// DefaultNamespace serves requests without a namespace header.
	DefaultNamespace string `yaml:"default_namespace,omitempty"`
	// JWTSecretFile enables token verification when set.
	JWTSecretFile string `yaml:"jwt_secret_file,omitempty"`
	// StreamIdleTimeout is how long an unused stream keeps its connection.
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout,omitempty"`
	// BusyTimeout is how long a statement waits for a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout,omitempty"`
	// PullLimit caps the frames returned by one pull.
	PullLimit int `yaml:"pull_limit,omitempty"`
}

// Defaults for zero Config fields.
const (
	DefaultListen            = "127.0.0.1:8080"
	DefaultNamespaceName     = "default"
	DefaultStreamIdleTimeout = 30 * time.Second
	DefaultBusyTimeout       = 5 * time.Second
	DefaultPullLimit         = 512
)

// LoadConfig reads a YAML configuration file. Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.DefaultNamespace == "" {
		c.DefaultNamespace = DefaultNamespaceName
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = DefaultBusyTimeout
	}
	if c.PullLimit <= 0 {
		c.PullLimit = DefaultPullLimit
	}
	return c
}
