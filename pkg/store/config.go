package store

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds persistence configuration from YAML.
type Config struct {
	// Backend selects the storage implementation.
	// Options: "memory", "file", "redis"
	// Default: "file"
	Backend string `yaml:"backend"`

	// Namespace isolates keys of one API deployment from another.
	// Default: derived from the API base URL by the caller, else "default".
	Namespace string `yaml:"namespace"`

	// BaseDir is the base directory for file-based storage.
	// Default: ~/.policyassist/state
	BaseDir string `yaml:"base_dir"`

	// Redis contains redis backend settings.
	Redis RedisSettings `yaml:"redis,omitempty"`
}

// RedisSettings holds the redis connection parameters.
type RedisSettings struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Backend:   "file",
		Namespace: "default",
	}
}

func (c Config) withDefaults() Config {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	return c
}

// DefaultBaseDir returns ~/.policyassist/state, or a relative fallback
// when the home directory cannot be resolved.
func DefaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".policyassist", "state")
	}
	return filepath.Join(home, ".policyassist", "state")
}
