package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neboloop/chplg-devtools/internal/defaults"
	"github.com/neboloop/chplg-devtools/internal/store"
)

// Config holds every setting of the binary. The embedded default
// config.yaml fills each field.
type Config struct {
	DataDir string `yaml:"data_dir"` // empty: defaults.DataDir()

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// Store caps the shared on-disk store; Collector caps the capture
	// agent's in-memory one.
	Store     store.Limits `yaml:"store"`
	Collector store.Limits `yaml:"collector"`

	Host struct {
		Listen       string        `yaml:"listen"`
		QueryTimeout time.Duration `yaml:"query_timeout"`
	} `yaml:"host"`

	Relay struct {
		URL            string        `yaml:"url"`
		HostCmd        string        `yaml:"host_cmd"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		MaxAttempts    int           `yaml:"max_attempts"`
	} `yaml:"relay"`

	MCP struct {
		MaxLine int `yaml:"max_line"`
	} `yaml:"mcp"`
}

// LoadFromBytes loads configuration from YAML bytes with environment variable expansion
func LoadFromBytes(data []byte) (Config, error) {
	var c Config
	if err := c.Merge(data); err != nil {
		return c, err
	}
	return c, nil
}

// Merge overlays YAML onto c. Keys absent from data keep their value.
func (c *Config) Merge(data []byte) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// MergeFile overlays the YAML file at path onto c.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := c.Merge(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Default returns the embedded default configuration.
func Default() (Config, error) {
	data, err := defaults.GetDefault("config.yaml")
	if err != nil {
		return Config{}, fmt.Errorf("embedded config: %w", err)
	}
	return LoadFromBytes(data)
}

// Load starts from the defaults and overlays the file at path. With an
// empty path the user's <data dir>/config.yaml is used when it exists.
func Load(path string) (Config, error) {
	c, err := Default()
	if err != nil {
		return c, err
	}

	if path == "" {
		dir, err := c.ResolveDataDir()
		if err != nil {
			return c, err
		}
		candidate := filepath.Join(dir, "config.yaml")
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return c, c.Validate()
			}
			return c, fmt.Errorf("stat config: %w", err)
		}
		path = candidate
	}

	if err := c.MergeFile(path); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Host.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("host.query_timeout must be positive"))
	}
	if c.Relay.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("relay.reconnect_delay must be positive"))
	}
	if c.Relay.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("relay.max_attempts must not be negative"))
	}
	if c.MCP.MaxLine <= 0 {
		errs = append(errs, fmt.Errorf("mcp.max_line must be positive"))
	}
	return errors.Join(errs...)
}

// ResolveDataDir returns data_dir with a leading ~ expanded, or
// defaults.DataDir() when it is empty.
func (c Config) ResolveDataDir() (string, error) {
	dir := strings.TrimSpace(c.DataDir)
	if dir == "" {
		return defaults.DataDir()
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	return dir, nil
}

// DataFile returns the path of the shared store document.
func (c Config) DataFile() (string, error) {
	dir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, store.DataFileName), nil
}
