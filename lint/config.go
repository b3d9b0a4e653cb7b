package lint

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/dlinter/dlin/internal"
	"github.com/dlinter/dlin/internal/registry"
	tt "github.com/dlinter/dlin/internal/types"
)

// DefaultConfigPath is read when no configuration file is given.
const DefaultConfigPath = ".dlin.yaml"

// Config represents the overall configuration of a lint run.
type Config struct {
	Name      string                   `yaml:"name" toml:"name"`
	Rules     map[string]tt.ConfigRule `yaml:"rules" toml:"rules"`
	Optimizer OptimizerConfig          `yaml:"optimizer" toml:"optimizer"`
	Registry  RegistryConfig           `yaml:"registry" toml:"registry"`
	Cache     CacheConfig              `yaml:"cache" toml:"cache"`

	// path of the file the configuration was read from, if any
	path string
}

type OptimizerConfig struct {
	// Disable lists optimizer passes that must not run.
	Disable []string `yaml:"disable" toml:"disable"`
}

type RegistryConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled" toml:"enabled"`
	Dir     string        `yaml:"dir" toml:"dir"`
	MaxAge  time.Duration `yaml:"max_age" toml:"max_age"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Name:  "dlin",
		Rules: map[string]tt.ConfigRule{},
		Registry: RegistryConfig{
			Timeout: registry.DefaultTimeout,
		},
		Cache: CacheConfig{
			MaxAge: internal.DefaultCacheMaxAge,
		},
	}
}

// Path returns the file the configuration was loaded from, or "".
func (c Config) Path() string {
	return c.path
}

// LoadConfig reads the configuration at path. Files ending in .toml are
// decoded as TOML, everything else as YAML. An empty path means
// DefaultConfigPath, which may be absent.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	optional := path == ""
	if optional {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("error reading config file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	} else if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	}

	if cfg.Rules == nil {
		cfg.Rules = map[string]tt.ConfigRule{}
	}
	cfg.path = path
	return cfg, nil
}

// WriteConfig writes cfg as YAML to path. It refuses to overwrite an
// existing file.
func WriteConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("error writing config file: %w", err)
	}
	return f.Close()
}
