// Package config provides configuration management for exthost.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ErrConfigNotFound indicates no usable config file was found.
var ErrConfigNotFound = errors.New("config not found")

// DefaultPort is the port the server listens on when none is configured.
const DefaultPort = 8088

// Config matches the structure of exthost.json
type Config struct {
	Env        map[string]string `json:"env" yaml:"env" mapstructure:"env"`
	Server     ServerConfig      `json:"server" yaml:"server" mapstructure:"server"`
	Extensions ExtensionsConfig  `json:"extensions" yaml:"extensions" mapstructure:"extensions"`
	Logging    LoggingConfig     `json:"logging" yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	Host      string          `json:"host" yaml:"host" mapstructure:"host"`
	Port      int             `json:"port" yaml:"port" mapstructure:"port"`
	BasePath  string          `json:"basePath" yaml:"basePath" mapstructure:"basePath"`
	Auth      ServerAuth      `json:"auth" yaml:"auth" mapstructure:"auth"`
	RateLimit RateLimitConfig `json:"rateLimit" yaml:"rateLimit" mapstructure:"rateLimit"`
}

type ServerAuth struct {
	Token string `json:"token" yaml:"token" mapstructure:"token"`
}

type RateLimitConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	RPS     float64 `json:"rps" yaml:"rps" mapstructure:"rps"`
	Burst   int     `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// ExtensionsConfig locates extensions and records which ones are active.
// Names are kept in lists rather than maps since viper lowercases map keys.
type ExtensionsConfig struct {
	SystemDir string   `json:"systemDir" yaml:"systemDir" mapstructure:"systemDir"`
	UserDir   string   `json:"userDir" yaml:"userDir" mapstructure:"userDir"`
	Enabled   []string `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Disabled  []string `json:"disabled" yaml:"disabled" mapstructure:"disabled"`
	Installed []string `json:"installed" yaml:"installed" mapstructure:"installed"`
}

// EnabledMap returns the explicit enabled/disabled choices keyed by extension name.
func (e ExtensionsConfig) EnabledMap() map[string]bool {
	m := make(map[string]bool, len(e.Enabled)+len(e.Disabled))
	for _, name := range e.Disabled {
		m[name] = false
	}
	for _, name := range e.Enabled {
		m[name] = true
	}
	return m
}

// SetState records enabled and installed. Choices for extensions absent from
// enabled are kept.
func (e *ExtensionsConfig) SetState(enabled map[string]bool, installed []string) {
	merged := e.EnabledMap()
	for name, on := range enabled {
		merged[name] = on
	}

	e.Enabled = []string{}
	e.Disabled = []string{}
	for name, on := range merged {
		if on {
			e.Enabled = append(e.Enabled, name)
		} else {
			e.Disabled = append(e.Disabled, name)
		}
	}
	sort.Strings(e.Enabled)
	sort.Strings(e.Disabled)
	e.Installed = append([]string{}, installed...)
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// StateDir returns the exthost state directory path.
// Can be overridden via EXTHOST_STATE_DIR environment variable.
// Default: ~/.exthost
func StateDir() string {
	if override := strings.TrimSpace(os.Getenv("EXTHOST_STATE_DIR")); override != "" {
		return expandPath(override)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".exthost"
	}
	return filepath.Join(home, ".exthost")
}

// ConfigPath returns the default config file path.
// Can be overridden via EXTHOST_CONFIG_PATH environment variable.
// Default: ~/.exthost/exthost.json
func ConfigPath() string {
	if override := strings.TrimSpace(os.Getenv("EXTHOST_CONFIG_PATH")); override != "" {
		return expandPath(override)
	}
	return filepath.Join(StateDir(), "exthost.json")
}

// expandPath expands ~ to home directory and resolves the path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

// LoadViper loads the configuration into a Viper instance.
func LoadViper() (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if configPath := strings.TrimSpace(os.Getenv("EXTHOST_CONFIG_PATH")); configPath != "" {
		expandedPath := expandPath(configPath)
		fileInfo, err := os.Stat(expandedPath)
		if err == nil && fileInfo.IsDir() {
			v.SetConfigName("exthost")
			v.AddConfigPath(expandedPath)
		} else {
			v.SetConfigFile(expandedPath)
		}
	} else {
		v.SetConfigName("exthost")
		v.SetConfigType("json")
		v.AddConfigPath(StateDir())
	}

	// Env vars - use EXTHOST_ prefix
	v.SetEnvPrefix("EXTHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	return v, nil
}

// Load reads the configuration from file or environment variables.
func Load() (*Config, error) {
	v, err := LoadViper()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// The env block is exported before expansion so fields can refer to it.
	for k, val := range cfg.Env {
		expandedVal := os.ExpandEnv(val)
		_ = os.Setenv(k, expandedVal)
		cfg.Env[k] = expandedVal
	}

	expandEnvVars(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadOrDefault loads the configuration, falling back to Default when no file exists.
func LoadOrDefault() (*Config, error) {
	cfg, err := Load()
	if errors.Is(err, ErrConfigNotFound) {
		return Default(), nil
	}
	return cfg, err
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.basePath", "")
	v.SetDefault("server.rateLimit.rps", 10)
	v.SetDefault("server.rateLimit.burst", 20)

	v.SetDefault("extensions.systemDir", "extensions")
	v.SetDefault("extensions.userDir", filepath.Join(StateDir(), "extensions"))

	v.SetDefault("logging.level", "info")
}

// expandEnvVars expands environment variables in the config.
func expandEnvVars(cfg *Config) {
	cfg.Server.Auth.Token = os.ExpandEnv(cfg.Server.Auth.Token)
	cfg.Extensions.SystemDir = os.ExpandEnv(cfg.Extensions.SystemDir)
	cfg.Extensions.UserDir = os.ExpandEnv(cfg.Extensions.UserDir)
}

// Save saves the configuration to the config file.
// Only JSON format is supported.
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks for semantic errors in the config.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") && !strings.Contains(c.Server.BasePath, "://") {
		return fmt.Errorf("server.basePath %q must start with '/' or be an absolute URL", c.Server.BasePath)
	}
	if c.Extensions.SystemDir == "" && c.Extensions.UserDir == "" {
		return fmt.Errorf("at least one of extensions.systemDir and extensions.userDir is required")
	}
	return nil
}
