// Package config loads the service configuration from a YAML file, fills
// unset fields from `default` tags and applies environment overrides.
//
// Precedence, lowest first: defaults, the YAML file, the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	File     string         `yaml:"-"` // absolute path of the loaded file, empty for defaults only
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Scope    ScopeConfig    `yaml:"scope"`
}

type ServerConfig struct {
	Port            int    `yaml:"port" default:"8080"`
	ReadTimeout     string `yaml:"read-timeout" default:"15s"`
	WriteTimeout    string `yaml:"write-timeout" default:"15s"`
	ShutdownTimeout string `yaml:"shutdown-timeout" default:"30s"`
	// SecureCookies marks the session cookie Secure. Enable behind HTTPS.
	SecureCookies bool `yaml:"secure-cookies"`
}

type DatabaseConfig struct {
	// Path of the SQLite file. ":memory:" keeps everything in memory.
	Path        string `yaml:"path" default:"data/snipspace.db"`
	BusyTimeout string `yaml:"busy-timeout" default:"5s"`
}

type LogConfig struct {
	// Level is parsed by zapcore.ParseLevel.
	Level string `yaml:"level" default:"info"`
	// Production switches from console output to JSON.
	Production bool `yaml:"production"`
}

type AuthConfig struct {
	JWTSecret  string `yaml:"jwt-secret"`
	TokenTTL   string `yaml:"token-ttl" default:"24h"`
	BcryptCost int    `yaml:"bcrypt-cost" default:"12"`
}

type ScopeConfig struct {
	// AcquireTimeout bounds how long a mutation waits for another mutation
	// of the same user to finish.
	AcquireTimeout string `yaml:"acquire-timeout" default:"10s"`
}

// Load reads the configuration. An empty path yields defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	c := new(Config)
	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "set default config failed")
	}

	if path != "" {
		realpath, err := filepath.Abs(path)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve config path %s", path)
		}
		c.File = filepath.Clean(realpath)

		file, err := os.ReadFile(c.File)
		if err != nil {
			return nil, errors.Wrap(err, "read config file failed")
		}
		if err := yaml.Unmarshal(file, c); err != nil {
			return nil, errors.Wrap(err, "parse config file failed")
		}
		// Fields present in the YAML but left empty get their defaults too.
		if err := defaults.Set(c); err != nil {
			return nil, errors.Wrap(err, "re-set default config failed")
		}
	}

	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid PORT value %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup("JWT_SECRET"); ok && v != "" {
		c.Auth.JWTSecret = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks ranges and that every duration parses.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	for name, v := range map[string]string{
		"server.read-timeout":     c.Server.ReadTimeout,
		"server.write-timeout":    c.Server.WriteTimeout,
		"server.shutdown-timeout": c.Server.ShutdownTimeout,
		"database.busy-timeout":   c.Database.BusyTimeout,
		"auth.token-ttl":          c.Auth.TokenTTL,
		"scope.acquire-timeout":   c.Scope.AcquireTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
	}
	return nil
}

// Durations are validated by Load, so the accessors ignore parse errors.

func (s ServerConfig) ReadTimeoutDuration() time.Duration { return duration(s.ReadTimeout) }
func (s ServerConfig) WriteTimeoutDuration() time.Duration { return duration(s.WriteTimeout) }
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration { return duration(s.ShutdownTimeout) }
func (d DatabaseConfig) BusyTimeoutDuration() time.Duration { return duration(d.BusyTimeout) }
func (a AuthConfig) TokenTTLDuration() time.Duration { return duration(a.TokenTTL) }
func (s ScopeConfig) AcquireTimeoutDuration() time.Duration { return duration(s.AcquireTimeout) }

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
