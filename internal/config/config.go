// Package config loads the console configuration from flags, environment
// (CONSOLE_ prefix, .env supported) and an optional config file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matthewbaird/erpconsole/internal/i18n"
	"github.com/matthewbaird/erpconsole/internal/listview"
)

// EnvPrefix prefixes every environment variable, e.g. CONSOLE_BACKEND_URL.
const EnvPrefix = "CONSOLE"

type Config struct {
	Port            int           `mapstructure:"port"`
	BackendURL      string        `mapstructure:"backend_url"`
	BackendTimeout  time.Duration `mapstructure:"backend_timeout"`
	DefaultLanguage string        `mapstructure:"default_language"`
	DoctypesFile    string        `mapstructure:"doctypes_file"`
	AuditDSN        string        `mapstructure:"audit_dsn"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
	Session         Session       `mapstructure:"session"`
	List            List          `mapstructure:"list"`
	Log             Log           `mapstructure:"log"`
}

type Session struct {
	MaxAge      time.Duration `mapstructure:"max_age"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// SweepInterval is how often expired sessions are dropped.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type List struct {
	MinPerPage int `mapstructure:"min_per_page"`
}

type Log struct {
	Format string `mapstructure:"format"` // text or json
	Level  string `mapstructure:"level"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("backend_url", "http://localhost:8000")
	v.SetDefault("backend_timeout", 15*time.Second)
	v.SetDefault("default_language", i18n.Fallback)
	v.SetDefault("doctypes_file", "")
	v.SetDefault("audit_dsn", "")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("session.max_age", 12*time.Hour)
	v.SetDefault("session.idle_timeout", time.Hour)
	v.SetDefault("session.sweep_interval", 5*time.Minute)
	v.SetDefault("list.min_per_page", listview.DefaultPerPage)
	v.SetDefault("log.format", "text")
	v.SetDefault("log.level", "info")
}

// BindEnv makes v read CONSOLE_* variables, nested keys joined by "_".
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_url %q must be an absolute URL", c.BackendURL))
	}
	if c.BackendTimeout <= 0 {
		errs = append(errs, errors.New("backend_timeout must be positive"))
	}
	if c.Session.MaxAge <= 0 || c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session timeouts must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.List.MinPerPage < 1 || c.List.MinPerPage > listview.MaxPerPage {
		errs = append(errs, fmt.Errorf("list.min_per_page must be within [1, %d]", listview.MaxPerPage))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
