// Package config holds the vtlock configuration: which kernel protections to
// apply, who may unlock, and the cosmetic options. Values come from an
// optional yaml file with command-line flags layered on top.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vtlock/vtlock/internal/fb"
)

// DefaultPath is consulted when no --config flag is given; a missing file
// there simply means defaults.
const DefaultPath = "/etc/vtlock.yaml"

type Config struct {
	Guards     GuardsConfig     `yaml:"guards"`
	Users      []string         `yaml:"users"`
	Message    string           `yaml:"message"`
	Dark       bool             `yaml:"dark"`
	Quick      bool             `yaml:"quick"`
	Auth       AuthConfig       `yaml:"auth"`
	Background BackgroundConfig `yaml:"background"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// GuardsConfig selects the kernel-level protections around the locked
// period. Everything defaults to on; flags exist to opt out.
type GuardsConfig struct {
	// Sysrq suppresses the magic sysrq key while locked.
	Sysrq bool `yaml:"sysrq"`
	// KernelMessages mutes printk output to the console while locked.
	KernelMessages bool `yaml:"kernel_messages"`
	// SwitchLock disables switching terminals from the keyboard.
	SwitchLock bool `yaml:"switch_lock"`
}

type AuthConfig struct {
	// Helper is the PAM-aware command used to verify credentials.
	Helper string `yaml:"helper"`
}

type BackgroundConfig struct {
	Path   string `yaml:"path"`
	Fill   string `yaml:"fill"`
	Device string `yaml:"device"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing is specified: all
// guards on, root as the only candidate.
func Default() Config {
	return Config{
		Guards: GuardsConfig{
			Sysrq:          true,
			KernelMessages: true,
			SwitchLock:     true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the yaml file at path over the defaults. When path is empty the
// default location is tried and may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the rest of the program would trip over.
func (c *Config) Validate() error {
	if _, err := fb.ParseFillMode(c.Background.Fill); err != nil {
		return err
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	for _, u := range c.Users {
		if u != strings.TrimSpace(u) || strings.ContainsAny(u, " \t\n") {
			return fmt.Errorf("invalid user name %q", u)
		}
	}
	return nil
}

// SlogLevel maps the configured level name onto slog.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", l.Level)
}

// SplitUsers parses the comma-separated --users flag value.
func SplitUsers(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
