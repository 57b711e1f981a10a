// Package config holds the engine configuration: resolution modes, default
// imports, logging and diagnostics settings, loaded from dynlink.yaml.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level dynlink.yaml configuration.
type Config struct {
	// Strict rejects assignment to undeclared variables.
	Strict bool `yaml:"strict"`

	// LocalScoping makes plain assignment recurse into parent scopes only in
	// strict mode; otherwise assignment always searches the parent chain.
	LocalScoping bool `yaml:"local_scoping"`

	// Accessibility includes non-public host members in lookups.
	Accessibility bool `yaml:"accessibility"`

	// AutoVivify lets assignment to a.b.c create intermediate child scopes
	// for undefined simple prefixes.
	AutoVivify *bool `yaml:"auto_vivify,omitempty"`

	// Imports are installed in every root scope.
	Imports Imports `yaml:"imports"`

	Log         Log         `yaml:"log"`
	Diagnostics Diagnostics `yaml:"diagnostics"`
}

// Imports lists default class and package imports.
type Imports struct {
	Classes  []string `yaml:"classes,omitempty"`
	Packages []string `yaml:"packages,omitempty"`
}

// Log configures the structured logger.
type Log struct {
	// Level is one of debug, info, warn, error. Defaults to warn.
	Level string `yaml:"level,omitempty"`
	// Format is text or json. Defaults to text.
	Format string `yaml:"format,omitempty"`
}

// Diagnostics configures error rendering.
type Diagnostics struct {
	// Color is auto, always or never. Defaults to auto.
	Color string `yaml:"color,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a dynlink.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses dynlink.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for dynlink.yaml starting from dir and walking up
// to parent directories. Returns an empty path and nil error if not found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range FileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	for i, cls := range c.Imports.Classes {
		if cls == "" || strings.HasSuffix(cls, ".") || strings.HasSuffix(cls, "*") {
			return fmt.Errorf("%s: imports.classes[%d]: invalid class name %q", path, i, cls)
		}
	}
	for i, pkg := range c.Imports.Packages {
		if pkg == "" || strings.HasSuffix(pkg, ".") {
			return fmt.Errorf("%s: imports.packages[%d]: invalid package name %q", path, i, pkg)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%s: log.level: unknown level %q", path, c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("%s: log.format: must be text or json, got %q", path, c.Log.Format)
	}
	switch c.Diagnostics.Color {
	case "", "auto", "always", "never":
	default:
		return fmt.Errorf("%s: diagnostics.color: must be auto, always or never, got %q", path, c.Diagnostics.Color)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.AutoVivify == nil {
		on := true
		c.AutoVivify = &on
	}
	if len(c.Imports.Packages) == 0 && len(c.Imports.Classes) == 0 {
		c.Imports.Packages = append([]string{}, DefaultImportPackages...)
		c.Imports.Classes = append([]string{}, DefaultImportClasses...)
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Diagnostics.Color == "" {
		c.Diagnostics.Color = "auto"
	}
}

// Vivify reports whether auto-vivification is enabled.
func (c *Config) Vivify() bool { return c.AutoVivify == nil || *c.AutoVivify }

// SlogLevel maps the configured level to a slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	}
	return slog.LevelWarn
}

// NewLogger builds a logger writing to w with the configured level and format.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
