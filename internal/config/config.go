// Package config provides configuration management for the mirror tool.
// It defines configuration structures and default values for mirroring parameters.
package config

import (
	"fmt"
	"strings"
	"time"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`             // debug, info, warn, error
	File       string `mapstructure:"file" yaml:"file"`               // Optional JSON log file
	MaxSize    int64  `mapstructure:"max_size" yaml:"max_size"`       // Rotation size in MB
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // Rotated files to keep
}

// MirrorConfig holds mirror configuration
type MirrorConfig struct {
	// Target and output
	TargetURL string `mapstructure:"target" yaml:"target"`         // Seed page to mirror
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"` // Directory the <host> folder is created in

	// Traversal
	Depth    int  `mapstructure:"depth" yaml:"depth"`         // Breadth-first layers to follow
	JustThis bool `mapstructure:"just_this" yaml:"just_this"` // Only download the target page (depth 0)

	// Fetching
	UseBrowser        bool          `mapstructure:"use_browser" yaml:"use_browser"`               // Render pages with headless Chrome
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`       // HTTP request timeout
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"` // Browser navigation timeout
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`                 // HTTP User-Agent header
	ChromePath        string        `mapstructure:"chrome_path" yaml:"chrome_path"`               // Chrome binary; found on PATH when empty
	Headers           []string      `mapstructure:"headers" yaml:"headers"`                       // Extra headers in 'Name: Value' format

	// Resources
	ResourceRules []string `mapstructure:"resource_rules" yaml:"resource_rules"` // tag/attr pairs to download

	// Run behaviour
	Resume    bool `mapstructure:"resume" yaml:"resume"`         // Allow an existing target directory
	AssumeYes bool `mapstructure:"assume_yes" yaml:"assume_yes"` // Skip the confirmation prompt

	// Optional SQLite run manifest
	ManifestPath string `mapstructure:"manifest_path" yaml:"manifest_path"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultResourceRules mirrors the tag/attribute pairs downloaded by default
var DefaultResourceRules = []string{"img/src", "link/href", "script/src"}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *MirrorConfig {
	return &MirrorConfig{
		Depth:             1,
		RequestTimeout:    30 * time.Second,
		NavigationTimeout: 45 * time.Second,
		UserAgent:         "Offliner/1.0",
		ResourceRules:     append([]string(nil), DefaultResourceRules...),
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
		},
	}
}

// Validate checks if the configuration is valid
func (c *MirrorConfig) Validate() error {
	if strings.TrimSpace(c.TargetURL) == "" {
		return ErrNoTarget
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return ErrEmptyOutputDir
	}

	if c.Depth < 0 {
		return ErrNegativeDepth
	}

	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.UseBrowser && c.NavigationTimeout <= 0 {
		return ErrInvalidNavigationTimeout
	}

	for _, rule := range c.ResourceRules {
		tag, attr, ok := strings.Cut(rule, "/")
		if !ok || strings.TrimSpace(tag) == "" || strings.TrimSpace(attr) == "" {
			return fmt.Errorf("%w: %q", ErrInvalidResourceRule, rule)
		}
	}

	if _, err := c.ParsedHeaders(); err != nil {
		return err
	}

	return nil
}

// EffectiveDepth returns the traversal depth, honouring JustThis
func (c *MirrorConfig) EffectiveDepth() int {
	if c.JustThis {
		return 0
	}
	return c.Depth
}

// ParsedHeaders converts the 'Name: Value' header list into a map
func (c *MirrorConfig) ParsedHeaders() (map[string]string, error) {
	headers := make(map[string]string, len(c.Headers))
	for _, header := range c.Headers {
		key, value, ok := strings.Cut(header, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, header)
		}
		headers[key] = value
	}
	return headers, nil
}
