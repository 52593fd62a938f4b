// Package config handles firmup configuration parsing and location resolution.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adamancini/firmup/internal/backup"
	"github.com/adamancini/firmup/internal/device"
	"github.com/adamancini/firmup/internal/fetch"
	"github.com/adamancini/firmup/internal/update"
)

// CurrentVersion is the config schema version this build understands.
const CurrentVersion = 1

// ErrNotFound is returned by Find when no config file exists in any of the
// standard locations.
var ErrNotFound = errors.New("no config file found in standard locations")

// Config is the parsed configuration file merged over the defaults.
type Config struct {
	Version          int          `yaml:"version" toml:"version" json:"version"`
	SupportedDevices []string     `yaml:"supported_devices" toml:"supported_devices" json:"supported_devices"`
	URLTemplate      string       `yaml:"url_template" toml:"url_template" json:"url_template"`
	DeviceInfoFile   string       `yaml:"device_info_file" toml:"device_info_file" json:"device_info_file"`
	HTTP             HTTPConfig   `yaml:"http" toml:"http" json:"http"`
	Backup           BackupConfig `yaml:"backup" toml:"backup" json:"backup"`

	// Path is the file the config was loaded from; empty for defaults.
	Path string `yaml:"-" toml:"-" json:"-"`
}

// HTTPConfig controls downloads from the update server.
type HTTPConfig struct {
	Timeout   string `yaml:"timeout" toml:"timeout" json:"timeout"` // Go duration, e.g. "60s"
	Retries   int    `yaml:"retries" toml:"retries" json:"retries"`
	UserAgent string `yaml:"user_agent,omitempty" toml:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// TimeoutDuration parses Timeout.
func (h HTTPConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid http timeout %q: %w", h.Timeout, err)
	}
	return d, nil
}

// BackupConfig controls host-side backups of overwritten device files.
type BackupConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir,omitempty" toml:"dir,omitempty" json:"dir,omitempty"` // Defaults to $XDG_CACHE_HOME/firmup/backups
	Keep    int    `yaml:"keep" toml:"keep" json:"keep"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Version:          CurrentVersion,
		SupportedDevices: append([]string(nil), update.DefaultSupportedDevices...),
		URLTemplate:      fetch.DefaultURLTemplate,
		DeviceInfoFile:   device.DefaultInfoFile,
		HTTP: HTTPConfig{
			Timeout: "60s",
			Retries: 0,
		},
		Backup: BackupConfig{
			Enabled: true,
			Keep:    backup.DefaultKeepCount,
		},
	}
}

// Find searches for a config file in the standard locations.
// Returns the path to the first file found, or ErrNotFound.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	// Check FIRMUP_CONFIG environment variable
	if envPath := os.Getenv("FIRMUP_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	searchPaths, err := searchDirs()
	if err != nil {
		return "", err
	}

	fileNames := []string{
		"config.yaml",
		"config.yml",
		"config.toml",
		"config.json",
	}

	for _, dir := range searchPaths {
		for _, name := range fileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", ErrNotFound
}

// DefaultPath is where a new config file is created when none exists.
func DefaultPath() (string, error) {
	dirs, err := searchDirs()
	if err != nil {
		return "", err
	}
	return filepath.Join(dirs[0], "config.yaml"), nil
}

// searchDirs lists the config directories in lookup order.
func searchDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}

	// XDG_CONFIG_HOME or default
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "firmup"),
		filepath.Join(home, ".firmup"),
	}, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	cfg.Path = path
	return cfg, nil
}

// Resolve finds and loads the config file, falling back to the defaults when
// none exists. An explicit path that does not exist is an error.
func Resolve(explicitPath string) (*Config, error) {
	path, err := Find(explicitPath)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// BackupDir returns the configured backup directory or the default one.
func (c *Config) BackupDir() (string, error) {
	if c.Backup.Dir != "" {
		return c.Backup.Dir, nil
	}
	return backup.DefaultDir()
}
