package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/BadgerOps/zarchive/internal/zos"
)

// Config is the top-level configuration
type Config struct {
	ZOS     ZOSConfig     `yaml:"zos"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
}

// ZOSConfig names the utilities run on the managed node
type ZOSConfig struct {
	TmpHLQ   string `yaml:"tmp_hlq"`
	MVSCmd   string `yaml:"mvscmd"`
	DLS      string `yaml:"dls"`
	DTouch   string `yaml:"dtouch"`
	DRM      string `yaml:"drm"`
	MVSTmp   string `yaml:"mvstmp"`
	DCP      string `yaml:"dcp"`
	Checksum string `yaml:"checksum"`
}

// HistoryConfig holds run history settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LogConfig holds logging defaults; command-line flags win
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	bin := zos.DefaultBinaries()
	return &Config{
		ZOS: ZOSConfig{
			MVSCmd:   bin.MVSCmd,
			DLS:      bin.DLS,
			DTouch:   bin.DTouch,
			DRM:      bin.DRM,
			MVSTmp:   bin.MVSTmp,
			DCP:      bin.DCP,
			Checksum: bin.Checksum,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"zarchive.yaml",
		"/etc/zarchive/zarchive.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "zarchive", "zarchive.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Binaries returns the utility names for zos.NewClient
func (c *Config) Binaries() zos.Binaries {
	return zos.Binaries{
		MVSCmd:   c.ZOS.MVSCmd,
		DLS:      c.ZOS.DLS,
		DTouch:   c.ZOS.DTouch,
		DRM:      c.ZOS.DRM,
		MVSTmp:   c.ZOS.MVSTmp,
		DCP:      c.ZOS.DCP,
		Checksum: c.ZOS.Checksum,
	}
}

// HistoryDBPath returns the configured database path, or the per-user
// default under ~/.local/state/zarchive
func (c *Config) HistoryDBPath() (string, error) {
	if c.History.DBPath != "" {
		return c.History.DBPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "zarchive", "history.db"), nil
}
