package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultSnapshotFile is the attribute table name inside the working root.
const DefaultSnapshotFile = "restore_file_info.csv"

// Supported values of enumerated settings.
var (
	LogLevels     = []string{"debug", "info", "warn", "error"}
	DatabaseTypes = []string{"none", "sqlite", "memory"}
)

// Config represents the main configuration for rfi.
type Config struct {
	SnapshotFile string         `toml:"snapshot_file"`
	LogDir       string         `toml:"log_dir"`   // empty = log to stderr only
	LogLevel     string         `toml:"log_level"` // "debug", "info", "warn" or "error"
	Dump         DumpConfig     `toml:"dump"`
	Restore      RestoreConfig  `toml:"restore"`
	Target       TargetConfig   `toml:"target"`
	Registry     RegistryConfig `toml:"registry"`
	Cache        CacheConfig    `toml:"cache"`
	Database     DatabaseConfig `toml:"database"`
}

// DumpConfig controls which files a snapshot covers.
type DumpConfig struct {
	Gitignore bool     `toml:"gitignore"` // list files from the git index instead of walking
	Exclude   []string `toml:"exclude"`
}

// RestoreConfig controls how a snapshot is applied.
type RestoreConfig struct {
	SkipMissing bool `toml:"skip_missing"`
}

// TargetConfig locates the build-output tree.
type TargetConfig struct {
	Dir            string `toml:"dir,omitempty"` // empty = <working root>/target
	CheckStaleness bool   `toml:"check_staleness"`
}

// RegistryConfig locates the package registry.
type RegistryConfig struct {
	Dir         string `toml:"dir"`
	PruneCrates bool   `toml:"prune_crates"`
}

// CacheConfig describes the persisted directory cache. Dirs maps an alias,
// the directory name under Path, to the mountpoint the build uses.
type CacheConfig struct {
	Path string            `toml:"path"`
	Dirs map[string]string `toml:"dirs,omitempty"`
}

// DatabaseConfig represents configuration for the operation history.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "none", "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a Config with defaults rooted at baseDir. registryDir is
// the package registry to prune.
func NewConfig(baseDir, registryDir string) *Config {
	return &Config{
		SnapshotFile: DefaultSnapshotFile,
		LogLevel:     "info",
		Registry: RegistryConfig{
			Dir: registryDir,
		},
		Cache: CacheConfig{
			Path: filepath.Join(baseDir, "cache"),
		},
		Database: DatabaseConfig{
			Type:    "none",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Validate checks enumerated values and names that end up in paths.
func (c *Config) Validate() error {
	if c.SnapshotFile == "" || strings.ContainsRune(c.SnapshotFile, '/') {
		return fmt.Errorf("snapshot_file must be a plain file name, got %q", c.SnapshotFile)
	}
	if !slices.Contains(LogLevels, c.LogLevel) {
		return fmt.Errorf("unknown log_level %q (valid: %s)", c.LogLevel, strings.Join(LogLevels, ", "))
	}
	if !slices.Contains(DatabaseTypes, c.Database.Type) {
		return fmt.Errorf("unknown database type %q (valid: %s)", c.Database.Type, strings.Join(DatabaseTypes, ", "))
	}
	for alias, dir := range c.Cache.Dirs {
		if alias == "" || alias == "." || alias == ".." || strings.ContainsRune(alias, '/') {
			return fmt.Errorf("cache alias %q must be a plain directory name", alias)
		}
		if dir == "" {
			return fmt.Errorf("cache alias %q has no mountpoint", alias)
		}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// ReadOver decodes r on top of base, so keys absent from r keep base's values.
func (m *Manager) ReadOver(r io.Reader, base *Config) (*Config, error) {
	cfg := *base
	cfg.Dump.Exclude = slices.Clone(base.Dump.Exclude)
	cfg.Cache.Dirs = nil // decoding merges into a non-nil map
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Cache.Dirs == nil {
		cfg.Cache.Dirs = base.Cache.Dirs
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault reads the config at path over defaults. A missing file is not
// an error: CI runs usually have no config and get defaults unchanged.
func LoadOrDefault(path string, defaults *Config) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaults, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.ReadOver(f, defaults)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
