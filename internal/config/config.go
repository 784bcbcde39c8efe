// Package config loads amanbib configuration.
//
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/amanbib/config.yaml)
//  3. Project config (.amanbib.yaml next to the library file)
//  4. Files passed explicitly (--config)
//  5. Environment variables (AMANBIB_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirName is the directory created next to a library for its index
// and extraction cache.
const DataDirName = ".amanbib"

// Config is the complete amanbib configuration.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Cache   CacheConfig  `yaml:"cache" json:"cache"`
	Watch   WatchConfig  `yaml:"watch" json:"watch"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// IndexConfig configures the fulltext index of a library.
type IndexConfig struct {
	// Path is the on-disk index directory. Empty derives
	// <library dir>/.amanbib/index.
	Path string `yaml:"path" json:"path"`

	// InMemory keeps the index in memory only. Path is ignored.
	InMemory bool `yaml:"in_memory" json:"in_memory"`

	// SchemaVersion overrides the running schema version. Empty uses the
	// built-in version. Changing it forces a full rebuild.
	SchemaVersion string `yaml:"schema_version" json:"schema_version"`

	// KeywordSeparator splits keyword-list fields into tokens.
	KeywordSeparator string `yaml:"keyword_separator" json:"keyword_separator"`

	// KeywordFields are indexed as repeated exact-match values.
	KeywordFields []string `yaml:"keyword_fields" json:"keyword_fields"`

	// FileField holds the linked-file list.
	FileField string `yaml:"file_field" json:"file_field"`

	// FileDirectories are extra base directories for resolving relative links.
	FileDirectories []string `yaml:"file_directories" json:"file_directories"`

	// Workers bounds parallel PDF extraction.
	Workers int `yaml:"workers" json:"workers"`

	// IndexPDFs enables the linked PDF content indexer.
	IndexPDFs bool `yaml:"index_pdfs" json:"index_pdfs"`
}

// CacheConfig configures the page extraction cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path is the sqlite database. Empty derives
	// <library dir>/.amanbib/extract-cache.db.
	Path string `yaml:"path" json:"path"`
	// MemoryEntries sizes the in-memory LRU in front of sqlite.
	MemoryEntries int `yaml:"memory_entries" json:"memory_entries"`
}

// WatchConfig configures the library file watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			KeywordSeparator: ",",
			KeywordFields:    []string{"keywords", "groups"},
			FileField:        "file",
			Workers:          runtime.NumCPU(),
			IndexPDFs:        true,
		},
		Cache: CacheConfig{
			Enabled:       true,
			MemoryEntries: 256,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/amanbib/config.yaml, or
// ~/.config/amanbib/config.yaml when XDG_CONFIG_HOME is unset.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanbib", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanbib", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanbib", "config.yaml")
}

// ProjectConfigPath returns the project config location for a library directory.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".amanbib.yaml")
}

// Load loads configuration for a library living in dir. Extra files are
// applied after the project config, in order.
func Load(dir string, extra ...string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".amanbib.yaml", ".amanbib.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	for _, path := range extra {
		if path == "" {
			continue
		}
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys absent from the
// file keep their previous value, which lets false booleans override
// true defaults.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies AMANBIB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANBIB_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("AMANBIB_IN_MEMORY"); v != "" {
		c.Index.InMemory = parseBool(v)
	}
	if v := os.Getenv("AMANBIB_KEYWORD_SEPARATOR"); v != "" {
		c.Index.KeywordSeparator = v
	}
	if v := os.Getenv("AMANBIB_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("AMANBIB_INDEX_PDFS"); v != "" {
		c.Index.IndexPDFs = parseBool(v)
	}
	if v := os.Getenv("AMANBIB_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("AMANBIB_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes"
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.KeywordSeparator == "" {
		return fmt.Errorf("index.keyword_separator must not be empty")
	}
	if strings.TrimSpace(c.Index.FileField) == "" {
		return fmt.Errorf("index.file_field must not be empty")
	}
	if c.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be at least 1, got %d", c.Index.Workers)
	}
	if c.Cache.MemoryEntries < 0 {
		return fmt.Errorf("cache.memory_entries must be non-negative, got %d", c.Cache.MemoryEntries)
	}
	if d, err := time.ParseDuration(c.Watch.Debounce); err != nil || d <= 0 {
		return fmt.Errorf("watch.debounce must be a positive duration, got %q", c.Watch.Debounce)
	}
	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// DebounceDuration returns the parsed watch debounce.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// IndexPathFor returns the index directory for the library at libraryPath,
// or "" when the index is kept in memory.
func (c *Config) IndexPathFor(libraryPath string) string {
	if c.Index.InMemory {
		return ""
	}
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(filepath.Dir(libraryPath), DataDirName, "index")
}

// CachePathFor returns the extraction cache database for the library at
// libraryPath, or "" when the cache is disabled.
func (c *Config) CachePathFor(libraryPath string) string {
	if !c.Cache.Enabled {
		return ""
	}
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(filepath.Dir(libraryPath), DataDirName, "extract-cache.db")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
