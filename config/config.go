package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-dataset directory holding the cache and config.
	DirName  = ".tagindex"
	FileName = "tagindex.yaml"

	envPrefix = "TAGINDEX_"
)

// Config holds all configuration for the tag index tool.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Index   IndexConfig   `yaml:"index"`
	Serve   ServeConfig   `yaml:"serve"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig selects the JSON input files inside the data directory.
type DataConfig struct {
	Dir           string   `yaml:"dir"`
	TagsPatterns  []string `yaml:"tags_patterns"`
	PostsPatterns []string `yaml:"posts_patterns"`
}

// CacheConfig holds parse cache configuration.
type CacheConfig struct {
	Path      string `yaml:"path"`       // empty = <data>/.tagindex/cache.db
	BatchSize int    `yaml:"batch_size"` // records per stored batch
}

// IndexConfig holds posting store configuration.
type IndexConfig struct {
	Dir    string `yaml:"dir"`    // empty = <data>/index
	Verify bool   `yaml:"verify"` // check artifact digests on open
}

// ServeConfig holds HTTP query service configuration.
type ServeConfig struct {
	Addr         string        `yaml:"addr"`
	CacheSize    int           `yaml:"cache_size"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst        int           `yaml:"burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:           ".",
			TagsPatterns:  []string{"tags.json*"},
			PostsPatterns: []string{"posts.json*", "posts-*.json*"},
		},
		Cache: CacheConfig{
			BatchSize: 4096,
		},
		Index: IndexConfig{
			Verify: true,
		},
		Serve: ServeConfig{
			Addr:         ":8080",
			CacheSize:    1024,
			CacheTTL:     10 * time.Minute,
			RateLimit:    0,
			Burst:        50,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file and applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a data directory (looks for
// tagindex.yaml, then .tagindex/config.yaml). Data.Dir defaults to dir.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(dir, DirName, "config.yaml")
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if cfg.Data.Dir == "" || cfg.Data.Dir == "." {
		cfg.Data.Dir = dir
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(envPrefix + "DATA_DIR"); ok {
		c.Data.Dir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "CACHE_PATH"); ok {
		c.Cache.Path = v
	}
	if v, ok := os.LookupEnv(envPrefix + "INDEX_DIR"); ok {
		c.Index.Dir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "ADDR"); ok {
		c.Serve.Addr = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_FORMAT"); ok {
		c.Logging.Format = v
	}
	if v, ok := os.LookupEnv(envPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", envPrefix, err)
		}
		c.Serve.RateLimit = f
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CacheDBPath returns the parse cache location.
func (c *Config) CacheDBPath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return CacheDBPath(c.Data.Dir)
}

// IndexDir returns the posting store directory.
func (c *Config) IndexDir() string {
	if c.Index.Dir != "" {
		return c.Index.Dir
	}
	return filepath.Join(c.Data.Dir, "index")
}

// CacheDBPath returns the default parse cache path for a data directory.
func CacheDBPath(dir string) string {
	return filepath.Join(dir, DirName, "cache.db")
}

// EnsureDir ensures the .tagindex directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DirName), 0755)
}
