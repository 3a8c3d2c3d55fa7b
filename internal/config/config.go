// Package config loads hastemap settings from defaults, an optional YAML
// file, a .env file and HASTEMAP_* environment variables. Command-line flags
// are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/hastemap/internal/cache"
	"github.com/dshills/hastemap/internal/canonical"
	"github.com/dshills/hastemap/internal/chunker"
	"github.com/dshills/hastemap/internal/indexer"
)

const (
	// DefaultFile is read when no config path is given and it exists
	DefaultFile = "hastemap.yaml"

	// DefaultEnvFile is the dotenv file read when no env file is given
	DefaultEnvFile = ".env"

	envPrefix = "HASTEMAP_"
)

// Config contains every setting of a hastemap run
type Config struct {
	CacheDir    string   `yaml:"cache_dir"`
	Parallelism int      `yaml:"parallelism"`
	ChunkFactor int      `yaml:"chunk_factor"`
	Artifact    string   `yaml:"artifact"`
	Compress    bool     `yaml:"compress"`
	LegacyCache bool     `yaml:"legacy_cache"`
	DB          string   `yaml:"db"` // SQLite mirror path; empty disables the mirror
	LogLevel    string   `yaml:"log_level"`
	Extensions  []string `yaml:"extensions"`
	Ignore      []string `yaml:"ignore"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		CacheDir:    cache.DefaultDir,
		Parallelism: runtime.NumCPU(),
		ChunkFactor: chunker.DefaultRefinement,
		Artifact:    canonical.DefaultArtifactPath,
		LogLevel:    "info",
		Extensions:  append([]string(nil), indexer.DefaultExtensions...),
	}
}

// Load builds a Config. path names a YAML file; when empty, DefaultFile is
// read if present. envFiles name dotenv files; when none are given,
// DefaultEnvFile is read if present. Process environment wins over dotenv.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	dotenv, err := readDotEnv(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(content, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func readDotEnv(files []string) (map[string]string, error) {
	if len(files) == 0 {
		env, err := godotenv.Read(DefaultEnvFile)
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", DefaultEnvFile, err)
		}
		return env, nil
	}

	env, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

// applyEnv overrides fields from HASTEMAP_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}
	flag := func(name string, dst *bool) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("CACHE_DIR", &c.CacheDir)
	str("ARTIFACT", &c.Artifact)
	str("DB", &c.DB)
	str("LOG_LEVEL", &c.LogLevel)
	list("EXTENSIONS", &c.Extensions)
	list("IGNORE", &c.Ignore)

	return errors.Join(
		num("PARALLELISM", &c.Parallelism),
		num("CHUNK_FACTOR", &c.ChunkFactor),
		flag("COMPRESS", &c.Compress),
		flag("LEGACY_CACHE", &c.LegacyCache),
	)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism)
	}
	if c.ChunkFactor < 1 {
		return fmt.Errorf("chunk factor must be at least 1, got %d", c.ChunkFactor)
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return errors.New("cache directory cannot be empty")
	}
	if len(c.Extensions) == 0 {
		return errors.New("at least one extension is required")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info
func (c *Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// IndexerConfig returns the indexer settings
func (c *Config) IndexerConfig() *indexer.Config {
	return &indexer.Config{
		Workers:         c.Parallelism,
		ChunkRefinement: c.ChunkFactor,
		Extensions:      c.Extensions,
		Ignore:          c.Ignore,
	}
}

// CacheOptions returns the cache store settings
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Dir:         c.CacheDir,
		Parallelism: c.Parallelism,
		Compress:    c.Compress,
		Legacy:      c.LegacyCache,
	}
}

// Write saves the configuration as YAML
func (c *Config) Write(path string) error {
	content, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
