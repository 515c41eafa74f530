// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lattice/api/internal/docsource"
)

const (
	SourceFS    = "fs"
	SourceMinio = "minio"
)

type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	ReposDir    string `yaml:"repos_dir"`
	CORSOrigin  string `yaml:"cors_origin"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	// Source is where document markdown lives: "fs" or "minio".
	Source    string                `yaml:"source"`
	SourceDir string                `yaml:"source_dir"`
	Minio     docsource.MinioConfig `yaml:"minio"`

	MeiliURL       string `yaml:"meili_url"`
	MeiliMasterKey string `yaml:"meili_master_key"`

	// Redis render cache, disabled when RedisURL is empty.
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	IndexWorkers int `yaml:"index_workers"`
	IndexQueue   int `yaml:"index_queue"`
	// ReindexParallelism bounds concurrent parses of a full reindex.
	ReindexParallelism int `yaml:"reindex_parallelism"`
}

func defaults() Config {
	return Config{
		Addr:               ":8787",
		DatabaseURL:        "file:lattice.db?_pragma=foreign_keys(1)",
		ReposDir:           "./data/repos",
		CORSOrigin:         "*",
		LogLevel:           "info",
		LogFormat:          "text",
		Source:             SourceFS,
		SourceDir:          "./data/docs",
		Minio:              docsource.MinioConfig{Bucket: "lattice-docs"},
		CacheTTL:           10 * time.Minute,
		IndexWorkers:       4,
		IndexQueue:         256,
		ReindexParallelism: 4,
	}
}

// Load reads LATTICE_CONFIG when set, then applies environment overrides.
func Load() (Config, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("LATTICE_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = getenv("API_ADDR", c.Addr)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.ReposDir = getenv("LATTICE_REPOS_DIR", c.ReposDir)
	c.CORSOrigin = getenv("LATTICE_CORS_ORIGIN", c.CORSOrigin)
	c.LogLevel = getenv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("LOG_FORMAT", c.LogFormat)
	c.Source = getenv("LATTICE_SOURCE", c.Source)
	c.SourceDir = getenv("LATTICE_SOURCE_DIR", c.SourceDir)
	c.Minio.Endpoint = getenv("MINIO_ENDPOINT", c.Minio.Endpoint)
	c.Minio.AccessKey = getenv("MINIO_ACCESS_KEY", c.Minio.AccessKey)
	c.Minio.SecretKey = getenv("MINIO_SECRET_KEY", c.Minio.SecretKey)
	c.Minio.Bucket = getenv("MINIO_BUCKET", c.Minio.Bucket)
	c.Minio.UseSSL = getenvBool("MINIO_USE_SSL", c.Minio.UseSSL)
	c.MeiliURL = getenv("MEILI_URL", c.MeiliURL)
	c.MeiliMasterKey = getenv("MEILI_MASTER_KEY", c.MeiliMasterKey)
	c.RedisURL = getenv("REDIS_URL", c.RedisURL)
	c.CacheTTL = time.Duration(getenvInt("LATTICE_CACHE_TTL_SECONDS", int(c.CacheTTL/time.Second))) * time.Second
	c.IndexWorkers = getenvInt("LATTICE_INDEX_WORKERS", c.IndexWorkers)
	c.IndexQueue = getenvInt("LATTICE_INDEX_QUEUE", c.IndexQueue)
	c.ReindexParallelism = getenvInt("LATTICE_REINDEX_PARALLELISM", c.ReindexParallelism)
}

func (c Config) validate() error {
	switch c.Source {
	case SourceFS:
		if strings.TrimSpace(c.SourceDir) == "" {
			return fmt.Errorf("config: source_dir is required for the fs source")
		}
	case SourceMinio:
		if strings.TrimSpace(c.Minio.Endpoint) == "" || strings.TrimSpace(c.Minio.Bucket) == "" {
			return fmt.Errorf("config: minio endpoint and bucket are required for the minio source")
		}
	default:
		return fmt.Errorf("config: unknown source %q", c.Source)
	}
	if c.IndexWorkers < 1 {
		return fmt.Errorf("config: index_workers must be positive")
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
