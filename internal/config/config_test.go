package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LATTICE_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" || cfg.Source != SourceFS || cfg.IndexWorkers != 4 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	body := []byte("addr: \":9000\"\nsource: minio\ncache_ttl: 30s\nminio:\n  endpoint: localhost:9000\n  bucket: notes\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("LATTICE_CONFIG", path)
	t.Setenv("MINIO_BUCKET", "override")
	t.Setenv("LATTICE_INDEX_WORKERS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected file addr, got %q", cfg.Addr)
	}
	if cfg.Minio.Endpoint != "localhost:9000" || cfg.Minio.Bucket != "override" {
		t.Fatalf("unexpected minio config: %+v", cfg.Minio)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %s", cfg.CacheTTL)
	}
	if cfg.IndexWorkers != 4 {
		t.Fatalf("bad int env should keep the default, got %d", cfg.IndexWorkers)
	}
}

func TestLoadRejectsUnknownSource(t *testing.T) {
	t.Setenv("LATTICE_CONFIG", "")
	t.Setenv("LATTICE_SOURCE", "ftp")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("LATTICE_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
