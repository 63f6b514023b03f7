package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Data.TagsPatterns) != 1 || cfg.Data.TagsPatterns[0] != "tags.json*" {
		t.Errorf("unexpected tags patterns %v", cfg.Data.TagsPatterns)
	}
	if len(cfg.Data.PostsPatterns) != 2 {
		t.Errorf("expected 2 posts patterns, got %v", cfg.Data.PostsPatterns)
	}
	if !cfg.Index.Verify {
		t.Error("expected Verify=true")
	}
	if cfg.Serve.Addr != ":8080" {
		t.Errorf("expected Addr=:8080, got %s", cfg.Serve.Addr)
	}
	if cfg.Serve.CacheTTL != 10*time.Minute {
		t.Errorf("expected CacheTTL=10m, got %v", cfg.Serve.CacheTTL)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, FileName)

	content := `
index:
  verify: false
serve:
  addr: "127.0.0.1:9000"
  cache_ttl: 30s
logging:
  format: json
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Index.Verify {
		t.Error("expected Verify=false")
	}
	if cfg.Serve.Addr != "127.0.0.1:9000" {
		t.Errorf("expected Addr=127.0.0.1:9000, got %s", cfg.Serve.Addr)
	}
	if cfg.Serve.CacheTTL != 30*time.Second {
		t.Errorf("expected CacheTTL=30s, got %v", cfg.Serve.CacheTTL)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected Format=json, got %s", cfg.Logging.Format)
	}
	// Untouched sections keep their defaults.
	if cfg.Serve.CacheSize != 1024 {
		t.Errorf("expected CacheSize=1024, got %d", cfg.Serve.CacheSize)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("serve: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := EnsureDir(tmpDir); err != nil {
		t.Fatal(err)
	}
	content := `
serve:
  cache_size: 16
`
	if err := os.WriteFile(filepath.Join(tmpDir, DirName, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Serve.CacheSize != 16 {
		t.Errorf("expected CacheSize=16, got %d", cfg.Serve.CacheSize)
	}
	if cfg.Data.Dir != tmpDir {
		t.Errorf("expected Data.Dir=%s, got %s", tmpDir, cfg.Data.Dir)
	}
	if cfg.IndexDir() != filepath.Join(tmpDir, "index") {
		t.Errorf("unexpected index dir %s", cfg.IndexDir())
	}
	if cfg.CacheDBPath() != CacheDBPath(tmpDir) {
		t.Errorf("unexpected cache path %s", cfg.CacheDBPath())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TAGINDEX_LOG_LEVEL", "debug")
	t.Setenv("TAGINDEX_INDEX_DIR", "/srv/index")
	t.Setenv("TAGINDEX_RATE_LIMIT", "12.5")

	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected Level=debug, got %s", cfg.Logging.Level)
	}
	if cfg.IndexDir() != "/srv/index" {
		t.Errorf("expected /srv/index, got %s", cfg.IndexDir())
	}
	if cfg.Serve.RateLimit != 12.5 {
		t.Errorf("expected RateLimit=12.5, got %v", cfg.Serve.RateLimit)
	}

	t.Setenv("TAGINDEX_RATE_LIMIT", "fast")
	if _, err := LoadFromDir(t.TempDir()); err == nil {
		t.Error("expected error for invalid rate limit")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := DefaultConfig()
	cfg.Serve.Burst = 7
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Serve.Burst != 7 {
		t.Errorf("expected Burst=7, got %d", loaded.Serve.Burst)
	}
}

func TestCacheDBPath(t *testing.T) {
	path := CacheDBPath("/data/booru")
	expected := filepath.Join("/data/booru", ".tagindex", "cache.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}
