package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "databaseURL: sqlite://test.db\njwtSecret: "+testSecret+"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.Vision.Provider != "openai" || cfg.Vision.MaxTokens != 4000 || cfg.Vision.MaxAttempts != 3 {
		t.Fatalf("unexpected vision defaults: %+v", cfg.Vision)
	}
	if cfg.Vision.Timeout() != 60*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Vision.Timeout())
	}
	if cfg.Image.MaxWidth != 1200 || cfg.Image.Quality != 85 || cfg.Image.MaxUploadBytes != 20<<20 {
		t.Fatalf("unexpected image defaults: %+v", cfg.Image)
	}
	if cfg.Credential.Backend != "database" || cfg.Storage.Backend != "file" {
		t.Fatalf("unexpected backends: %s %s", cfg.Credential.Backend, cfg.Storage.Backend)
	}
	if cfg.Batch.TTL() != 2*time.Hour {
		t.Fatalf("unexpected batch ttl: %s", cfg.Batch.TTL())
	}
	if cfg.RateLimit.Enabled() {
		t.Fatalf("rate limit should be disabled by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
port: "9000"
databaseURL: postgres://file
jwtSecret: `+testSecret+`
vision:
  model: gpt-4o
storage:
  backend: file
`)
	t.Setenv("DATABASE_URL", "sqlite://env.db")
	t.Setenv("APPRAISER_VISION_MODEL", "gpt-4o-mini")
	t.Setenv("APPRAISER_RATE_LIMIT", "5")
	t.Setenv("APPRAISER_MAX_UPLOAD_BYTES", "1024")
	t.Setenv("APPRAISER_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")
	t.Setenv("OPENAI_API_KEY", "sk-from-env-1234")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Fatalf("unexpected port: %s", cfg.Port)
	}
	if cfg.DatabaseURL != "sqlite://env.db" {
		t.Fatalf("env should override database url, got %s", cfg.DatabaseURL)
	}
	if cfg.Vision.Model != "gpt-4o-mini" {
		t.Fatalf("env should override model, got %s", cfg.Vision.Model)
	}
	if !cfg.RateLimit.Enabled() || cfg.RateLimit.Window() != time.Minute {
		t.Fatalf("unexpected rate limit: %+v", cfg.RateLimit)
	}
	if cfg.Image.MaxUploadBytes != 1024 {
		t.Fatalf("unexpected max upload: %d", cfg.Image.MaxUploadBytes)
	}
	if cfg.Credential.SeedKey != "sk-from-env-1234" {
		t.Fatalf("unexpected seed key: %q", cfg.Credential.SeedKey)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "127.0.0.1" {
		t.Fatalf("unexpected trusted proxies: %v", cfg.TrustedProxies)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing database", "jwtSecret: " + testSecret, "databaseURL"},
		{"short secret", "databaseURL: x\njwtSecret: short", "jwtSecret"},
		{"unknown provider", "databaseURL: x\njwtSecret: " + testSecret + "\nvision:\n  provider: nope", "vision.provider"},
		{"gemini without key", "databaseURL: x\njwtSecret: " + testSecret + "\nvision:\n  provider: gemini", "apiKey"},
		{"redis credential without redis", "databaseURL: x\njwtSecret: " + testSecret + "\ncredential:\n  backend: redis", "redisAddr"},
		{"bad proxy", "databaseURL: x\njwtSecret: " + testSecret + "\ntrustedProxies: [\"nope\"]", "trustedProxies"},
		{"minio without bucket", "databaseURL: x\njwtSecret: " + testSecret + "\nstorage:\n  backend: minio\n  minioEndpoint: m:9000\n  minioAccessKey: a\n  minioSecretKey: b", "minioBucket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
