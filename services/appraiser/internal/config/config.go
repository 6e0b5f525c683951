package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"appraiserai/internal/util"
)

// ConfigPath is the config file read when Load is given an empty path.
var ConfigPath = envOr("CONFIG_PATH", "config.yaml")

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string           `yaml:"port"`
	DatabaseURL       string           `yaml:"databaseURL"`
	RedisAddr         string           `yaml:"redisAddr"`
	RedisPassword     string           `yaml:"redisPassword"`
	LogLevel          string           `yaml:"logLevel"`
	JWTSecret         string           `yaml:"jwtSecret"`
	JWTIssuer         string           `yaml:"jwtIssuer"`
	SessionTTLMinutes int              `yaml:"sessionTTLMinutes"`
	TrustedProxies    []string         `yaml:"trustedProxies"`
	Vision            VisionConfig     `yaml:"vision"`
	Image             ImageConfig      `yaml:"image"`
	Credential        CredentialConfig `yaml:"credential"`
	Storage           StorageConfig    `yaml:"storage"`
	Batch             BatchConfig      `yaml:"batch"`
	RateLimit         RateLimitConfig  `yaml:"rateLimit"`
}

// VisionConfig selects and tunes the vision provider.
type VisionConfig struct {
	Provider         string `yaml:"provider"`
	BaseURL          string `yaml:"baseURL"`
	Model            string `yaml:"model"`
	APIKey           string `yaml:"apiKey"`
	MaxTokens        int    `yaml:"maxTokens"`
	TimeoutSeconds   int    `yaml:"timeoutSeconds"`
	MaxAttempts      int    `yaml:"maxAttempts"`
	MinBackoffMillis int    `yaml:"minBackoffMillis"`
	MaxBackoffMillis int    `yaml:"maxBackoffMillis"`
	LogRequests      bool   `yaml:"logRequests"`
}

type ImageConfig struct {
	MaxWidth       int   `yaml:"maxWidth"`
	Quality        int   `yaml:"quality"`
	MaxUploadBytes int64 `yaml:"maxUploadBytes"`
}

type CredentialConfig struct {
	Backend  string `yaml:"backend"`
	EnvFile  string `yaml:"envFile"`
	RedisKey string `yaml:"redisKey"`

	// SeedKey comes from OPENAI_API_KEY and fills an empty store at startup.
	SeedKey string `yaml:"-"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	BasePath       string `yaml:"basePath"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

type BatchConfig struct {
	SessionTTLMinutes int `yaml:"sessionTTLMinutes"`
}

// RateLimitConfig limits appraisal requests per user. Zero disables it.
type RateLimitConfig struct {
	AppraisalsPerWindow int `yaml:"appraisalsPerWindow"`
	WindowSeconds       int `yaml:"windowSeconds"`
}

// Load reads config from path (defaults to ConfigPath).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString(&cfg.Port, "APPRAISER_PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.JWTSecret, "APPRAISER_JWT_SECRET")
	setString(&cfg.JWTIssuer, "APPRAISER_JWT_ISSUER")
	setInt(&cfg.SessionTTLMinutes, "APPRAISER_SESSION_TTL_MINUTES")
	if v := os.Getenv("APPRAISER_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}

	setString(&cfg.Vision.Provider, "APPRAISER_VISION_PROVIDER")
	setString(&cfg.Vision.BaseURL, "APPRAISER_VISION_BASE_URL")
	setString(&cfg.Vision.Model, "APPRAISER_VISION_MODEL")
	setString(&cfg.Vision.APIKey, "APPRAISER_VISION_API_KEY")
	setInt(&cfg.Vision.MaxTokens, "APPRAISER_VISION_MAX_TOKENS")
	setInt(&cfg.Vision.TimeoutSeconds, "APPRAISER_VISION_TIMEOUT_SECONDS")
	setInt(&cfg.Vision.MaxAttempts, "APPRAISER_VISION_MAX_ATTEMPTS")
	if v := os.Getenv("APPRAISER_VISION_LOG_REQUESTS"); v != "" {
		cfg.Vision.LogRequests = v == "true"
	}

	setInt(&cfg.Image.MaxWidth, "APPRAISER_IMAGE_MAX_WIDTH")
	setInt(&cfg.Image.Quality, "APPRAISER_IMAGE_QUALITY")
	if v := os.Getenv("APPRAISER_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Image.MaxUploadBytes = n
		}
	}

	setString(&cfg.Credential.Backend, "APPRAISER_CREDENTIAL_BACKEND")
	setString(&cfg.Credential.EnvFile, "APPRAISER_ENV_FILE")
	setString(&cfg.Credential.SeedKey, "OPENAI_API_KEY")

	setString(&cfg.Storage.Backend, "APPRAISER_STORAGE_BACKEND")
	setString(&cfg.Storage.BasePath, "APPRAISER_STORAGE_PATH")
	setString(&cfg.Storage.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.Storage.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.Storage.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.Storage.MinioBucket, "MINIO_BUCKET")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.Storage.MinioUseSSL = true
	}

	setInt(&cfg.Batch.SessionTTLMinutes, "APPRAISER_BATCH_TTL_MINUTES")
	setInt(&cfg.RateLimit.AppraisalsPerWindow, "APPRAISER_RATE_LIMIT")
	setInt(&cfg.RateLimit.WindowSeconds, "APPRAISER_RATE_LIMIT_WINDOW_SECONDS")
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.SessionTTLMinutes == 0 {
		cfg.SessionTTLMinutes = 24 * 60
	}
	if cfg.Vision.Provider == "" {
		cfg.Vision.Provider = "openai"
	}
	cfg.Vision.Provider = strings.ToLower(strings.TrimSpace(cfg.Vision.Provider))
	if cfg.Vision.MaxTokens == 0 {
		cfg.Vision.MaxTokens = 4000
	}
	if cfg.Vision.TimeoutSeconds == 0 {
		cfg.Vision.TimeoutSeconds = 60
	}
	if cfg.Vision.MaxAttempts == 0 {
		cfg.Vision.MaxAttempts = 3
	}
	if cfg.Vision.MinBackoffMillis == 0 {
		cfg.Vision.MinBackoffMillis = 1000
	}
	if cfg.Vision.MaxBackoffMillis == 0 {
		cfg.Vision.MaxBackoffMillis = 8000
	}
	if cfg.Image.MaxWidth == 0 {
		cfg.Image.MaxWidth = 1200
	}
	if cfg.Image.Quality == 0 {
		cfg.Image.Quality = 85
	}
	if cfg.Image.MaxUploadBytes == 0 {
		cfg.Image.MaxUploadBytes = 20 << 20
	}
	if cfg.Credential.Backend == "" {
		cfg.Credential.Backend = "database"
	}
	cfg.Credential.Backend = strings.ToLower(strings.TrimSpace(cfg.Credential.Backend))
	if cfg.Credential.EnvFile == "" {
		cfg.Credential.EnvFile = ".env"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
		if cfg.Storage.MinioEndpoint != "" {
			cfg.Storage.Backend = "minio"
		}
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if cfg.Storage.Backend == "file" && cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "data/images"
	}
	if cfg.Batch.SessionTTLMinutes == 0 {
		cfg.Batch.SessionTTLMinutes = 120
	}
	if cfg.RateLimit.AppraisalsPerWindow > 0 && cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 60
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return errors.New("config: jwtSecret is required and must be at least 32 characters (set APPRAISER_JWT_SECRET)")
	}
	switch cfg.Vision.Provider {
	case "openai", "ollama":
	case "gemini":
		if cfg.Vision.APIKey == "" {
			return errors.New("config: vision.apiKey is required for the gemini provider")
		}
	default:
		return fmt.Errorf("config: unknown vision.provider %q", cfg.Vision.Provider)
	}
	switch cfg.Credential.Backend {
	case "env", "database":
	case "redis":
		if cfg.RedisAddr == "" {
			return errors.New("config: redisAddr is required for the redis credential backend")
		}
	default:
		return fmt.Errorf("config: unknown credential.backend %q", cfg.Credential.Backend)
	}
	switch cfg.Storage.Backend {
	case "file":
	case "minio":
		if cfg.Storage.MinioEndpoint == "" {
			return errors.New("config: storage.minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
		}
		if cfg.Storage.MinioAccessKey == "" || cfg.Storage.MinioSecretKey == "" {
			return errors.New("config: storage.minioAccessKey and storage.minioSecretKey are required")
		}
		if cfg.Storage.MinioBucket == "" {
			return errors.New("config: storage.minioBucket is required (set in config.yaml or MINIO_BUCKET)")
		}
	default:
		return fmt.Errorf("config: unknown storage.backend %q", cfg.Storage.Backend)
	}
	if cfg.Image.Quality < 1 || cfg.Image.Quality > 100 {
		return errors.New("config: image.quality must be between 1 and 100")
	}
	if cfg.Image.MaxWidth < 0 || cfg.Image.MaxUploadBytes < 0 {
		return errors.New("config: image limits must be >= 0")
	}
	if cfg.Vision.MaxAttempts < 1 {
		return errors.New("config: vision.maxAttempts must be >= 1")
	}
	if cfg.RateLimit.AppraisalsPerWindow < 0 || cfg.RateLimit.WindowSeconds < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if _, err := util.ParseProxyAllowlist(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("config: trustedProxies: %w", err)
	}
	return nil
}

// Timeout returns the per-attempt vision HTTP timeout.
func (c VisionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c VisionConfig) MinBackoff() time.Duration {
	return time.Duration(c.MinBackoffMillis) * time.Millisecond
}

func (c VisionConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMillis) * time.Millisecond
}

func (c FileConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c BatchConfig) TTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c RateLimitConfig) Enabled() bool {
	return c.AppraisalsPerWindow > 0
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
