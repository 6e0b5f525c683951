package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"appraiserai/internal/ratelimit"
	"appraiserai/internal/util"
	"appraiserai/pkg/ai"
	"appraiserai/pkg/auth"
	"appraiserai/pkg/batch"
	"appraiserai/pkg/credential"
	"appraiserai/pkg/imaging"
	"appraiserai/pkg/storage"
	"appraiserai/pkg/store"
	"appraiserai/services/appraiser/internal/app"
	"appraiserai/services/appraiser/internal/config"
	"appraiserai/services/appraiser/internal/security"
	"appraiserai/services/appraiser/internal/server"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("failed to load .env: %v", err)
		}
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	db, err := store.OpenDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	dataStore, err := store.NewGormStoreWithDB(db)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer dataStore.Close()

	var redisClient redis.UniversalClient
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	creds, err := newCredentialProvider(cfg, db, redisClient)
	if err != nil {
		log.Fatalf("failed to init credential provider: %v", err)
	}
	// the env backend already reads the same variable from its file
	if cfg.Credential.Backend != "env" {
		seeded, err := credential.Seed(context.Background(), creds, cfg.Credential.SeedKey)
		if err != nil {
			log.Fatalf("failed to seed api key: %v", err)
		}
		if seeded {
			logger.Info("vision api key seeded from environment", "credential_backend", cfg.Credential.Backend)
		}
	}
	objects, err := newObjectStore(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	vision, err := newVisionGenerator(cfg.Vision, creds)
	if err != nil {
		log.Fatalf("failed to init vision client: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL())
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	var sessions batch.SessionStore = batch.NewMemorySessionStore(cfg.Batch.TTL())
	if redisClient != nil {
		sessions = batch.NewRedisSessionStore(redisClient, "", cfg.Batch.TTL())
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Enabled() {
		if redisClient != nil {
			limiter, err = ratelimit.NewRedisFixedWindowLimiter(redisClient, "", cfg.RateLimit.AppraisalsPerWindow, cfg.RateLimit.Window())
		} else {
			limiter, err = ratelimit.NewMemoryFixedWindowLimiter(cfg.RateLimit.AppraisalsPerWindow, cfg.RateLimit.Window())
		}
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	var alerter *security.AuditAlerter
	if redisClient != nil {
		if alerter, err = security.NewAuditAlerter(redisClient, ""); err != nil {
			log.Fatalf("failed to init audit alerter: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Objects:        objects,
		Vision:         vision,
		Credentials:    creds,
		Tokens:         tokens,
		Batches:        sessions,
		Normalizer:     imaging.NewNormalizer(cfg.Image.MaxWidth, cfg.Image.Quality),
		MaxUploadBytes: cfg.Image.MaxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	proxies, err := util.ParseProxyAllowlist(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:              appCore,
		MaxUploadBytes:   cfg.Image.MaxUploadBytes,
		AppraisalLimiter: limiter,
		Alerter:          alerter,
		TrustedProxies:   proxies,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// batches call the vision api once per image
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("appraiser server listening",
		"addr", addr,
		"vision_provider", cfg.Vision.Provider,
		"credential_backend", cfg.Credential.Backend,
		"storage_backend", cfg.Storage.Backend,
		"rate_limit", cfg.RateLimit.AppraisalsPerWindow,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
}

func newCredentialProvider(cfg config.FileConfig, db *gorm.DB, redisClient redis.UniversalClient) (credential.Provider, error) {
	switch cfg.Credential.Backend {
	case "env":
		return credential.NewEnvFileProvider(cfg.Credential.EnvFile), nil
	case "redis":
		if redisClient == nil {
			return nil, errors.New("redis credential backend requires redisAddr")
		}
		return credential.NewRedisProvider(redisClient, cfg.Credential.RedisKey), nil
	case "database":
		return credential.NewDBProvider(db)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Credential.Backend)
	}
}

func newObjectStore(cfg config.StorageConfig) (storage.ObjectStore, error) {
	if cfg.Backend == "minio" {
		return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	}
	return storage.NewFileStore(cfg.BasePath)
}

func newVisionGenerator(cfg config.VisionConfig, creds credential.Provider) (ai.VisionGenerator, error) {
	retry := ai.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		MinBackoff:  cfg.MinBackoff(),
		MaxBackoff:  cfg.MaxBackoff(),
	}
	switch cfg.Provider {
	case "gemini":
		return ai.NewGeminiVisionClient(ai.GeminiConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout(),
			Retry:       retry,
			LogRequests: cfg.LogRequests,
		})
	case "ollama":
		return ai.NewOllamaVisionClient(ai.OllamaConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout(),
			Retry:       retry,
			LogRequests: cfg.LogRequests,
		}), nil
	default:
		return ai.NewOpenAIVisionClient(ai.OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout(),
			Retry:       retry,
			LogRequests: cfg.LogRequests,
		}, creds)
	}
}
