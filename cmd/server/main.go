// Fragments Server
//
// Features:
// - Owner-scoped fragment storage (text, structured data, images)
// - On-read and on-update format conversion
// - Prometheus metrics & structured logging (zap)
// - Basic (htpasswd) or bearer (HS256 / OIDC) authentication
// - Per-owner rate limiting, in process or shared through Redis
// - Pluggable metadata (memory, SQLite, PostgreSQL) and payload (memory, local, S3) backends
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AndyChoi4495/fragments/internal/api"
	"github.com/AndyChoi4495/fragments/internal/auth"
	"github.com/AndyChoi4495/fragments/internal/config"
	"github.com/AndyChoi4495/fragments/internal/fragment"
	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metadata"
	metamemory "github.com/AndyChoi4495/fragments/internal/metadata/memory"
	"github.com/AndyChoi4495/fragments/internal/metadata/postgres"
	"github.com/AndyChoi4495/fragments/internal/metadata/sqlite"
	"github.com/AndyChoi4495/fragments/internal/metrics"
	"github.com/AndyChoi4495/fragments/internal/quota"
	"github.com/AndyChoi4495/fragments/internal/storage"
	"github.com/AndyChoi4495/fragments/internal/storage/local"
	s3storage "github.com/AndyChoi4495/fragments/internal/storage/s3"
	"github.com/AndyChoi4495/fragments/internal/store"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const githubURL = "https://github.com/AndyChoi4495/fragments"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Fragments server starting...",
		zap.String("version", version),
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metadata and payload storage
	meta, err := openMetadata(ctx, cfg)
	if err != nil {
		logging.Fatal("metadata store init failed", zap.Error(err))
	}
	backend, err := storage.NewBackend(ctx, storage.Config{
		Type: cfg.StorageBackend,
		Local: local.Config{
			RootPath:   cfg.LocalStoragePath,
			CreateDirs: true,
		},
		S3: s3storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		},
	})
	if err != nil {
		meta.Close()
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	facade := store.New(meta, backend)
	defer facade.Close()
	logging.Info("storage initialized",
		zap.String("metadata", cfg.MetadataBackend),
		zap.String("payload", backend.Type()))

	// Initialize auth
	authn, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logging.Fatal("auth init failed", zap.Error(err))
	}
	logging.Info("auth initialized", zap.String("mode", cfg.AuthMode))

	// Initialize rate limiter (optional)
	limiter, err := newLimiter(ctx, cfg)
	if err != nil {
		logging.Fatal("rate limiter init failed", zap.Error(err))
	}
	if c, ok := limiter.(io.Closer); ok {
		defer c.Close()
	}

	srv := api.NewServer(fragment.NewService(facade), authn, limiter, api.Options{
		APIURL:        cfg.APIURL,
		TrustProxy:    cfg.TrustProxy,
		MaxUploadSize: cfg.MaxUploadSize,
		Version:       version,
		GithubURL:     githubURL,
	})

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.UseTLS() {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	go reloadLogLevel(ctx)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()

		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("graceful shutdown failed", zap.Error(err))
			httpServer.Close()
		}
		metricsServer.Close()
	}()

	if cfg.UseTLS() {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServe()
	}
	if err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

// reloadLogLevel re-reads the configuration on SIGHUP and applies its log
// level. Other settings need a restart.
func reloadLogLevel(ctx context.Context) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load()
			if err != nil {
				logging.Error("config reload failed", zap.Error(err))
				continue
			}
			if err := logging.SetLevel(cfg.LogLevel); err != nil {
				logging.Error("config reload failed", zap.Error(err))
				continue
			}
			logging.Info("log level reloaded", zap.String("level", cfg.LogLevel))
		}
	}
}

func openMetadata(ctx context.Context, cfg *config.Config) (metadata.Store, error) {
	switch cfg.MetadataBackend {
	case "memory":
		logging.Warn("using in-memory metadata; fragments will not survive a restart")
		return metamemory.New(), nil
	case "postgres":
		logging.Info("connecting to PostgreSQL...")
		pg, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logging.Info("running migrations...")
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	}
	return nil, fmt.Errorf("unknown metadata backend: %s", cfg.MetadataBackend)
}

func newAuthenticator(ctx context.Context, cfg *config.Config) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case "basic":
		return auth.LoadHtpasswd(cfg.HtpasswdFile)
	case "bearer":
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL: cfg.OIDCIssuerURL,
			ClientID:  cfg.OIDCClientID,
		})
		if err != nil {
			return nil, err
		}
		return auth.NewBearer(cfg.JWTSecret, oidcProvider)
	}
	return nil, errors.New("unknown auth mode: " + cfg.AuthMode)
}

// newLimiter returns nil when rate limiting is off.
func newLimiter(ctx context.Context, cfg *config.Config) (quota.Limiter, error) {
	if cfg.RateLimitRPM <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		l, err := quota.NewRedisLimiter(ctx, quota.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.RateLimitRPM)
		if err != nil {
			return nil, err
		}
		logging.Info("rate limiter initialized (redis)",
			zap.String("addr", cfg.RedisAddr),
			zap.Int("rpm", cfg.RateLimitRPM))
		return l, nil
	}

	rl := quota.NewRateLimiter(cfg.RateLimitRPM)
	go rl.RunCleanup(ctx, time.Hour)
	logging.Info("rate limiter initialized (memory)", zap.Int("rpm", cfg.RateLimitRPM))
	return rl, nil
}
