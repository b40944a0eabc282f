// Package config loads configuration from an optional TOML file and
// environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

// FileEnv names the environment variable holding the config file path.
const FileEnv = "FRAGMENTS_CONFIG"

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string `toml:"listen_addr"`
	MetricsAddr string `toml:"metrics_addr"`
	APIURL      string `toml:"api_url"`
	TrustProxy  bool   `toml:"trust_proxy"`

	// Logging
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	// Metadata backend ("memory", "postgres" or "sqlite")
	MetadataBackend string `toml:"metadata_backend"`
	DatabaseURL     string `toml:"database_url"`
	SQLitePath      string `toml:"sqlite_path"`

	// Payload backend ("memory", "local" or "s3")
	StorageBackend   string `toml:"storage_backend"`
	LocalStoragePath string `toml:"local_storage_path"`

	// S3 storage
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Bucket    string `toml:"s3_bucket"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3Region    string `toml:"s3_region"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`

	// Auth ("basic" or "bearer")
	AuthMode      string `toml:"auth_mode"`
	HtpasswdFile  string `toml:"htpasswd_file"`
	JWTSecret     string `toml:"jwt_secret"`
	OIDCIssuerURL string `toml:"oidc_issuer_url"`
	OIDCClientID  string `toml:"oidc_client_id"`

	// Uploads
	MaxUploadSize int64 `toml:"max_upload_size"`

	// Rate limiting (0 = unlimited). With REDIS_ADDR set, buckets live in
	// Redis and are shared between instances.
	RateLimitRPM  int    `toml:"rate_limit_rpm"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		MetricsAddr:      ":9090",
		LogLevel:         "info",
		LogFormat:        "json",
		MetadataBackend:  "memory",
		SQLitePath:       "fragments.db",
		StorageBackend:   "memory",
		LocalStoragePath: "/data/fragments",
		S3Endpoint:       "http://localhost:9000",
		S3Bucket:         "fragments",
		S3Region:         "us-east-1",
		AuthMode:         "basic",
		MaxUploadSize:    10 * 1024 * 1024, // 10MB
	}
}

// Load reads the file named by FRAGMENTS_CONFIG (if any), applies
// environment overrides, and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = envOr("LISTEN_ADDR", c.ListenAddr)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	c.APIURL = envOr("API_URL", c.APIURL)
	c.TrustProxy = envBool("TRUST_PROXY", c.TrustProxy)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.MetadataBackend = envOr("METADATA_BACKEND", c.MetadataBackend)
	c.DatabaseURL = envOr("DATABASE_URL", c.DatabaseURL)
	c.SQLitePath = envOr("SQLITE_PATH", c.SQLitePath)
	c.StorageBackend = envOr("STORAGE_BACKEND", c.StorageBackend)
	c.LocalStoragePath = envOr("LOCAL_STORAGE_PATH", c.LocalStoragePath)
	c.S3Endpoint = envOr("S3_ENDPOINT", c.S3Endpoint)
	c.S3Bucket = envOr("S3_BUCKET", c.S3Bucket)
	c.S3AccessKey = envOr("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envOr("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = envOr("S3_REGION", c.S3Region)
	c.S3UseSSL = envBool("S3_USE_SSL", c.S3UseSSL)
	c.AuthMode = envOr("AUTH_MODE", c.AuthMode)
	c.HtpasswdFile = envOr("HTPASSWD_FILE", c.HtpasswdFile)
	c.JWTSecret = envOr("JWT_SECRET", c.JWTSecret)
	c.OIDCIssuerURL = envOr("OIDC_ISSUER_URL", c.OIDCIssuerURL)
	c.OIDCClientID = envOr("OIDC_CLIENT_ID", c.OIDCClientID)
	c.MaxUploadSize = envInt64("MAX_UPLOAD_SIZE", c.MaxUploadSize)
	c.RateLimitRPM = envInt("RATE_LIMIT_RPM", c.RateLimitRPM)
	c.RedisAddr = envOr("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envOr("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envInt("REDIS_DB", c.RedisDB)
	c.TLSCertFile = envOr("TLS_CERT_FILE", c.TLSCertFile)
	c.TLSKeyFile = envOr("TLS_KEY_FILE", c.TLSKeyFile)
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error

	switch c.MetadataBackend {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres metadata backend"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite metadata backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown METADATA_BACKEND %q", c.MetadataBackend))
	}

	switch c.StorageBackend {
	case "memory":
	case "local":
		if c.LocalStoragePath == "" {
			errs = append(errs, errors.New("LOCAL_STORAGE_PATH is required for the local storage backend"))
		}
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	switch c.AuthMode {
	case "basic":
		if c.HtpasswdFile == "" {
			errs = append(errs, errors.New("HTPASSWD_FILE is required for basic auth"))
		}
	case "bearer":
		if c.JWTSecret == "" && c.OIDCIssuerURL == "" {
			errs = append(errs, errors.New("bearer auth needs JWT_SECRET or OIDC_ISSUER_URL"))
		}
		if c.OIDCIssuerURL != "" && c.OIDCClientID == "" {
			errs = append(errs, errors.New("OIDC_CLIENT_ID is required with OIDC_ISSUER_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}

	if c.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE must be positive, got %d", c.MaxUploadSize))
	}
	if c.RateLimitRPM < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPM must not be negative, got %d", c.RateLimitRPM))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}

	return errors.Join(errs...)
}

// UseTLS reports whether the server should listen with TLS.
func (c *Config) UseTLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
