package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/52poke/kura/internal/policy"
	"github.com/jmgilman/go/errors"
)

const (
	StoreMemory = "memory"
	StoreS3     = "s3"
	StoreMinio  = "minio"
)

type Config struct {
	ListenAddr    string
	OriginURL     string
	Version       string
	CachePrefix   string
	Store         string
	Debug         bool
	CaptureHeader string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	MinioEndpoint  string
	MinioBucket    string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	RedisAddr     string
	RedisDB       int
	RedisPassword string

	LockTTLSeconds        int
	RefreshTimeoutSeconds int
	InstallRetrySeconds   int
	FetchTimeoutSeconds   int
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    getenv("KURA_LISTEN_ADDR", ":8080"),
		OriginURL:     getenv("KURA_ORIGIN_URL", ""),
		Version:       getenv("KURA_VERSION", "v1.2.0"),
		CachePrefix:   getenv("KURA_CACHE_PREFIX", "kura"),
		Store:         strings.ToLower(getenv("KURA_STORE", StoreMemory)),
		Debug:         getenvBool("KURA_DEBUG", false),
		CaptureHeader: getenv("KURA_CAPTURE_HEADER", "Date"),

		S3Endpoint:  getenv("KURA_S3_ENDPOINT", ""),
		S3Region:    getenv("KURA_S3_REGION", "us-east-1"),
		S3Bucket:    getenv("KURA_S3_BUCKET", ""),
		S3AccessKey: os.Getenv("KURA_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("KURA_S3_SECRET_KEY"),

		MinioEndpoint:  getenv("KURA_MINIO_ENDPOINT", ""),
		MinioBucket:    getenv("KURA_MINIO_BUCKET", ""),
		MinioAccessKey: os.Getenv("KURA_MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("KURA_MINIO_SECRET_KEY"),
		MinioUseSSL:    getenvBool("KURA_MINIO_USE_SSL", true),

		RedisAddr:     getenv("KURA_REDIS_ADDR", ""),
		RedisDB:       getenvInt("KURA_REDIS_DB", 0),
		RedisPassword: os.Getenv("KURA_REDIS_PASSWORD"),

		LockTTLSeconds:        getenvInt("KURA_LOCK_TTL_SECONDS", 30),
		RefreshTimeoutSeconds: getenvInt("KURA_REFRESH_TIMEOUT_SECONDS", 10),
		InstallRetrySeconds:   getenvInt("KURA_INSTALL_RETRY_SECONDS", 5),
		FetchTimeoutSeconds:   getenvInt("KURA_FETCH_TIMEOUT_SECONDS", 10),
	}

	if cfg.OriginURL == "" {
		return cfg, errors.New(errors.CodeInvalidConfig, "KURA_ORIGIN_URL is required")
	}
	if u, err := url.Parse(cfg.OriginURL); err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New(errors.CodeInvalidConfig, "KURA_ORIGIN_URL must be an absolute URL")
	}
	if strings.TrimSpace(cfg.Version) == "" {
		return cfg, errors.New(errors.CodeInvalidConfig, "KURA_VERSION must not be empty")
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return cfg, errors.New(errors.CodeInvalidConfig, "S3 endpoint/bucket/access/secret are required")
		}
	case StoreMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
			return cfg, errors.New(errors.CodeInvalidConfig, "MinIO endpoint/bucket/access/secret are required")
		}
	default:
		return cfg, errors.Newf(errors.CodeInvalidConfig, "unknown KURA_STORE %q", cfg.Store)
	}
	return cfg, nil
}

// Policy builds the cache policy for the configured prefix and version.
func (c Config) Policy() policy.Policy {
	p := policy.Default(c.CachePrefix, c.Version)
	p.CaptureHeader = c.CaptureHeader
	p.RefreshTimeout = c.RefreshTimeout()
	return p
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

func (c Config) InstallRetry() time.Duration {
	return time.Duration(c.InstallRetrySeconds) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
