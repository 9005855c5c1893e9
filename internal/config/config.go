// Package config loads the unibro CLI configuration from YAML with
// UNIBRO_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, relative to the working directory.
const ConfigPath = "unibro.yaml"

const (
	SessionBackendFile     = "file"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
	SessionBackendMemory   = "memory"

	BroadcastNone  = "none"
	BroadcastFile  = "file"
	BroadcastRedis = "redis"
	BroadcastAMQP  = "amqp"
)

type SessionConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryptionKey"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisPrefix   string `yaml:"redisPrefix"`
	RedisTTL      string `yaml:"redisTTL"`
	DatabaseURL   string `yaml:"databaseURL"`
	Profile       string `yaml:"profile"`
}

type BroadcastConfig struct {
	Driver       string `yaml:"driver"`
	RedisChannel string `yaml:"redisChannel"`
	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`
}

type BlobConfig struct {
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"accessKey"`
	SecretKey     string `yaml:"secretKey"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"useSSL"`
	PublicBaseURL string `yaml:"publicBaseURL"`
}

type UploadConfig struct {
	MaxBytes          int64    `yaml:"maxBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIBaseURL        string          `yaml:"apiBaseURL"`
	LogLevel          string          `yaml:"logLevel"`
	LogFormat         string          `yaml:"logFormat"`
	RequestTimeout    string          `yaml:"requestTimeout"`
	CacheFreshness    string          `yaml:"cacheFreshness"`
	OAuthCallbackAddr string          `yaml:"oauthCallbackAddr"`
	Session           SessionConfig   `yaml:"session"`
	Broadcast         BroadcastConfig `yaml:"broadcast"`
	Blob              BlobConfig      `yaml:"blob"`
	Upload            UploadConfig    `yaml:"upload"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() FileConfig {
	return FileConfig{
		APIBaseURL:        "http://localhost:5000",
		LogLevel:          "warn",
		LogFormat:         "text",
		RequestTimeout:    "30s",
		CacheFreshness:    "1s",
		OAuthCallbackAddr: "127.0.0.1:5173",
		Session: SessionConfig{
			Backend:     SessionBackendFile,
			Path:        defaultSessionPath(),
			RedisPrefix: "unibro:session",
			Profile:     "default",
		},
		Broadcast: BroadcastConfig{
			Driver:       BroadcastFile,
			RedisChannel: "unibro:auth:changed",
			AMQPExchange: "unibro.auth.changed",
		},
		Blob: BlobConfig{
			Bucket: "unibro",
			UseSSL: true,
		},
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "unibro-session.json"
	}
	return filepath.Join(dir, "unibro", "session.json")
}

// Load reads config from path (defaults to unibro.yaml). A missing file at
// the default path is not an error; defaults and the environment apply.
func Load(path string) (FileConfig, error) {
	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString("UNIBRO_API_BASE_URL", &cfg.APIBaseURL)
	setString("UNIBRO_LOG_LEVEL", &cfg.LogLevel)
	setString("UNIBRO_LOG_FORMAT", &cfg.LogFormat)
	setString("UNIBRO_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	setString("UNIBRO_CACHE_FRESHNESS", &cfg.CacheFreshness)
	setString("UNIBRO_OAUTH_CALLBACK_ADDR", &cfg.OAuthCallbackAddr)

	setString("UNIBRO_SESSION_BACKEND", &cfg.Session.Backend)
	setString("UNIBRO_SESSION_PATH", &cfg.Session.Path)
	setString("UNIBRO_SESSION_ENCRYPTION_KEY", &cfg.Session.EncryptionKey)
	setString("UNIBRO_SESSION_PROFILE", &cfg.Session.Profile)
	setString("REDIS_ADDR", &cfg.Session.RedisAddr)
	setString("REDIS_PASSWORD", &cfg.Session.RedisPassword)
	setString("DATABASE_URL", &cfg.Session.DatabaseURL)

	setString("UNIBRO_BROADCAST_DRIVER", &cfg.Broadcast.Driver)
	setString("UNIBRO_AMQP_URL", &cfg.Broadcast.AMQPURL)

	setString("UNIBRO_BLOB_ENDPOINT", &cfg.Blob.Endpoint)
	setString("UNIBRO_BLOB_ACCESS_KEY", &cfg.Blob.AccessKey)
	setString("UNIBRO_BLOB_SECRET_KEY", &cfg.Blob.SecretKey)
	setString("UNIBRO_BLOB_BUCKET", &cfg.Blob.Bucket)
	setString("UNIBRO_BLOB_PUBLIC_BASE_URL", &cfg.Blob.PublicBaseURL)
	if v := os.Getenv("UNIBRO_BLOB_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Blob.UseSSL = b
		}
	}

	if v := os.Getenv("UNIBRO_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Upload.MaxBytes = n
		}
	}
	if v := os.Getenv("UNIBRO_UPLOAD_ALLOWED_EXTENSIONS"); v != "" {
		cfg.Upload.AllowedExtensions = splitCSV(v)
	}
}

func validateConfig(cfg FileConfig) error {
	u, err := url.Parse(strings.TrimSpace(cfg.APIBaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: apiBaseURL must be an http(s) URL (set in unibro.yaml or UNIBRO_API_BASE_URL)")
	}
	if _, err := ParseDuration("requestTimeout", cfg.RequestTimeout); err != nil {
		return err
	}
	if _, err := ParseDuration("cacheFreshness", cfg.CacheFreshness); err != nil {
		return err
	}
	switch cfg.Session.Backend {
	case SessionBackendFile:
		if strings.TrimSpace(cfg.Session.Path) == "" {
			return errors.New("config: session.path is required for the file backend")
		}
	case SessionBackendRedis:
		if strings.TrimSpace(cfg.Session.RedisAddr) == "" {
			return errors.New("config: session.redisAddr is required for the redis backend (or REDIS_ADDR)")
		}
		if _, err := ParseDuration("session.redisTTL", cfg.Session.RedisTTL); err != nil {
			return err
		}
	case SessionBackendPostgres:
		if strings.TrimSpace(cfg.Session.DatabaseURL) == "" {
			return errors.New("config: session.databaseURL is required for the postgres backend (or DATABASE_URL)")
		}
	case SessionBackendMemory:
	default:
		return fmt.Errorf("config: unknown session.backend %q", cfg.Session.Backend)
	}
	switch cfg.Broadcast.Driver {
	case "", BroadcastNone:
	case BroadcastFile:
		if cfg.Session.Backend != SessionBackendFile {
			return errors.New("config: broadcast.driver file requires session.backend file")
		}
	case BroadcastRedis:
		if strings.TrimSpace(cfg.Session.RedisAddr) == "" {
			return errors.New("config: broadcast.driver redis requires session.redisAddr")
		}
	case BroadcastAMQP:
		if strings.TrimSpace(cfg.Broadcast.AMQPURL) == "" {
			return errors.New("config: broadcast.amqpURL is required for the amqp driver (or UNIBRO_AMQP_URL)")
		}
	default:
		return fmt.Errorf("config: unknown broadcast.driver %q", cfg.Broadcast.Driver)
	}
	if cfg.Upload.MaxBytes < 0 {
		return errors.New("config: upload.maxBytes must be >= 0")
	}
	return nil
}

// BlobConfigured reports whether blob storage credentials are present.
func (c FileConfig) BlobConfigured() bool {
	return c.Blob.Endpoint != "" && c.Blob.AccessKey != "" && c.Blob.SecretKey != "" && c.Blob.Bucket != ""
}

// ParseDuration parses an optional duration setting. Empty means zero.
func ParseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must be >= 0", name)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
