package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
	SiteURL  string `yaml:"siteURL"`

	// Rate limiting is enabled when RedisAddr is set.
	RedisAddr          string `yaml:"redisAddr"`
	RedisPassword      string `yaml:"redisPassword"`
	RateLimitPerMinute int    `yaml:"rateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies SITEMAP_*
// overrides. A missing default file leaves the environment as the only source.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{Port: "8080", LogLevel: "info", RateLimitPerMinute: 60}
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
	if v := os.Getenv("SITEMAP_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("SITEMAP_PORT") == "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("SITEMAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("SITEMAP_SITE_URL"); v != "" {
		cfg.SiteURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SITEMAP_RATE_LIMIT_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("config: SITEMAP_RATE_LIMIT_PER_MINUTE: %w", err)
		}
		cfg.RateLimitPerMinute = n
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or SITEMAP_PORT)")
	}
	u, err := url.Parse(cfg.SiteURL)
	if cfg.SiteURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: siteURL must be an absolute http(s) URL (set in config.yaml or SITEMAP_SITE_URL)")
	}
	if cfg.RedisAddr != "" && cfg.RateLimitPerMinute <= 0 {
		return errors.New("config: rateLimitPerMinute must be positive when redisAddr is set")
	}
	return nil
}
