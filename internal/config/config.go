package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port        int    `toml:"port"`
	Host        string `toml:"host"`
	BaseURL     string `toml:"base_url"`
	AdminSecret string `toml:"admin_secret"`
	LogLevel    string `toml:"log_level"`

	// Database
	DatabasePath string `toml:"database_path"`

	// Auth
	TokenTTL Duration `toml:"token_ttl"`

	// Render cache
	CacheBackend   string   `toml:"cache_backend"` // "memory" or "redis"
	RedisAddr      string   `toml:"redis_addr"`
	RedisPassword  string   `toml:"redis_password"`
	RenderCacheTTL Duration `toml:"render_cache_ttl"`
	CacheTimeout   Duration `toml:"cache_timeout"`

	// Relations
	RelationTimeout Duration `toml:"relation_timeout"`

	// Stories
	DuplicateWindow Duration `toml:"duplicate_window"`

	// Comments
	CommentLimit int `toml:"comment_limit"`

	// Attachments
	MaxCommunityImages int    `toml:"max_community_images"`
	BlobBackend        string `toml:"blob_backend"` // "memory" or "s3"
	S3Bucket           string `toml:"s3_bucket"`
	S3Prefix           string `toml:"s3_prefix"`
	S3Region           string `toml:"s3_region"`
}

// Duration lets TOML files spell durations as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:               getEnvInt("PORT", 8080),
		Host:               getEnv("HOST", "0.0.0.0"),
		BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
		AdminSecret:        getEnv("ADMIN_SECRET", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabasePath:       getEnv("DATABASE_PATH", "threadcache.db"),
		TokenTTL:           Duration{getEnvDuration("TOKEN_TTL", 24*time.Hour)},
		CacheBackend:       getEnv("CACHE_BACKEND", "memory"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RenderCacheTTL:     Duration{getEnvDuration("RENDER_CACHE_TTL", 30*time.Second)},
		CacheTimeout:       Duration{getEnvDuration("CACHE_TIMEOUT", 50*time.Millisecond)},
		RelationTimeout:    Duration{getEnvDuration("RELATION_TIMEOUT", 200*time.Millisecond)},
		DuplicateWindow:    Duration{getEnvDuration("DUPLICATE_WINDOW", 30*24*time.Hour)},
		CommentLimit:       getEnvInt("COMMENT_LIMIT", 200),
		MaxCommunityImages: getEnvInt("MAX_COMMUNITY_IMAGES", 50),
		BlobBackend:        getEnv("BLOB_BACKEND", "memory"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Prefix:           getEnv("S3_PREFIX", "community-images"),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
	}
}

// LoadFile loads the environment configuration and overlays the TOML file at
// path. Keys absent from the file keep their environment or default values.
func LoadFile(path string) (*Config, error) {
	cfg := Load()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the backend selectors and bounds.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache_backend must be 'memory' or 'redis', got %q", c.CacheBackend)
	}
	switch c.BlobBackend {
	case "memory":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3_bucket is required when blob_backend is 's3'")
		}
	default:
		return fmt.Errorf("blob_backend must be 'memory' or 's3', got %q", c.BlobBackend)
	}
	if c.RenderCacheTTL.Duration <= 0 {
		return fmt.Errorf("render_cache_ttl must be positive")
	}
	if c.MaxCommunityImages < 0 {
		return fmt.Errorf("max_community_images must not be negative")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
