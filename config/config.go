package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Ingest   IngestConfig
	Presence PresenceConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// IngestConfig holds media-server integration settings: where the ingest
// server writes HLS segments, how playback URLs are built, and how long an
// unused stream key stays valid.
type IngestConfig struct {
	SegmentsDir   string        // local dir the media server writes segments to
	PlaybackHost  string        // public host serving /live/<key>/index.m3u8
	ProxyPath     string        // same-origin proxy prefix for playback, e.g. /hls
	KeyTTL        time.Duration // unused scheduled keys expire after this
	SweepInterval time.Duration
}

// PresenceConfig holds viewer-presence tuning.
type PresenceConfig struct {
	GraceWindow  time.Duration // heartbeat silence before a viewer is reaped
	ReapInterval time.Duration
}

// AWSConfig holds AWS credentials and the archives bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchivesBucket       string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string. If DatabaseConfig.URL is set
// it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "streamdj"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Ingest: IngestConfig{
			SegmentsDir:   getEnv("INGEST_SEGMENTS_DIR", "/tmp/hls"),
			PlaybackHost:  getEnv("PLAYBACK_HOST", ""),
			ProxyPath:     getEnv("PLAYBACK_PROXY_PATH", "/hls"),
			KeyTTL:        getEnvDuration("STREAM_KEY_TTL", 24*time.Hour),
			SweepInterval: getEnvDuration("STREAM_SWEEP_INTERVAL", time.Minute),
		},
		Presence: PresenceConfig{
			GraceWindow:  getEnvDuration("PRESENCE_GRACE_WINDOW", 90*time.Second),
			ReapInterval: getEnvDuration("PRESENCE_REAP_INTERVAL", 30*time.Second),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchivesBucket:       getEnv("AWS_S3_ARCHIVES_BUCKET", "streamdj-archives"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
