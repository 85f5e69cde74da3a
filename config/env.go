package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Store drivers accepted by JOB_STORE
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config holds the runtime settings of the service
type Config struct {
	// Storage
	DownloadDir         string
	ArtifactExpiryHours int
	StoreDriver         string
	StoreDSN            string

	// Workers
	MaxWorkers        int
	JobTimeoutMinutes int

	// External tools
	YtDlpPath      string
	FFmpegPath     string
	AudioBitrate   string
	UserAgent      string
	EmbedThumbnail bool

	// Logging
	LogLevel  string
	LogFormat string

	// HTTP
	ServerPort  int
	CORSOrigins []string
	GinMode     string
}

// Load reads an optional .env file and the process environment
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DownloadDir = GetDownloadLocation()
	cfg.ArtifactExpiryHours = getEnvInt("ARTIFACT_EXPIRY_HOURS", 0)
	cfg.StoreDriver = strings.ToLower(getEnv("JOB_STORE", StoreMemory))
	cfg.StoreDSN = getEnv("JOB_STORE_DSN", "")
	if cfg.StoreDSN == "" && cfg.StoreDriver == StoreSQLite {
		cfg.StoreDSN = filepath.Join(cfg.DownloadDir, ".mediafetch", "jobs.db")
	}

	cfg.MaxWorkers = getEnvInt("MAX_WORKERS", 2)
	cfg.JobTimeoutMinutes = getEnvInt("JOB_TIMEOUT_MINUTES", 30)

	cfg.YtDlpPath = getEnv("YTDLP_PATH", "yt-dlp")
	cfg.FFmpegPath = getEnv("FFMPEG_PATH", "ffmpeg")
	cfg.AudioBitrate = getEnv("AUDIO_BITRATE", "192K")
	cfg.UserAgent = getEnv("EXTRACTOR_USER_AGENT", defaultUserAgent)
	cfg.EmbedThumbnail = getEnvBool("EMBED_THUMBNAIL", true)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	cfg.ServerPort = getEnvInt("SERVER_PORT", 8080)
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173,http://localhost:5174"))
	cfg.GinMode = getEnv("GIN_MODE", "release")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DownloadDir) == "" {
		return fmt.Errorf("download directory is required")
	}
	if c.ArtifactExpiryHours < 0 {
		return fmt.Errorf("ARTIFACT_EXPIRY_HOURS must not be negative")
	}
	if c.JobTimeoutMinutes < 0 {
		return fmt.Errorf("JOB_TIMEOUT_MINUTES must not be negative")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS must be at least 1")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("JOB_STORE_DSN is required for the %s store", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown JOB_STORE %q (want memory, sqlite or postgres)", c.StoreDriver)
	}
	return nil
}

// ArtifactExpiry returns the artifact lifetime; zero disables expiry
func (c *Config) ArtifactExpiry() time.Duration {
	return time.Duration(c.ArtifactExpiryHours) * time.Hour
}

// JobTimeout returns the wall-clock limit for one job; zero disables it
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutMinutes) * time.Minute
}

// GetDownloadLocation returns the directory artifacts are written to
func GetDownloadLocation() string {
	if customPath := os.Getenv("MEDIAFETCH_DOWNLOADS"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "downloads")
	}

	return filepath.Join(homeDir, "Music", "Mediafetch")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
