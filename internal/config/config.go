package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings read from the environment
type Config struct {
	Port          int
	LogLevel      string
	PublicBaseURL string

	// Local collection store
	StatePath string

	// Remote tracking table
	DatabaseURL    string
	TrackingAPIURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SnapshotTTL   time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	// "forward" rejects status moves back down the pipeline
	StatusTransitionPolicy string
	// "redis" serialises store updates across instances sharing STATE_PATH
	LedgerLock string

	RepublishInterval time.Duration
	ArchiveInterval   time.Duration
	AnalyticsInterval time.Duration
	PublishTimeout    time.Duration
	JobTimeout        time.Duration

	// Public tracking requests per client and route within RateLimitWindow; 0 disables
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads an optional .env file and then the environment
func Load() *Config {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	return &Config{
		Port:                   getInt("PORT", 8080),
		LogLevel:               getString("LOG_LEVEL", "info"),
		PublicBaseURL:          strings.TrimRight(getString("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		StatePath:              getString("STATE_PATH", "salmontrack.db"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		TrackingAPIURL:         strings.TrimRight(os.Getenv("TRACKING_API_URL"), "/"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0),
		SnapshotTTL:            getDuration("SNAPSHOT_CACHE_TTL", 30*time.Second),
		MinioEndpoint:          os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:         getString("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:         getString("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:            os.Getenv("MINIO_USE_SSL") == "true",
		MinioBucket:            getString("MINIO_BUCKET", "tracking-archive"),
		StatusTransitionPolicy: getString("STATUS_TRANSITION_POLICY", "unguarded"),
		LedgerLock:             getString("LEDGER_LOCK", "local"),
		RepublishInterval:      getDuration("REPUBLISH_INTERVAL", 15*time.Minute),
		ArchiveInterval:        getDuration("ARCHIVE_INTERVAL", 24*time.Hour),
		AnalyticsInterval:      getDuration("ANALYTICS_INTERVAL", 5*time.Minute),
		PublishTimeout:         getDuration("PUBLISH_TIMEOUT", 10*time.Second),
		JobTimeout:             getDuration("JOB_TIMEOUT", 5*time.Minute),
		RateLimit:              getInt("TRACKING_RATE_LIMIT", 120),
		RateLimitWindow:        getDuration("TRACKING_RATE_WINDOW", time.Minute),
	}
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
