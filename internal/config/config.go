package config

import (
	"os"
	"strconv"
)

// Config centralizes runtime settings for the API and the rendering worker.
type Config struct {
	Port string

	AuthToken string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int

	SignedURLTTLMinutes int
	URLCacheMaxEntries  int

	CoalesceCeilingSeconds int

	StorageDir           string
	StorageSigningSecret string
	StorageBaseURL       string

	RenderJPEGQuality int

	WorkerEnabled bool
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken: getEnv("API_AUTH_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "thumb_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "thumb_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "thumb_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		SignedURLTTLMinutes: getEnvInt("SIGNED_URL_TTL_MINUTES", 15),
		URLCacheMaxEntries:  getEnvInt("URL_CACHE_MAX_ENTRIES", 4000),

		CoalesceCeilingSeconds: getEnvInt("COALESCE_CEILING_SECONDS", 120),

		StorageDir:           getEnv("STORAGE_DIR", "./data/objects"),
		StorageSigningSecret: getEnv("STORAGE_SIGNING_SECRET", ""),
		StorageBaseURL:       getEnv("STORAGE_BASE_URL", "http://localhost:8080"),

		RenderJPEGQuality: getEnvInt("RENDER_JPEG_QUALITY", 82),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
