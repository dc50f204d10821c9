package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Service-to-service auth
	ServiceJWTSecret string

	// Gemini (translation)
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// Speech synthesis provider
	TTSBaseURL         string
	TTSAPIKey          string
	TTSVoice           string
	TTSVoiceTranslated string

	// Silent video provider
	VideoGenBaseURL string
	VideoGenAPIKey  string

	// Media toolchain
	FFmpegPath  string
	FFprobePath string

	// Polling
	PollIntervalSeconds int
	PollMaxAttempts     int

	// Storage
	StoragePath   string
	PublicBaseURL string

	// Workers
	WorkerCount int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),

		ServiceJWTSecret: mustGetEnv("SERVICE_JWT_SECRET"),

		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),

		TTSBaseURL:         mustGetEnv("TTS_BASE_URL"),
		TTSAPIKey:          mustGetEnv("TTS_API_KEY"),
		TTSVoice:           getEnvOrDefault("TTS_VOICE", "zh-standard-f1"),
		TTSVoiceTranslated: getEnvOrDefault("TTS_VOICE_TRANSLATED", "en-standard-m1"),

		VideoGenBaseURL: mustGetEnv("VIDEOGEN_BASE_URL"),
		VideoGenAPIKey:  mustGetEnv("VIDEOGEN_API_KEY"),

		FFmpegPath:  getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnvOrDefault("FFPROBE_PATH", "ffprobe"),

		PollIntervalSeconds: getEnvAsIntOrDefault("POLL_INTERVAL_SECONDS", 5),
		PollMaxAttempts:     getEnvAsIntOrDefault("POLL_MAX_ATTEMPTS", 120),

		StoragePath:   getEnvOrDefault("STORAGE_PATH", "./media"),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		WorkerCount: getEnvAsIntOrDefault("WORKER_COUNT", 5),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
