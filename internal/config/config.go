package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	HistoryBackendMongo    = "mongo"
	HistoryBackendPostgres = "postgres"
)

var defaultGeminiModels = []string{
	"gemini-2.5-flash",
	"gemini-1.5-flash",
	"gemini-1.5-flash-001",
	"gemini-1.5-pro",
	"gemini-1.5-pro-001",
	"gemini-2.0-flash-exp",
}

type Config struct {
	AppEnv               string
	AppName              string
	AppPort              string
	LogLevel             string
	StaticDir            string
	CORSAllowOrigins     []string
	GoogleAPIKey         string
	GeminiModels         []string
	GeminiBaseURL        string
	AITimeoutSeconds     int
	AIListModelsOnStart  bool
	HistoryBackend       string
	MongoURI             string
	MongoDatabase        string
	MongoCollection      string
	DatabaseURL          string
	ReadHeaderTimeoutSec int
}

func Load() Config {
	_ = godotenv.Overload(".env")

	return Config{
		AppEnv:    getEnv("APP_ENV", "local"),
		AppName:   getEnv("APP_NAME", "Water Footprint API"),
		AppPort:   getEnv("APP_PORT", "5000"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		StaticDir: getEnv("STATIC_DIR", "../frontend/dist"),
		CORSAllowOrigins: getEnvCSV(
			"CORS_ALLOW_ORIGINS",
			[]string{"http://localhost:5173", "http://127.0.0.1:5173", "http://localhost:3000"},
		),
		GoogleAPIKey:         strings.TrimSpace(getEnv("GOOGLE_API_KEY", "")),
		GeminiModels:         getEnvCSV("GEMINI_MODELS", DefaultGeminiModels()),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", ""),
		AITimeoutSeconds:     getEnvInt("AI_TIMEOUT_SECONDS", 60),
		AIListModelsOnStart:  getEnvBool("AI_LIST_MODELS_ON_START", false),
		HistoryBackend:       strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendMongo)),
		MongoURI:             getEnv("MONGO_URI", "mongodb://localhost:27017/"),
		MongoDatabase:        getEnv("MONGO_DATABASE", "water_footprint_db"),
		MongoCollection:      getEnv("MONGO_COLLECTION", "user_history"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		ReadHeaderTimeoutSec: getEnvInt("READ_HEADER_TIMEOUT_SECONDS", 10),
	}
}

// AIConfigured reports whether the generative model provider can be called.
func (c Config) AIConfigured() bool {
	return strings.TrimSpace(c.GoogleAPIKey) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.AppPort) == "" {
		return errors.New("APP_PORT is required")
	}
	switch c.HistoryBackend {
	case HistoryBackendMongo, HistoryBackendPostgres:
	default:
		return fmt.Errorf("HISTORY_BACKEND must be %q or %q, got %q", HistoryBackendMongo, HistoryBackendPostgres, c.HistoryBackend)
	}
	if len(c.GeminiModels) == 0 {
		return errors.New("GEMINI_MODELS must list at least one model")
	}
	return nil
}

// DefaultGeminiModels returns a copy of the built-in candidate order.
func DefaultGeminiModels() []string {
	out := make([]string, len(defaultGeminiModels))
	copy(out, defaultGeminiModels)
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, item := range parts {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}
