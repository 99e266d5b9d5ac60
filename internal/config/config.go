package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Media store (Supabase-compatible object storage)
	StorageURL        string
	StorageServiceKey string
	StorageBucket     string

	// Generation provider
	ProviderBaseURL string
	ProviderAPIKey  string
	DefaultModel    string
	FallbackModels  []string // ordered fallback list tried after the requested model

	// Veo (the one model family that goes through the Gen AI SDK)
	GeminiKey string
	VeoModel  string

	// OpenAI (optional per-scene prompt enhancement)
	OpenAIKey             string
	PromptEnhancerEnabled bool

	// Media processing
	TempDir string

	// Worker
	WorkerConcurrency  int
	MaxDurationSeconds float64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		StorageURL:            getEnv("STORAGE_URL", ""),
		StorageServiceKey:     getEnv("STORAGE_SERVICE_KEY", ""),
		StorageBucket:         getEnv("STORAGE_BUCKET", "sceneforge-videos"),
		ProviderBaseURL:       getEnv("PROVIDER_BASE_URL", "https://api.mediaforge.dev"),
		ProviderAPIKey:        getEnv("PROVIDER_API_KEY", ""),
		DefaultModel:          getEnv("DEFAULT_MODEL", "grok-imagine-video"),
		FallbackModels:        getEnvList("FALLBACK_MODELS", "grok-imagine-video,pixelverse-v4,luma-ray-2"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		VeoModel:              getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		PromptEnhancerEnabled: getEnvBool("PROMPT_ENHANCER_ENABLED", false),
		TempDir:               getEnv("TEMP_DIR", "/tmp/sceneforge"),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 2),
		MaxDurationSeconds:    float64(getEnvInt("MAX_DURATION_SECONDS", 600)),
	}

	// Validate required fields — missing credentials are configuration
	// problems and must read as such, not as runtime failures.
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("configuration error: DATABASE_URL is required")
	}

	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("configuration error: PROVIDER_API_KEY is required")
	}

	if cfg.StorageURL == "" || cfg.StorageServiceKey == "" {
		return nil, fmt.Errorf("configuration error: STORAGE_URL and STORAGE_SERVICE_KEY are required")
	}

	if cfg.PromptEnhancerEnabled && cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("configuration error: PROMPT_ENHANCER_ENABLED requires OPENAI_API_KEY")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
