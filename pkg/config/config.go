// Package config loads process configuration from the environment
// (.env first, then os.Getenv with defaults).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced value the service's components
// need at construction time.
type Config struct {
	Port string

	// Store (C4).
	DatabaseDSN string
	// CacheDSN is accepted for deployments that front the service with a
	// cache; nothing in this service reads it yet.
	CacheDSN string

	// Provider Adapter (C2) OAuth client credentials.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	// Secret Box (C1).
	EncryptionKey string // 32-byte hex

	// Access-token validation settings, consumed by the auth layer that
	// fronts the HTTP boundary.
	AccessTokenSecret   string
	AccessTokenAudience string
	AccessTokenIssuer   string
	AccessTokenTTL      time.Duration
	RefreshTokenTTL     time.Duration

	// AI Adapter (C3).
	AIProvider           string // "gemini" | "ollama"
	GeminiAPIKey         string
	AIModel              string
	AIEmbeddingModel     string
	OllamaBaseURL        string
	OllamaModel          string
	OllamaEmbeddingModel string

	// Sync engine tunables, overriding sync.DefaultConfig().
	SyncMaxMessagesPerFullSync     int
	SyncWatchdogMinutes            int
	SyncNearExpiryMinutes          int
	SyncOnDemandNearExpiryMinutes  int
	SyncTokenRefreshTickInterval   time.Duration
	SyncIncrementalTickInterval    time.Duration
	SyncRetryTickInterval          time.Duration
	RetryBackoffSchedule           []time.Duration

	// Snooze Scheduler (C9) / Enrichment Worker (C10).
	SnoozeTickInterval     time.Duration
	EnrichmentTickInterval time.Duration
	EnrichmentBatchSize    int
}

// Load reads configuration from the environment (.env first, if
// present).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=mailsync port=5432 sslmode=disable"),
		CacheDSN:    getEnv("CACHE_DSN", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8080/v1/mailboxes/oauth-callback"),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		AccessTokenSecret:   getEnv("ACCESS_TOKEN_SECRET", "change-in-production"),
		AccessTokenAudience: getEnv("ACCESS_TOKEN_AUDIENCE", "mailsync"),
		AccessTokenIssuer:   getEnv("ACCESS_TOKEN_ISSUER", "mailsync"),
		AccessTokenTTL:      getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:     getDuration("REFRESH_TOKEN_TTL", 168*time.Hour),

		AIProvider:           getEnv("AI_PROVIDER", "gemini"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		AIModel:              getEnv("AI_MODEL", "gemini-2.5-flash"),
		AIEmbeddingModel:     getEnv("AI_EMBEDDING_MODEL", "text-embedding-004"),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:          getEnv("OLLAMA_MODEL", "llama3"),
		OllamaEmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),

		SyncMaxMessagesPerFullSync:    getInt("SYNC_MAX_MESSAGES_PER_FULL_SYNC", 200),
		SyncWatchdogMinutes:           getInt("SYNC_WATCHDOG_MINUTES", 5),
		SyncNearExpiryMinutes:         getInt("SYNC_TOKEN_NEAR_EXPIRY_MINUTES", 10),
		SyncOnDemandNearExpiryMinutes: getInt("SYNC_ON_DEMAND_NEAR_EXPIRY_MINUTES", 5),
		SyncTokenRefreshTickInterval:  getDuration("SYNC_TOKEN_REFRESH_TICK_INTERVAL", 5*time.Minute),
		SyncIncrementalTickInterval:   getDuration("SYNC_INCREMENTAL_TICK_INTERVAL", 1*time.Minute),
		SyncRetryTickInterval:         getDuration("SYNC_RETRY_TICK_INTERVAL", 30*time.Second),
		RetryBackoffSchedule:          getDurationList("SYNC_RETRY_BACKOFF_SCHEDULE", []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second}),

		SnoozeTickInterval:     getDuration("SNOOZE_TICK_INTERVAL", 60*time.Second),
		EnrichmentTickInterval: getDuration("ENRICHMENT_TICK_INTERVAL", 10*time.Minute),
		EnrichmentBatchSize:    getInt("ENRICHMENT_BATCH_SIZE", 50),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationList(key string, defaultValue []time.Duration) []time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return defaultValue
		}
		out = append(out, d)
	}
	return out
}
