package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"campaignpulse/internal/campaign"
)

// Provider names accepted by CAMPAIGN_LLM_PROVIDER.
const (
	ProviderVibeRouter = "viberouter"
	ProviderGemini     = "gemini"
)

// Config captures runtime configuration for the campaign service.
type Config struct {
	ListenAddr    string
	NormalizeMode campaign.Mode
	TopK          int
	SessionTTL    time.Duration
	InsightWait   time.Duration
	MaxUploadMB   int64
	StylesPath    string
	Language      string

	LLMProvider    string
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMMaxRetries  int
	LLMTimeout     time.Duration
}

// FromEnv creates a configuration instance sourced from environment variables. A .env file in
// the working directory is loaded first when present.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:     getEnv("CAMPAIGN_LISTEN_ADDR", ":8080"),
		NormalizeMode:  campaign.ModeLenient,
		TopK:           campaign.DefaultTopK,
		SessionTTL:     2 * time.Hour,
		InsightWait:    45 * time.Second,
		MaxUploadMB:    20,
		StylesPath:     getEnv("CAMPAIGN_STYLES_PATH", ""),
		Language:       getEnv("CAMPAIGN_LANGUAGE", "English"),
		LLMProvider:    getEnv("CAMPAIGN_LLM_PROVIDER", ProviderVibeRouter),
		LLMAPIKey:      getEnv("CAMPAIGN_LLM_API_KEY", ""),
		LLMBaseURL:     getEnv("CAMPAIGN_LLM_BASE_URL", ""),
		LLMTemperature: 0.4,
		LLMMaxTokens:   1024,
		LLMMaxRetries:  2,
		LLMTimeout:     60 * time.Second,
	}

	if mode := os.Getenv("CAMPAIGN_NORMALIZE_MODE"); mode != "" {
		parsed, err := campaign.ParseMode(mode)
		if err != nil {
			return Config{}, fmt.Errorf("parse CAMPAIGN_NORMALIZE_MODE: %w", err)
		}
		cfg.NormalizeMode = parsed
	}

	switch cfg.LLMProvider {
	case ProviderVibeRouter:
		cfg.LLMModel = getEnv("CAMPAIGN_LLM_MODEL", "gemini-2.5-flash")
	case ProviderGemini:
		cfg.LLMModel = getEnv("CAMPAIGN_LLM_MODEL", "gemini-2.0-flash")
	default:
		return Config{}, fmt.Errorf("parse CAMPAIGN_LLM_PROVIDER: unknown provider %q", cfg.LLMProvider)
	}

	if topK := os.Getenv("CAMPAIGN_TOP_K"); topK != "" {
		if _, err := fmt.Sscanf(topK, "%d", &cfg.TopK); err != nil {
			return Config{}, fmt.Errorf("parse CAMPAIGN_TOP_K: %w", err)
		}
		if cfg.TopK <= 0 {
			return Config{}, fmt.Errorf("parse CAMPAIGN_TOP_K: must be positive, got %d", cfg.TopK)
		}
	}

	if maxMB := os.Getenv("CAMPAIGN_MAX_UPLOAD_MB"); maxMB != "" {
		if _, err := fmt.Sscanf(maxMB, "%d", &cfg.MaxUploadMB); err != nil {
			return Config{}, fmt.Errorf("parse CAMPAIGN_MAX_UPLOAD_MB: %w", err)
		}
	}

	if temp := os.Getenv("CAMPAIGN_LLM_TEMPERATURE"); temp != "" {
		if _, err := fmt.Sscanf(temp, "%f", &cfg.LLMTemperature); err != nil {
			return Config{}, fmt.Errorf("parse CAMPAIGN_LLM_TEMPERATURE: %w", err)
		}
	}

	if tokens := os.Getenv("CAMPAIGN_LLM_MAX_TOKENS"); tokens != "" {
		if _, err := fmt.Sscanf(tokens, "%d", &cfg.LLMMaxTokens); err != nil {
			return Config{}, fmt.Errorf("parse CAMPAIGN_LLM_MAX_TOKENS: %w", err)
		}
	}

	if retries := os.Getenv("CAMPAIGN_LLM_MAX_RETRIES"); retries != "" {
		if _, err := fmt.Sscanf(retries, "%d", &cfg.LLMMaxRetries); err != nil {
			return Config{}, fmt.Errorf("parse CAMPAIGN_LLM_MAX_RETRIES: %w", err)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CAMPAIGN_SESSION_TTL", &cfg.SessionTTL},
		{"CAMPAIGN_INSIGHT_WAIT", &cfg.InsightWait},
		{"CAMPAIGN_LLM_TIMEOUT", &cfg.LLMTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
