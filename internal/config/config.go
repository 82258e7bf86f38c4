package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported LLM providers.
const (
	ProviderOllama  = "ollama"
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// Config holds application configuration
type Config struct {
	Env       string
	LogLevel  string
	LogFormat string

	// Bluesky account and chat service
	BskyService     string
	BskyIdentifier  string
	BskyPassword    string
	BskyChatProxy   string
	BskyHTTPTimeout time.Duration

	// Poll loop
	PollInterval time.Duration
	HistoryLimit int

	// Language model backend
	LLMProvider         string
	LLMModel            string
	LLMFallbackProvider string
	LLMFallbackModel    string
	LLMTimeout          time.Duration
	OllamaHost          string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	GeminiAPIKey        string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	MetricsAddr     string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		BskyService:     strings.TrimRight(getEnv("BSKY_SERVICE", "https://bsky.social"), "/"),
		BskyIdentifier:  strings.TrimSpace(getEnv("BSKY_IDENTIFIER", "")),
		BskyPassword:    getEnv("BSKY_PASSWORD", ""),
		BskyChatProxy:   getEnv("BSKY_CHAT_PROXY", "did:web:api.bsky.chat#bsky_chat"),
		BskyHTTPTimeout: getEnvAsDuration("BSKY_HTTP_TIMEOUT", 15*time.Second),

		PollInterval: getEnvAsDuration("POLL_INTERVAL", 5*time.Second),
		HistoryLimit: getEnvAsInt("HISTORY_LIMIT", 100),

		LLMProvider:         strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", ProviderOllama))),
		LLMModel:            getEnv("LLM_MODEL", "yapper"),
		LLMFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("LLM_FALLBACK_PROVIDER", ""))),
		LLMFallbackModel:    getEnv("LLM_FALLBACK_MODEL", ""),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 2*time.Minute),
		OllamaHost:          getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// Validate reports settings the agent cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.BskyIdentifier == "" || c.BskyPassword == "" {
		errs = append(errs, errors.New("config: BSKY_IDENTIFIER and BSKY_PASSWORD are required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > 100 {
		errs = append(errs, fmt.Errorf("config: HISTORY_LIMIT must be between 1 and 100, got %d", c.HistoryLimit))
	}
	if !knownProvider(c.LLMProvider) {
		errs = append(errs, fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if c.LLMFallbackProvider != "" && !knownProvider(c.LLMFallbackProvider) {
		errs = append(errs, fmt.Errorf("config: unknown LLM_FALLBACK_PROVIDER %q", c.LLMFallbackProvider))
	}
	if strings.TrimSpace(c.LLMModel) == "" {
		errs = append(errs, errors.New("config: LLM_MODEL is required"))
	}
	return errors.Join(errs...)
}

func knownProvider(name string) bool {
	switch name {
	case ProviderOllama, ProviderOpenAI, ProviderBedrock, ProviderGemini:
		return true
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
