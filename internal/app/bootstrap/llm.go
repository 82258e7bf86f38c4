package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/skyreply/internal/config"
	"github.com/wolfman30/skyreply/internal/llm"
	"github.com/wolfman30/skyreply/pkg/logging"
)

// BuildLLMClient wires the configured provider, wrapped with a fallback
// provider when one is set. The returned close func releases provider resources.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, closePrimary, err := buildProvider(ctx, cfg, cfg.LLMProvider, cfg.LLMModel)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: primary llm %q: %w", cfg.LLMProvider, err)
	}
	logger.Info("llm provider configured", "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	if cfg.LLMFallbackProvider == "" {
		return primary, closePrimary, nil
	}

	fallback, closeFallback, err := buildProvider(ctx, cfg, cfg.LLMFallbackProvider, cfg.LLMFallbackModel)
	if err != nil {
		_ = closePrimary()
		return nil, nil, fmt.Errorf("bootstrap: fallback llm %q: %w", cfg.LLMFallbackProvider, err)
	}
	logger.Info("llm fallback configured", "provider", cfg.LLMFallbackProvider, "model", cfg.LLMFallbackModel)

	closeAll := func() error {
		return errors.Join(closePrimary(), closeFallback())
	}
	return llm.NewFallbackClient(primary, fallback, cfg.LLMFallbackModel, logger.Logger), closeAll, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, provider, model string) (llm.Client, func() error, error) {
	noop := func() error { return nil }

	switch provider {
	case appconfig.ProviderOllama:
		return llm.NewOllamaClient(llm.OllamaConfig{Host: cfg.OllamaHost, Timeout: cfg.LLMTimeout}), noop, nil
	case appconfig.ProviderOpenAI:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.LLMTimeout,
		}), noop, nil
	case appconfig.ProviderBedrock:
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return llm.NewBedrockClient(NewBedrockRuntime(awsCfg, cfg)), noop, nil
	case appconfig.ProviderGemini:
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// LoadAWSConfig applies the region and optional static credentials from config.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewBedrockRuntime builds the Bedrock runtime client, honouring AWS_ENDPOINT_OVERRIDE.
func NewBedrockRuntime(awsCfg aws.Config, cfg *appconfig.Config) *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}
