package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "github.com/wolfman30/skyreply/internal/config"
	"github.com/wolfman30/skyreply/internal/llm"
	"github.com/wolfman30/skyreply/pkg/logging"
)

func TestBuildLLMClientRequiresConfig(t *testing.T) {
	if _, _, err := BuildLLMClient(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientProviders(t *testing.T) {
	tests := []struct {
		name     string
		cfg      appconfig.Config
		wantType any
		wantErr  bool
	}{
		{
			name:     "ollama",
			cfg:      appconfig.Config{LLMProvider: appconfig.ProviderOllama, LLMModel: "yapper", OllamaHost: "http://localhost:11434"},
			wantType: &llm.OllamaClient{},
		},
		{
			name:     "openai compatible",
			cfg:      appconfig.Config{LLMProvider: appconfig.ProviderOpenAI, LLMModel: "gpt-4o-mini", OpenAIAPIKey: "sk-test"},
			wantType: &llm.OpenAIClient{},
		},
		{
			name:     "bedrock with static credentials",
			cfg:      appconfig.Config{LLMProvider: appconfig.ProviderBedrock, LLMModel: "anthropic.claude-3-haiku", AWSRegion: "us-east-1", AWSAccessKeyID: "test", AWSSecretAccessKey: "test", AWSEndpointOverride: "http://localhost:4566"},
			wantType: &llm.BedrockClient{},
		},
		{
			name:     "ollama with gemini fallback",
			cfg:      appconfig.Config{LLMProvider: appconfig.ProviderOllama, LLMModel: "yapper", LLMFallbackProvider: appconfig.ProviderGemini, LLMFallbackModel: "gemini-2.5-flash", GeminiAPIKey: "test-key"},
			wantType: &llm.FallbackClient{},
		},
		{
			name:    "gemini without key",
			cfg:     appconfig.Config{LLMProvider: appconfig.ProviderGemini, LLMModel: "gemini-2.5-flash"},
			wantErr: true,
		},
		{
			name:    "unknown provider",
			cfg:     appconfig.Config{LLMProvider: "llamafile", LLMModel: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, closeFn, err := BuildLLMClient(context.Background(), &tt.cfg, logging.New("error"))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer closeFn()
			if got, want := typeName(client), typeName(tt.wantType); got != want {
				t.Fatalf("expected %s, got %s", want, got)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *llm.OllamaClient:
		return "ollama"
	case *llm.OpenAIClient:
		return "openai"
	case *llm.BedrockClient:
		return "bedrock"
	case *llm.GeminiClient:
		return "gemini"
	case *llm.FallbackClient:
		return "fallback"
	default:
		return "unknown"
	}
}

func TestBuildPlatformLogsIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/com.atproto.server.createSession" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"did": "did:plc:bot", "handle": "bot.test", "accessJwt": "a", "refreshJwt": "r",
		})
	}))
	defer srv.Close()

	cfg := &appconfig.Config{
		BskyService:     srv.URL,
		BskyIdentifier:  "bot.test",
		BskyPassword:    "app-password",
		BskyHTTPTimeout: time.Second,
	}
	platform, err := BuildPlatform(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platform.SelfDID() != "did:plc:bot" {
		t.Fatalf("unexpected DID %s", platform.SelfDID())
	}
}

func TestBuildPlatformLoginFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
	}))
	defer srv.Close()

	cfg := &appconfig.Config{BskyService: srv.URL, BskyIdentifier: "bot.test", BskyPassword: "wrong"}
	if _, err := BuildPlatform(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected login error")
	}
}
