package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaHost = "http://localhost:11434"

// OllamaConfig describes how to reach an Ollama server.
type OllamaConfig struct {
	Host       string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OllamaClient calls Ollama's native /api/chat endpoint without streaming.
type OllamaClient struct {
	host string
	http *http.Client
}

// NewOllamaClient returns a client for the given host, defaulting to localhost.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		host = defaultOllamaHost
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OllamaClient{host: host, http: httpClient}
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []ChatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string      `json:"model"`
	Message         ChatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int32       `json:"prompt_eval_count"`
	EvalCount       int32       `json:"eval_count"`
}

// Complete sends the transcript to /api/chat and returns the assistant message.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, errors.New("llm: ollama model is required")
	}

	messages := make([]ChatMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, ChatMessage{Role: RoleSystem, Content: block})
	}
	messages = append(messages, req.Messages...)

	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		options["top_p"] = *req.TopP
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: encode ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm: build ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read ollama response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return Response{}, fmt.Errorf("llm: ollama returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return Response{}, fmt.Errorf("llm: ollama returned %d", resp.StatusCode)
	}

	var out ollamaChatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Response{}, fmt.Errorf("llm: decode ollama response: %w", err)
	}

	return Response{
		Text:       out.Message.Content,
		StopReason: out.DoneReason,
		Usage: TokenUsage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
			TotalTokens:  out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}
