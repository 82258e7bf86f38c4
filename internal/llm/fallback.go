package llm

import (
	"context"
	"log/slog"
	"strings"
)

// FallbackClient wraps a primary client with a fallback provider.
// If the primary fails, the same request is retried once on the fallback.
type FallbackClient struct {
	primary       Client
	fallback      Client
	fallbackModel string
	logger        *slog.Logger
}

// NewFallbackClient creates a fallback-enabled client. A non-empty
// fallbackModel replaces the request model when the fallback is used.
// If fallback is nil, the client only uses the primary provider.
func NewFallbackClient(primary, fallback Client, fallbackModel string, logger *slog.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackClient{
		primary:       primary,
		fallback:      fallback,
		fallbackModel: strings.TrimSpace(fallbackModel),
		logger:        logger,
	}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil {
		return Response{}, err
	}

	if c.fallbackModel != "" {
		req.Model = c.fallbackModel
	}
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure", "model", req.Model)
	return fallbackResp, nil
}
