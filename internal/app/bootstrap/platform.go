package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/skyreply/internal/bluesky"
	appconfig "github.com/wolfman30/skyreply/internal/config"
	"github.com/wolfman30/skyreply/pkg/logging"
)

// BuildPlatform logs in to Bluesky and returns the chat platform adapter.
func BuildPlatform(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*bluesky.Platform, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	client, err := bluesky.New(bluesky.Config{
		Service:    cfg.BskyService,
		Identifier: cfg.BskyIdentifier,
		Password:   cfg.BskyPassword,
		ChatProxy:  cfg.BskyChatProxy,
		Timeout:    cfg.BskyHTTPTimeout,
		Logger:     logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: bluesky login: %w", err)
	}
	return bluesky.NewPlatform(client, logger.Logger), nil
}
