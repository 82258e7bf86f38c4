package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/skyreply/internal/app/bootstrap"
	"github.com/wolfman30/skyreply/internal/chat"
	appconfig "github.com/wolfman30/skyreply/internal/config"
	"github.com/wolfman30/skyreply/internal/llm"
	"github.com/wolfman30/skyreply/pkg/logging"
)

// Sends a canned DM history through the configured provider and prints the reply units.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout)
	defer cancel()

	client, closeFn, err := bootstrap.BuildLLMClient(ctx, cfg, logger)
	if err != nil {
		fmt.Printf("failed to build llm client: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	const self = "did:plc:self"
	history := []chat.Message{
		chat.ContentMessage{ID: "4", SenderDID: "did:plc:friend", Text: "what are you up to this weekend?"},
		chat.DeletedMessage{ID: "3"},
		chat.ContentMessage{ID: "2", SenderDID: self, Text: "hey! not much, you?"},
		chat.ContentMessage{ID: "1", SenderDID: "did:plc:friend", Text: "yo"},
	}
	transcript := chat.BuildTranscript(history, self)

	req := llm.Request{Model: cfg.LLMModel}
	for _, entry := range transcript {
		req.Messages = append(req.Messages, llm.ChatMessage{Role: entry.Role, Content: entry.Content})
	}

	fmt.Printf("provider=%s model=%s\n", cfg.LLMProvider, cfg.LLMModel)
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	if err != nil {
		fmt.Printf("completion failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("response in %v (tokens in=%d out=%d)\n", time.Since(start).Round(time.Millisecond), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	for i, unit := range chat.SplitReply(resp.Text) {
		fmt.Printf("  [%d] %s\n", i+1, unit)
	}
}
