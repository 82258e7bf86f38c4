package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skyreply/internal/observability/metrics"
	"github.com/wolfman30/skyreply/pkg/logging"
)

const defaultPollInterval = 5 * time.Second

// conversationProcessor is the subset of Processor used by the scheduler.
type conversationProcessor interface {
	Process(ctx context.Context, conv Conversation) Outcome
}

// Scheduler polls the platform and fans out a processor per eligible conversation.
type Scheduler struct {
	platform  Platform
	processor conversationProcessor
	guard     *Guard
	interval  time.Duration
	metrics   *metrics.AgentMetrics
	logger    *logging.Logger

	wg sync.WaitGroup
}

type schedulerConfig struct {
	interval time.Duration
	metrics  *metrics.AgentMetrics
}

// SchedulerOption customizes scheduler behavior.
type SchedulerOption func(*schedulerConfig)

// WithPollInterval sets the delay between ticks.
func WithPollInterval(d time.Duration) SchedulerOption {
	return func(cfg *schedulerConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

func WithSchedulerMetrics(m *metrics.AgentMetrics) SchedulerOption {
	return func(cfg *schedulerConfig) {
		cfg.metrics = m
	}
}

// NewScheduler constructs a poll loop around processor.
func NewScheduler(platform Platform, processor conversationProcessor, guard *Guard, logger *logging.Logger, opts ...SchedulerOption) *Scheduler {
	if platform == nil {
		panic("chat: platform cannot be nil")
	}
	if processor == nil {
		panic("chat: processor cannot be nil")
	}
	if guard == nil {
		panic("chat: guard cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := schedulerConfig{interval: defaultPollInterval}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Scheduler{
		platform:  platform,
		processor: processor,
		guard:     guard,
		interval:  cfg.interval,
		metrics:   cfg.metrics,
		logger:    logger,
	}
}

// Run ticks until ctx is cancelled. The first tick fires immediately.
// Attempts started by earlier ticks keep running after Run returns; use Wait to drain them.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("poll scheduler started", "interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("poll scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick lists conversations once and spawns an attempt for each eligible one.
// It returns the number of attempts spawned without waiting for them.
func (s *Scheduler) Tick(ctx context.Context) int {
	tickID := uuid.NewString()
	log := s.logger.With("tick_id", tickID)

	convs, err := s.platform.ListConversations(ctx)
	if err != nil {
		s.metrics.ObserveTick("list_error", 0)
		log.Error("failed to list conversations", "error", err)
		return 0
	}

	selfDID := s.platform.SelfDID()
	eligible := 0
	spawned := 0
	for _, conv := range convs {
		if conv.LastMessage == nil || !NeedsReply(conv.LastMessage, selfDID) {
			continue
		}
		eligible++
		if held, busy := s.guard.Holding(conv.ID); busy {
			log.Debug("skipping conversation in flight", "conversation_id", conv.ID, "message_id", held)
			continue
		}
		s.spawn(ctx, conv, log)
		spawned++
	}

	s.metrics.ObserveTick("ok", eligible)
	log.Debug("poll tick complete", "conversations", len(convs), "eligible", eligible, "spawned", spawned)
	return spawned
}

func (s *Scheduler) spawn(ctx context.Context, conv Conversation, log *logging.Logger) {
	// Attempts outlive the tick and the scheduler; shutdown drains them through Wait.
	attemptCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("conversation attempt panicked", "conversation_id", conv.ID, "panic", fmt.Sprint(r))
			}
		}()
		s.processor.Process(attemptCtx, conv)
	}()
}

// Wait blocks until every spawned attempt has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// WaitTimeout waits for in-flight attempts for at most d. It reports whether all finished.
func (s *Scheduler) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
