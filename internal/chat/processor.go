package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/skyreply/internal/llm"
	"github.com/wolfman30/skyreply/internal/observability/metrics"
	"github.com/wolfman30/skyreply/pkg/logging"
)

// Outcome is how a processing attempt ended.
type Outcome string

const (
	OutcomeDone   Outcome = "done"
	OutcomeEmpty  Outcome = "empty"
	OutcomeStale  Outcome = "stale"
	OutcomeFailed Outcome = "failed"
	OutcomeBusy   Outcome = "busy"
	OutcomePanic  Outcome = "panic"
)

// Processing stages, used in wrapped errors and as the stage_failures label.
const (
	StageFetchHistory = "fetch_history"
	StageMap          = "map"
	StageGenerate     = "generate"
	StageSplit        = "split"
	StageAnnotate     = "annotate"
	StageDispatch     = "dispatch"
)

const defaultHistoryLimit = 100

// Processor answers one conversation per Process call.
type Processor struct {
	platform     Platform
	annotator    Annotator
	llm          llm.Client
	guard        *Guard
	model        string
	historyLimit int
	metrics      *metrics.AgentMetrics
	tracer       trace.Tracer
	logger       *logging.Logger
}

type processorConfig struct {
	annotator    Annotator
	historyLimit int
	metrics      *metrics.AgentMetrics
	tracer       trace.Tracer
}

// ProcessorOption customizes processor behavior.
type ProcessorOption func(*processorConfig)

// WithAnnotator sets the rich-text annotator applied to each reply unit.
func WithAnnotator(a Annotator) ProcessorOption {
	return func(cfg *processorConfig) {
		if a != nil {
			cfg.annotator = a
		}
	}
}

// WithHistoryLimit caps how many messages are fetched per attempt.
func WithHistoryLimit(limit int) ProcessorOption {
	return func(cfg *processorConfig) {
		if limit > 0 {
			cfg.historyLimit = limit
		}
	}
}

func WithMetrics(m *metrics.AgentMetrics) ProcessorOption {
	return func(cfg *processorConfig) {
		cfg.metrics = m
	}
}

func WithTracer(t trace.Tracer) ProcessorOption {
	return func(cfg *processorConfig) {
		if t != nil {
			cfg.tracer = t
		}
	}
}

// NewProcessor wires a processor. platform, client and guard are required.
func NewProcessor(platform Platform, client llm.Client, guard *Guard, model string, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if platform == nil {
		panic("chat: platform cannot be nil")
	}
	if client == nil {
		panic("chat: llm client cannot be nil")
	}
	if guard == nil {
		panic("chat: guard cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := processorConfig{
		annotator:    PlainAnnotator{},
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("skyreply.internal.chat.processor")
	}

	return &Processor{
		platform:     platform,
		annotator:    cfg.annotator,
		llm:          client,
		guard:        guard,
		model:        model,
		historyLimit: cfg.historyLimit,
		metrics:      cfg.metrics,
		tracer:       cfg.tracer,
		logger:       logger,
	}
}

// Process runs one attempt for conv. It never returns an error and never
// panics: failures are logged, counted and reported through the Outcome.
// The guard marker for conv is released before Process returns.
func (p *Processor) Process(ctx context.Context, conv Conversation) (outcome Outcome) {
	messageID := ""
	if conv.LastMessage != nil {
		messageID = conv.LastMessage.MessageID()
	}
	log := p.logger.With("conversation_id", conv.ID, "message_id", messageID)

	if !p.guard.TryAcquire(conv.ID, messageID) {
		log.Debug("conversation already in flight")
		p.metrics.ObserveAttempt(string(OutcomeBusy))
		return OutcomeBusy
	}

	var span trace.Span
	defer func() {
		if r := recover(); r != nil {
			log.Error("conversation processing panicked", "panic", fmt.Sprint(r))
			outcome = OutcomePanic
			if span != nil {
				span.RecordError(fmt.Errorf("chat: panic: %v", r))
			}
		}
		p.guard.Release(conv.ID)
		p.metrics.DecInFlight()
		p.metrics.ObserveAttempt(string(outcome))
		if span != nil {
			span.SetAttributes(attribute.String("outcome", string(outcome)))
			span.End()
		}
	}()

	p.metrics.IncInFlight()
	ctx, span = p.tracer.Start(ctx, "chat.process",
		trace.WithAttributes(
			attribute.String("conversation_id", conv.ID),
			attribute.String("message_id", messageID),
		))

	outcome, err := p.run(ctx, conv, log)
	if err != nil {
		stage, ok := FailedStage(err)
		if !ok {
			stage = "unknown"
		}
		p.metrics.ObserveStageFailure(stage)
		span.RecordError(err)
		log.Error("conversation processing failed", "stage", stage, "error", err)
	}
	return outcome
}

func (p *Processor) run(ctx context.Context, conv Conversation, log *logging.Logger) (Outcome, error) {
	selfDID := p.platform.SelfDID()

	messages, err := p.fetchHistory(ctx, conv.ID)
	if err != nil {
		return OutcomeFailed, err
	}
	if len(messages) == 0 || !NeedsReply(messages[0], selfDID) {
		log.Info("conversation no longer awaiting a reply")
		return OutcomeStale, nil
	}

	other, _ := conv.OtherMember(selfDID)

	transcript, err := p.mapTranscript(messages, selfDID)
	if err != nil {
		return OutcomeFailed, err
	}
	log.Info("inbound message",
		"handle", other.Handle,
		"text", transcript[len(transcript)-1].Content,
	)

	output, err := p.generate(ctx, transcript)
	if err != nil {
		return OutcomeFailed, err
	}

	units, err := p.split(output)
	if err != nil {
		return OutcomeFailed, err
	}
	log.Info("reply generated", "handle", other.Handle, "reply_length", len(output), "units", len(units))
	if len(units) == 0 {
		return OutcomeEmpty, nil
	}

	if err := p.dispatch(ctx, conv.ID, units, log); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeDone, nil
}

func (p *Processor) fetchHistory(ctx context.Context, conversationID string) ([]Message, error) {
	ctx, span := p.tracer.Start(ctx, "chat.fetch_history")
	defer span.End()

	messages, err := p.platform.GetMessages(ctx, conversationID, p.historyLimit)
	if err != nil {
		span.RecordError(err)
		return nil, wrapStage(StageFetchHistory, err)
	}
	span.SetAttributes(attribute.Int("messages", len(messages)))
	return messages, nil
}

func (p *Processor) mapTranscript(messages []Message, selfDID string) (transcript []TranscriptEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrapStage(StageMap, fmt.Errorf("%v", r))
		}
	}()
	return BuildTranscript(messages, selfDID), nil
}

func (p *Processor) generate(ctx context.Context, transcript []TranscriptEntry) (string, error) {
	ctx, span := p.tracer.Start(ctx, "chat.generate", trace.WithAttributes(attribute.String("model", p.model)))
	defer span.End()

	req := llm.Request{
		Model:    p.model,
		Messages: make([]llm.ChatMessage, 0, len(transcript)),
	}
	for _, entry := range transcript {
		req.Messages = append(req.Messages, llm.ChatMessage{Role: entry.Role, Content: entry.Content})
	}

	start := time.Now()
	resp, err := p.llm.Complete(ctx, req)
	p.metrics.ObserveGenerationLatency(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return "", wrapStage(StageGenerate, err)
	}
	return resp.Text, nil
}

func (p *Processor) split(output string) (units []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = wrapStage(StageSplit, fmt.Errorf("%v", r))
		}
	}()
	return SplitReply(output), nil
}

// dispatch annotates and sends units in order. A failed send is logged and
// the next unit is still attempted; an annotation failure ends the attempt.
func (p *Processor) dispatch(ctx context.Context, conversationID string, units []string, log *logging.Logger) error {
	ctx, span := p.tracer.Start(ctx, "chat.dispatch", trace.WithAttributes(attribute.Int("units", len(units))))
	defer span.End()

	for i, unit := range units {
		rt, err := p.annotator.Annotate(ctx, unit)
		if err != nil {
			span.RecordError(err)
			return wrapStage(StageAnnotate, fmt.Errorf("unit %d: %w", i, err))
		}
		if err := p.platform.SendMessage(ctx, conversationID, rt); err != nil {
			span.RecordError(err)
			p.metrics.ObserveReplyUnit(false)
			log.Error("failed to send reply unit", "stage", StageDispatch, "unit", i, "error", wrapStage(StageDispatch, err))
			continue
		}
		p.metrics.ObserveReplyUnit(true)
	}
	return nil
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("chat: %s: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

func wrapStage(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

// FailedStage returns the processing stage recorded in err, if any.
func FailedStage(err error) (string, bool) {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage, true
	}
	return "", false
}
