package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/skyreply/internal/llm"
	"github.com/wolfman30/skyreply/pkg/logging"
)

type recordingProcessor struct {
	mu    sync.Mutex
	seen  []string
	ctxs  []context.Context
	panic bool
}

func (r *recordingProcessor) Process(ctx context.Context, conv Conversation) Outcome {
	r.mu.Lock()
	r.seen = append(r.seen, conv.ID)
	r.ctxs = append(r.ctxs, ctx)
	shouldPanic := r.panic
	r.mu.Unlock()
	if shouldPanic {
		panic("processor exploded")
	}
	return OutcomeDone
}

func (r *recordingProcessor) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestSchedulerTickFiltersEligibleConversations(t *testing.T) {
	platform := newStubPlatform()
	platform.convs = []Conversation{
		{ID: "from-other", LastMessage: ContentMessage{ID: "m1", SenderDID: otherDID, Text: "yo"}},
		{ID: "from-self", LastMessage: ContentMessage{ID: "m2", SenderDID: selfDID, Text: "hi"}},
		{ID: "tombstone", LastMessage: DeletedMessage{ID: "m3"}},
		{ID: "unknown", LastMessage: UnknownMessage{ID: "m4"}},
		{ID: "empty"},
	}
	proc := &recordingProcessor{}
	s := NewScheduler(platform, proc, NewGuard(), logging.Default())

	spawned := s.Tick(context.Background())
	s.Wait()

	assert.Equal(t, 1, spawned)
	assert.Equal(t, []string{"from-other"}, proc.ids())
}

func TestSchedulerTickSkipsHeldConversations(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("c1", "m1", "yo")
	platform.receive("c2", "m2", "hey")
	guard := NewGuard()
	require.True(t, guard.TryAcquire("c1", "m1"))
	proc := &recordingProcessor{}
	s := NewScheduler(platform, proc, guard, logging.Default())

	spawned := s.Tick(context.Background())
	s.Wait()

	assert.Equal(t, 1, spawned)
	assert.Equal(t, []string{"c2"}, proc.ids())
}

func TestSchedulerTickListingFailure(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("c1", "m1", "yo")
	platform.listErr = errors.New("unauthorized")
	guard := NewGuard()
	proc := &recordingProcessor{}
	s := NewScheduler(platform, proc, guard, logging.Default())

	assert.Equal(t, 0, s.Tick(context.Background()))
	s.Wait()
	assert.Empty(t, proc.ids())
	assert.Equal(t, 0, guard.Len())

	platform.mu.Lock()
	platform.listErr = nil
	platform.mu.Unlock()
	assert.Equal(t, 1, s.Tick(context.Background()))
	s.Wait()
}

func TestSchedulerAttemptsSurviveCancellation(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("c1", "m1", "yo")
	proc := &recordingProcessor{}
	s := NewScheduler(platform, proc, NewGuard(), logging.Default())

	ctx, cancel := context.WithCancel(context.Background())
	s.Tick(ctx)
	cancel()
	s.Wait()

	require.Len(t, proc.ctxs, 1)
	assert.NoError(t, proc.ctxs[0].Err(), "attempt context must not inherit scheduler cancellation")
}

func TestSchedulerRecoversProcessorPanic(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("c1", "m1", "yo")
	proc := &recordingProcessor{panic: true}
	s := NewScheduler(platform, proc, NewGuard(), logging.Default())

	require.NotPanics(t, func() {
		s.Tick(context.Background())
		s.Wait()
	})
}

func TestSchedulerFaultIsolation(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("a", "ma", "hello from a")
	platform.receive("b", "mb", "hello from b")
	platform.historyErrs["a"] = errors.New("connection reset")
	guard := NewGuard()
	proc := NewProcessor(platform, echoLLM(), guard, "yapper", logging.Default())
	s := NewScheduler(platform, proc, guard, logging.Default())

	s.Tick(context.Background())
	s.Wait()

	assert.Empty(t, platform.sentTexts("a"))
	assert.Equal(t, []string{"re: hello from b"}, platform.sentTexts("b"))
	_, held := guard.Holding("a")
	assert.False(t, held, "failed conversation must be released")
}

func TestSchedulerDoesNotDuplicateInFlightWork(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("c1", "m1", "yo")
	client := echoLLM()
	client.block = make(chan struct{})
	guard := NewGuard()
	proc := NewProcessor(platform, client, guard, "yapper", logging.Default())
	s := NewScheduler(platform, proc, guard, logging.Default())

	// Tick 1 starts answering M1; generation is slow.
	s.Tick(context.Background())
	waitFor(func() bool { return client.calls() == 1 }, time.Second, t)

	// Tick 2 sees M1 still unanswered but in flight.
	assert.Equal(t, 0, s.Tick(context.Background()))

	close(client.block)
	s.Wait()
	assert.Equal(t, []string{"re: yo"}, platform.sentTexts("c1"))
	assert.Equal(t, 1, client.calls())

	// M1 is answered, so the next tick is idle.
	assert.Equal(t, 0, s.Tick(context.Background()))

	// M2 arrives and a later tick answers it.
	platform.receive("c1", "m2", "still there?")
	assert.Equal(t, 1, s.Tick(context.Background()))
	s.Wait()
	assert.Equal(t, []string{"re: yo", "re: still there?"}, platform.sentTexts("c1"))
	require.Equal(t, 2, client.calls())
	assert.Equal(t, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: "yo"},
		{Role: llm.RoleAssistant, Content: "re: yo"},
		{Role: llm.RoleUser, Content: "still there?"},
	}, client.requests[1].Messages)
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	platform := newStubPlatform()
	platform.receive("c1", "m1", "yo")
	proc := &recordingProcessor{}
	s := NewScheduler(platform, proc, NewGuard(), logging.Default(), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(func() bool { return len(proc.ids()) >= 2 }, time.Second, t)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}
	assert.True(t, s.WaitTimeout(time.Second))
}
