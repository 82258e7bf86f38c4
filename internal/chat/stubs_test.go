package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/skyreply/internal/llm"
)

// stubPlatform is an in-memory platform. histories are newest first.
type stubPlatform struct {
	mu          sync.Mutex
	convs       []Conversation
	listErr     error
	histories   map[string][]Message
	historyErrs map[string]error
	sendErrs    map[string]error // keyed by unit text
	sent        map[string][]RichText
	historyHook func(conversationID string)
}

func newStubPlatform() *stubPlatform {
	return &stubPlatform{
		histories:   map[string][]Message{},
		historyErrs: map[string]error{},
		sendErrs:    map[string]error{},
		sent:        map[string][]RichText{},
	}
}

func (p *stubPlatform) SelfDID() string { return selfDID }

func (p *stubPlatform) ListConversations(ctx context.Context) ([]Conversation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]Conversation(nil), p.convs...), nil
}

func (p *stubPlatform) GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if p.historyHook != nil {
		p.historyHook(conversationID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.historyErrs[conversationID]; err != nil {
		return nil, err
	}
	msgs := p.histories[conversationID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]Message(nil), msgs...), nil
}

func (p *stubPlatform) SendMessage(ctx context.Context, conversationID string, msg RichText) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sendErrs[msg.Text]; err != nil {
		return err
	}
	p.sent[conversationID] = append(p.sent[conversationID], msg)
	// Our own reply becomes the newest message, as on the real platform.
	p.histories[conversationID] = append([]Message{ContentMessage{ID: "reply-" + msg.Text, SenderDID: selfDID, Text: msg.Text}}, p.histories[conversationID]...)
	for i := range p.convs {
		if p.convs[i].ID == conversationID {
			p.convs[i].LastMessage = p.histories[conversationID][0]
		}
	}
	return nil
}

func (p *stubPlatform) sentTexts(conversationID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, rt := range p.sent[conversationID] {
		out = append(out, rt.Text)
	}
	return out
}

// receive appends an inbound message from the counterpart.
func (p *stubPlatform) receive(conversationID, messageID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := ContentMessage{ID: messageID, SenderDID: otherDID, Text: text}
	p.histories[conversationID] = append([]Message{msg}, p.histories[conversationID]...)
	for i := range p.convs {
		if p.convs[i].ID == conversationID {
			p.convs[i].LastMessage = msg
			return
		}
	}
	p.convs = append(p.convs, Conversation{
		ID:          conversationID,
		Members:     []Member{{DID: selfDID, Handle: "bot.test"}, {DID: otherDID, Handle: "alice.test"}},
		LastMessage: msg,
	})
}

func (p *stubPlatform) conversation(id string) Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.convs {
		if c.ID == id {
			return c
		}
	}
	return Conversation{ID: id}
}

// stubLLM returns reply(transcript) and records requests.
type stubLLM struct {
	mu       sync.Mutex
	reply    func(req llm.Request) (string, error)
	requests []llm.Request
	block    chan struct{}
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	block := s.block
	s.mu.Unlock()
	if block != nil {
		<-block
	}
	text, err := s.reply(req)
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: text}, nil
}

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func echoLLM() *stubLLM {
	return &stubLLM{reply: func(req llm.Request) (string, error) {
		last := req.Messages[len(req.Messages)-1]
		return "re: " + last.Content, nil
	}}
}

type failingAnnotator struct{}

func (failingAnnotator) Annotate(ctx context.Context, text string) (RichText, error) {
	return RichText{}, errors.New("resolve handle failed")
}

type upperAnnotator struct{}

func (upperAnnotator) Annotate(ctx context.Context, text string) (RichText, error) {
	return RichText{Text: strings.ToUpper(text)}, nil
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
