package bluesky

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wolfman30/skyreply/internal/chat"
)

// Platform adapts Client to the chat package's Platform and Annotator ports.
type Platform struct {
	client *Client
	logger *slog.Logger
}

func NewPlatform(client *Client, logger *slog.Logger) *Platform {
	if client == nil {
		panic("bluesky: client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{client: client, logger: logger}
}

func (p *Platform) SelfDID() string {
	return p.client.DID()
}

// ListConversations returns the first page of conversations.
func (p *Platform) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	out, err := p.client.ListConvos(ctx, 0, "")
	if err != nil {
		return nil, fmt.Errorf("bluesky: list convos: %w", err)
	}
	convs := make([]chat.Conversation, 0, len(out.Convos))
	for _, cv := range out.Convos {
		conv := chat.Conversation{
			ID:      cv.ID,
			Members: make([]chat.Member, 0, len(cv.Members)),
		}
		for _, m := range cv.Members {
			conv.Members = append(conv.Members, chat.Member{DID: m.DID, Handle: m.Handle})
		}
		if cv.LastMessage != nil {
			conv.LastMessage = toChatMessage(*cv.LastMessage)
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

func (p *Platform) GetMessages(ctx context.Context, conversationID string, limit int) ([]chat.Message, error) {
	out, err := p.client.GetMessages(ctx, conversationID, limit, "")
	if err != nil {
		return nil, fmt.Errorf("bluesky: get messages: %w", err)
	}
	msgs := make([]chat.Message, 0, len(out.Messages))
	for _, u := range out.Messages {
		msgs = append(msgs, toChatMessage(u))
	}
	return msgs, nil
}

func (p *Platform) SendMessage(ctx context.Context, conversationID string, msg chat.RichText) error {
	input := MessageInput{Text: msg.Text}
	for _, f := range msg.Facets {
		wire := Facet{Index: ByteSlice{ByteStart: f.ByteStart, ByteEnd: f.ByteEnd}}
		for _, feat := range f.Features {
			switch {
			case feat.DID != "":
				wire.Features = append(wire.Features, FacetFeature{Type: TypeFacetMention, DID: feat.DID})
			case feat.URI != "":
				wire.Features = append(wire.Features, FacetFeature{Type: TypeFacetLink, URI: feat.URI})
			case feat.Tag != "":
				wire.Features = append(wire.Features, FacetFeature{Type: TypeFacetTag, Tag: feat.Tag})
			}
		}
		if len(wire.Features) > 0 {
			input.Facets = append(input.Facets, wire)
		}
	}
	if _, err := p.client.SendMessage(ctx, conversationID, input); err != nil {
		return fmt.Errorf("bluesky: send message: %w", err)
	}
	return nil
}

// Annotate detects facets in text. Mentions whose handle cannot be
// resolved are left as plain text.
func (p *Platform) Annotate(ctx context.Context, text string) (chat.RichText, error) {
	rt := chat.RichText{Text: text}
	for _, d := range Detect(text) {
		var feature chat.FacetFeature
		switch {
		case d.Mention != "":
			did, err := p.client.ResolveHandle(ctx, d.Mention)
			if err != nil {
				if ctx.Err() != nil {
					return chat.RichText{}, ctx.Err()
				}
				p.logger.Debug("could not resolve mention", "handle", d.Mention, "error", err)
				continue
			}
			feature.DID = did
		case d.Link != "":
			feature.URI = d.Link
		case d.Tag != "":
			feature.Tag = d.Tag
		default:
			continue
		}
		rt.Facets = append(rt.Facets, chat.Facet{
			ByteStart: d.ByteStart,
			ByteEnd:   d.ByteEnd,
			Features:  []chat.FacetFeature{feature},
		})
	}
	return rt, nil
}

func toChatMessage(u MessageUnion) chat.Message {
	switch {
	case u.Message != nil:
		return chat.ContentMessage{
			ID:        u.Message.ID,
			SenderDID: u.Message.Sender.DID,
			Text:      u.Message.Text,
			SentAt:    u.Message.SentAt,
		}
	case u.Deleted != nil:
		return chat.DeletedMessage{ID: u.Deleted.ID}
	default:
		return chat.UnknownMessage{ID: u.ID, Type: u.Type}
	}
}
