package chat

import (
	"context"
	"time"
)

// Transcript roles understood by every LLM client.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Placeholder content for messages whose text cannot be shown to the model.
const (
	DeletedMessagePlaceholder = "Message deleted"
	UnknownMessagePlaceholder = "Unknown message type"
)

// Member is one participant of a conversation.
type Member struct {
	DID    string
	Handle string
}

// Conversation is a direct-message thread as last observed on the platform.
type Conversation struct {
	ID          string
	Members     []Member
	LastMessage Message // nil when the platform reports no last message
}

// OtherMember returns the first member that is not self.
func (c Conversation) OtherMember(selfDID string) (Member, bool) {
	for _, m := range c.Members {
		if m.DID != selfDID {
			return m, true
		}
	}
	return Member{}, false
}

// Message is one of ContentMessage, DeletedMessage or UnknownMessage.
// The set is closed: isMessage is unexported so no other package can add a variant.
type Message interface {
	MessageID() string
	isMessage()
}

// ContentMessage carries a sender and text.
type ContentMessage struct {
	ID        string
	SenderDID string
	Text      string
	SentAt    time.Time
}

// DeletedMessage is a tombstone; its content is gone.
type DeletedMessage struct {
	ID string
}

// UnknownMessage is a message whose type this agent does not recognise.
type UnknownMessage struct {
	ID   string
	Type string
}

func (m ContentMessage) MessageID() string { return m.ID }
func (m DeletedMessage) MessageID() string { return m.ID }
func (m UnknownMessage) MessageID() string { return m.ID }

func (ContentMessage) isMessage() {}
func (DeletedMessage) isMessage() {}
func (UnknownMessage) isMessage() {}

// TranscriptEntry is one role-tagged turn handed to the language model.
type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Facet annotates a byte range of a reply with a link, mention or tag.
type Facet struct {
	ByteStart int
	ByteEnd   int
	Features  []FacetFeature
}

// FacetFeature is the payload of a facet. Exactly one field is set.
type FacetFeature struct {
	URI string // link
	DID string // mention
	Tag string // hashtag, without '#'
}

// RichText is an annotated reply unit ready to send.
type RichText struct {
	Text   string
	Facets []Facet
}

// Platform is the messaging platform as seen by the poll loop.
type Platform interface {
	// SelfDID is the authenticated identity used for role attribution.
	SelfDID() string
	ListConversations(ctx context.Context) ([]Conversation, error)
	// GetMessages returns up to limit messages, newest first.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, conversationID string, msg RichText) error
}

// Annotator detects rich-text facets in outbound text.
type Annotator interface {
	Annotate(ctx context.Context, text string) (RichText, error)
}

// PlainAnnotator sends text without facets.
type PlainAnnotator struct{}

func (PlainAnnotator) Annotate(_ context.Context, text string) (RichText, error) {
	return RichText{Text: text}, nil
}
