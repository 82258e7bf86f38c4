package bluesky

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lexicon $type values for chat message views and rich-text facet features.
const (
	TypeMessageView        = "chat.bsky.convo.defs#messageView"
	TypeDeletedMessageView = "chat.bsky.convo.defs#deletedMessageView"

	TypeFacetMention = "app.bsky.richtext.facet#mention"
	TypeFacetLink    = "app.bsky.richtext.facet#link"
	TypeFacetTag     = "app.bsky.richtext.facet#tag"
)

// ProfileViewBasic is a conversation member.
type ProfileViewBasic struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// ConvoView is a conversation as returned by listConvos.
type ConvoView struct {
	ID          string             `json:"id"`
	Rev         string             `json:"rev"`
	Members     []ProfileViewBasic `json:"members"`
	LastMessage *MessageUnion      `json:"lastMessage,omitempty"`
	Muted       bool               `json:"muted"`
	UnreadCount int                `json:"unreadCount"`
}

type ListConvosOutput struct {
	Cursor string      `json:"cursor,omitempty"`
	Convos []ConvoView `json:"convos"`
}

type GetMessagesOutput struct {
	Cursor   string         `json:"cursor,omitempty"`
	Messages []MessageUnion `json:"messages"`
}

// MessageSender identifies who sent a message.
type MessageSender struct {
	DID string `json:"did"`
}

// MessageView is a message with content.
type MessageView struct {
	ID     string        `json:"id"`
	Rev    string        `json:"rev"`
	Text   string        `json:"text"`
	Facets []Facet       `json:"facets,omitempty"`
	Sender MessageSender `json:"sender"`
	SentAt time.Time     `json:"sentAt"`
}

// DeletedMessageView is a tombstone.
type DeletedMessageView struct {
	ID     string        `json:"id"`
	Rev    string        `json:"rev"`
	Sender MessageSender `json:"sender"`
	SentAt time.Time     `json:"sentAt"`
}

// MessageUnion holds one of the message view variants, discriminated by $type.
// Exactly one of Message and Deleted is set for known types; otherwise only Type and ID are.
type MessageUnion struct {
	Type    string
	ID      string
	Message *MessageView
	Deleted *DeletedMessageView
}

func (u *MessageUnion) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"$type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("bluesky: decode message union: %w", err)
	}
	u.Type = head.Type
	u.ID = head.ID

	switch head.Type {
	case TypeMessageView:
		var m MessageView
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("bluesky: decode message view: %w", err)
		}
		u.Message = &m
	case TypeDeletedMessageView:
		var d DeletedMessageView
		if err := json.Unmarshal(data, &d); err != nil {
			return fmt.Errorf("bluesky: decode deleted message view: %w", err)
		}
		u.Deleted = &d
	}
	return nil
}

// MessageInput is the body of an outbound chat message.
type MessageInput struct {
	Text   string  `json:"text"`
	Facets []Facet `json:"facets,omitempty"`
}

// Facet is the app.bsky.richtext.facet wire form.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// ByteSlice is a half-open UTF-8 byte range.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is a mention, link or tag feature, discriminated by $type.
type FacetFeature struct {
	Type string `json:"$type"`
	DID  string `json:"did,omitempty"`
	URI  string `json:"uri,omitempty"`
	Tag  string `json:"tag,omitempty"`
}
