package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a citation attached to an assistant answer
type Source struct {
	EntityID    string `json:"entity_id"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Description string `json:"description"`
	SourceURLs  string `json:"source_urls"`
}

// Message represents one entry of a conversation
type Message struct {
	ID              string    `json:"id"`                       // Unique message ID (UUID)
	ConversationID  string    `json:"conversationId,omitempty"` // Conversation the message belongs to
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	Sources         []Source  `json:"sources,omitempty"`
	SourcesExpanded bool      `json:"sourcesExpanded"` // Only field that changes after creation
	CreatedAt       time.Time `json:"createdAt"`
}

// NewUserMessage creates a user-authored message.
func NewUserMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAssistantMessage creates an assistant-authored message. sources may be nil.
func NewAssistantMessage(content string, sources []Source) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
}

// HasSources reports whether the message carries at least one source.
func (m Message) HasSources() bool {
	return len(m.Sources) > 0
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Sources != nil {
		src := make([]Source, len(m.Sources))
		copy(src, m.Sources)
		m.Sources = src
	}
	return m
}
