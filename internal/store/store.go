// ABOUTME: Store interface and data types for threadwell persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conversation name is already taken for an owner
var ErrConflict = errors.New("conversation name already exists")

// Conversation represents an owned, named message log
type Conversation struct {
	ID        string
	OwnerID   string
	Name      string
	PinOrder  *int // nil = unpinned; lower values sort earlier among pinned
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a single entry in a conversation.
// IDs are unique within their conversation and stable across its lifetime.
type Message struct {
	ID               string
	ConversationID   string
	Role             string // "user" or an agent/system name
	Content          string
	CreatedAt        time.Time
	UpdatedAt        *time.Time // nil until the first content mutation
	UpdatedBy        *string
	FeedbackReceived bool
}

// ConversationSummary is the (name, id) pair returned by ListConversations
type ConversationSummary struct {
	ID   string
	Name string
}

// ConversationDetail carries the metadata returned by ListConversationsDetailed
type ConversationDetail struct {
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, initial []*Message) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByName(ctx context.Context, ownerID, name string) (*Conversation, error)
	RenameConversation(ctx context.Context, id, newName string) error
	SetPinOrder(ctx context.Context, id string, pinOrder *int) error
	ListConversations(ctx context.Context, ownerID string) ([]ConversationSummary, error)
	ListConversationsDetailed(ctx context.Context, ownerID string) (map[string]ConversationDetail, error)
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	AppendMessage(ctx context.Context, conversationID, role, content string) (string, error)
	ReadMessages(ctx context.Context, conversationID string, limit, page int) ([]*Message, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (*Message, error)
	UpdateMessageByID(ctx context.Context, conversationID, messageID, newContent, updatedBy string) error
	UpdateMessageByContent(ctx context.Context, conversationID, oldContent, newContent, updatedBy string) (string, error)
	DeleteMessageByID(ctx context.Context, conversationID, messageID string) error
	DeleteMessageByContent(ctx context.Context, conversationID, content string) (string, error)
	SetMessageFeedback(ctx context.Context, conversationID, messageID string, received bool) error

	// Close releases any resources held by the store
	Close() error
}
