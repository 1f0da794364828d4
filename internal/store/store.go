// ABOUTME: Store interface and data types for awaren-server persistence
// ABOUTME: Defines User, Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist or is not
// owned by the requesting user. The two cases are deliberately merged so that
// callers cannot distinguish "does not exist" from "belongs to someone else".
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when registering a user with an email that is already taken
var ErrDuplicateEmail = errors.New("email already registered")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User represents a registered account
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Conversation represents a chat conversation owned by a user
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

// Message represents a single message within a conversation
type Message struct {
	ID             string
	ConversationID string
	UserID         string
	Role           string // "user" or "assistant"
	Content        string
	CreatedAt      time.Time
}

// Store defines the interface for user, conversation, and message persistence.
// All conversation and message reads are scoped to the owning user.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id, userID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	UpdateConversationTitle(ctx context.Context, id, userID, title string) error
	DeleteConversation(ctx context.Context, id, userID string) error

	// Messages
	AppendExchange(ctx context.Context, userMsg, assistantMsg *Message) error
	ListMessages(ctx context.Context, conversationID, userID string) ([]*Message, error)
	ListRecentMessages(ctx context.Context, conversationID, userID string, limit int) ([]*Message, error)

	// Close releases any resources held by the store
	Close() error
}

// Opener produces a fresh store handle. Background jobs use this instead of
// sharing the request-scoped handle, so a job outliving the request never
// races a closed connection.
type Opener func() (Store, error)
