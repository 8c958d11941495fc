// Package store holds assembled message state per conversation. It is the
// assembler's "UI store" collaborator: patches arrive as shallow merges and
// fields absent from a patch are preserved.
package store

import (
	"time"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
)

// Conversation is one conversation's message states
type Conversation interface {
	ID() string
	GetMessage(messageID string) (messages.StreamingMessageState, bool)
	PutMessage(messageID string, state messages.StreamingMessageState)
	ApplyPatch(messageID string, patch *messages.MessagePatch)
	SetMetaContent(messageID string, metaContent []messages.ThinkingStep)
	MessageIDs() []string
	LastUsed() time.Time
	Close() // release resources (file locks, etc.)
}

// ConversationStore manages multiple conversations
type ConversationStore interface {
	Get(id string) (Conversation, error)
	Delete(id string)
	Range(func(key, value any) bool)
	Expire()

	List() ([]string, error)
	Exists(id string) bool
}
