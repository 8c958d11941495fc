package store

import (
	"slices"
	"sync"
	"time"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
	"go.uber.org/zap"
)

// LocalConversation is an in-memory conversation
type LocalConversation struct {
	id   string
	msgs map[string]*messages.StreamingMessageState
	last time.Time
	mu   sync.RWMutex
}

// SyncMapConversationStore is a thread-safe in-memory conversation store.
// It implements stream.MessageSink, so a MessageStreamHandler can publish
// straight into it.
type SyncMapConversationStore struct {
	sync.Map
	config *Config

	// byMessage routes the dedicated meta-content channel, which addresses
	// messages without a conversation ID
	byMessage sync.Map // messageID -> *LocalConversation
}

// NewSyncMapConversationStore creates a new in-memory store
func NewSyncMapConversationStore(config *Config) *SyncMapConversationStore {
	config = MergeDefaults(config, DefaultConfig())

	store := &SyncMapConversationStore{config: config}

	if config.TTL > 0 {
		go func() {
			ticker := time.NewTicker(config.TTL)
			defer ticker.Stop()
			for range ticker.C {
				store.Expire()
			}
		}()
	}

	return store
}

// Get retrieves or creates a conversation
func (s *SyncMapConversationStore) Get(id string) (Conversation, error) {
	return s.get(id), nil
}

func (s *SyncMapConversationStore) get(id string) *LocalConversation {
	if value, ok := s.Load(id); ok {
		conv := value.(*LocalConversation)
		conv.mu.Lock()
		conv.last = time.Now()
		conv.mu.Unlock()
		return conv
	}

	conv := &LocalConversation{
		id:   id,
		msgs: make(map[string]*messages.StreamingMessageState),
		last: time.Now(),
	}
	actual, _ := s.LoadOrStore(id, conv)
	return actual.(*LocalConversation)
}

// Bind pre-registers a message with its conversation so meta-content
// updates can be routed before the first general patch arrives
func (s *SyncMapConversationStore) Bind(conversationID, messageID string) {
	s.byMessage.Store(messageID, s.get(conversationID))
}

// UpdateMessage applies a partial patch to the addressed message,
// implementing the general channel of stream.MessageSink
func (s *SyncMapConversationStore) UpdateMessage(conversationID, messageID string, patch *messages.MessagePatch) {
	conv := s.get(conversationID)
	s.byMessage.Store(messageID, conv)
	conv.ApplyPatch(messageID, patch)
}

// UpdateMetaContent replaces the reasoning trace of the addressed message,
// implementing the dedicated channel of stream.MessageSink
func (s *SyncMapConversationStore) UpdateMetaContent(messageID string, metaContent []messages.ThinkingStep) {
	value, ok := s.byMessage.Load(messageID)
	if !ok {
		zap.S().Debugw("store_meta_update_unrouted", "message_id", messageID)
		return
	}
	value.(*LocalConversation).SetMetaContent(messageID, metaContent)
}

// Delete removes a conversation
func (s *SyncMapConversationStore) Delete(id string) {
	if value, ok := s.Load(id); ok {
		conv := value.(*LocalConversation)
		for _, messageID := range conv.MessageIDs() {
			s.byMessage.Delete(messageID)
		}
	}
	s.Map.Delete(id)
}

// Range iterates over all conversations
func (s *SyncMapConversationStore) Range(f func(key, value any) bool) {
	s.Map.Range(f)
}

// Expire removes conversations idle longer than the configured TTL
func (s *SyncMapConversationStore) Expire() {
	if s.config.TTL <= 0 {
		return
	}
	s.Range(func(key, value any) bool {
		conv := value.(*LocalConversation)
		conv.mu.RLock()
		last := conv.last
		conv.mu.RUnlock()

		if time.Since(last) > s.config.TTL {
			s.Delete(key.(string))
		}
		return true
	})
}

// List returns all conversation IDs
func (s *SyncMapConversationStore) List() ([]string, error) {
	var ids []string
	s.Range(func(key, value any) bool {
		ids = append(ids, key.(string))
		return true
	})
	slices.Sort(ids)
	return ids, nil
}

// Exists reports whether a conversation is present
func (s *SyncMapConversationStore) Exists(id string) bool {
	_, ok := s.Load(id)
	return ok
}

// ID returns the conversation ID
func (c *LocalConversation) ID() string {
	return c.id
}

// GetMessage returns a copy of one message's state
func (c *LocalConversation) GetMessage(messageID string) (messages.StreamingMessageState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.msgs[messageID]
	if !ok {
		return messages.StreamingMessageState{}, false
	}
	return *state, true
}

// PutMessage stores a message state wholesale
func (c *LocalConversation) PutMessage(messageID string, state messages.StreamingMessageState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs[messageID] = &state
	c.last = time.Now()
}

// ApplyPatch shallow-merges a patch into the message, creating the state on
// first contact
func (c *LocalConversation) ApplyPatch(messageID string, patch *messages.MessagePatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.msgs[messageID]
	if !ok {
		state = &messages.StreamingMessageState{}
		c.msgs[messageID] = state
	}
	patch.Apply(state)
	c.last = time.Now()
}

// SetMetaContent replaces the message's reasoning trace
func (c *LocalConversation) SetMetaContent(messageID string, metaContent []messages.ThinkingStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.msgs[messageID]
	if !ok {
		state = &messages.StreamingMessageState{}
		c.msgs[messageID] = state
	}
	state.MetaContent = metaContent
	c.last = time.Now()
}

// MessageIDs returns the message IDs in sorted order
func (c *LocalConversation) MessageIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.msgs))
	for id := range c.msgs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LastUsed returns the time of the last mutation or access
func (c *LocalConversation) LastUsed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Close is a no-op for in-memory conversations
func (c *LocalConversation) Close() {}
