package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	lockTimeout    = 10 * time.Second
	lockRetryEvery = 100 * time.Millisecond
	fileExpiry     = 7 * 24 * time.Hour
)

// FileConversation is a conversation persisted as one JSON file, held under
// an advisory flock for its lifetime
type FileConversation struct {
	ConvID   string                                     `json:"id"`
	Messages map[string]*messages.StreamingMessageState `json:"messages"`
	Created  time.Time                                  `json:"created"`
	Updated  time.Time                                  `json:"updated"`

	path string
	lock *flock.Flock
	mu   sync.RWMutex
}

// FileConversationStore persists conversations under a base directory
type FileConversationStore struct {
	baseDir string
}

// NewFileConversationStore creates a file-backed store. An empty baseDir
// falls back to ~/.mipal-stream/conversations.
func NewFileConversationStore(baseDir string) (*FileConversationStore, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".mipal-stream", "conversations")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation directory: %w", err)
	}

	return &FileConversationStore{baseDir: baseDir}, nil
}

// validateConversationID rejects IDs that would be unsafe as filenames
func validateConversationID(id string) error {
	if id == "" {
		return fmt.Errorf("conversation id cannot be empty")
	}
	if strings.ContainsAny(id, "/\\:*?\"<>|") {
		return fmt.Errorf("conversation id contains invalid characters (/, \\, :, *, ?, \", <, >, |)")
	}
	if id == "." || id == ".." {
		return fmt.Errorf("conversation id cannot be '.' or '..'")
	}
	if strings.HasPrefix(id, ".") || strings.HasSuffix(id, ".") {
		return fmt.Errorf("conversation id cannot start or end with dots")
	}
	if strings.HasPrefix(id, " ") || strings.HasSuffix(id, " ") {
		return fmt.Errorf("conversation id cannot start or end with spaces")
	}
	for _, r := range id {
		if r < 32 || r == 127 {
			return fmt.Errorf("conversation id contains control characters")
		}
	}
	return nil
}

// Get retrieves or creates a conversation, taking the file lock
func (s *FileConversationStore) Get(id string) (Conversation, error) {
	if err := validateConversationID(id); err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", id, err)
	}

	path := filepath.Join(s.baseDir, id+".json")

	// Lock the conversation file itself (no separate .lock file)
	fileLock := flock.New(path)

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(ctx, lockRetryEvery)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire lock within %v", lockTimeout)
	}

	// Try to load an existing conversation
	if data, err := os.ReadFile(path); err == nil {
		var conv FileConversation
		if err := json.Unmarshal(data, &conv); err == nil {
			conv.path = path
			conv.lock = fileLock
			conv.Updated = time.Now()
			if conv.Messages == nil {
				conv.Messages = make(map[string]*messages.StreamingMessageState)
			}
			conv.save()
			return &conv, nil
		}
		zap.S().Debugw("store_file_unreadable", "path", path, "error", err)
	}

	conv := &FileConversation{
		ConvID:   id,
		Messages: make(map[string]*messages.StreamingMessageState),
		Created:  time.Now(),
		Updated:  time.Now(),
		path:     path,
		lock:     fileLock,
	}
	conv.save()
	return conv, nil
}

// Delete removes a conversation file. Open handles in other processes keep
// the content alive for them; new reads see it gone.
func (s *FileConversationStore) Delete(id string) {
	_ = os.Remove(filepath.Join(s.baseDir, id+".json"))
}

// Range iterates over all stored conversations
func (s *FileConversationStore) Range(f func(key, value any) bool) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		conv, err := s.Get(id)
		if err != nil {
			continue
		}
		keepGoing := f(id, conv)
		conv.Close()
		if !keepGoing {
			break
		}
	}
}

// Expire removes conversations untouched for over a week, skipping any that
// are locked by a live process
func (s *FileConversationStore) Expire() {
	now := time.Now()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(s.baseDir, entry.Name())
		fileLock := flock.New(path)
		locked, err := fileLock.TryLock()
		if err != nil || !locked {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			fileLock.Unlock()
			continue
		}

		var conv FileConversation
		if err := json.Unmarshal(data, &conv); err != nil {
			fileLock.Unlock()
			continue
		}

		if now.Sub(conv.Updated) > fileExpiry {
			os.Remove(path)
		}
		fileLock.Unlock()
	}
}

// List returns all stored conversation IDs
func (s *FileConversationStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Exists reports whether a conversation file is present
func (s *FileConversationStore) Exists(id string) bool {
	if validateConversationID(id) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.baseDir, id+".json"))
	return err == nil
}

// ID returns the conversation ID
func (c *FileConversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ConvID
}

// GetMessage returns a copy of one message's state
func (c *FileConversation) GetMessage(messageID string) (messages.StreamingMessageState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.Messages[messageID]
	if !ok {
		return messages.StreamingMessageState{}, false
	}
	return *state, true
}

// PutMessage stores a message state wholesale and persists
func (c *FileConversation) PutMessage(messageID string, state messages.StreamingMessageState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages[messageID] = &state
	c.Updated = time.Now()
	c.save()
}

// ApplyPatch shallow-merges a patch into the message and persists
func (c *FileConversation) ApplyPatch(messageID string, patch *messages.MessagePatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.Messages[messageID]
	if !ok {
		state = &messages.StreamingMessageState{}
		c.Messages[messageID] = state
	}
	patch.Apply(state)
	c.Updated = time.Now()
	c.save()
}

// SetMetaContent replaces the message's reasoning trace and persists
func (c *FileConversation) SetMetaContent(messageID string, metaContent []messages.ThinkingStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.Messages[messageID]
	if !ok {
		state = &messages.StreamingMessageState{}
		c.Messages[messageID] = state
	}
	state.MetaContent = metaContent
	c.Updated = time.Now()
	c.save()
}

// MessageIDs returns the message IDs in sorted order
func (c *FileConversation) MessageIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.Messages))
	for id := range c.Messages {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LastUsed returns the last update time
func (c *FileConversation) LastUsed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Updated
}

// Close persists and releases the file lock
func (c *FileConversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.save()
	if c.lock != nil {
		c.lock.Unlock()
		c.lock = nil
	}
}

// save writes the conversation to disk; callers hold the mutex
func (c *FileConversation) save() {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		zap.S().Debugw("store_file_marshal_failed", "id", c.ConvID, "error", err)
		return
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		zap.S().Debugw("store_file_write_failed", "path", c.path, "error", err)
	}
}
