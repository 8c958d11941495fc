package messages

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StreamEventType discriminates the JSON envelopes the backend sends on the
// chat SSE stream
type StreamEventType string

const (
	// EventTypeMessageStart opens a streamed assistant message
	EventTypeMessageStart StreamEventType = "message_start"
	// EventTypeContentBlockStart opens a text content block
	EventTypeContentBlockStart StreamEventType = "content_block_start"
	// EventTypeContentBlockDelta carries an incremental text chunk
	EventTypeContentBlockDelta StreamEventType = "content_block_delta"
	// EventTypeContentBlockStop closes a text content block
	EventTypeContentBlockStop StreamEventType = "content_block_stop"
	// EventTypeMetaContent carries one reasoning-trace step update
	EventTypeMetaContent StreamEventType = "meta_content"
	// EventTypeMetaContentBlockStop flushes the reasoning trace
	EventTypeMetaContentBlockStop StreamEventType = "meta_content_block_stop"
	// EventTypeArtifactBlockStart replaces the attached artifact list
	EventTypeArtifactBlockStart StreamEventType = "artifact_block_start"
	// EventTypeArtifactBlockStop flushes the artifact list
	EventTypeArtifactBlockStop StreamEventType = "artifact_block_stop"
	// EventTypeSuggestionBlockStart replaces the follow-up suggestion list
	EventTypeSuggestionBlockStart StreamEventType = "suggestion_block_start"
	// EventTypeSuggestionBlockStop flushes the suggestion list
	EventTypeSuggestionBlockStop StreamEventType = "suggestion_block_stop"
	// EventTypeMessageDelta carries message-level changes such as stop_reason
	EventTypeMessageDelta StreamEventType = "message_delta"
	// EventTypeMessageLimit is reserved by the backend
	EventTypeMessageLimit StreamEventType = "message_limit"
	// EventTypeMessageStop terminates the streamed message
	EventTypeMessageStop StreamEventType = "message_stop"
)

// EventDelta is the delta payload of content_block_delta and message_delta
type EventDelta struct {
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// StreamEvent is the decoded JSON envelope of one SSE frame. Only the fields
// relevant to Type are populated; unknown envelope fields are dropped by the
// decoder so new backend fields never break older clients.
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	Index int             `json:"index,omitempty"`
	Delta *EventDelta     `json:"delta,omitempty"`

	// meta_content payload
	MetaContent *ThinkingStep `json:"meta_content,omitempty"`

	// artifact_block_start / suggestion_block_start payloads
	Artifacts   []Artifact   `json:"artifacts,omitempty"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}

// SSE framing constants of the backend chat stream
const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// ParseEventLine decodes one transport line into a StreamEvent.
//
// Lines that carry no event return (nil, nil): anything without the
// "data: " prefix (SSE comments, blank keep-alives, event-name lines) and
// the "[DONE]" sentinel. The sentinel is redundant with message_stop but
// both terminators must be tolerated. A malformed JSON payload returns an
// error so the caller can log and skip the frame.
func ParseEventLine(line string) (*StreamEvent, error) {
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, nil
	}
	payload := strings.TrimPrefix(line, dataPrefix)
	if strings.TrimSpace(payload) == doneSentinel {
		return nil, nil
	}

	var event StreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("decode stream event: %w", err)
	}
	return &event, nil
}
