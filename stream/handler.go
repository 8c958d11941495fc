// Package stream assembles streamed assistant messages from the backend's
// SSE chat events. One MessageStreamHandler owns one in-flight message: the
// transport feeds it raw lines in arrival order, and it publishes partial
// state patches to an injected sink after every meaningful update so the
// consumer reflects progress continuously.
package stream

import (
	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
	"go.uber.org/zap"
)

// MessageStreamHandler folds SSE frames into one message's state. It is a
// pure push producer: no network, disk, or timer side effects, no
// subscription model, no suspension points. Create one handler per in-flight
// message; instances share nothing.
type MessageStreamHandler struct {
	conversationID string
	messageID      string
	sink           MessageSink
	callbacks      Callbacks
	state          *StreamState
}

// NewMessageStreamHandler creates a handler for one message. The sink is
// required; callbacks may be zero.
func NewMessageStreamHandler(conversationID, messageID string, sink MessageSink, callbacks Callbacks) *MessageStreamHandler {
	return &MessageStreamHandler{
		conversationID: conversationID,
		messageID:      messageID,
		sink:           sink,
		callbacks:      callbacks,
		state:          NewStreamState(),
	}
}

// State exposes the accumulator for snapshots (status lines, persistence)
func (h *MessageStreamHandler) State() *StreamState {
	return h.state
}

// FeedLine processes one line of the transport. Non-data lines and the
// [DONE] sentinel are ignored; a malformed JSON payload is logged and
// dropped without affecting later frames. FeedLine never panics and never
// returns an error to the read loop.
func (h *MessageStreamHandler) FeedLine(raw string) {
	event, err := messages.ParseEventLine(raw)
	if err != nil {
		zap.S().Debugw("stream_frame_malformed",
			"message_id", h.messageID,
			"line", raw,
			"error", err,
		)
		return
	}
	if event == nil {
		return
	}
	h.dispatch(event)
}

func (h *MessageStreamHandler) dispatch(event *messages.StreamEvent) {
	switch event.Type {
	case messages.EventTypeMessageStart:
		if h.callbacks.OnStreamStart != nil {
			h.callbacks.OnStreamStart(h.messageID)
		}

	case messages.EventTypeContentBlockStart:
		// nothing to accumulate until the first delta

	case messages.EventTypeContentBlockDelta:
		h.onContentDelta(event)

	case messages.EventTypeContentBlockStop:
		h.state.StopStreaming()
		h.publish(&messages.MessagePatch{
			Content:     messages.Str(h.state.Content()),
			IsStreaming: messages.Bool(false),
			IsThinking:  messages.Bool(h.state.IsThinking()),
		})

	case messages.EventTypeMetaContent:
		h.onMetaContent(event)

	case messages.EventTypeMetaContentBlockStop:
		h.flushMetaContent()

	case messages.EventTypeArtifactBlockStart:
		if len(event.Artifacts) == 0 {
			return
		}
		h.state.SetArtifacts(event.Artifacts)
		h.flushArtifacts()

	case messages.EventTypeArtifactBlockStop:
		h.flushArtifacts()

	case messages.EventTypeSuggestionBlockStart:
		if len(event.Suggestions) == 0 {
			return
		}
		h.state.SetSuggestions(event.Suggestions)
		h.flushSuggestions()

	case messages.EventTypeSuggestionBlockStop:
		h.flushSuggestions()

	case messages.EventTypeMessageDelta:
		h.onMessageDelta(event)

	case messages.EventTypeMessageLimit:
		// reserved by the backend

	case messages.EventTypeMessageStop:
		h.onMessageStop()

	default:
		// unrecognized types are forward compatibility, not errors
		zap.S().Debugw("stream_event_ignored",
			"message_id", h.messageID,
			"type", event.Type,
		)
	}
}

func (h *MessageStreamHandler) onContentDelta(event *messages.StreamEvent) {
	if event.Delta == nil {
		zap.S().Debugw("stream_delta_missing", "message_id", h.messageID)
		return
	}

	content := h.state.AppendContent(event.Delta.Text)

	if toggled, inBlock, language := h.state.TrackFences(event.Delta.Text); toggled {
		if h.callbacks.OnCodeBlock != nil {
			h.callbacks.OnCodeBlock(language, inBlock)
		}
	}

	h.publish(&messages.MessagePatch{
		Content:     messages.Str(content),
		IsStreaming: messages.Bool(true),
		IsThinking:  messages.Bool(h.state.IsThinking()),
	})
}

func (h *MessageStreamHandler) onMetaContent(event *messages.StreamEvent) {
	if event.MetaContent == nil {
		zap.S().Debugw("stream_meta_content_missing", "message_id", h.messageID)
		return
	}

	metaContent := h.state.UpsertStep(*event.MetaContent)
	h.sink.UpdateMetaContent(h.messageID, metaContent)
	h.publish(&messages.MessagePatch{
		MetaContent: metaContent,
		IsStreaming: messages.Bool(true),
		IsThinking:  messages.Bool(messages.AnyInProgress(metaContent)),
	})
}

// flushMetaContent re-publishes the current trace without new data
func (h *MessageStreamHandler) flushMetaContent() {
	metaContent := h.state.MetaContent()
	h.sink.UpdateMetaContent(h.messageID, metaContent)
	h.publish(&messages.MessagePatch{
		MetaContent: metaContent,
		IsStreaming: messages.Bool(h.state.IsStreaming()),
		IsThinking:  messages.Bool(messages.AnyInProgress(metaContent)),
	})
}

func (h *MessageStreamHandler) flushArtifacts() {
	artifacts := h.state.Artifacts()
	if len(artifacts) == 0 {
		return
	}
	h.publish(&messages.MessagePatch{
		Artifacts:   artifacts,
		MetaContent: h.state.MetaContent(),
		IsStreaming: messages.Bool(true),
		IsThinking:  messages.Bool(h.state.IsThinking()),
	})
}

func (h *MessageStreamHandler) flushSuggestions() {
	suggestions := h.state.Suggestions()
	if len(suggestions) == 0 {
		return
	}
	h.publish(&messages.MessagePatch{
		Suggestions: suggestions,
	})
}

func (h *MessageStreamHandler) onMessageDelta(event *messages.StreamEvent) {
	if event.Delta == nil || event.Delta.StopReason == "" {
		return
	}
	h.state.SetStopReason(event.Delta.StopReason)
	h.publish(&messages.MessagePatch{
		IsStreaming: messages.Bool(false),
		IsThinking:  messages.Bool(false),
		StopReason:  messages.Str(event.Delta.StopReason),
	})
}

// onMessageStop is the sole terminal transition: all remaining steps are
// forced to completed (errors stay errors) and streaming flags drop
func (h *MessageStreamHandler) onMessageStop() {
	h.state.StopStreaming()
	metaContent := h.state.CompleteMeta()
	h.sink.UpdateMetaContent(h.messageID, metaContent)
	h.publish(&messages.MessagePatch{
		IsStreaming: messages.Bool(false),
		IsThinking:  messages.Bool(false),
		MetaContent: metaContent,
	})
	h.logCompletion()
}

func (h *MessageStreamHandler) publish(patch *messages.MessagePatch) {
	h.sink.UpdateMessage(h.conversationID, h.messageID, patch)
}

func (h *MessageStreamHandler) logCompletion() {
	snapshot := h.state.Snapshot()

	contentPreview := snapshot.Content
	if len(contentPreview) > 200 {
		contentPreview = contentPreview[:200] + "..."
	}

	fields := []any{
		"message_id", h.messageID,
		"content_preview", contentPreview,
		"content_length", len(snapshot.Content),
	}
	if len(snapshot.MetaContent) > 0 {
		fields = append(fields, "step_count", len(snapshot.MetaContent))
	}
	if len(snapshot.Artifacts) > 0 {
		fields = append(fields, "artifact_count", len(snapshot.Artifacts))
	}
	if snapshot.StopReason != "" {
		fields = append(fields, "stop_reason", snapshot.StopReason)
	}

	zap.S().Debugw("stream_completed", fields...)
}
