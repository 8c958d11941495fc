package stream

import "github.com/Fastlanedevs/mipal-analytics-sub002/messages"

// MessageSink receives the handler's published updates. Implementations
// shallow-merge each patch into the addressed message's state, preserving
// fields the patch does not carry.
//
// UpdateMetaContent is a dedicated channel for reasoning-trace changes so a
// consumer can follow the trace without subscribing to the transcript.
type MessageSink interface {
	UpdateMessage(conversationID, messageID string, patch *messages.MessagePatch)
	UpdateMetaContent(messageID string, metaContent []messages.ThinkingStep)
}

// Callbacks are optional hooks invoked synchronously from FeedLine. Nil
// functions are skipped.
type Callbacks struct {
	// OnStreamStart fires on message_start, before any content arrives
	OnStreamStart func(messageID string)

	// OnCodeBlock fires whenever a content delta toggles a markdown code
	// fence, with the captured language tag while inside one
	OnCodeBlock func(language string, inCodeBlock bool)
}

// MultiSink fans every update out to each sink in order
func MultiSink(sinks ...MessageSink) MessageSink {
	return multiSink(sinks)
}

type multiSink []MessageSink

func (m multiSink) UpdateMessage(conversationID, messageID string, patch *messages.MessagePatch) {
	for _, s := range m {
		s.UpdateMessage(conversationID, messageID, patch)
	}
}

func (m multiSink) UpdateMetaContent(messageID string, metaContent []messages.ThinkingStep) {
	for _, s := range m {
		s.UpdateMetaContent(messageID, metaContent)
	}
}
