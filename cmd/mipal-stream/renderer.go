package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
)

// TerminalRenderer implements stream.MessageSink for live terminal output.
// Content deltas go to stdout as they arrive; reasoning-step transitions and
// code-fence hints go to stderr so stdout stays pipeable.
type TerminalRenderer struct {
	quiet bool

	mu         sync.Mutex
	printed    int // bytes of content already written
	stepStatus map[string]messages.StepStatus
	stopReason string
}

// NewTerminalRenderer creates a renderer. With quiet set, only message
// content is emitted.
func NewTerminalRenderer(quiet bool) *TerminalRenderer {
	return &TerminalRenderer{
		quiet:      quiet,
		stepStatus: make(map[string]messages.StepStatus),
	}
}

// UpdateMessage prints whatever content the patch extends past what is
// already on screen
func (r *TerminalRenderer) UpdateMessage(conversationID, messageID string, patch *messages.MessagePatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if patch.Content != nil && len(*patch.Content) > r.printed {
		fmt.Print((*patch.Content)[r.printed:])
		r.printed = len(*patch.Content)
	}
	if patch.StopReason != nil {
		r.stopReason = *patch.StopReason
	}
}

// UpdateMetaContent renders step transitions: each step is announced once
// per status change
func (r *TerminalRenderer) UpdateMetaContent(messageID string, metaContent []messages.ThinkingStep) {
	if r.quiet {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, step := range metaContent {
		if r.stepStatus[step.ID] == step.Status {
			continue
		}
		r.stepStatus[step.ID] = step.Status
		fmt.Fprintf(os.Stderr, "%s %s\n", stepSymbol(step.Status), step.Title)
	}
}

// OnStreamStart announces the incoming message
func (r *TerminalRenderer) OnStreamStart(messageID string) {
	if r.quiet {
		return
	}
	fmt.Fprintln(os.Stderr, dimStyle.Styled("streaming "+messageID))
}

// OnCodeBlock surfaces fence toggles so the user sees what language the
// assistant is writing
func (r *TerminalRenderer) OnCodeBlock(language string, inCodeBlock bool) {
	if r.quiet {
		return
	}
	if inCodeBlock && language != "" {
		fmt.Fprintln(os.Stderr, dimStyle.Styled("["+language+"]"))
	}
}

// Finish flushes the trailing newline and the stop reason annotation
func (r *TerminalRenderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.printed > 0 {
		fmt.Println()
	}
	if !r.quiet && r.stopReason != "" {
		fmt.Fprintln(os.Stderr, dimStyle.Styled("stop: "+r.stopReason))
	}
}
