package stream

import (
	"strings"
	"sync"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
)

// StreamState accumulates one in-flight message across SSE frames. The
// handler is the only writer (frames arrive on a single goroutine), but the
// fields are mutex-guarded so a status line or renderer on another goroutine
// can take snapshots safely.
type StreamState struct {
	content     string
	metaContent []messages.ThinkingStep
	artifacts   []messages.Artifact
	suggestions []messages.Suggestion
	stopReason  string
	streaming   bool

	// code-fence tracking derived from content deltas
	inCodeBlock  bool
	codeLanguage string
	fenceCarry   string // trailing backticks of a marker split across deltas
	langPending  bool   // language tag still accumulating across deltas

	mu sync.Mutex
}

// NewStreamState creates an empty accumulator
func NewStreamState() *StreamState {
	return &StreamState{}
}

// AppendContent appends one content delta and returns the accumulated text
func (s *StreamState) AppendContent(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content += text
	s.streaming = true
	return s.content
}

// Content returns the accumulated text so far
func (s *StreamState) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// UpsertStep folds one reasoning step into the trace and returns a copy of
// the updated trace
func (s *StreamState) UpsertStep(step messages.ThinkingStep) []messages.ThinkingStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaContent = messages.UpsertStep(s.metaContent, step)
	s.streaming = true
	return copySteps(s.metaContent)
}

// MetaContent returns a copy of the current reasoning trace
func (s *StreamState) MetaContent() []messages.ThinkingStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySteps(s.metaContent)
}

// CompleteMeta forces the terminal trace shape and returns a copy of it
func (s *StreamState) CompleteMeta() []messages.ThinkingStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaContent = messages.CompleteSteps(s.metaContent)
	return copySteps(s.metaContent)
}

// IsThinking reports whether any step of the trace is still inprogress
func (s *StreamState) IsThinking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return messages.AnyInProgress(s.metaContent)
}

// IsStreaming reports whether the message is still receiving frames
func (s *StreamState) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// StopStreaming marks the message as no longer streaming
func (s *StreamState) StopStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
}

// SetArtifacts replaces the artifact list wholesale
func (s *StreamState) SetArtifacts(artifacts []messages.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = artifacts
	s.streaming = true
}

// Artifacts returns the current artifact list
func (s *StreamState) Artifacts() []messages.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifacts
}

// SetSuggestions replaces the suggestion list wholesale
func (s *StreamState) SetSuggestions(suggestions []messages.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions = suggestions
}

// Suggestions returns the current suggestion list
func (s *StreamState) Suggestions() []messages.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suggestions
}

// SetStopReason records why the backend stopped generating
func (s *StreamState) SetStopReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopReason = reason
	s.streaming = false
}

// StopReason returns the recorded stop reason, empty while streaming
func (s *StreamState) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}

// TrackFences scans one content delta for ``` markers, toggling the
// in-code-block flag per marker. On an opening fence the language tag that
// follows it is captured; on a closing fence it is cleared. Markers and
// language tags split across delta boundaries are carried over, so a fence
// arriving as "``" then "`go" still toggles and reports "go". Returns
// whether anything changed plus the resulting flag and language.
func (s *StreamState) TrackFences(text string) (toggled bool, inCodeBlock bool, language string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = s.fenceCarry + text
	s.fenceCarry = ""

	if s.langPending {
		j := strings.IndexAny(text, " \t\n`")
		if j < 0 {
			s.codeLanguage += text
			return false, s.inCodeBlock, s.codeLanguage
		}
		s.codeLanguage += text[:j]
		s.langPending = false
		toggled = true
		text = text[j:]
	}

	for {
		i := strings.Index(text, "```")
		if i < 0 {
			break
		}
		toggled = true
		s.inCodeBlock = !s.inCodeBlock
		text = text[i+3:]
		if s.inCodeBlock {
			lang := text
			if j := strings.IndexAny(lang, " \t\n`"); j >= 0 {
				lang = lang[:j]
				s.langPending = false
			} else {
				s.langPending = true
			}
			s.codeLanguage = lang
		} else {
			s.codeLanguage = ""
			s.langPending = false
		}
	}

	if n := trailingBackticks(text); n > 0 {
		s.fenceCarry = text[len(text)-n:]
	}
	return toggled, s.inCodeBlock, s.codeLanguage
}

// trailingBackticks counts up to two backticks at the end of text, the most
// that can belong to a marker finishing in the next delta
func trailingBackticks(text string) int {
	n := 0
	for n < 2 && n < len(text) && text[len(text)-n-1] == '`' {
		n++
	}
	return n
}

// InCodeBlock reports whether the accumulated content currently sits inside
// an unclosed code fence, with the captured language tag
func (s *StreamState) InCodeBlock() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inCodeBlock, s.codeLanguage
}

// Snapshot returns the full projection of the accumulated state, for
// logging and persistence
func (s *StreamState) Snapshot() messages.StreamingMessageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return messages.StreamingMessageState{
		Content:     s.content,
		IsStreaming: s.streaming,
		IsThinking:  messages.AnyInProgress(s.metaContent),
		MetaContent: copySteps(s.metaContent),
		Artifacts:   s.artifacts,
		Suggestions: s.suggestions,
		StopReason:  s.stopReason,
	}
}

func copySteps(steps []messages.ThinkingStep) []messages.ThinkingStep {
	out := make([]messages.ThinkingStep, len(steps))
	copy(out, steps)
	return out
}
