package messages

// Artifact is a backend-defined attachment (chart spec, table, file ref).
// The assembler passes it through untouched.
type Artifact map[string]any

// Suggestion is a backend-defined follow-up prompt, also opaque
type Suggestion map[string]any

// StreamingMessageState is the externally visible projection of one
// in-flight assistant message. It is created implicitly when the first
// patch for a message ID arrives and mutated in place by every later patch;
// retention is owned by the store, not the assembler.
type StreamingMessageState struct {
	Content     string         `json:"content"`
	IsStreaming bool           `json:"is_streaming"`
	IsThinking  bool           `json:"is_thinking"`
	MetaContent []ThinkingStep `json:"meta_content,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	Suggestions []Suggestion   `json:"suggestions,omitempty"`
	StopReason  string         `json:"stop_reason,omitempty"`
}

// MessagePatch is a partial update to a StreamingMessageState. Nil fields
// leave the target field untouched; non-nil fields win wholesale. Slices use
// nil-vs-set the same way (an empty non-nil slice clears the field).
type MessagePatch struct {
	Content     *string
	IsStreaming *bool
	IsThinking  *bool
	MetaContent []ThinkingStep
	Artifacts   []Artifact
	Suggestions []Suggestion
	StopReason  *string
}

// Apply shallow-merges the patch into state
func (p *MessagePatch) Apply(state *StreamingMessageState) {
	if p == nil || state == nil {
		return
	}
	if p.Content != nil {
		state.Content = *p.Content
	}
	if p.IsStreaming != nil {
		state.IsStreaming = *p.IsStreaming
	}
	if p.IsThinking != nil {
		state.IsThinking = *p.IsThinking
	}
	if p.MetaContent != nil {
		state.MetaContent = p.MetaContent
	}
	if p.Artifacts != nil {
		state.Artifacts = p.Artifacts
	}
	if p.Suggestions != nil {
		state.Suggestions = p.Suggestions
	}
	if p.StopReason != nil {
		state.StopReason = *p.StopReason
	}
}

// Str returns a pointer to s, for building patches
func Str(s string) *string { return &s }

// Bool returns a pointer to b, for building patches
func Bool(b bool) *bool { return &b }
