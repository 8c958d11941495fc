package stream

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Fastlanedevs/mipal-analytics-sub002/messages"
)

// recordingSink captures every published patch and meta update, and keeps a
// merged view the way a real store would
type recordingSink struct {
	mu          sync.Mutex
	patches     []*messages.MessagePatch
	metaUpdates [][]messages.ThinkingStep
	merged      messages.StreamingMessageState
}

func (r *recordingSink) UpdateMessage(conversationID, messageID string, patch *messages.MessagePatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
	patch.Apply(&r.merged)
}

func (r *recordingSink) UpdateMetaContent(messageID string, metaContent []messages.ThinkingStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metaUpdates = append(r.metaUpdates, metaContent)
}

func newTestHandler(sink *recordingSink, cb Callbacks) *MessageStreamHandler {
	return NewMessageStreamHandler("conv-1", "msg-1", sink, cb)
}

func deltaLine(text string) string {
	return fmt.Sprintf(`data: {"type":"content_block_delta","index":0,"delta":{"text":%q}}`, text)
}

func metaLine(id, title, status string) string {
	return fmt.Sprintf(`data: {"type":"meta_content","meta_content":{"id":%q,"title":%q,"status":%q,"description":[]}}`, id, title, status)
}

// TestContentAppendOnly verifies the published content equals the
// concatenation of all deltas regardless of chunking
func TestContentAppendOnly(t *testing.T) {
	chunkings := [][]string{
		{"Hello, world"},
		{"Hel", "lo, world"},
		{"H", "e", "l", "l", "o", ",", " ", "w", "o", "r", "l", "d"},
	}

	for _, chunks := range chunkings {
		sink := &recordingSink{}
		handler := newTestHandler(sink, Callbacks{})
		for _, chunk := range chunks {
			handler.FeedLine(deltaLine(chunk))
		}
		if sink.merged.Content != "Hello, world" {
			t.Errorf("chunks %v: content = %q", chunks, sink.merged.Content)
		}
		if !sink.merged.IsStreaming {
			t.Errorf("chunks %v: IsStreaming should be true mid-stream", chunks)
		}
	}
}

// TestMalformedLineResilience verifies a bad frame is dropped and later
// frames still apply
func TestMalformedLineResilience(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(`data: {not valid json`)
	handler.FeedLine(deltaLine("still here"))

	if sink.merged.Content != "still here" {
		t.Errorf("content = %q, want 'still here'", sink.merged.Content)
	}
}

// TestIgnoredLines verifies non-data lines, the sentinel, and unknown event
// types publish nothing
func TestIgnoredLines(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(`: keep-alive`)
	handler.FeedLine(``)
	handler.FeedLine(`data: [DONE]`)
	handler.FeedLine(`data: {"type":"some_future_event"}`)
	handler.FeedLine(`data: {"type":"message_limit"}`)
	handler.FeedLine(`data: {"type":"content_block_start","index":0}`)

	if len(sink.patches) != 0 {
		t.Errorf("published %d patches, want 0", len(sink.patches))
	}
}

// TestStreamStartCallback verifies message_start fires the hook without
// mutating state
func TestStreamStartCallback(t *testing.T) {
	sink := &recordingSink{}
	var started []string
	handler := newTestHandler(sink, Callbacks{
		OnStreamStart: func(messageID string) { started = append(started, messageID) },
	})

	handler.FeedLine(`data: {"type":"message_start"}`)

	if len(started) != 1 || started[0] != "msg-1" {
		t.Errorf("started = %v", started)
	}
	if len(sink.patches) != 0 {
		t.Errorf("message_start published %d patches", len(sink.patches))
	}
}

// TestContentBlockStop publishes accumulated content with streaming off
func TestContentBlockStop(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(deltaLine("done now"))
	handler.FeedLine(`data: {"type":"content_block_stop","index":0}`)

	if sink.merged.IsStreaming {
		t.Error("IsStreaming still true after content_block_stop")
	}
	if sink.merged.Content != "done now" {
		t.Errorf("content = %q", sink.merged.Content)
	}
}

// TestCodeFenceCallback verifies fence toggles and language capture reach
// the caller
func TestCodeFenceCallback(t *testing.T) {
	type toggle struct {
		language string
		inBlock  bool
	}
	var toggles []toggle

	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{
		OnCodeBlock: func(language string, inCodeBlock bool) {
			toggles = append(toggles, toggle{language, inCodeBlock})
		},
	})

	handler.FeedLine(deltaLine("Here is SQL:\n```sql\nSELECT"))
	handler.FeedLine(deltaLine(" 1;\n```\ndone"))

	if len(toggles) != 2 {
		t.Fatalf("toggles = %+v, want 2", toggles)
	}
	if !toggles[0].inBlock || toggles[0].language != "sql" {
		t.Errorf("open toggle = %+v", toggles[0])
	}
	if toggles[1].inBlock || toggles[1].language != "" {
		t.Errorf("close toggle = %+v", toggles[1])
	}
}

// TestCodeFenceSingleDelta verifies a delta containing both fences toggles
// twice and the final content is intact
func TestCodeFenceSingleDelta(t *testing.T) {
	var events int
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{
		OnCodeBlock: func(string, bool) { events++ },
	})

	handler.FeedLine(deltaLine("```py\nx=1\n```"))

	if events != 1 {
		// one FeedLine -> one callback, reflecting the net toggle state
		t.Errorf("callback fired %d times, want 1", events)
	}
	if inBlock, _ := handler.State().InCodeBlock(); inBlock {
		t.Error("still inside code block after close fence")
	}
	if sink.merged.Content != "```py\nx=1\n```" {
		t.Errorf("content = %q", sink.merged.Content)
	}
}

// TestCodeFenceSplitAcrossDeltas verifies fence markers and language tags
// broken across delta boundaries still toggle and capture whole
func TestCodeFenceSplitAcrossDeltas(t *testing.T) {
	type toggle struct {
		language string
		inBlock  bool
	}
	var toggles []toggle

	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{
		OnCodeBlock: func(language string, inCodeBlock bool) {
			toggles = append(toggles, toggle{language, inCodeBlock})
		},
	})

	handler.FeedLine(deltaLine("code:\n``"))
	handler.FeedLine(deltaLine("`g"))
	handler.FeedLine(deltaLine("o\nx := 1\n``"))
	handler.FeedLine(deltaLine("`\ndone"))

	if len(toggles) == 0 || !toggles[0].inBlock {
		t.Fatalf("toggles = %+v, want opening toggle first", toggles)
	}
	var sawLanguage bool
	for _, tg := range toggles {
		if tg.inBlock && tg.language == "go" {
			sawLanguage = true
		}
	}
	if !sawLanguage {
		t.Errorf("split language tag never completed: %+v", toggles)
	}
	if last := toggles[len(toggles)-1]; last.inBlock {
		t.Errorf("split close fence not detected: %+v", toggles)
	}
	if inBlock, _ := handler.State().InCodeBlock(); inBlock {
		t.Error("still inside code block at end")
	}
	if sink.merged.Content != "code:\n```go\nx := 1\n```\ndone" {
		t.Errorf("content = %q", sink.merged.Content)
	}
}

// TestMetaContentPublishesBothChannels verifies the dedicated meta channel
// and the general patch both fire
func TestMetaContentPublishesBothChannels(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(metaLine("1", "Parse question", "inprogress"))

	if len(sink.metaUpdates) != 1 {
		t.Fatalf("meta updates = %d, want 1", len(sink.metaUpdates))
	}
	if len(sink.merged.MetaContent) != 1 || sink.merged.MetaContent[0].Title != "Parse question" {
		t.Errorf("merged meta = %+v", sink.merged.MetaContent)
	}
	if !sink.merged.IsThinking {
		t.Error("IsThinking should be true with an inprogress step")
	}
}

// TestMetaContentDedupThroughHandler verifies feeding the same step twice
// leaves one entry with the later status
func TestMetaContentDedupThroughHandler(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(metaLine("1", "Parse question", "inprogress"))
	handler.FeedLine(metaLine("1", "Parse question", "completed"))

	if len(sink.merged.MetaContent) != 1 {
		t.Fatalf("steps = %d, want 1", len(sink.merged.MetaContent))
	}
	if sink.merged.MetaContent[0].Status != messages.StepCompleted {
		t.Errorf("status = %q", sink.merged.MetaContent[0].Status)
	}
	if sink.merged.IsThinking {
		t.Error("IsThinking should drop once the only step completes")
	}
}

// TestMonotonicStepPromotion reproduces the producer invariant: a new
// inprogress step finishes all earlier inprogress steps
func TestMonotonicStepPromotion(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(metaLine("1", "A", "inprogress"))
	handler.FeedLine(metaLine("2", "B", "inprogress"))
	handler.FeedLine(metaLine("3", "C", "inprogress"))

	meta := sink.merged.MetaContent
	if len(meta) != 3 {
		t.Fatalf("steps = %d, want 3", len(meta))
	}
	if meta[0].Status != messages.StepCompleted || meta[1].Status != messages.StepCompleted {
		t.Errorf("earlier steps = %q/%q, want completed", meta[0].Status, meta[1].Status)
	}
	if meta[2].Status != messages.StepInProgress {
		t.Errorf("latest step = %q, want inprogress", meta[2].Status)
	}
}

// TestErrorBubblingThroughHandler verifies a doubly nested description
// error flips the step even though the event said inprogress
func TestErrorBubblingThroughHandler(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(`data: {"type":"meta_content","meta_content":{"id":"1","title":"Run query","status":"inprogress","description":[{"title":"outer","description":[{"title":"inner","status":"error"}]}]}}`)

	if len(sink.merged.MetaContent) != 1 {
		t.Fatalf("steps = %d", len(sink.merged.MetaContent))
	}
	if sink.merged.MetaContent[0].Status != messages.StepError {
		t.Errorf("status = %q, want error", sink.merged.MetaContent[0].Status)
	}
}

// TestArtifactsReplaceWholesale verifies replacement semantics and the
// empty-list ignore rule
func TestArtifactsReplaceWholesale(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(`data: {"type":"artifact_block_start","artifacts":[{"kind":"chart"},{"kind":"table"}]}`)
	if len(sink.merged.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(sink.merged.Artifacts))
	}

	handler.FeedLine(`data: {"type":"artifact_block_start","artifacts":[{"kind":"csv"}]}`)
	if len(sink.merged.Artifacts) != 1 || sink.merged.Artifacts[0]["kind"] != "csv" {
		t.Errorf("artifacts not replaced wholesale: %+v", sink.merged.Artifacts)
	}

	// empty event leaves the list alone
	handler.FeedLine(`data: {"type":"artifact_block_start","artifacts":[]}`)
	if len(sink.merged.Artifacts) != 1 {
		t.Errorf("empty artifact event clobbered the list: %+v", sink.merged.Artifacts)
	}
}

// TestSuggestionsFlush verifies suggestion replacement and that the stop
// event re-publishes a non-empty list only
func TestSuggestionsFlush(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(`data: {"type":"suggestion_block_stop"}`)
	if len(sink.patches) != 0 {
		t.Errorf("empty flush published %d patches", len(sink.patches))
	}

	handler.FeedLine(`data: {"type":"suggestion_block_start","suggestions":[{"text":"Show by region"}]}`)
	if len(sink.merged.Suggestions) != 1 {
		t.Fatalf("suggestions = %+v", sink.merged.Suggestions)
	}

	before := len(sink.patches)
	handler.FeedLine(`data: {"type":"suggestion_block_stop"}`)
	if len(sink.patches) != before+1 {
		t.Errorf("non-empty flush did not republish")
	}
}

// TestMessageDeltaStopReason verifies stop_reason ends streaming and
// thinking
func TestMessageDeltaStopReason(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(deltaLine("answer"))
	handler.FeedLine(metaLine("1", "A", "inprogress"))
	handler.FeedLine(`data: {"type":"message_delta","delta":{"stop_reason":"max_tokens"}}`)

	if sink.merged.IsStreaming || sink.merged.IsThinking {
		t.Errorf("terminal flags: streaming=%v thinking=%v", sink.merged.IsStreaming, sink.merged.IsThinking)
	}
	if sink.merged.StopReason != "max_tokens" {
		t.Errorf("stop_reason = %q", sink.merged.StopReason)
	}

	// a delta without stop_reason publishes nothing
	before := len(sink.patches)
	handler.FeedLine(`data: {"type":"message_delta","delta":{}}`)
	if len(sink.patches) != before {
		t.Errorf("empty message_delta published a patch")
	}
}

// TestTerminalForcing verifies message_stop completes every step except
// errors, which survive
func TestTerminalForcing(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(metaLine("1", "A", "error"))
	handler.FeedLine(metaLine("2", "B", "inprogress"))
	handler.FeedLine(`data: {"type":"message_stop"}`)

	meta := sink.merged.MetaContent
	if len(meta) != 2 {
		t.Fatalf("steps = %d", len(meta))
	}
	if meta[0].Status != messages.StepError {
		t.Errorf("error step = %q, want error preserved", meta[0].Status)
	}
	if meta[1].Status != messages.StepCompleted {
		t.Errorf("inprogress step = %q, want completed", meta[1].Status)
	}
	if sink.merged.IsStreaming || sink.merged.IsThinking {
		t.Error("terminal flags still set after message_stop")
	}
}

// TestEndToEndScenario is the full assembly sequence from start to stop
func TestEndToEndScenario(t *testing.T) {
	sink := &recordingSink{}
	handler := newTestHandler(sink, Callbacks{})

	handler.FeedLine(`data: {"type":"message_start"}`)
	handler.FeedLine(deltaLine("Hel"))
	handler.FeedLine(deltaLine("lo"))
	handler.FeedLine(metaLine("1", "Step A", "inprogress"))
	handler.FeedLine(`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)
	handler.FeedLine(`data: {"type":"message_stop"}`)

	final := sink.merged
	if final.Content != "Hello" {
		t.Errorf("content = %q, want Hello", final.Content)
	}
	if final.IsStreaming || final.IsThinking {
		t.Errorf("flags: streaming=%v thinking=%v", final.IsStreaming, final.IsThinking)
	}
	if final.StopReason != "end_turn" {
		t.Errorf("stop_reason = %q", final.StopReason)
	}
	if len(final.MetaContent) != 1 {
		t.Fatalf("steps = %d", len(final.MetaContent))
	}
	step := final.MetaContent[0]
	if step.ID != "1" || step.Title != "Step A" || step.Status != messages.StepCompleted {
		t.Errorf("step = %+v", step)
	}
}
