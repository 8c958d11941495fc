// Package sse streams the backend's chat responses. It owns the transport
// concerns the assembler deliberately does not: HTTP, line framing, context
// cancellation, and error reporting. Frames are delivered to the handler in
// arrival order on a single goroutine.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LineHandler consumes transport lines one at a time. The assembler's
// MessageStreamHandler satisfies this.
type LineHandler interface {
	FeedLine(line string)
}

const (
	defaultTimeout = 5 * time.Minute

	// scanner buffer sizing; a single artifact frame can be large
	initialLineBuffer = 64 * 1024
	maxLineBytes      = 1024 * 1024
)

// Client talks to the chat streaming endpoint
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a streaming client. timeout bounds the whole stream;
// zero means the default. Per-request cancellation goes through the context.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ChatRequest is the body posted to the streaming chat endpoint
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
	WebSearch      bool   `json:"web_search,omitempty"`
}

// StreamChat posts the request and feeds every response line to the handler
// until the body ends or the context is cancelled. The handler never fails;
// the returned error is purely a transport error. On cancellation the
// message is left in whatever partial state was last published, which the
// caller must treat as interrupted, not complete.
func (c *Client) StreamChat(ctx context.Context, req *ChatRequest, handler LineHandler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	zap.S().Debugw("sse_stream_started",
		"conversation_id", req.ConversationID,
		"message_id", req.MessageID,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chat stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("chat stream: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return FeedLines(ctx, resp.Body, handler)
}
