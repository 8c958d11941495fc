package sse

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// FeedLines splits r into lines and feeds them to the handler in order.
// It is the read loop shared by live streams and transcript replay: the
// handler fully processes each line before the next one is read, so event
// ordering needs no further coordination. Returns the context error on
// cancellation or a read error; EOF is a clean stop.
func FeedLines(ctx context.Context, r io.Reader, handler LineHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		handler.FeedLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
