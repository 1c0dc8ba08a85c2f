package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/itesm-showroom/showroom/internal/provider"
)

// scannerBufferSize raises the bufio.Scanner line limit for long deltas.
const scannerBufferSize = 1024 * 1024

// sendChunk returns false when ctx is cancelled before the send.
func sendChunk(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// readStream parses the SSE body into chunks on ch. It closes ch and body
// on [DONE], on error, or on cancellation.
func readStream(ctx context.Context, body io.ReadCloser, ch chan<- provider.StreamChunk) {
	defer close(ch)
	defer func() { _ = body.Close() }()

	// Closing the body unblocks the scanner when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = body.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			sendChunk(ctx, ch, provider.StreamChunk{Err: ctx.Err()})
			return
		}

		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			sendChunk(ctx, ch, provider.StreamChunk{Err: malformed("decode stream chunk", err)})
			return
		}

		var out provider.StreamChunk
		if chunk.Usage != nil {
			usage := chunk.Usage.toProvider()
			out.Usage = &usage
		}
		if len(chunk.Choices) > 0 {
			out.Content = chunk.Choices[0].Delta.Content
			out.FinishReason = mapFinishReason(chunk.Choices[0].FinishReason)
		}
		if out.Content == "" && out.FinishReason == "" && out.Usage == nil {
			continue
		}
		if !sendChunk(ctx, ch, out) {
			return
		}
	}

	if ctx.Err() != nil {
		sendChunk(ctx, ch, provider.StreamChunk{Err: ctx.Err()})
		return
	}
	if err := scanner.Err(); err != nil {
		sendChunk(ctx, ch, provider.StreamChunk{Err: mapConnectionError(err)})
		return
	}
	// A body that ends without [DONE] was cut short.
	sendChunk(ctx, ch, provider.StreamChunk{Err: mapConnectionError(io.ErrUnexpectedEOF)})
}
