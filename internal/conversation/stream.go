package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/itesm-showroom/showroom/internal/provider"
)

// EventType tags a StreamEvent.
type EventType string

const (
	EventText  EventType = "text"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// StreamEvent is one element of a streamed turn. The sequence is zero or
// more text events followed by exactly one done or error event, unless the
// caller cancels, in which case the channel simply closes.
type StreamEvent struct {
	Type   EventType
	Text   string
	Result *Result
	Err    error
}

const streamBuffer = 16

// Stream runs one turn and yields the reply as it is generated. Validation
// and connection failures are returned directly. The exchange is committed
// only after the service finishes the reply; cancelling ctx before that
// commits nothing. The session lane is held until the channel closes, so
// callers must drain it or cancel ctx.
func (e *Engine) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	start := e.now()
	ctx, span := e.startSpan(ctx, "conversation.stream", req.SessionID, req.Assistant)
	label := assistantLabel(req.Assistant)

	fail := func(err error) (<-chan StreamEvent, error) {
		e.finish(span, "stream", label, start, Result{}, err)
		span.End()
		return nil, err
	}

	if err := validate(req); err != nil {
		return fail(err)
	}
	release, err := e.lanes.Acquire(ctx, req.SessionID)
	if err != nil {
		return fail(err)
	}
	t, err := e.prepare(req)
	if err != nil {
		release()
		return fail(err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	chunks, err := e.streamWithRetry(callCtx, t.request)
	if err != nil {
		cancel()
		release()
		return fail(e.classify(ctx, err))
	}

	out := make(chan StreamEvent, streamBuffer)
	go func() {
		defer close(out)
		defer span.End()
		defer release()
		defer cancel()

		res, err := e.pump(ctx, callCtx, t, chunks, out, span)
		e.finish(span, "stream", label, start, res, err)
	}()
	return out, nil
}

// pump forwards chunks to out, then commits and emits the terminal event.
func (e *Engine) pump(ctx, callCtx context.Context, t *turn, chunks <-chan provider.StreamChunk, out chan<- StreamEvent, span trace.Span) (Result, error) {
	send := func(ev StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		answer strings.Builder
		usage  provider.TokenUsage
	)
	for {
		var (
			chunk provider.StreamChunk
			ok    bool
		)
		select {
		case chunk, ok = <-chunks:
		case <-callCtx.Done():
			chunk, ok = provider.StreamChunk{Err: callCtx.Err()}, true
		}
		if !ok {
			break
		}
		if chunk.Err != nil {
			err := e.classify(ctx, chunk.Err)
			if ctx.Err() == nil {
				send(StreamEvent{Type: EventError, Err: err})
			}
			drain(chunks)
			return Result{}, err
		}
		if chunk.Usage != nil && !chunk.Usage.IsZero() {
			usage = *chunk.Usage
		}
		if chunk.Content == "" {
			continue
		}
		answer.WriteString(chunk.Content)
		if !send(StreamEvent{Type: EventText, Text: chunk.Content}) {
			drain(chunks)
			return Result{}, ctx.Err()
		}
	}

	// A provider may close its channel without an error once callCtx
	// expires; the reply is then incomplete.
	if err := callCtx.Err(); err != nil {
		err = e.classify(ctx, err)
		if ctx.Err() == nil {
			send(StreamEvent{Type: EventError, Err: err})
		}
		return Result{}, err
	}

	span.AddEvent("stream.complete")
	res, err := e.commit(ctx, t, answer.String(), usage, "")
	if err != nil {
		if ctx.Err() == nil {
			send(StreamEvent{Type: EventError, Err: err})
		}
		return Result{}, err
	}
	send(StreamEvent{Type: EventDone, Result: &res})
	return res, nil
}

// drain discards the rest of a provider stream in the background so its
// producer can exit.
func drain(chunks <-chan provider.StreamChunk) {
	go func() {
		for range chunks {
		}
	}()
}
