package conversation

import (
	"context"
	"time"

	"github.com/itesm-showroom/showroom/internal/provider"
)

// retry runs call until it succeeds, fails with a non-retryable error, or
// the attempt budget is spent. Backoff doubles after each failure.
func retry[T any](ctx context.Context, e *Engine, call func(context.Context) (T, error)) (T, error) {
	backoff := e.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		v, err := call(ctx)
		if err == nil {
			return v, nil
		}
		kind := kindOf(err)
		if !kind.Retryable() || attempt >= e.cfg.MaxRetries || ctx.Err() != nil {
			return v, err
		}

		e.observer.ObserveRetry(kind)
		e.logger.Debug("retrying service call", "kind", kind, "attempt", attempt+1, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return v, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
}

func (e *Engine) completeWithRetry(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	return retry(ctx, e, func(ctx context.Context) (provider.CompletionResponse, error) {
		return e.provider.Complete(ctx, req)
	})
}

func (e *Engine) streamWithRetry(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	return retry(ctx, e, func(ctx context.Context) (<-chan provider.StreamChunk, error) {
		return e.provider.Stream(ctx, req)
	})
}
