package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/provider/providertest"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err       error
		want      ErrorKind
		retryable bool
	}{
		{fmt.Errorf("openai: %w", provider.ErrAuth), KindAuth, false},
		{fmt.Errorf("openai: %w", provider.ErrRateLimit), KindRateLimit, true},
		{fmt.Errorf("openai: %w", provider.ErrProviderDown), KindNetwork, true},
		{provider.ErrMalformed, KindMalformed, false},
		{context.DeadlineExceeded, KindTimeout, false},
		{errors.New("other"), KindUnknown, false},
	}
	for _, tt := range tests {
		got := kindOf(tt.err)
		if got != tt.want || got.Retryable() != tt.retryable {
			t.Errorf("kindOf(%v) = %s (retryable %v), want %s (%v)", tt.err, got, got.Retryable(), tt.want, tt.retryable)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, &providertest.MockProvider{}, Config{Timeout: 3 * time.Second})

	err := e.classify(context.Background(), context.DeadlineExceeded)
	var se *ServiceError
	if !errors.As(err, &se) || se.Kind != KindTimeout || se.Message != "no reply within 3s" {
		t.Errorf("timeout = %#v", err)
	}

	// Already classified errors pass through unchanged.
	if again := e.classify(context.Background(), err); again != err {
		t.Errorf("reclassified: %v", again)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := e.classify(ctx, provider.ErrProviderDown); !errors.Is(got, context.Canceled) {
		t.Errorf("cancelled caller: %v", got)
	}
}
