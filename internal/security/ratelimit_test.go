package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_MessagesSlidingWindow(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(RateLimitConfig{MessagesPerMin: 2})

	for i := range 2 {
		if err := rl.AllowMessage("s1"); err != nil {
			t.Fatalf("AllowMessage %d: %v", i, err)
		}
	}
	if err := rl.AllowMessage("s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third message err = %v", err)
	}
	if err := rl.AllowMessage("s2"); err != nil {
		t.Errorf("other session limited: %v", err)
	}

	clock.Advance(61 * time.Second)
	if err := rl.AllowMessage("s1"); err != nil {
		t.Errorf("after window: %v", err)
	}
}

func TestRateLimiter_TokenBudget(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(RateLimitConfig{TokensPerHour: 100})

	if err := rl.AllowMessage("s1"); err != nil {
		t.Fatal(err)
	}
	rl.RecordTokens("s1", 60)
	if err := rl.AllowMessage("s1"); err != nil {
		t.Fatalf("under budget: %v", err)
	}
	rl.RecordTokens("s1", 52)
	if err := rl.AllowMessage("s1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("over budget err = %v", err)
	}

	clock.Advance(time.Hour + time.Second)
	if err := rl.AllowMessage("s1"); err != nil {
		t.Errorf("after an hour: %v", err)
	}
}

func TestRateLimiter_DisabledAndForget(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(RateLimitConfig{})
	for range 1000 {
		if err := rl.AllowMessage("s1"); err != nil {
			t.Fatal(err)
		}
	}

	rl, _ = newTestLimiter(RateLimitConfig{MessagesPerMin: 1})
	_ = rl.AllowMessage("s1")
	rl.Forget("s1")
	if err := rl.AllowMessage("s1"); err != nil {
		t.Errorf("after Forget: %v", err)
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	t.Parallel()

	rl, clock := newTestLimiter(RateLimitConfig{MessagesPerMin: 5, TokensPerHour: 1000})
	_ = rl.AllowMessage("old")
	rl.RecordTokens("old", 10)
	clock.Advance(2 * time.Hour)
	_ = rl.AllowMessage("new")

	if n := rl.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{MessagesPerMin: 50})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.AllowMessage("s1") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
