package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client exceeds its budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig bounds per-session traffic. Zero fields disable the
// corresponding limit.
type RateLimitConfig struct {
	MessagesPerMin int `yaml:"messages_per_min"`
	TokensPerHour  int `yaml:"tokens_per_hour"`
}

// Enabled reports whether any limit is set.
func (c RateLimitConfig) Enabled() bool {
	return c.MessagesPerMin > 0 || c.TokensPerHour > 0
}

// RateLimiter enforces sliding-window limits keyed by session ID.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	windows map[string]*window
	now     func() time.Time
}

type stamp struct {
	at time.Time
	n  int
}

type window struct {
	messages []stamp
	tokens   []stamp
}

// NewRateLimiter returns a limiter for cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// AllowMessage admits one message for key, or returns ErrRateLimited when
// either the message rate or the hourly token budget is spent.
func (rl *RateLimiter) AllowMessage(key string) error {
	if !rl.cfg.Enabled() {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w := rl.window(key)
	w.messages = evict(w.messages, now.Add(-time.Minute))
	w.tokens = evict(w.tokens, now.Add(-time.Hour))

	if rl.cfg.MessagesPerMin > 0 && len(w.messages) >= rl.cfg.MessagesPerMin {
		return ErrRateLimited
	}
	if rl.cfg.TokensPerHour > 0 && sum(w.tokens) >= rl.cfg.TokensPerHour {
		return ErrRateLimited
	}
	w.messages = append(w.messages, stamp{at: now, n: 1})
	return nil
}

// RecordTokens charges n tokens to key's hourly budget.
func (rl *RateLimiter) RecordTokens(key string, n int) {
	if rl.cfg.TokensPerHour <= 0 || n <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w := rl.window(key)
	w.tokens = append(w.tokens, stamp{at: rl.now(), n: n})
}

// Forget drops all state for key.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
}

// Sweep drops keys with no events in the last hour and returns how many
// were removed.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, w := range rl.windows {
		w.messages = evict(w.messages, now.Add(-time.Minute))
		w.tokens = evict(w.tokens, now.Add(-time.Hour))
		if len(w.messages) == 0 && len(w.tokens) == 0 {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) window(key string) *window {
	w, ok := rl.windows[key]
	if !ok {
		w = &window{}
		rl.windows[key] = w
	}
	return w
}

// evict drops stamps before cutoff. Stamps are in time order.
func evict(s []stamp, cutoff time.Time) []stamp {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	return s[i:]
}

func sum(s []stamp) int {
	total := 0
	for _, st := range s {
		total += st.n
	}
	return total
}
