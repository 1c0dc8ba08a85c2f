package provider

import (
	"sync"
	"time"
)

const (
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = time.Minute
	defaultMaxFailures    = 5
	defaultCheckInterval  = 10 * time.Second
)

// healthState is the availability of one chain entry.
type healthState int

const (
	stateHealthy healthState = iota
	stateCooldown
	stateDead
)

func (s healthState) String() string {
	switch s {
	case stateHealthy:
		return "healthy"
	case stateCooldown:
		return "cooldown"
	case stateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// HealthConfig controls health tracking for a chain entry. Zero values
// fall back to package defaults.
type HealthConfig struct {
	// InitialBackoff is the cooldown after the first failure.
	InitialBackoff time.Duration `yaml:"initial_backoff"`

	// MaxBackoff caps the doubled cooldown.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures consecutive failures mark the entry dead until a
	// health probe succeeds.
	MaxFailures int `yaml:"max_failures"`

	// CheckInterval is the period of the background probe.
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c HealthConfig) checkIntervalOrDefault() time.Duration {
	if c.CheckInterval <= 0 {
		return defaultCheckInterval
	}
	return c.CheckInterval
}

func (c HealthConfig) withDefaults() HealthConfig {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = defaultMaxFailures
	}
	c.CheckInterval = c.checkIntervalOrDefault()
	return c
}

// healthTracker applies exponential backoff on consecutive failures.
type healthTracker struct {
	cfg HealthConfig

	// onStateChange runs outside the lock on every transition.
	onStateChange func(from, to healthState)

	mu       sync.Mutex
	state    healthState
	failures int
	backoff  time.Duration
	until    time.Time
	lastErr  error

	now func() time.Time
}

func newHealthTracker(cfg HealthConfig) *healthTracker {
	return &healthTracker{
		cfg:   cfg.withDefaults(),
		state: stateHealthy,
		now:   time.Now,
	}
}

// IsAvailable reports whether the entry may serve a request. An entry in
// cooldown becomes available again once its backoff has elapsed.
func (h *healthTracker) IsAvailable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateHealthy || h.cooldownElapsed()
}

// ShouldHealthCheck reports whether a background probe is due.
func (h *healthTracker) ShouldHealthCheck() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == stateDead || h.cooldownElapsed()
}

// cooldownElapsed must be called with h.mu held.
func (h *healthTracker) cooldownElapsed() bool {
	return h.state == stateCooldown && !h.now().Before(h.until)
}

func (h *healthTracker) RecordSuccess() {
	h.mu.Lock()
	prev := h.state
	h.state = stateHealthy
	h.failures = 0
	h.backoff = 0
	h.lastErr = nil
	h.mu.Unlock()

	h.notify(prev, stateHealthy)
}

func (h *healthTracker) RecordFailure() {
	h.RecordError(nil)
}

// RecordError is RecordFailure that also keeps err as the cause reported
// while the entry is unavailable.
func (h *healthTracker) RecordError(err error) {
	h.mu.Lock()
	prev := h.state
	h.failures++
	if err != nil {
		h.lastErr = err
	}
	if h.failures >= h.cfg.MaxFailures {
		h.state = stateDead
	} else {
		h.state = stateCooldown
		h.backoff = min(max(h.backoff*2, h.cfg.InitialBackoff), h.cfg.MaxBackoff)
		h.until = h.now().Add(h.backoff)
	}
	next := h.state
	h.mu.Unlock()

	h.notify(prev, next)
}

func (h *healthTracker) notify(from, to healthState) {
	if from != to && h.onStateChange != nil {
		h.onStateChange(from, to)
	}
}

func (h *healthTracker) State() healthState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *healthTracker) Failures() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures
}

// LastError returns the most recent recorded failure, or nil after a success.
func (h *healthTracker) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *healthTracker) CurrentBackoff() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backoff
}
