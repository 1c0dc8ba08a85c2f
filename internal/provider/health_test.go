package provider

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTime struct {
	mu      sync.Mutex
	current time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

func newTestTracker(cfg HealthConfig) (*healthTracker, *fakeTime) {
	ft := &fakeTime{current: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	h := newHealthTracker(cfg)
	h.now = ft.Now
	return h, ft
}

func TestHealthTracker_CooldownThenAvailable(t *testing.T) {
	t.Parallel()
	h, ft := newTestTracker(HealthConfig{InitialBackoff: time.Second})

	h.RecordFailure()
	if h.State() != stateCooldown {
		t.Fatalf("state = %s, want cooldown", h.State())
	}
	if h.IsAvailable() {
		t.Error("available during cooldown")
	}

	ft.Advance(time.Second)
	if !h.IsAvailable() {
		t.Error("not available at exact expiry")
	}
	if !h.ShouldHealthCheck() {
		t.Error("expired cooldown should be probed")
	}
}

func TestHealthTracker_BackoffDoublesAndCaps(t *testing.T) {
	t.Parallel()
	h, ft := newTestTracker(HealthConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		MaxFailures:    10,
	})

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second} {
		h.RecordFailure()
		if got := h.CurrentBackoff(); got != want {
			t.Fatalf("failure %d: backoff = %v, want %v", i+1, got, want)
		}
		ft.Advance(want)
	}
}

func TestHealthTracker_DeadAndRevived(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{MaxFailures: 2})

	var transitions []string
	h.onStateChange = func(from, to healthState) {
		transitions = append(transitions, from.String()+">"+to.String())
	}

	h.RecordFailure()
	h.RecordFailure()
	if h.IsAvailable() {
		t.Error("dead entry reported available")
	}
	if !h.ShouldHealthCheck() {
		t.Error("dead entry should be probed")
	}

	h.RecordSuccess()
	h.RecordSuccess()
	if h.Failures() != 0 || h.CurrentBackoff() != 0 {
		t.Errorf("success did not reset: failures=%d backoff=%v", h.Failures(), h.CurrentBackoff())
	}

	want := []string{"healthy>cooldown", "cooldown>dead", "dead>healthy"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestHealthConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   HealthConfig
		want HealthConfig
	}{
		{
			name: "zero",
			in:   HealthConfig{},
			want: HealthConfig{time.Second, time.Minute, 5, 10 * time.Second},
		},
		{
			name: "negative",
			in:   HealthConfig{-1, -1, -1, -1},
			want: HealthConfig{time.Second, time.Minute, 5, 10 * time.Second},
		},
		{
			name: "custom kept",
			in:   HealthConfig{500 * time.Millisecond, 30 * time.Second, 3, 5 * time.Second},
			want: HealthConfig{500 * time.Millisecond, 30 * time.Second, 3, 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.in.withDefaults(); got != tt.want {
				t.Errorf("withDefaults() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHealthTracker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	h, ft := newTestTracker(HealthConfig{MaxFailures: 100})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(3)
		go func() {
			defer wg.Done()
			h.RecordFailure()
		}()
		go func() {
			defer wg.Done()
			_ = h.IsAvailable()
		}()
		go func() {
			defer wg.Done()
			ft.Advance(time.Millisecond)
			h.RecordSuccess()
		}()
	}
	wg.Wait()
}

func TestHealthTracker_LastError(t *testing.T) {
	t.Parallel()
	h, _ := newTestTracker(HealthConfig{})

	h.RecordError(ErrRateLimit)
	h.RecordFailure()
	if !errors.Is(h.LastError(), ErrRateLimit) {
		t.Errorf("LastError = %v, want ErrRateLimit kept across an unattributed failure", h.LastError())
	}

	h.RecordSuccess()
	if h.LastError() != nil {
		t.Errorf("LastError after success = %v", h.LastError())
	}
}
