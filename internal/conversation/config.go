package conversation

import (
	"errors"
	"time"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultMaxRetries     = 2
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultKeyPointTokens = 1000

	// MinKeyPoints and MaxKeyPoints bound a key points request.
	MinKeyPoints = 3
	MaxKeyPoints = 10
)

// Config tunes the engine. Zero values select defaults.
type Config struct {
	// Timeout bounds one logical call including retries.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of extra attempts for rate limit and
	// network failures. Negative disables retries.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoff is the first retry delay; it doubles per attempt.
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// KeyPointsMaxTokens caps the key points reply.
	KeyPointsMaxTokens int `yaml:"key_points_max_tokens"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	switch {
	case c.MaxRetries < 0:
		c.MaxRetries = 0
	case c.MaxRetries == 0:
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.KeyPointsMaxTokens <= 0 {
		c.KeyPointsMaxTokens = defaultKeyPointTokens
	}
	return c
}

// Validate rejects values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	if c.Timeout < 0 {
		errs = append(errs, errors.New("conversation: timeout must be non-negative"))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, errors.New("conversation: retry_backoff must be non-negative"))
	}
	if c.MaxRetries > 10 {
		errs = append(errs, errors.New("conversation: max_retries must be at most 10"))
	}
	return errors.Join(errs...)
}
