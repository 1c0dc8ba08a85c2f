package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/itesm-showroom/showroom/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind            string                   `yaml:"bind"`
	Auth            AuthConfig               `yaml:"auth"`
	RateLimit       security.RateLimitConfig `yaml:"rate_limit"`
	AllowedOrigins  []string                 `yaml:"allowed_origins"`
	MaxUploadBytes  int64                    `yaml:"max_upload_bytes"`
	ReadTimeout     time.Duration            `yaml:"read_timeout"`
	WriteTimeout    time.Duration            `yaml:"write_timeout"`
	ShutdownTimeout time.Duration            `yaml:"shutdown_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Bind != "" {
		if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
			errs = append(errs, fmt.Errorf("gateway: invalid bind address %q", c.Bind))
		}
	}
	if c.RateLimit.MessagesPerMin < 0 || c.RateLimit.TokensPerHour < 0 {
		errs = append(errs, errors.New("gateway: rate limits must not be negative"))
	}
	if (c.Auth.BasicUser == "") != (c.Auth.BasicPass == "") {
		errs = append(errs, errors.New("gateway: basic auth needs both basic_user and basic_pass"))
	}
	return errors.Join(errs...)
}

// AuthConfig configures authentication for the API and websocket routes.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
