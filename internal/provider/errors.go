package provider

import "errors"

// Sentinel errors for provider operations. Concrete providers wrap one of
// these so callers can classify failures with errors.Is.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrAuth indicates the credentials were rejected.
	ErrAuth = errors.New("provider authentication failed")

	// ErrProviderDown indicates a network failure or a temporarily
	// unavailable upstream.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrMalformed indicates the provider answered with a body that could
	// not be decoded.
	ErrMalformed = errors.New("malformed provider response")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrAllProviders indicates all providers in the chain have been exhausted.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether the error is transient and the request
// can be retried with a different provider or after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}
