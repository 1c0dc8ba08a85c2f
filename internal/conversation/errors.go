package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
)

var (
	// ErrEmptyInput is returned when the user text is blank after
	// trimming. Nothing is sent and nothing is stored.
	ErrEmptyInput = errors.New("conversation: empty input")

	// ErrInvalidArgument reports a caller contract violation. It matches
	// session.ErrInvalidArgument as well.
	ErrInvalidArgument = fmt.Errorf("conversation: %w", session.ErrInvalidArgument)
)

// ErrorKind classifies a failure of the text-generation service.
type ErrorKind string

const (
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindNetwork   ErrorKind = "network"
	KindMalformed ErrorKind = "malformed"
	KindTimeout   ErrorKind = "timeout"
	KindUnknown   ErrorKind = "unknown"
)

// Retryable reports whether a bounded retry may help.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimit || k == KindNetwork
}

// ServiceError is a failed call to the text-generation service. Message is
// safe to show to users: credentials are redacted from it.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("conversation: service error (%s): %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsKind reports whether err is a ServiceError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == k
}

// kindOf maps a provider error to its kind.
func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, provider.ErrAuth):
		return KindAuth
	case errors.Is(err, provider.ErrRateLimit):
		return KindRateLimit
	case errors.Is(err, provider.ErrProviderDown):
		return KindNetwork
	case errors.Is(err, provider.ErrMalformed), errors.Is(err, provider.ErrContextLength):
		return KindMalformed
	default:
		return KindUnknown
	}
}

// classify turns a provider failure into the error returned to callers.
// Cancellation by the caller is returned as the caller's context error.
func (e *Engine) classify(caller context.Context, err error) error {
	if cerr := caller.Err(); cerr != nil {
		return cerr
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	kind := kindOf(err)
	msg := err.Error()
	if kind == KindTimeout {
		msg = fmt.Sprintf("no reply within %s", e.cfg.Timeout)
	}
	return &ServiceError{Kind: kind, Message: e.redact(msg), Err: err}
}
