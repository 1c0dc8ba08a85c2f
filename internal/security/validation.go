package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultMaxMessageSize bounds a JSON request body or websocket frame.
	DefaultMaxMessageSize = 1 << 20
	// DefaultMaxJSONDepth bounds JSON nesting.
	DefaultMaxJSONDepth = 16
	// MaxSessionIDLength bounds a client-supplied session identifier.
	MaxSessionIDLength = 128
)

var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrJSONTooDeep     = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrInvalidID       = errors.New("invalid session id")
)

// ValidateSessionID accepts 1 to MaxSessionIDLength ASCII letters, digits
// and the separators '-', '_', '.' and ':'. UUIDs and CLI names both fit.
func ValidateSessionID(id string) error {
	if id == "" || len(id) > MaxSessionIDLength {
		return fmt.Errorf("%w: length %d (1-%d)", ErrInvalidID, len(id), MaxSessionIDLength)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return fmt.Errorf("%w: character %q at %d", ErrInvalidID, c, i)
		}
	}
	return nil
}

// DecodeJSON checks size and nesting of data and decodes it into v,
// rejecting unknown fields.
func DecodeJSON(data []byte, v any) error {
	if len(data) > DefaultMaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLarge, len(data), DefaultMaxMessageSize)
	}
	if err := checkDepth(data, DefaultMaxJSONDepth); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return nil
}

// ReadJSON reads at most DefaultMaxMessageSize bytes from r and decodes
// them with DecodeJSON.
func ReadJSON(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, DefaultMaxMessageSize+1))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return DecodeJSON(data, v)
}

func checkDepth(data []byte, limit int) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
