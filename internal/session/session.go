// Package session holds per-session conversational state: the append-only
// message log, the running token total, and the reference context used for
// retrieval-style prompting.
package session

import (
	"errors"
	"time"

	"github.com/itesm-showroom/showroom/internal/provider"
)

var (
	// ErrInvalidArgument reports a caller contract violation such as an
	// empty session ID or a negative token count.
	ErrInvalidArgument = errors.New("session: invalid argument")

	// ErrNotFound is returned by lookups that do not create sessions.
	ErrNotFound = errors.New("session: not found")
)

// Message is one entry of a session log. Timestamp is assigned by the
// store when the message is appended and never changes afterwards.
type Message struct {
	Role      provider.MessageRole `json:"role"`
	Content   string               `json:"content"`
	Timestamp time.Time            `json:"timestamp"`
}

// Session is a point-in-time snapshot of one conversation.
type Session struct {
	ID           string
	Messages     []Message
	TotalTokens  int
	Context      string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Entry is a message staged for a Commit; the store stamps it.
type Entry struct {
	Role    provider.MessageRole
	Content string
}

// Commit is an all-or-nothing update: every entry is appended in order and
// Tokens is added to the running total, or nothing changes.
type Commit struct {
	Entries []Entry
	Tokens  int
}

// Store manages session state. Implementations must be safe for concurrent
// use and keep each session isolated from every other.
type Store interface {
	// GetOrCreate returns the session, creating an empty one on first use.
	GetOrCreate(id string) (Session, error)

	// Get returns the session or ErrNotFound.
	Get(id string) (Session, error)

	// AppendMessage appends one message stamped with the current time.
	AppendMessage(id string, role provider.MessageRole, content string) error

	// AddTokens adds count to the running total. Negative counts fail
	// with ErrInvalidArgument.
	AddTokens(id string, count int) error

	// SetContext replaces the session context wholesale.
	SetContext(id string, text string) error

	// History returns the message log in append order.
	History(id string) ([]Message, error)

	// Commit applies c atomically.
	Commit(id string, c Commit) error

	// Delete discards the session. Unknown IDs are a no-op.
	Delete(id string) error

	// Prune discards sessions idle for longer than maxIdle.
	Prune(maxIdle time.Duration) (int, error)

	// List returns snapshots of every live session, oldest first.
	List() ([]Session, error)
}

func validateID(id string) error {
	if id == "" {
		return errors.Join(ErrInvalidArgument, errors.New("empty session id"))
	}
	return nil
}

func validateEntry(e Entry) error {
	if !e.Role.Valid() {
		return errors.Join(ErrInvalidArgument, errors.New("unknown role "+string(e.Role)))
	}
	return nil
}

// ValidateCommit checks c without applying it. Store implementations call
// it before taking any lock or opening a transaction.
func ValidateCommit(id string, c Commit) error {
	if err := validateID(id); err != nil {
		return err
	}
	if c.Tokens < 0 {
		return errors.Join(ErrInvalidArgument, errors.New("negative token count"))
	}
	for _, e := range c.Entries {
		if err := validateEntry(e); err != nil {
			return err
		}
	}
	return nil
}
