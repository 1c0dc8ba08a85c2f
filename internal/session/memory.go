package session

import (
	"slices"
	"sync"
	"time"

	"github.com/itesm-showroom/showroom/internal/provider"
)

// MemoryStore is the in-process Store. Sessions live until deleted or
// pruned; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// getOrCreate must be called with s.mu held for writing.
func (s *MemoryStore) getOrCreate(id string) *Session {
	sess, ok := s.sessions[id]
	if !ok {
		now := s.now()
		sess = &Session{ID: id, CreatedAt: now, LastActiveAt: now}
		s.sessions[id] = sess
	}
	return sess
}

func snapshot(sess *Session) Session {
	out := *sess
	out.Messages = slices.Clone(sess.Messages)
	return out
}

func (s *MemoryStore) GetOrCreate(id string) (Session, error) {
	if err := validateID(id); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.getOrCreate(id)), nil
}

func (s *MemoryStore) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return snapshot(sess), nil
}

func (s *MemoryStore) AppendMessage(id string, role provider.MessageRole, content string) error {
	return s.Commit(id, Commit{Entries: []Entry{{Role: role, Content: content}}})
}

func (s *MemoryStore) AddTokens(id string, count int) error {
	return s.Commit(id, Commit{Tokens: count})
}

func (s *MemoryStore) SetContext(id string, text string) error {
	if err := validateID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreate(id)
	sess.Context = text
	sess.LastActiveAt = s.now()
	return nil
}

func (s *MemoryStore) History(id string) ([]Message, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return slices.Clone(sess.Messages), nil
}

func (s *MemoryStore) Commit(id string, c Commit) error {
	if err := ValidateCommit(id, c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := s.getOrCreate(id)
	for _, e := range c.Entries {
		sess.Messages = append(sess.Messages, Message{Role: e.Role, Content: e.Content, Timestamp: now})
	}
	sess.TotalTokens += c.Tokens
	sess.LastActiveAt = now
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Prune(maxIdle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActiveAt) > maxIdle {
			delete(s.sessions, id)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryStore) List() ([]Session, error) {
	s.mu.RLock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, snapshot(sess))
	}
	s.mu.RUnlock()

	sortByCreation(out)
	return out, nil
}

// Len returns the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func sortByCreation(list []Session) {
	slices.SortStableFunc(list, func(a, b Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
