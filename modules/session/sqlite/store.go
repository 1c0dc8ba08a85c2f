package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
)

// session.Store carries no context; queries use a background context and
// rely on busy_timeout for bounded waits.

// timeLayout is fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// ensure inserts the session row if missing and marks it active.
func (s *Store) ensure(ctx context.Context, tx *sql.Tx, id string, now time.Time) error {
	ts := formatTime(now)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, last_active_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_active_at = excluded.last_active_at`,
		id, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("sqlite: ensure session: %w", err)
	}
	return nil
}

func (s *Store) inTx(fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (s *Store) GetOrCreate(id string) (session.Session, error) {
	if err := session.ValidateCommit(id, session.Commit{}); err != nil {
		return session.Session{}, err
	}
	if err := s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		return s.ensure(ctx, tx, id, s.now())
	}); err != nil {
		return session.Session{}, err
	}
	return s.Get(id)
}

func (s *Store) Get(id string) (session.Session, error) {
	ctx := context.Background()
	var (
		sess             session.Session
		created, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, context, total_tokens, created_at, last_active_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Context, &sess.TotalTokens, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, session.ErrNotFound
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("sqlite: get session: %w", err)
	}
	sess.CreatedAt = parseTime(created)
	sess.LastActiveAt = parseTime(updated)

	if sess.Messages, err = s.History(id); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

func (s *Store) AppendMessage(id string, role provider.MessageRole, content string) error {
	return s.Commit(id, session.Commit{Entries: []session.Entry{{Role: role, Content: content}}})
}

func (s *Store) AddTokens(id string, count int) error {
	return s.Commit(id, session.Commit{Tokens: count})
}

func (s *Store) SetContext(id string, text string) error {
	if err := session.ValidateCommit(id, session.Commit{}); err != nil {
		return err
	}
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensure(ctx, tx, id, s.now()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET context = ? WHERE id = ?`, text, id); err != nil {
			return fmt.Errorf("sqlite: set context: %w", err)
		}
		return nil
	})
}

func (s *Store) History(id string) ([]session.Message, error) {
	if err := session.ValidateCommit(id, session.Commit{}); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT role, content, created_at FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []session.Message
	for rows.Next() {
		var (
			m    session.Message
			role string
			ts   string
		)
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.Role = provider.MessageRole(role)
		m.Timestamp = parseTime(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: history rows: %w", err)
	}
	return msgs, nil
}

func (s *Store) Commit(id string, c session.Commit) error {
	if err := session.ValidateCommit(id, c); err != nil {
		return err
	}

	now := s.now()
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensure(ctx, tx, id, now); err != nil {
			return err
		}
		for _, e := range c.Entries {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO messages (session_id, seq, role, content, created_at)
				VALUES (?, COALESCE((SELECT MAX(seq) FROM messages WHERE session_id = ?), 0) + 1, ?, ?, ?)`,
				id, id, string(e.Role), e.Content, formatTime(now),
			)
			if err != nil {
				return fmt.Errorf("sqlite: append message: %w", err)
			}
		}
		if c.Tokens > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE sessions SET total_tokens = total_tokens + ? WHERE id = ?`, c.Tokens, id); err != nil {
				return fmt.Errorf("sqlite: add tokens: %w", err)
			}
		}
		return nil
	})
}

// deleteOrphans removes messages whose session row is gone. The foreign
// key cascade only fires on connections with foreign_keys enabled.
func deleteOrphans(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id NOT IN (SELECT id FROM sessions)`); err != nil {
		return fmt.Errorf("sqlite: delete orphan messages: %w", err)
	}
	return nil
}

func (s *Store) Delete(id string) error {
	return s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: delete session: %w", err)
		}
		return deleteOrphans(ctx, tx)
	})
}

func (s *Store) Prune(maxIdle time.Duration) (int, error) {
	cutoff := formatTime(s.now().Add(-maxIdle))
	var n int64
	err := s.inTx(func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_active_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("sqlite: prune: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("sqlite: prune rows: %w", err)
		}
		return deleteOrphans(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug("pruned idle sessions", "count", n)
	}
	return int(n), nil
}

func (s *Store) List() ([]session.Session, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT id FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("sqlite: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list rows: %w", err)
	}

	out := make([]session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(id)
		if errors.Is(err, session.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}
