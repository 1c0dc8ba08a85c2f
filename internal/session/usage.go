package session

import "time"

// SessionUsage is the accounting line of one session.
type SessionUsage struct {
	ID           string    `json:"session_id"`
	Messages     int       `json:"messages"`
	TotalTokens  int       `json:"total_tokens"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Usage aggregates token accounting across sessions. Token counts are
// best-effort: they come from the service when it reports usage and from a
// local estimate otherwise.
type Usage struct {
	Sessions    []SessionUsage `json:"sessions"`
	TotalTokens int            `json:"total_tokens"`
}

// Summarize collects per-session totals from st.
func Summarize(st Store) (Usage, error) {
	list, err := st.List()
	if err != nil {
		return Usage{}, err
	}

	u := Usage{Sessions: make([]SessionUsage, 0, len(list))}
	for _, s := range list {
		u.Sessions = append(u.Sessions, SessionUsage{
			ID:           s.ID,
			Messages:     len(s.Messages),
			TotalTokens:  s.TotalTokens,
			LastActiveAt: s.LastActiveAt,
		})
		u.TotalTokens += s.TotalTokens
	}
	return u, nil
}
