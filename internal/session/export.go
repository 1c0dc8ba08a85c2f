package session

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// TranscriptFilename is the suggested download name for an exported
// transcript.
const TranscriptFilename = "chat_history.json"

// Transcript is the portable JSON form of a session.
type Transcript struct {
	SessionID   string    `json:"session_id"`
	Messages    []Message `json:"messages"`
	TotalTokens int       `json:"total_tokens"`
	ExportedAt  time.Time `json:"exported_at"`
}

// NewTranscript builds the export document for sess at time at.
func NewTranscript(sess Session, at time.Time) Transcript {
	msgs := sess.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	return Transcript{
		SessionID:   sess.ID,
		Messages:    msgs,
		TotalTokens: sess.TotalTokens,
		ExportedAt:  at.UTC(),
	}
}

// WriteTo encodes the transcript as indented JSON.
func (t Transcript) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("session: encode transcript: %w", err)
	}
	data = append(data, '\n')
	n, err := w.Write(data)
	return int64(n), err
}
