package gateway

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/security"
	"github.com/itesm-showroom/showroom/internal/session"
)

// defaultKeyPoints is used when a key point request names no count.
const defaultKeyPoints = 5

// SessionView summarizes one session.
type SessionView struct {
	ID           string    `json:"session_id"`
	Messages     int       `json:"messages"`
	TotalTokens  int       `json:"total_tokens"`
	HasContext   bool      `json:"has_context"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

func viewOf(s session.Session) SessionView {
	return SessionView{
		ID:           s.ID,
		Messages:     len(s.Messages),
		TotalTokens:  s.TotalTokens,
		HasContext:   s.Context != "",
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
	}
}

// MessageRequest is the body of POST /api/sessions/{id}/messages.
type MessageRequest struct {
	Text      string  `json:"text"`
	Assistant string  `json:"assistant,omitempty"`
	Context   *string `json:"context,omitempty"`
}

// MessageResponse is a committed turn.
type MessageResponse struct {
	Answer      string `json:"answer"`
	TokensUsed  int    `json:"tokens_used"`
	TotalTokens int    `json:"total_tokens"`
	Estimated   bool   `json:"estimated,omitempty"`
	Model       string `json:"model,omitempty"`
}

func responseOf(res conversation.Result) MessageResponse {
	return MessageResponse{
		Answer:      res.Answer,
		TokensUsed:  res.TokensUsed,
		TotalTokens: res.TotalTokens,
		Estimated:   res.Estimated,
		Model:       res.Model,
	}
}

// KeyPointsRequest is the body of POST /api/sessions/{id}/keypoints.
type KeyPointsRequest struct {
	Text   string `json:"text,omitempty"`
	Count  int    `json:"count,omitempty"`
	Record bool   `json:"record,omitempty"`
}

// KeyPointsResponse carries the extracted key points.
type KeyPointsResponse struct {
	KeyPoints   string `json:"key_points"`
	TokensUsed  int    `json:"tokens_used"`
	TotalTokens int    `json:"total_tokens"`
}

// ContextResponse acknowledges a context upload.
type ContextResponse struct {
	SessionID  string `json:"session_id"`
	Characters int    `json:"characters"`
}

func (g *Gateway) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.store.GetOrCreate(g.newID())
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.logger.Info("session created", "session_id", sess.ID)
		writeJSON(w, http.StatusCreated, viewOf(sess))
	}
}

func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := g.store.List()
		if err != nil {
			g.fail(w, r, err)
			return
		}
		out := make([]SessionView, 0, len(list))
		for _, s := range list {
			out = append(out, viewOf(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.store.Get(chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(sess))
	}
}

func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := g.store.Get(id); err != nil {
			g.fail(w, r, err)
			return
		}
		if err := g.store.Delete(id); err != nil {
			g.fail(w, r, err)
			return
		}
		g.limiter.Forget(id)
		g.logger.Info("session ended", "session_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (g *Gateway) handleSubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req MessageRequest
		if err := security.ReadJSON(r.Body, &req); err != nil {
			g.fail(w, r, err)
			return
		}
		if err := g.limiter.AllowMessage(id); err != nil {
			g.fail(w, r, err)
			return
		}

		res, err := g.engine.Submit(r.Context(), conversation.Request{
			SessionID: id,
			Text:      req.Text,
			Assistant: req.Assistant,
			Context:   req.Context,
		})
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.limiter.RecordTokens(id, res.TokensUsed)
		writeJSON(w, http.StatusOK, responseOf(res))
	}
}

func (g *Gateway) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := g.store.Get(id); err != nil {
			g.fail(w, r, err)
			return
		}
		msgs, err := g.store.History(id)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		if msgs == nil {
			msgs = []session.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func (g *Gateway) handleSetContext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxUploadBytes)

		filename, contentType, body, err := upload(r)
		if err != nil {
			g.fail(w, r, err)
			return
		}
		defer func() { _ = body.Close() }()

		text, err := g.extractor.File(filename, contentType, body)
		if err != nil {
			g.logger.Info("context upload rejected", "session_id", id, "filename", filename, "error", err)
			g.fail(w, r, err)
			return
		}
		if err := g.store.SetContext(id, text); err != nil {
			g.fail(w, r, err)
			return
		}
		g.logger.Info("session context set", "session_id", id, "filename", filename)
		writeJSON(w, http.StatusOK, ContextResponse{SessionID: id, Characters: utf8.RuneCountInString(text)})
	}
}

var (
	errMissingFile = errors.New("gateway: missing file field")
	errBadUpload   = errors.New("gateway: malformed upload")
)

// upload returns the document of a context upload: either the "file" part
// of a multipart form or the raw body, named by the filename query
// parameter.
func upload(r *http.Request) (string, string, io.ReadCloser, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.URL.Query().Get("filename"), r.Header.Get("Content-Type"), r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %w", errBadUpload, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", "", nil, errMissingFile
		}
		if err != nil {
			return "", "", nil, fmt.Errorf("%w: %w", errBadUpload, err)
		}
		if part.FormName() == "file" {
			return part.FileName(), part.Header.Get("Content-Type"), part, nil
		}
		_ = part.Close()
	}
}

func (g *Gateway) handleKeyPoints() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req KeyPointsRequest
		if err := security.ReadJSON(r.Body, &req); err != nil {
			g.fail(w, r, err)
			return
		}
		if req.Count == 0 {
			req.Count = defaultKeyPoints
		}
		if err := g.limiter.AllowMessage(id); err != nil {
			g.fail(w, r, err)
			return
		}

		res, err := g.engine.KeyPoints(r.Context(), conversation.KeyPointsRequest{
			SessionID: id,
			Text:      req.Text,
			Count:     req.Count,
			Record:    req.Record,
		})
		if err != nil {
			g.fail(w, r, err)
			return
		}
		g.limiter.RecordTokens(id, res.TokensUsed)
		writeJSON(w, http.StatusOK, KeyPointsResponse{
			KeyPoints:   res.Answer,
			TokensUsed:  res.TokensUsed,
			TotalTokens: res.TotalTokens,
		})
	}
}

func (g *Gateway) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := g.store.Get(chi.URLParam(r, "id"))
		if err != nil {
			g.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": session.TranscriptFilename,
		}))
		if _, err := session.NewTranscript(sess, g.now()).WriteTo(w); err != nil {
			g.logger.Warn("export write failed", "session_id", sess.ID, "error", err)
		}
	}
}
