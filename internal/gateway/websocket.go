package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/security"
)

// StreamFrame is one server-to-client websocket message. A turn yields zero
// or more "text" frames followed by one "done" or "error" frame.
type StreamFrame struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Answer      string `json:"answer,omitempty"`
	TokensUsed  int    `json:"tokens_used,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty"`
	Estimated   bool   `json:"estimated,omitempty"`
	Error       string `json:"error,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// handleStream upgrades to a websocket and runs one streamed turn per
// MessageRequest received from the client.
func (g *Gateway) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Streams outlive the server's per-request deadlines.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.config.AllowedOrigins,
		})
		if err != nil {
			g.logger.Warn("websocket accept failed", "session_id", id, "error", err)
			return
		}
		defer func() { _ = conn.CloseNow() }()
		conn.SetReadLimit(security.DefaultMaxMessageSize)

		ctx := r.Context()
		g.logger.Debug("websocket connected", "session_id", id, "remote_addr", r.RemoteAddr)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != -1 {
					g.logger.Debug("websocket closed by client", "session_id", id)
				} else {
					g.logger.Debug("websocket read error", "session_id", id, "error", err)
				}
				return
			}

			var req MessageRequest
			if err := security.DecodeJSON(data, &req); err != nil {
				if g.writeFrame(ctx, conn, g.errorFrame(id, err)) != nil {
					return
				}
				continue
			}
			if err := g.streamTurn(ctx, conn, id, req); err != nil {
				g.logger.Debug("websocket turn aborted", "session_id", id, "error", err)
				return
			}
		}
	}
}

// streamTurn forwards one turn to the client. A write failure cancels the
// turn, which then commits nothing.
func (g *Gateway) streamTurn(ctx context.Context, conn *websocket.Conn, id string, req MessageRequest) error {
	if err := g.limiter.AllowMessage(id); err != nil {
		return g.writeFrame(ctx, conn, g.errorFrame(id, err))
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := g.engine.Stream(turnCtx, conversation.Request{
		SessionID: id,
		Text:      req.Text,
		Assistant: req.Assistant,
		Context:   req.Context,
	})
	if err != nil {
		return g.writeFrame(ctx, conn, g.errorFrame(id, err))
	}

	for ev := range events {
		var frame StreamFrame
		switch ev.Type {
		case conversation.EventText:
			frame = StreamFrame{Type: string(conversation.EventText), Text: ev.Text}
		case conversation.EventDone:
			g.limiter.RecordTokens(id, ev.Result.TokensUsed)
			frame = StreamFrame{
				Type:        string(conversation.EventDone),
				Answer:      ev.Result.Answer,
				TokensUsed:  ev.Result.TokensUsed,
				TotalTokens: ev.Result.TotalTokens,
				Estimated:   ev.Result.Estimated,
			}
		case conversation.EventError:
			frame = g.errorFrame(id, ev.Err)
		}
		if err := g.writeFrame(ctx, conn, frame); err != nil {
			cancel()
			for range events {
			}
			return err
		}
	}
	return ctx.Err()
}

func (g *Gateway) errorFrame(id string, err error) StreamFrame {
	status, msg, kind := statusOf(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("websocket turn failed", "session_id", id, "error", err)
	}
	return StreamFrame{Type: string(conversation.EventError), Error: msg, Kind: kind}
}

func (g *Gateway) writeFrame(ctx context.Context, conn *websocket.Conn, frame StreamFrame) error {
	ctx, cancel := context.WithTimeout(ctx, g.config.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, frame)
}
