package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/itesm-showroom/showroom/internal/prompt"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
)

// KeyPointsRequest asks for Count bullet-style key points of Text.
type KeyPointsRequest struct {
	// SessionID is required when Record is set or Text is empty.
	SessionID string

	// Text to summarize; empty falls back to the stored session context.
	Text string

	// Count must be within [MinKeyPoints, MaxKeyPoints].
	Count int

	// Record appends the exchange and its usage to the session. When
	// false nothing is written.
	Record bool
}

// KeyPoints runs a single-shot key point extraction through the same
// service path as Submit.
func (e *Engine) KeyPoints(ctx context.Context, req KeyPointsRequest) (Result, error) {
	start := e.now()
	ctx, span := e.startSpan(ctx, "conversation.key_points", req.SessionID, "key_points")
	defer span.End()

	res, err := e.keyPoints(ctx, req)
	e.finish(span, "key_points", "key_points", start, res, err)
	return res, err
}

func (e *Engine) keyPoints(ctx context.Context, req KeyPointsRequest) (Result, error) {
	if req.Count < MinKeyPoints || req.Count > MaxKeyPoints {
		return Result{}, errors.Join(ErrInvalidArgument,
			fmt.Errorf("key point count %d outside [%d, %d]", req.Count, MinKeyPoints, MaxKeyPoints))
	}
	needSession := req.Record || strings.TrimSpace(req.Text) == ""
	if needSession && req.SessionID == "" {
		if strings.TrimSpace(req.Text) == "" {
			return Result{}, ErrEmptyInput
		}
		return Result{}, errors.Join(ErrInvalidArgument, errors.New("recording key points needs a session id"))
	}

	var before session.Session
	if needSession {
		release, err := e.lanes.Acquire(ctx, req.SessionID)
		if err != nil {
			return Result{}, err
		}
		defer release()

		sess, err := e.store.Get(req.SessionID)
		switch {
		case errors.Is(err, session.ErrNotFound):
		case err != nil:
			return Result{}, err
		default:
			before = sess
		}
	}

	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = before.Context
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyInput
	}

	tmpl, err := e.templates.Get(prompt.DefaultTemplate)
	if err != nil {
		return Result{}, err
	}

	msgs := prompt.KeyPoints(req.Count, text)
	t := &turn{
		sessionID: req.SessionID,
		userText:  prompt.KeyPointsInstruction(req.Count),
		assistant: "key_points",
		built:     prompt.Built{Messages: msgs},
		request: provider.CompletionRequest{
			Model:       tmpl.Model,
			Messages:    msgs,
			MaxTokens:   e.cfg.KeyPointsMaxTokens,
			Temperature: tmpl.Temperature,
		},
		before: before,
		record: req.Record,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.completeWithRetry(callCtx, t.request)
	if err != nil {
		return Result{}, e.classify(ctx, err)
	}
	return e.commit(ctx, t, resp.Content, resp.Usage, resp.Model)
}
