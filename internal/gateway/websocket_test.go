package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/provider/providertest"
	"github.com/itesm-showroom/showroom/internal/security"
)

func dial(t *testing.T, tg *testGateway, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(t.Context(), "ws"+strings.TrimPrefix(tg.srv.URL, "http")+path, nil)
	if err != nil {
		t.Fatalf("Dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// turn sends one message and collects frames up to the terminal one.
func turn(t *testing.T, conn *websocket.Conn, msg any) []StreamFrame {
	t.Helper()
	if err := wsjson.Write(t.Context(), conn, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	var frames []StreamFrame
	for {
		var f StreamFrame
		if err := wsjson.Read(t.Context(), conn, &f); err != nil {
			t.Fatalf("read after %d frames: %v", len(frames), err)
		}
		frames = append(frames, f)
		if f.Type != "text" {
			return frames
		}
	}
}

func streamingProvider(chunks ...provider.StreamChunk) *providertest.MockProvider {
	return &providertest.MockProvider{
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return providertest.Chunks(chunks...), nil
		},
	}
}

func TestStream_CommitsOnDone(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, streamingProvider(
		provider.StreamChunk{Content: "Reset "},
		provider.StreamChunk{Content: "the alarm."},
		provider.StreamChunk{FinishReason: provider.FinishReasonStop, Usage: &provider.TokenUsage{PromptTokens: 30, CompletionTokens: 22, TotalTokens: 52}},
	), Config{})
	conn := dial(t, tg, "/ws/sessions/a")

	for i, want := range []int{52, 104} {
		frames := turn(t, conn, MessageRequest{Text: "How do I reset SRVO-023?", Assistant: "fanuc"})

		var text strings.Builder
		for _, f := range frames[:len(frames)-1] {
			text.WriteString(f.Text)
		}
		if text.String() != "Reset the alarm." {
			t.Errorf("turn %d streamed %q", i, text.String())
		}
		done := frames[len(frames)-1]
		if done.Type != "done" || done.Answer != "Reset the alarm." || done.TokensUsed != 52 || done.TotalTokens != want {
			t.Errorf("turn %d done = %+v", i, done)
		}
	}

	s, err := tg.store.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Messages) != 4 || s.TotalTokens != 104 {
		t.Errorf("session = %d messages, %d tokens", len(s.Messages), s.TotalTokens)
	}
}

func TestStream_ErrorsKeepConnection(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, streamingProvider(
		provider.StreamChunk{Content: "ok"},
		provider.StreamChunk{FinishReason: provider.FinishReasonStop, Usage: &provider.TokenUsage{TotalTokens: 5}},
	), Config{})
	conn := dial(t, tg, "/ws/sessions/a")

	tests := []struct {
		name     string
		msg      any
		wantKind string
	}{
		{"empty input", MessageRequest{Text: " "}, "empty_input"},
		{"unknown assistant", MessageRequest{Text: "hi", Assistant: "pirate"}, "invalid_argument"},
		{"unknown field", map[string]string{"text": "hi", "mood": "grumpy"}, ""},
	}
	for _, tt := range tests {
		frames := turn(t, conn, tt.msg)
		if len(frames) != 1 || frames[0].Type != "error" || frames[0].Kind != tt.wantKind || frames[0].Error == "" {
			t.Errorf("%s: frames = %+v", tt.name, frames)
		}
	}

	frames := turn(t, conn, MessageRequest{Text: "hi"})
	if last := frames[len(frames)-1]; last.Type != "done" || last.TotalTokens != 5 {
		t.Errorf("after errors: %+v", frames)
	}
}

func TestStream_MidStreamErrorCommitsNothing(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, streamingProvider(
		provider.StreamChunk{Content: "partial"},
		provider.StreamChunk{Err: provider.ErrProviderDown},
	), Config{})
	conn := dial(t, tg, "/ws/sessions/a")

	frames := turn(t, conn, MessageRequest{Text: "hi"})
	last := frames[len(frames)-1]
	if last.Type != "error" || last.Kind != "network" {
		t.Errorf("terminal frame = %+v", last)
	}

	if s, err := tg.store.Get("a"); err == nil && (len(s.Messages) != 0 || s.TotalTokens != 0) {
		t.Errorf("failed stream changed session: %+v", s)
	}
}

func TestStream_RateLimited(t *testing.T) {
	t.Parallel()

	p := streamingProvider(provider.StreamChunk{Content: "ok"}, provider.StreamChunk{FinishReason: provider.FinishReasonStop})
	tg := newTestGateway(t, p, Config{RateLimit: security.RateLimitConfig{MessagesPerMin: 1}})
	conn := dial(t, tg, "/ws/sessions/a")

	if frames := turn(t, conn, MessageRequest{Text: "one"}); frames[len(frames)-1].Type != "done" {
		t.Fatalf("first turn = %+v", frames)
	}
	frames := turn(t, conn, MessageRequest{Text: "two"})
	if len(frames) != 1 || frames[0].Kind != "rate_limit" {
		t.Errorf("second turn = %+v", frames)
	}
	if p.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", p.Calls())
	}
}

func TestStream_Auth(t *testing.T) {
	t.Parallel()

	tg := newTestGateway(t, streamingProvider(), Config{Auth: AuthConfig{BearerToken: "tok"}})

	_, resp, err := websocket.Dial(t.Context(), "ws"+strings.TrimPrefix(tg.srv.URL, "http")+"/ws/sessions/a", nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %+v", resp)
	}

	dial(t, tg, "/ws/sessions/a?access_token=tok")
}
