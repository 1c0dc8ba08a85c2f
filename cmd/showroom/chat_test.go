package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itesm-showroom/showroom/internal/config"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/provider/providertest"
	"github.com/itesm-showroom/showroom/internal/session"
	"github.com/itesm-showroom/showroom/modules/provider/openai"
	"github.com/itesm-showroom/showroom/pkg/app"
)

// script replays fixed input lines, then reports EOF.
type script struct {
	lines []string
}

func (s *script) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func newChat(t *testing.T, lines ...string) (*chat, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Version: config.Version,
		Providers: []config.ProviderConfig{{
			Name:   "openai",
			OpenAI: openai.Config{APIKey: testKey},
		}},
	}
	cfg.Prompt.Estimator = config.EstimatorChars
	cfg.ApplyDefaults()

	rt, err := app.Build(context.Background(), cfg, app.Options{
		LogOutput: io.Discard,
		ProviderOverride: &providertest.MockProvider{
			CompleteFunc: providertest.Reply("Check the pulsecoder cable.",
				provider.TokenUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}),
		},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	var out bytes.Buffer
	return &chat{
		rt:        rt,
		in:        &script{lines: lines},
		out:       &out,
		sessionID: "chat-1",
		assistant: "fanuc",
		now:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}, &out
}

func TestChat_Conversation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	doc := filepath.Join(dir, "alarms.txt")
	if err := os.WriteFile(doc, []byte("SRVO-023 means stop error excess."), 0o600); err != nil {
		t.Fatal(err)
	}
	export := filepath.Join(dir, "out.json")

	c, out := newChat(t,
		"/usage",
		"   ",
		"/context "+doc,
		"How do I reset SRVO-023?",
		"/keypoints 3",
		"/usage",
		"/export "+export,
		"/quit",
		"never read",
	)
	if err := c.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	text := out.String()
	for _, want := range []string{
		"Hello! I am your Fanuc Robot Assistant.",
		"no messages yet",
		"please enter a message",
		"context set (33 characters)",
		"Check the pulsecoder cable.",
		"session chat-1: tokens used 52, total 52",
		"session chat-1: tokens used 52, total 104",
		"session chat-1: 4 messages, 104 tokens",
		"transcript written to " + export,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	raw, err := os.ReadFile(export)
	if err != nil {
		t.Fatal(err)
	}
	var tr session.Transcript
	if err := json.Unmarshal(raw, &tr); err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if tr.SessionID != "chat-1" || tr.TotalTokens != 104 || len(tr.Messages) != 4 {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestChat_Commands(t *testing.T) {
	t.Parallel()

	c, out := newChat(t, "/help", "/new", "/keypoints many", "/context", "/bogus")
	if err := c.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"/keypoints [n]", "new session", `invalid count "many"`, "usage: /context <file>", "unknown command /bogus"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if c.sessionID == "chat-1" {
		t.Error("/new kept the old session")
	}
}
