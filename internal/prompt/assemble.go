package prompt

import (
	"strconv"
	"strings"

	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
	"github.com/itesm-showroom/showroom/internal/tokenizer"
)

const (
	keyPointsSystem = "You are a helpful assistant that extracts key points from text."
	keyPointsFormat = "Extract {n} key points from the following text:\n\n{text}"
)

// Window bounds the history forwarded to the service. Zero fields are
// unbounded. Trimming only affects the outbound prompt; the stored log
// is never touched.
type Window struct {
	MaxHistoryMessages int `yaml:"max_history_messages"`
	MaxPromptTokens    int `yaml:"max_prompt_tokens"`
}

// Request is the input of one prompt build.
type Request struct {
	Template Template
	History  []session.Message
	Question string
	Context  string
}

// Built is the outbound prompt.
type Built struct {
	Messages []provider.LLMMessage

	// Dropped counts history messages left out by the window.
	Dropped int
}

// Text joins the message contents, as used for local usage estimates.
func (b Built) Text() string {
	parts := make([]string, len(b.Messages))
	for i, m := range b.Messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

// Assembler composes prompts.
type Assembler struct {
	counter tokenizer.Counter
	window  Window
}

// NewAssembler returns an assembler; a nil counter uses
// tokenizer.CharCounter for window accounting.
func NewAssembler(counter tokenizer.Counter, window Window) *Assembler {
	if counter == nil {
		counter = tokenizer.CharCounter{}
	}
	return &Assembler{counter: counter, window: window}
}

// Build composes the messages for req.
//
// Layout: system prompt, then (chat mode) the framed context and the
// windowed history, then the question. In single mode the context is
// folded into the question using the template's ContextFormat.
func (a *Assembler) Build(req Request) Built {
	t := req.Template.withDefaults()

	var head []provider.LLMMessage
	if t.SystemPrompt != "" {
		head = append(head, provider.LLMMessage{Role: provider.MessageRoleSystem, Content: t.SystemPrompt})
	}

	question := provider.LLMMessage{Role: provider.MessageRoleUser, Content: req.Question}
	var history []provider.LLMMessage

	switch t.Mode {
	case ModeSingle:
		if req.Context != "" {
			question.Content = strings.NewReplacer("{context}", req.Context, "{question}", req.Question).Replace(t.ContextFormat)
		}
	default:
		if req.Context != "" {
			head = append(head, provider.LLMMessage{
				Role:    provider.MessageRoleSystem,
				Content: strings.ReplaceAll(t.ContextFraming, "{context}", req.Context),
			})
		}
		history = toLLM(req.History)
	}

	kept := a.trim(head, history, question, t.Model)

	msgs := make([]provider.LLMMessage, 0, len(head)+len(kept)+1)
	msgs = append(msgs, head...)
	msgs = append(msgs, kept...)
	msgs = append(msgs, question)
	return Built{Messages: msgs, Dropped: len(history) - len(kept)}
}

// trim drops the oldest history messages until the window is satisfied.
// The fixed messages are always kept even if they alone exceed the budget.
func (a *Assembler) trim(head, history []provider.LLMMessage, question provider.LLMMessage, model string) []provider.LLMMessage {
	if n := a.window.MaxHistoryMessages; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	if a.window.MaxPromptTokens <= 0 {
		return history
	}

	fixed := a.counter.Count(question.Content, model)
	for _, m := range head {
		fixed += a.counter.Count(m.Content, model)
	}
	costs := make([]int, len(history))
	total := fixed
	for i, m := range history {
		costs[i] = a.counter.Count(m.Content, model)
		total += costs[i]
	}

	start := 0
	for total > a.window.MaxPromptTokens && start < len(history) {
		total -= costs[start]
		start++
	}
	return history[start:]
}

// KeyPoints composes the single-shot prompt that asks for n key points.
func KeyPoints(n int, text string) []provider.LLMMessage {
	user := strings.NewReplacer("{n}", strconv.Itoa(n), "{text}", text).Replace(keyPointsFormat)
	return []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: keyPointsSystem},
		{Role: provider.MessageRoleUser, Content: user},
	}
}

// KeyPointsInstruction is the user-visible form of a key points request,
// recorded in the session log when the caller asks for it.
func KeyPointsInstruction(n int) string {
	return "Extract " + strconv.Itoa(n) + " key points"
}

func toLLM(msgs []session.Message) []provider.LLMMessage {
	out := make([]provider.LLMMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.LLMMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
