// Package tokenizer estimates token counts locally when the text-generation
// service does not report usage.
package tokenizer

import (
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts the tokens of text for a model.
type Counter interface {
	Count(text, model string) int
}

// charsPerToken is the rough ratio for English text used when no BPE
// encoding is available.
const charsPerToken = 4

// CharCounter approximates tokens from the rune count.
type CharCounter struct{}

// Count returns ceil(runes/4); empty text counts as zero.
func (CharCounter) Count(text, _ string) int {
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// Tiktoken counts with the BPE encoding of the model family and falls back
// to CharCounter when an encoding cannot be loaded or fails to encode.
type Tiktoken struct {
	logger *slog.Logger

	mu     sync.Mutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

var (
	_ Counter = CharCounter{}
	_ Counter = (*Tiktoken)(nil)
)

// NewTiktoken returns a counter that loads encodings lazily.
func NewTiktoken(logger *slog.Logger) *Tiktoken {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tiktoken{
		logger: logger,
		codecs: make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// EncodingFor maps a model name to its BPE encoding.
func EncodingFor(model string) tokenizer.Encoding {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		return tokenizer.O200kBase
	default:
		return tokenizer.Cl100kBase
	}
}

func (t *Tiktoken) codec(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.codecs[enc]; ok {
		return c, nil
	}
	c, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	t.codecs[enc] = c
	return c, nil
}

// Count returns the BPE token count of text for model.
func (t *Tiktoken) Count(text, model string) int {
	if text == "" {
		return 0
	}
	enc := EncodingFor(model)
	c, err := t.codec(enc)
	if err != nil {
		t.logger.Warn("tokenizer encoding unavailable, estimating", "encoding", enc, "error", err)
		return CharCounter{}.Count(text, model)
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		t.logger.Warn("tokenizer encode failed, estimating", "encoding", enc, "error", err)
		return CharCounter{}.Count(text, model)
	}
	return len(ids)
}
