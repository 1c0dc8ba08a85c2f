package tokenizer

import (
	"testing"

	"github.com/tiktoken-go/tokenizer"
)

func TestCharCounter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"ñandú", 2},
	}
	for _, tt := range tests {
		if got := (CharCounter{}).Count(tt.text, "gpt-3.5-turbo"); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEncodingFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  tokenizer.Encoding
	}{
		{"gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"gpt-4", tokenizer.Cl100kBase},
		{"gpt-4o", tokenizer.O200kBase},
		{"GPT-4o-mini", tokenizer.O200kBase},
		{"o3-mini", tokenizer.O200kBase},
		{"unknown", tokenizer.Cl100kBase},
	}
	for _, tt := range tests {
		if got := EncodingFor(tt.model); got != tt.want {
			t.Errorf("EncodingFor(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestTiktoken_Count(t *testing.T) {
	t.Parallel()

	tk := NewTiktoken(nil)
	if got := tk.Count("", "gpt-3.5-turbo"); got != 0 {
		t.Errorf("empty = %d, want 0", got)
	}

	short := tk.Count("hello", "gpt-3.5-turbo")
	long := tk.Count("hello world, how do I reset servo alarm SRVO-023 on an R-30iB controller?", "gpt-3.5-turbo")
	if short < 1 || long <= short {
		t.Errorf("counts not monotonic: short=%d long=%d", short, long)
	}
	if again := tk.Count("hello", "gpt-3.5-turbo"); again != short {
		t.Errorf("cached codec changed count: %d vs %d", again, short)
	}
}
