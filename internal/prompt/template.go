// Package prompt turns a session's history, its reference context and a new
// question into the message list sent to the text-generation service.
package prompt

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Mode selects how history is used.
type Mode string

const (
	// ModeChat sends the prior history before the question.
	ModeChat Mode = "chat"
	// ModeSingle answers each question on its own.
	ModeSingle Mode = "single"
)

// DefaultTemplate is used when a caller names no assistant.
const DefaultTemplate = "general"

const (
	defaultContextFormat  = "Context:\n{context}\n\nQuestion: {question}\n\nAnswer:"
	defaultContextFraming = "Use the following context to answer the user's questions. If the answer is not in the context, say so.\n\n{context}"
)

// ErrUnknownTemplate is returned for an unregistered assistant name.
var ErrUnknownTemplate = errors.New("prompt: unknown assistant")

// Template describes one assistant persona. It is a value object: the
// engine is parameterized by it rather than specialized per persona.
type Template struct {
	Name         string `yaml:"-" json:"name"`
	Description  string `yaml:"description" json:"description"`
	Greeting     string `yaml:"greeting" json:"greeting,omitempty"`
	SystemPrompt string `yaml:"system_prompt" json:"-"`

	// ContextFormat builds the user turn in single mode when context is
	// present. Placeholders: {context}, {question}.
	ContextFormat string `yaml:"context_format" json:"-"`

	// ContextFraming builds the system message carrying the context in
	// chat mode. Placeholder: {context}.
	ContextFraming string `yaml:"context_framing" json:"-"`

	Mode        Mode     `yaml:"mode" json:"mode"`
	Model       string   `yaml:"model" json:"model,omitempty"`
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens" json:"max_tokens,omitempty"`
}

func (t Template) withDefaults() Template {
	if t.Mode == "" {
		t.Mode = ModeChat
	}
	if t.ContextFormat == "" {
		t.ContextFormat = defaultContextFormat
	}
	if t.ContextFraming == "" {
		t.ContextFraming = defaultContextFraming
	}
	return t
}

// Validate reports configuration mistakes in t.
func (t Template) Validate() error {
	var errs []error
	switch t.Mode {
	case "", ModeChat, ModeSingle:
	default:
		errs = append(errs, fmt.Errorf("assistant %q: mode must be chat or single, got %q", t.Name, t.Mode))
	}
	if t.ContextFormat != "" && !strings.Contains(t.ContextFormat, "{question}") {
		errs = append(errs, fmt.Errorf("assistant %q: context_format must contain {question}", t.Name))
	}
	if t.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant %q: max_tokens must be non-negative", t.Name))
	}
	if t.Temperature != nil && (*t.Temperature < 0 || *t.Temperature > 2) {
		errs = append(errs, fmt.Errorf("assistant %q: temperature must be within [0, 2]", t.Name))
	}
	return errors.Join(errs...)
}

func temp(v float64) *float64 { return &v }

// Builtins returns the stock assistants.
func Builtins() map[string]Template {
	return map[string]Template{
		"general": {
			Description:  "General purpose assistant",
			SystemPrompt: "You are a helpful assistant.",
			Mode:         ModeChat,
			Model:        "gpt-3.5-turbo",
			MaxTokens:    500,
		},
		"fanuc": {
			Description:  "FANUC robot troubleshooting",
			Greeting:     "Hello! I am your Fanuc Robot Assistant. How can I help you today?",
			SystemPrompt: "You are a Fanuc robot assistant. Help technicians diagnose FANUC robot alarms, controllers and maintenance procedures. Be precise and practical.",
			Mode:         ModeChat,
			Model:        "gpt-4",
			Temperature:  temp(0.7),
			MaxTokens:    500,
		},
		"manufacturing": {
			Description:   "Manufacturing document Q&A",
			ContextFormat: defaultContextFormat,
			Mode:          ModeSingle,
			Model:         "gpt-3.5-turbo",
			Temperature:   temp(1),
			MaxTokens:     500,
		},
		"finance": {
			Description:  "Financial services chatbot",
			SystemPrompt: "You are a helpful financial services chatbot.",
			Mode:         ModeSingle,
			Model:        "gpt-3.5-turbo",
		},
		"document": {
			Description:   "Questions about an uploaded document",
			SystemPrompt:  "You are a helpful assistant answering questions about a document.",
			ContextFormat: "Context: {context}\n\nQuestion: {question}",
			Mode:          ModeSingle,
			Model:         "gpt-3.5-turbo",
		},
	}
}

// Registry resolves assistant names to templates.
type Registry struct {
	templates map[string]Template
}

// NewRegistry returns the builtins overlaid with overrides. An override
// replaces the builtin of the same name entirely.
func NewRegistry(overrides map[string]Template) (*Registry, error) {
	all := Builtins()
	maps.Copy(all, overrides)

	var errs []error
	r := &Registry{templates: make(map[string]Template, len(all))}
	for name, t := range all {
		t.Name = name
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		r.templates[name] = t.withDefaults()
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the named template; an empty name selects DefaultTemplate.
func (r *Registry) Get(name string) (Template, error) {
	if name == "" {
		name = DefaultTemplate
	}
	t, ok := r.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	return t, nil
}

// Names lists registered assistants in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.templates))
}
