// Package security keeps credentials out of logs and user-facing errors and
// bounds how fast clients may drive the conversation engine.
package security

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys whose values are secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_?key|credential)`)

// Redactor scrubs API keys from strings. It matches known key formats by
// pattern and configured credentials by literal value. Safe for concurrent
// use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns and the given
// literal secrets.
func NewRedactor(literals ...string) *Redactor {
	r := &Redactor{patterns: DefaultPatterns()}
	for _, lit := range literals {
		r.AddLiteral(lit)
	}
	return r
}

// AddPattern registers an extra secret pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret value. Empty and very short values are
// ignored; replacing them would mangle ordinary text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 6 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lit := range r.literals {
		if lit == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(r.literals, func(i, j int) bool { return len(r.literals[i]) > len(r.literals[j]) })
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap scrubs a decoded config tree in place. Values under secret-like
// keys are replaced outright; other strings go through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if s, ok := v.(string); ok && s != "" && secretKeyPattern.MatchString(k) {
			m[k] = RedactPlaceholder
			continue
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i := range val {
			val[i] = r.redactValue(val[i])
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// DefaultPatterns matches OpenAI style keys and bearer credentials.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// sk-..., sk-proj-..., sk-svcacct-...
		regexp.MustCompile(`sk-(?:[a-z]+-)?[A-Za-z0-9_\-]{20,}`),
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{16,}`),
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	}
}
