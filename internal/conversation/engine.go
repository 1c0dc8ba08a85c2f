// Package conversation implements the request/response cycle of a chat
// session: it validates the utterance, assembles a bounded prompt, calls the
// text-generation service and commits the exchange to the session store
// only when the call fully succeeds.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/itesm-showroom/showroom/internal/prompt"
	"github.com/itesm-showroom/showroom/internal/provider"
	"github.com/itesm-showroom/showroom/internal/session"
	"github.com/itesm-showroom/showroom/internal/tokenizer"
)

// Observer receives the outcome of every engine call. Implementations must
// be safe for concurrent use.
type Observer interface {
	ObserveCall(op, assistant, outcome string, tokens int, elapsed time.Duration)
	ObserveRetry(kind ErrorKind)
}

type nopObserver struct{}

func (nopObserver) ObserveCall(string, string, string, int, time.Duration) {}
func (nopObserver) ObserveRetry(ErrorKind)                                 {}

// Deps are the collaborators of an Engine. Provider and Store are required.
type Deps struct {
	Provider  provider.Provider
	Store     session.Store
	Templates *prompt.Registry
	Assembler *prompt.Assembler
	Counter   tokenizer.Counter
	Lanes     *session.Lanes
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Observer  Observer

	// Redact scrubs secrets from messages shown to users.
	Redact func(string) string
}

// Request is one user turn.
type Request struct {
	SessionID string
	Text      string

	// Assistant names the prompt template; empty selects the default.
	Assistant string

	// Context overrides the stored session context for this turn only.
	Context *string
}

// Result is a committed turn.
type Result struct {
	Answer     string
	TokensUsed int

	// TotalTokens is the session total after the commit.
	TotalTokens int

	// Estimated is true when TokensUsed came from the local tokenizer.
	Estimated bool
	Model     string
}

// Engine runs conversation turns. It is safe for concurrent use; turns on
// the same session are serialized.
type Engine struct {
	provider  provider.Provider
	store     session.Store
	templates *prompt.Registry
	assembler *prompt.Assembler
	counter   tokenizer.Counter
	lanes     *session.Lanes
	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer
	redact    func(string) string
	cfg       Config

	now func() time.Time
}

// New validates deps and cfg and returns an Engine.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Provider == nil {
		return nil, errors.Join(ErrInvalidArgument, errors.New("provider is required"))
	}
	if deps.Store == nil {
		return nil, errors.Join(ErrInvalidArgument, errors.New("store is required"))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		provider:  deps.Provider,
		store:     deps.Store,
		templates: deps.Templates,
		assembler: deps.Assembler,
		counter:   deps.Counter,
		lanes:     deps.Lanes,
		logger:    deps.Logger,
		tracer:    deps.Tracer,
		observer:  deps.Observer,
		redact:    deps.Redact,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
	if e.templates == nil {
		reg, err := prompt.NewRegistry(nil)
		if err != nil {
			return nil, err
		}
		e.templates = reg
	}
	if e.counter == nil {
		e.counter = tokenizer.CharCounter{}
	}
	if e.assembler == nil {
		e.assembler = prompt.NewAssembler(e.counter, prompt.Window{})
	}
	if e.lanes == nil {
		e.lanes = session.NewLanes()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("showroom/conversation")
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}
	if e.redact == nil {
		e.redact = func(s string) string { return s }
	}
	return e, nil
}

// Templates returns the assistant registry used by the engine.
func (e *Engine) Templates() *prompt.Registry {
	return e.templates
}

// turn is a validated, assembled request ready to send.
type turn struct {
	sessionID string
	userText  string
	assistant string
	template  prompt.Template
	built     prompt.Built
	request   provider.CompletionRequest
	before    session.Session
	record    bool
}

// prepare validates req and builds the outbound prompt. It must run under
// the session lane.
func (e *Engine) prepare(req Request) (*turn, error) {
	tmpl, err := e.templates.Get(req.Assistant)
	if err != nil {
		return nil, errors.Join(ErrInvalidArgument, err)
	}

	sess, err := e.store.GetOrCreate(req.SessionID)
	if err != nil {
		return nil, err
	}

	ctxText := sess.Context
	if req.Context != nil {
		ctxText = *req.Context
	}

	built := e.assembler.Build(prompt.Request{
		Template: tmpl,
		History:  sess.Messages,
		Question: req.Text,
		Context:  ctxText,
	})
	if built.Dropped > 0 {
		e.logger.Debug("prompt window dropped history",
			"session_id", req.SessionID,
			"dropped", built.Dropped,
		)
	}

	return &turn{
		sessionID: req.SessionID,
		userText:  req.Text,
		assistant: tmpl.Name,
		template:  tmpl,
		built:     built,
		request: provider.CompletionRequest{
			Model:       tmpl.Model,
			Messages:    built.Messages,
			MaxTokens:   tmpl.MaxTokens,
			Temperature: tmpl.Temperature,
		},
		before: sess,
		record: true,
	}, nil
}

func validate(req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyInput
	}
	if req.SessionID == "" {
		return errors.Join(ErrInvalidArgument, errors.New("empty session id"))
	}
	return nil
}

// Submit runs one non-streaming turn. On any failure the session is left
// exactly as it was.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	start := e.now()
	ctx, span := e.startSpan(ctx, "conversation.submit", req.SessionID, req.Assistant)
	defer span.End()

	res, err := e.submit(ctx, req)
	e.finish(span, "submit", assistantLabel(req.Assistant), start, res, err)
	return res, err
}

func (e *Engine) submit(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	release, err := e.lanes.Acquire(ctx, req.SessionID)
	if err != nil {
		return Result{}, err
	}
	defer release()

	t, err := e.prepare(req)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.completeWithRetry(callCtx, t.request)
	if err != nil {
		return Result{}, e.classify(ctx, err)
	}
	return e.commit(ctx, t, resp.Content, resp.Usage, resp.Model)
}

// commit applies the staged exchange. A caller that has gone away by now
// gets its context error and nothing is written.
func (e *Engine) commit(ctx context.Context, t *turn, answer string, usage provider.TokenUsage, model string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Answer: answer, Model: model, TokensUsed: usage.Total()}
	if res.Model == "" {
		res.Model = t.request.Model
	}
	if res.TokensUsed == 0 {
		res.TokensUsed = e.counter.Count(t.built.Text()+"\n"+answer, res.Model)
		res.Estimated = true
	}

	if !t.record {
		res.TotalTokens = t.before.TotalTokens
		return res, nil
	}

	c := session.Commit{
		Entries: []session.Entry{
			{Role: provider.MessageRoleUser, Content: t.userText},
			{Role: provider.MessageRoleAssistant, Content: answer},
		},
		Tokens: res.TokensUsed,
	}
	if err := e.store.Commit(t.sessionID, c); err != nil {
		return Result{}, err
	}
	res.TotalTokens = t.before.TotalTokens + res.TokensUsed
	return res, nil
}

func (e *Engine) startSpan(ctx context.Context, name, sessionID, assistant string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("assistant", assistantLabel(assistant)),
	))
}

func assistantLabel(name string) string {
	if name == "" {
		return prompt.DefaultTemplate
	}
	return name
}

// finish records the outcome on the span, the observer and the log.
func (e *Engine) finish(span trace.Span, op, assistant string, start time.Time, res Result, err error) {
	elapsed := e.now().Sub(start)
	outcome := outcomeOf(err)
	e.observer.ObserveCall(op, assistant, outcome, res.TokensUsed, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		level := slog.LevelWarn
		if errors.Is(err, ErrEmptyInput) || errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		e.logger.Log(context.Background(), level, "conversation call failed",
			"op", op,
			"assistant", assistant,
			"outcome", outcome,
			"error", err,
		)
		return
	}

	span.SetAttributes(
		attribute.Int("tokens.used", res.TokensUsed),
		attribute.Int("tokens.total", res.TotalTokens),
		attribute.Bool("tokens.estimated", res.Estimated),
	)
	e.logger.Info("conversation call completed",
		"op", op,
		"assistant", assistant,
		"model", res.Model,
		"tokens", res.TokensUsed,
		"estimated", res.Estimated,
		"elapsed", elapsed,
	)
}

func outcomeOf(err error) string {
	var se *ServiceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, session.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &se):
		return string(se.Kind)
	default:
		return "error"
	}
}
