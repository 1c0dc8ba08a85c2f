// Package mcpserver exposes conversation sessions as Model Context Protocol
// tools served over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/itesm-showroom/showroom/internal/conversation"
	"github.com/itesm-showroom/showroom/internal/extract"
	"github.com/itesm-showroom/showroom/internal/security"
	"github.com/itesm-showroom/showroom/internal/session"
)

const defaultKeyPoints = 5

// Server wraps an MCP server whose tools drive a conversation engine.
type Server struct {
	engine    *conversation.Engine
	store     session.Store
	extractor extract.Extractor
	logger    *slog.Logger
	mcp       *server.MCPServer
}

// New registers the tools and returns a Server.
func New(engine *conversation.Engine, store session.Store, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		engine: engine,
		store:  store,
		logger: logger.With("component", "mcp"),
		mcp: server.NewMCPServer("showroom", version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Ask an assistant a question within a conversation session. The exchange is kept in the session history."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session identifier")),
		mcp.WithString("text", mcp.Required(), mcp.Description("The question")),
		mcp.WithString("assistant", mcp.Description("Assistant persona"), mcp.Enum(engine.Templates().Names()...)),
		mcp.WithString("context", mcp.Description("Reference text for this question only")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("key_points",
		mcp.WithDescription("Extract bullet-style key points from a text or from a session's stored context."),
		mcp.WithString("text", mcp.Description("Text to summarize; defaults to the session context")),
		mcp.WithString("session_id", mcp.Description("Session whose context is used or where the exchange is recorded")),
		mcp.WithNumber("count", mcp.Description("Number of key points"), mcp.Min(conversation.MinKeyPoints), mcp.Max(conversation.MaxKeyPoints), mcp.DefaultNumber(defaultKeyPoints)),
		mcp.WithBoolean("record", mcp.Description("Record the exchange in the session history")),
	), s.handleKeyPoints)

	s.mcp.AddTool(mcp.NewTool("set_context",
		mcp.WithDescription("Replace a session's reference context with a text or a local document (txt, md, docx, pdf)."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session identifier")),
		mcp.WithString("text", mcp.Description("Context text")),
		mcp.WithString("path", mcp.Description("Path of a document to extract the context from")),
	), s.handleSetContext)

	s.mcp.AddTool(mcp.NewTool("history",
		mcp.WithDescription("Return a session's messages as JSON."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation session identifier")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleHistory)

	s.mcp.AddTool(mcp.NewTool("usage",
		mcp.WithDescription("Return per-session token usage as JSON."),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleUsage)

	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Serve speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp server ready")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := sessionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	creq := conversation.Request{
		SessionID: id,
		Text:      text,
		Assistant: req.GetString("assistant", ""),
	}
	if c, ok := req.GetArguments()["context"].(string); ok {
		creq.Context = &c
	}

	res, err := s.engine.Submit(ctx, creq)
	if err != nil {
		return s.toolError("ask", err), nil
	}
	return mcp.NewToolResultText(res.Answer), nil
}

func (s *Server) handleKeyPoints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.engine.KeyPoints(ctx, conversation.KeyPointsRequest{
		SessionID: req.GetString("session_id", ""),
		Text:      req.GetString("text", ""),
		Count:     req.GetInt("count", defaultKeyPoints),
		Record:    req.GetBool("record", false),
	})
	if err != nil {
		return s.toolError("key_points", err), nil
	}
	return mcp.NewToolResultText(res.Answer), nil
}

func (s *Server) handleSetContext(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := sessionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := req.GetString("text", "")
	if path := req.GetString("path", ""); path != "" {
		text, err = s.readDocument(path)
		if err != nil {
			return s.toolError("set_context", err), nil
		}
	}
	if err := s.store.SetContext(id, text); err != nil {
		return s.toolError("set_context", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("context set (%d characters)", len([]rune(text)))), nil
}

func (s *Server) readDocument(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return s.extractor.File(path, "", f)
}

func (s *Server) handleHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := sessionArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := s.store.History(id)
	if err != nil {
		return s.toolError("history", err), nil
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	return jsonResult(msgs)
}

func (s *Server) handleUsage(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	usage, err := session.Summarize(s.store)
	if err != nil {
		return s.toolError("usage", err), nil
	}
	return jsonResult(usage)
}

// sessionArg returns the required, well-formed session_id argument.
func sessionArg(req mcp.CallToolRequest) (string, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return "", err
	}
	if err := security.ValidateSessionID(id); err != nil {
		return "", err
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports err to the client as a failed tool call.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var se *conversation.ServiceError
	switch {
	case errors.As(err, &se):
		return mcp.NewToolResultErrorf("service error (%s): %s", se.Kind, se.Message)
	case errors.Is(err, conversation.ErrEmptyInput):
		return mcp.NewToolResultError("text is empty")
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return mcp.NewToolResultError("unsupported file type")
	default:
		s.logger.Warn("tool failed", "tool", tool, "error", err)
		return mcp.NewToolResultError(err.Error())
	}
}
