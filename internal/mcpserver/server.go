// Package mcpserver exposes the council as an MCP tool over stdio.
package mcpserver

import (
	"bytes"
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/johnayoung/ai-council/internal/council"
	"github.com/johnayoung/ai-council/internal/output"
	"github.com/johnayoung/ai-council/internal/telemetry"
)

// ToolName is the name of the consultation tool.
const ToolName = "ai_council"

const toolDescription = "A tool that consults multiple AI models in parallel, then uses one of them to " +
	"synthesize the results into a single, high-quality answer. Use this for complex questions " +
	"requiring deep analysis and verification."

type (
	// Consulter runs a consultation. *council.Council implements it.
	Consulter interface {
		Consult(ctx context.Context, req council.Request) (*council.Outcome, error)
	}

	// Input is the argument object of the ai_council tool.
	Input struct {
		Context  string `json:"context" jsonschema:"Background information relevant to the question"`
		Question string `json:"question" jsonschema:"The question to put to the council"`
	}

	// Server serves the ai_council tool.
	Server struct {
		consulter Consulter
		logger    telemetry.Logger
		server    *mcp.Server
	}

	// Option configures a Server.
	Option func(*Server)
)

// WithLogger sets the logger.
func WithLogger(l telemetry.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server backed by c.
func New(c Consulter, version string, opts ...Option) *Server {
	s := &Server{
		consulter: c,
		logger:    telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{Name: "ai-council", Version: version}, nil)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolName,
		Description: toolDescription,
	}, s.consult)
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "serving MCP over stdio", "tool", ToolName)
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// consult answers a tool call with the JSON report. Aborted consultations
// are reported as tool errors carrying the per-model breakdown rather than as
// protocol errors.
func (s *Server) consult(ctx context.Context, _ *mcp.CallToolRequest, in Input) (*mcp.CallToolResult, any, error) {
	req := council.Request{Context: in.Context, Question: in.Question}

	var report output.Report
	outcome, err := s.consulter.Consult(ctx, req)
	if err != nil {
		report = output.FromError(req, err)
	} else {
		report = output.FromOutcome(req, outcome)
	}

	var buf bytes.Buffer
	if err := output.Write(&buf, report); err != nil {
		return nil, nil, err
	}
	s.logger.Info(ctx, "tool call complete", "tool", ToolName, "status", report.Status, "request_id", report.RequestID)

	return &mcp.CallToolResult{
		IsError: report.Status == output.StatusFailed,
		Content: []mcp.Content{&mcp.TextContent{Text: buf.String()}},
	}, nil, nil
}
