// Package mcpserver exposes the analysis pipeline and the agent registry as
// Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/logging"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/pipeline"
)

// Tool names.
const (
	ToolAnalyze   = "analyze_investment"
	ToolList      = "list_agents"
	ToolLogs      = "agent_logs"
	ToolStats     = "agent_stats"
	ToolClearLogs = "clear_agent_logs"
)

const instructions = `Investment due diligence tools.
Call analyze_investment with a question and local document paths. Files whose
name contains "financial" feed the financial agent and files containing
"business" feed the market agent. Use agent_logs and agent_stats to inspect
the audit trail of agent invocations.`

// Server wraps an MCP server bound to a pipeline driver.
type Server struct {
	mcp    *server.MCPServer
	driver *pipeline.Driver
	log    *logging.Logger
}

// New creates the MCP server and registers all tools.
func New(driver *pipeline.Driver, version string, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	s := &Server{
		mcp: server.NewMCPServer(
			"diligence",
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
		driver: driver,
		log:    log.With("component", "mcpserver"),
	}

	s.mcp.AddTool(mcp.NewTool(ToolAnalyze,
		mcp.WithDescription("Run a due diligence analysis over local documents and return the report as JSON"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Investment question to analyze")),
		mcp.WithArray("files", mcp.Required(), mcp.WithStringItems(),
			mcp.Description("Paths of the documents to analyze")),
	), s.handleAnalyze)

	s.mcp.AddTool(mcp.NewTool(ToolList,
		mcp.WithDescription("List the registered agents"),
	), s.handleList)

	s.mcp.AddTool(mcp.NewTool(ToolLogs,
		mcp.WithDescription("Return the audit log of agent invocations"),
		mcp.WithString("agent", mcp.Description("Only return entries for this agent")),
	), s.handleLogs)

	s.mcp.AddTool(mcp.NewTool(ToolStats,
		mcp.WithDescription("Return per-agent invocation statistics"),
	), s.handleStats)

	s.mcp.AddTool(mcp.NewTool(ToolClearLogs,
		mcp.WithDescription("Clear the agent audit log"),
	), s.handleClearLogs)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves requests read from in until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Slog().Handler(), slog.LevelError))
	s.log.Info("mcp server listening on stdio")
	return stdio.Listen(ctx, in, out)
}

func (s *Server) handleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("Query is required"), nil
	}
	files := req.GetStringSlice("files", nil)
	if len(files) == 0 {
		return mcp.NewToolResultError("At least one document is required"), nil
	}

	uploads, err := pipeline.ReadUploads(files...)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.driver.Analyze(ctx, query, uploads)
	if err != nil {
		s.log.Warn("analysis failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) handleList(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"agents": s.driver.Registry().RegisteredAgents()})
}

func (s *Server) handleLogs(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var filter []string
	if agent := req.GetString("agent", ""); agent != "" {
		filter = append(filter, agent)
	}
	logs := s.driver.Registry().Logs(filter...)
	return jsonResult(map[string]any{"logs": logs, "count": len(logs)})
}

func (s *Server) handleStats(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"stats": s.driver.Registry().Stats()})
}

func (s *Server) handleClearLogs(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := len(s.driver.Registry().Logs())
	s.driver.Registry().ClearLogs()
	return mcp.NewToolResultText(fmt.Sprintf("cleared %d log entries", n)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
