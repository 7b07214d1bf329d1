package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/agents"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/core"
	agentmcp "github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/pipeline"
	"github.com/hugo-lorenzo-mato/diligence-ai/internal/testutil"
)

const testQuery = "Should we invest in Acme Corp? Review revenue and market growth."

func newTestServer(t *testing.T) (*Server, *agentmcp.Registry) {
	t.Helper()
	index := testutil.NewMemoryIndex()
	reg := agentmcp.NewRegistry()
	agents.RegisterAll(reg, agents.Deps{Retriever: index, Generator: testutil.NewFakeGenerator()})
	return New(pipeline.New(reg, index), "test", nil), reg
}

func writeDocs(t *testing.T) []any {
	t.Helper()
	dir := t.TempDir()
	fin := filepath.Join(dir, "financial_report.txt")
	plan := filepath.Join(dir, "business_plan.txt")
	require.NoError(t, os.WriteFile(fin, []byte("EBITDA margin reached 15% in FY2024"), 0o600))
	require.NoError(t, os.WriteFile(plan, []byte("The addressable market grows at 12% CAGR"), 0o600))
	return []any{fin, plan}
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestAnalyzeTool(t *testing.T) {
	s, reg := newTestServer(t)

	res, err := s.handleAnalyze(context.Background(), call(ToolAnalyze, map[string]any{
		"query": testQuery,
		"files": writeDocs(t),
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))

	var got pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &got))
	require.NotNil(t, got.Report)
	assert.Equal(t, core.RecommendationProceed, got.Report.Recommendation)
	assert.NotEmpty(t, got.RequestID)
	assert.Len(t, reg.Logs(), 3)
}

func TestAnalyzeTool_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing query", map[string]any{"files": []any{"a.txt"}}, "Query is required"},
		{"missing files", map[string]any{"query": testQuery}, "At least one document is required"},
		{"unreadable file", map[string]any{"query": testQuery, "files": []any{"/nonexistent/financial.txt"}}, "reading /nonexistent/financial.txt"},
		{"guardrail", map[string]any{"query": "   ", "files": writeDocs(t)}, "query cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleAnalyze(context.Background(), call(ToolAnalyze, tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, text(t, res), tt.want)
		})
	}
}

func TestRegistryTools(t *testing.T) {
	s, reg := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleList(ctx, call(ToolList, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"agents":["decision","financial","market"]}`, text(t, res))

	_, err = reg.Invoke(ctx, "financial", &core.AgentContext{Query: testQuery})
	require.NoError(t, err)

	_, err = s.handleAnalyze(ctx, call(ToolAnalyze, map[string]any{"query": testQuery, "files": writeDocs(t)}))
	require.NoError(t, err)

	res, err = s.handleLogs(ctx, call(ToolLogs, map[string]any{"agent": "decision"}))
	require.NoError(t, err)
	var logs struct {
		Logs  []agentmcp.MCPLog `json:"logs"`
		Count int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &logs))
	assert.Equal(t, 1, logs.Count)
	assert.Equal(t, "decision", logs.Logs[0].AgentName)

	res, err = s.handleStats(ctx, call(ToolStats, nil))
	require.NoError(t, err)
	var stats struct {
		Stats map[string]agentmcp.AgentStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &stats))
	assert.Contains(t, stats.Stats, "financial")

	res, err = s.handleClearLogs(ctx, call(ToolClearLogs, nil))
	require.NoError(t, err)
	assert.Equal(t, "cleared 4 log entries", text(t, res))
	assert.Empty(t, reg.Logs())
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t)

	resp := s.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{ToolAnalyze, ToolList, ToolLogs, ToolStats, ToolClearLogs} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
