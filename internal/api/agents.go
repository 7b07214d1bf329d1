package api

import (
	"net/http"

	"github.com/hugo-lorenzo-mato/diligence-ai/internal/mcp"
)

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string][]string{
		"agents": s.driver.Registry().RegisteredAgents(),
	})
}

// handleAgentLogs returns the audit log, optionally filtered by ?agent=.
func (s *Server) handleAgentLogs(w http.ResponseWriter, r *http.Request) {
	logs := s.driver.Registry().Logs(r.URL.Query().Get("agent"))
	if logs == nil {
		logs = []mcp.MCPLog{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleAgentStats(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats": s.driver.Registry().Stats(),
	})
}

func (s *Server) handleClearAgentLogs(w http.ResponseWriter, _ *http.Request) {
	s.driver.Registry().ClearLogs()
	w.WriteHeader(http.StatusNoContent)
}
