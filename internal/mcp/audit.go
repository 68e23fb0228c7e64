package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/artimmus/simbatch/internal/history"
)

// auditOperationPrefix marks ledger entries written for MCP tool calls.
const auditOperationPrefix = "mcp:"

// auditTool records a tool call in the history ledger. Failures to record
// are logged and otherwise ignored.
func (s *Server) auditTool(ctx context.Context, tool, path string, start time.Time, err error, params map[string]any) {
	status, detail := history.StatusOK, formatParams(params)
	if err != nil {
		status = history.StatusError
		detail = strings.TrimSpace(detail + " " + err.Error())
	}
	s.logger.Debug("mcp tool call", "tool", tool, "status", status, "duration", time.Since(start))
	s.events.Record("mcp_tool", map[string]any{"tool": tool, "status": status})

	if s.history == nil {
		return
	}
	_, recErr := s.history.Record(context.WithoutCancel(ctx), history.Entry{
		Operation:  auditOperationPrefix + tool,
		Path:       path,
		Status:     status,
		Detail:     detail,
		StartedAt:  start,
		FinishedAt: time.Now(),
	})
	if recErr != nil {
		s.logger.Warn("failed to record tool call", "tool", tool, "error", recErr)
	}
}

// formatParams renders params as sorted key=value pairs.
func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, " ")
}
