// Package mcp provides an MCP (Model Context Protocol) server exposing
// simbatch's read-mostly operations to agents.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artimmus/simbatch/internal/config"
	"github.com/artimmus/simbatch/internal/history"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/artimmus/simbatch/internal/ratelimit"
	"github.com/artimmus/simbatch/internal/sweep"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server with simbatch's tools.
type Server struct {
	server   *sdk.Server
	settings *config.Config
	root     string
	walker   *sweep.Walker
	history  *history.Store
	logger   *slog.Logger
	events   *logging.EventLog
	limiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "simbatch")
	Version string // Server version

	// Root confines every path a tool accepts. Relative paths resolve
	// against it.
	Root string

	Settings *config.Config

	// History, when set, receives one entry per tool call.
	History *history.Store

	Logger *slog.Logger
	Events *logging.EventLog
}

// NewServer creates a new MCP server with simbatch tools.
func NewServer(cfg *Config) (*Server, error) {
	root, err := pathutil.Resolve(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:   mcpServer,
		settings: settings,
		root:     root,
		walker:   sweep.New(settings.Workers, logger),
		history:  cfg.History,
		logger:   logger,
		events:   cfg.Events,
		limiters: ratelimit.NewToolLimiters(),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "root", pathutil.RedactPath(s.root))
	return s.server.Run(ctx, &sdk.StdioTransport{})
}
