package main

import (
	"fmt"

	"github.com/artimmus/simbatch/internal/mcp"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve simbatch tools over MCP on stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout exposing
classification, seed and consistency checks, merging, progress and history
to agents. Tool paths are confined to --root.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			root, _ := cmd.Flags().GetString("root")
			server, err := mcp.NewServer(&mcp.Config{
				Name:     "simbatch",
				Version:  version,
				Root:     root,
				Settings: rt.cfg,
				History:  rt.history,
				Logger:   rt.logger,
				Events:   rt.events,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().String("root", ".", "Directory tool paths are confined to")
	return cmd
}
