package main

import (
	"fmt"
	"io"

	"github.com/artimmus/simbatch/internal/history"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded operations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.history == nil {
				return fmt.Errorf("history is disabled (history.enabled: false)")
			}
			limit, _ := cmd.Flags().GetInt("limit")
			op, _ := cmd.Flags().GetString("operation")

			entries, err := rt.history.List(cmd.Context(), history.Filter{Operation: op, Limit: limit})
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []history.Entry{}
			}
			return rt.emit(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No operations recorded")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s  %-24s %-7s %s",
						e.StartedAt.Local().Format("2006-01-02 15:04:05"), e.Operation, e.Status, pathutil.RedactPath(e.Path))
					if e.Detail != "" {
						fmt.Fprintf(w, "  %s", e.Detail)
					}
					fmt.Fprintln(w)
				}
			})
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of entries (0 for all)")
	cmd.Flags().String("operation", "", "Only show this operation")
	return cmd
}
