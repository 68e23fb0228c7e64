package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/artimmus/simbatch/internal/merge"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source> <destination>",
		Short: "Append the runs of one ensemble to another",
		Long: `Copy every run file of the source ensemble into the destination,
renumbering them after the destination's highest run. Seed files travel
with their runs. The source is never modified.

Example:
  simbatch merge batch2/ens_0.5 batch1/ens_0.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			src, err := dirArg(args, 0)
			if err != nil {
				return fmt.Errorf("source: %w", err)
			}
			dst, err := pathutil.Resolve(args[1])
			if err != nil {
				return fmt.Errorf("destination: %w", err)
			}

			start := time.Now()
			var res *merge.Result
			defer func() {
				detail := ""
				if res != nil {
					detail = fmt.Sprintf("%d runs from %s", len(res.Copied), src)
				}
				rt.record(cmd.Context(), "merge", dst, start, retErr, false, detail)
			}()

			res, err = merge.New(rt.cfg.Naming, rt.logger, rt.events).Merge(cmd.Context(), src, dst)
			if err != nil {
				return err
			}
			return rt.emit(res, func(w io.Writer) {
				if len(res.Copied) == 0 {
					fmt.Fprintf(w, "No runs to copy from %s\n", src)
				} else {
					fmt.Fprintf(w, "Copied %d runs from %s to %s (indices %d-%d)\n",
						len(res.Copied), src, dst, res.FirstIndex, res.FirstIndex+len(res.Copied)-1)
				}
				if len(res.Warnings) > 0 {
					fmt.Fprintf(w, "Warnings:\n  %s\n", strings.Join(res.Warnings, "\n  "))
				}
			})
		},
	}
}
