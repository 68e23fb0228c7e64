package main

import (
	"fmt"
	"io"
	"time"

	"github.com/artimmus/simbatch/internal/progress"
	"github.com/spf13/cobra"
)

func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress [dir]",
		Short: "Show the furthest run of each Latin-hypercube experiment",
		Long: `Find every LHC1_run_<N> directory below dir and report the
highest-numbered run file in each, ordered by N. The report is also written
to dir/progress.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			dir, err := dirArg(args, 0)
			if err != nil {
				return err
			}

			start := time.Now()
			var exps []progress.Experiment
			defer func() {
				rt.record(cmd.Context(), "progress", dir, start, retErr, false, fmt.Sprintf("%d experiments", len(exps)))
			}()

			exps, err = progress.WriteReport(dir, rt.cfg.Naming)
			if err != nil {
				return err
			}
			return rt.emit(exps, func(w io.Writer) {
				for _, e := range exps {
					latest := e.Latest
					if latest == "" {
						latest = "(no runs)"
					}
					fmt.Fprintf(w, "%-6d %-40s %s\n", e.Number, relName(dir, e.Dir), latest)
				}
			})
		},
	}
}
