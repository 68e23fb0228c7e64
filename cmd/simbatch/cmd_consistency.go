package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/artimmus/simbatch/internal/consistency"
	"github.com/spf13/cobra"
)

func newConsistencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consistency [sweep]",
		Short: "Check every ensemble holds the expected runs and time samples",
		Long: `Check each ensemble of a sweep for exactly --numRuns run files of
--timeSamples rows each. Every ensemble gets a consistencyOfDataResult file
and the sweep gets a summary listing the failing ensembles.

By default the check runs natively; --external hands each ensemble to
checkConsistencyOfSingleRunDataFiles instead.

Example:
  simbatch consistency sensAnal_-_cd4Th1_deathRate -numRuns 50 -timeSamples 101`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (retErr error) {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, err := dirArg(args, 0)
			if err != nil {
				return err
			}
			numRuns, _ := cmd.Flags().GetInt("numRuns")
			timeSamples, _ := cmd.Flags().GetInt("timeSamples")
			useExternal, _ := cmd.Flags().GetBool("external")
			exp := consistency.Expectation{NumRuns: numRuns, TimeSamples: timeSamples}

			var check consistency.DirectoryCheck = consistency.NativeCheck{Naming: rt.cfg.Naming}
			if useExternal {
				check = consistency.ExternalCheck{Runner: rt.runner(), Naming: rt.cfg.Naming}
			}

			start := time.Now()
			var rep *consistency.Report
			defer func() {
				failed, detail := false, ""
				if rep != nil && !rep.Pass {
					failed, detail = true, "FAIL: "+strings.Join(rep.Failed, ", ")
				}
				rt.record(cmd.Context(), "consistency", path, start, retErr, failed, detail)
			}()

			d := consistency.NewDriver(check, rt.cfg.Naming, rt.walker, rt.logger, rt.events)
			rep, err = d.CheckAll(cmd.Context(), path, exp)
			if err != nil {
				return err
			}
			return rt.emit(rep, func(w io.Writer) {
				for _, v := range rep.Verdicts {
					if v.Pass {
						fmt.Fprintf(w, "PASS  %s\n", v.Ensemble)
						continue
					}
					fmt.Fprintf(w, "FAIL  %s\n", v.Ensemble)
					for _, d := range v.Detail {
						fmt.Fprintf(w, "      %s\n", d)
					}
				}
				switch {
				case len(rep.Verdicts) == 0:
					fmt.Fprintln(w, "No ensembles found")
				case rep.Pass:
					fmt.Fprintf(w, "All %d ensembles consistent (%s)\n", len(rep.Verdicts), exp.Args())
				default:
					fmt.Fprintf(w, "%d of %d ensembles inconsistent (%s)\n", len(rep.Failed), len(rep.Verdicts), exp.Args())
				}
			})
		},
	}

	cmd.Flags().Int("numRuns", 0, "Number of runs each ensemble must hold (required)")
	cmd.Flags().Int("timeSamples", 0, "Number of time samples each run must hold (required)")
	cmd.Flags().Bool("external", false, "Run the external consistency script in each ensemble")
	cmd.MarkFlagRequired("numRuns")
	cmd.MarkFlagRequired("timeSamples")
	return cmd
}
