package main

import (
	"fmt"
	"io"
	"time"

	"github.com/artimmus/simbatch/internal/median"
	"github.com/spf13/cobra"
)

func newMediansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medians [sweep]",
		Short: "Compile the median run of every ensemble in a sweep",
		Long: `Write multipleDataOutput.txt in each ensemble: the element-wise median
of all its run files. Ensembles that already have one are skipped unless
--force is given.`,
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
			useExternal, _ := cmd.Flags().GetBool("external")
			force, _ := cmd.Flags().GetBool("force")

			start := time.Now()
			defer func() { rt.record(cmd.Context(), "medians", path, start, retErr, false, "") }()

			c := median.NewCompiler(rt.cfg.Naming, rt.walker, rt.logger, rt.events)
			c.Force = force
			if useExternal {
				c.Runner = rt.runner()
			}
			outcomes, err := c.Sweep(cmd.Context(), path)
			if err != nil {
				return err
			}
			if err := rt.emit(map[string]any{"sweep": path, "ensembles": viewOutcomes(outcomes)}, func(w io.Writer) {
				fmt.Fprintf(w, "Medians for %s:\n", path)
				printOutcomes(w, outcomes)
			}); err != nil {
				return err
			}
			return outcomeErr(outcomes)
		},
	}

	cmd.Flags().Bool("external", false, "Compile with the external script instead of natively")
	cmd.Flags().Bool("force", false, "Recompile ensembles that already have a median run")
	return cmd
}
