package main

import (
	"fmt"
	"io"
	"time"

	"github.com/artimmus/simbatch/internal/params"
	"github.com/spf13/cobra"
)

func newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Repair simulator parameter files",
	}
	cmd.AddCommand(newParamsFixRootCmd(), newParamsStripUnderscoresCmd())
	return cmd
}

func newParamsFixRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fix-root [dir]",
		Short: "Rename the root element of experiment parameter files to <input>",
		Long: `In every experiment directory (LHC1_run_*) directly under dir, rename
the root element of parameters.xml and lhc1_parameters_*.xml to <input>.
Nothing else in the files changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParamsFix(cmd, args, "params fix-root", func(rt *runtime, dir string) ([]string, error) {
				return params.FixRoots(dir, rt.cfg.Naming.ExperimentPrefix)
			})
		},
	}
}

func newParamsStripUnderscoresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strip-underscores [dir]",
		Short: "Remove underscores from parameter documents below dir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParamsFix(cmd, args, "params strip-underscores", func(rt *runtime, dir string) ([]string, error) {
				return params.StripUnderscores(dir)
			})
		},
	}
}

func runParamsFix(cmd *cobra.Command, args []string, op string, fix func(*runtime, string) ([]string, error)) (retErr error) {
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
	var changed []string
	defer func() {
		rt.record(cmd.Context(), op, dir, start, retErr, false, fmt.Sprintf("%d files changed", len(changed)))
	}()

	changed, err = fix(rt, dir)
	// files fixed before a failure are still reported
	if emitErr := rt.emit(map[string]any{"dir": dir, "changed": changed}, func(w io.Writer) {
		for _, f := range changed {
			fmt.Fprintf(w, "fixed %s\n", relName(dir, f))
		}
		fmt.Fprintf(w, "%d files changed\n", len(changed))
	}); emitErr != nil && err == nil {
		err = emitErr
	}
	return err
}
