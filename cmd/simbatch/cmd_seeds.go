package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/artimmus/simbatch/internal/seeds"
	"github.com/spf13/cobra"
)

func newSeedsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seeds [dir]",
		Short: "Check that every run used a distinct random seed",
		Long: `Read every seed file of an ensemble and report seed values shared by
more than one run. With --sweep, every ensemble of a sweep is checked.

Exits with status 1 when a duplicate or unreadable seed is found.`,
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
			sweepMode, _ := cmd.Flags().GetBool("sweep")

			start := time.Now()
			allUnique := true
			defer func() {
				rt.record(cmd.Context(), "seeds", path, start, retErr, !allUnique, "")
			}()

			if sweepMode {
				rep, err := seeds.CheckSweep(cmd.Context(), path, rt.cfg.Naming, rt.walker)
				if err != nil {
					return err
				}
				allUnique = rep.AllUnique
				if err := rt.emit(rep, func(w io.Writer) { printSweepSeeds(w, rep) }); err != nil {
					return err
				}
			} else {
				rep, err := seeds.Check(path, rt.cfg.Naming)
				if err != nil {
					return err
				}
				allUnique = rep.AllUnique
				if err := rt.emit(rep, func(w io.Writer) { printSeeds(w, rep, "") }); err != nil {
					return err
				}
			}

			if !allUnique {
				return &exitCodeError{code: 1}
			}
			return nil
		},
	}

	cmd.Flags().Bool("sweep", false, "Check every ensemble of the sweep at dir")
	return cmd
}

func printSeeds(w io.Writer, rep *seeds.Report, indent string) {
	if rep.AllUnique {
		fmt.Fprintf(w, "%sAll %d seeds unique\n", indent, rep.Total)
		return
	}
	for _, v := range rep.DuplicateValues() {
		fmt.Fprintf(w, "%sDuplicate seed %d: %s\n", indent, v, strings.Join(rep.Duplicates[v], ", "))
	}
	for _, name := range rep.Unreadable {
		fmt.Fprintf(w, "%sUnreadable seed file %s\n", indent, name)
	}
}

func printSweepSeeds(w io.Writer, rep *seeds.SweepReport) {
	for _, e := range rep.Ensembles {
		fmt.Fprintf(w, "%s\n", relName(rep.Sweep, e.Dir))
		printSeeds(w, e, "  ")
	}
	names := make([]string, 0, len(rep.Errors))
	for name := range rep.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\n  error: %s\n", name, rep.Errors[name])
	}
	if rep.AllUnique {
		fmt.Fprintln(w, "All seeds unique")
	}
}
