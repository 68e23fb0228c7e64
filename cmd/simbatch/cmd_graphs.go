package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/artimmus/simbatch/internal/axes"
	"github.com/spf13/cobra"
)

func newGraphsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graphs [sweep]",
		Short: "Draw every ensemble's graphs on shared axes",
		Long: `Render the graphs of every ensemble that has a median run, twice. The
first pass collects each ensemble's axis bounds at the sweep root; the
second renders every ensemble with the largest bound per axis so the graphs
of a sweep are comparable. The PNGs are gathered in simulationOutputPngs.`,
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
			end, _ := cmd.Flags().GetFloat64("end")
			errorInterval, _ := cmd.Flags().GetInt("error")

			start := time.Now()
			defer func() { rt.record(cmd.Context(), "graphs", path, start, retErr, false, "") }()

			agg := axes.NewAggregator(rt.runner(), rt.cfg.Naming, rt.walker, rt.logger, rt.events)
			res, err := agg.Run(cmd.Context(), path, axes.Options{End: end, ErrorInterval: errorInterval})
			if err != nil {
				return err
			}
			if err := rt.emit(graphsView(res), func(w io.Writer) { printGraphs(w, res) }); err != nil {
				return err
			}
			if failed := res.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d ensemble passes failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().Float64("end", 0, "Plot up to this time (default: whole run)")
	cmd.Flags().Int("error", 0, "Draw error bars every N samples (0 disables)")
	return cmd
}

func graphsView(res *axes.Result) map[string]any {
	return map[string]any{
		"sweep":  res.Sweep,
		"maxima": res.Maxima,
		"pngs":   res.Pngs,
		"bounds": viewOutcomes(res.Bounds),
		"render": viewOutcomes(res.Render),
	}
}

func printGraphs(w io.Writer, res *axes.Result) {
	if len(res.Ensembles) == 0 {
		fmt.Fprintf(w, "No ensembles with a median run in %s\n", res.Sweep)
		return
	}
	fmt.Fprintln(w, "Bounds pass:")
	printOutcomes(w, res.Bounds)
	if len(res.Maxima) > 0 {
		fmt.Fprintln(w, "Axis maxima:")
		for _, a := range axes.All {
			if v, ok := res.Maxima[a.Name]; ok {
				fmt.Fprintf(w, "  %-28s %s\n", a.Name, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
	}
	if len(res.Render) > 0 {
		fmt.Fprintln(w, "Render pass:")
		printOutcomes(w, res.Render)
	}
	fmt.Fprintf(w, "%d graphs in %s\n", len(res.Pngs), axes.PngDir)
}
