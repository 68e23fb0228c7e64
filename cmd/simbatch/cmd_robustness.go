package main

import (
	"fmt"
	"io"
	"time"

	"github.com/artimmus/simbatch/internal/axes"
	"github.com/artimmus/simbatch/internal/median"
	"github.com/artimmus/simbatch/internal/robustness"
	"github.com/spf13/cobra"
)

func newResponsesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "responses [sweep]",
		Short: "Generate robustness responses for a sensitivity sweep and analyse them",
		Long: `For a sweep named sensAnal_-_<parameter path>, generate every
ensemble's robustness response, collect them in
robustness_sensitivity_analysis (with an extra copy for the ensemble run at
the parameter's default), compile medians, redraw the sweep's graphs and
run the robustness analysis.

The default comes from --default, else the sweep's defaultParameterValue
file, else sensitivity_parameters.xml.`,
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
			def, _ := cmd.Flags().GetString("default")
			externalMedians, _ := cmd.Flags().GetBool("external-medians")

			start := time.Now()
			var res *robustness.ResponseResult
			defer func() {
				detail := ""
				if res != nil {
					detail = fmt.Sprintf("%d responses", len(res.Responses))
				}
				rt.record(cmd.Context(), "responses", path, start, retErr, false, detail)
			}()

			runner := rt.runner()
			medians := median.NewCompiler(rt.cfg.Naming, rt.walker, rt.logger, rt.events)
			if externalMedians {
				medians.Runner = runner
			}
			agg := axes.NewAggregator(runner, rt.cfg.Naming, rt.walker, rt.logger, rt.events)
			r := robustness.NewResponses(runner, rt.cfg.Naming, medians, agg, rt.walker, rt.logger, rt.events)

			res, err = r.Run(cmd.Context(), path, robustness.ResponseOptions{End: end, Default: def})
			if res != nil {
				if emitErr := rt.emit(responsesView(res), func(w io.Writer) { printResponses(w, res) }); emitErr != nil && err == nil {
					err = emitErr
				}
			}
			if err != nil {
				return err
			}
			return outcomeErr(res.Outcomes)
		},
	}

	cmd.Flags().Float64("end", 0, "Observation end time (required)")
	cmd.Flags().String("default", "", "Default value of the swept parameter")
	cmd.Flags().Bool("external-medians", false, "Compile medians with the external script")
	cmd.MarkFlagRequired("end")
	return cmd
}

func responsesView(res *robustness.ResponseResult) map[string]any {
	v := map[string]any{
		"sweep":     res.Sweep,
		"default":   res.Default,
		"responses": res.Responses,
		"ensembles": viewOutcomes(res.Outcomes),
		"medians":   viewOutcomes(res.Medians),
	}
	if res.Graphs != nil {
		v["graphs"] = graphsView(res.Graphs)
	}
	return v
}

func printResponses(w io.Writer, res *robustness.ResponseResult) {
	if res.Default != nil {
		fmt.Fprintf(w, "Default value %s (from %s)\n", res.Default.Value, res.Default.Source)
	}
	fmt.Fprintln(w, "Responses:")
	printOutcomes(w, res.Outcomes)
	fmt.Fprintf(w, "%d response files in %s\n", len(res.Responses), robustness.Dir)
	if len(res.Medians) > 0 {
		fmt.Fprintln(w, "Medians:")
		printOutcomes(w, res.Medians)
	}
	if res.Graphs != nil {
		printGraphs(w, res.Graphs)
	}
}

func newSeverityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "severity [sweep]",
		Short: "Compute EAE severity distributions for every ensemble",
		Long: `In each ensemble, compute the EAE severity distributions up to --end and
the per-run severity scores when missing, and collect the distributions in
EAESeverityAnalysis.`,
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

			start := time.Now()
			defer func() { rt.record(cmd.Context(), "severity", path, start, retErr, false, "") }()

			s := robustness.NewSeverity(rt.runner(), rt.cfg.Naming, rt.walker, rt.logger)
			res, err := s.Run(cmd.Context(), path, end)
			if err != nil {
				return err
			}
			view := map[string]any{"sweep": res.Sweep, "distributions": res.Distributions, "ensembles": viewOutcomes(res.Outcomes)}
			if err := rt.emit(view, func(w io.Writer) {
				printOutcomes(w, res.Outcomes)
				fmt.Fprintf(w, "%d distributions in %s\n", len(res.Distributions), robustness.SeverityDir)
			}); err != nil {
				return err
			}
			return outcomeErr(res.Outcomes)
		},
	}

	cmd.Flags().Float64("end", 0, "Observation end time (required)")
	cmd.MarkFlagRequired("end")
	return cmd
}
