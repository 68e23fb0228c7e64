// Package robustness drives the sensitivity analyses run over a finished
// sweep: response generation for robustness analysis, and EAE severity
// distributions.
package robustness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/artimmus/simbatch/internal/axes"
	"github.com/artimmus/simbatch/internal/classify"
	"github.com/artimmus/simbatch/internal/defaults"
	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/median"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
)

const (
	// Dir collects the response files of every ensemble.
	Dir = "robustness_sensitivity_analysis"

	// ResponsePrefix starts every response file name.
	ResponsePrefix = "robustness_analysis_response_data_-_"

	responseFunction = "generate_LHCx_response"
	analysisFunction = "robustnessAnalysis"
)

// ResponseName names the response file of the ensemble run at value.
func ResponseName(tags []string, value string) string {
	return ResponsePrefix + tagPath(tags) + value
}

// DefaultResponseName names the copy of the response file taken at the
// parameter's default value.
func DefaultResponseName(tags []string, def string) string {
	return ResponsePrefix + tagPath(tags) + "default_-_" + def
}

func tagPath(tags []string) string {
	var b strings.Builder
	for _, t := range tags {
		b.WriteString(t)
		b.WriteString("_-_")
	}
	return b.String()
}

// EnsembleValue is the parameter value an ensemble was run at: the part of
// its directory name after the last underscore.
func EnsembleValue(name string) string {
	base := filepath.Base(name)
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// SameValue reports whether two parameter values are numerically equal.
// Values that do not parse are never equal.
func SameValue(a, b string) bool {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return false
	}
	return x == y
}

// ResponseOptions configure a response run.
type ResponseOptions struct {
	// End is the observation end time handed to response generation and
	// graph rendering.
	End float64 `json:"end"`

	// Default overrides the parameter's default value.
	Default string `json:"default,omitempty"`
}

// ResponseResult describes a completed response run.
type ResponseResult struct {
	Sweep     string               `json:"sweep"`
	Default   *defaults.Resolution `json:"default"`
	Responses []string             `json:"responses"`
	Outcomes  []sweep.Outcome      `json:"-"`
	Medians   []sweep.Outcome      `json:"-"`
	Graphs    *axes.Result         `json:"graphs,omitempty"`
}

// Responses generates the robustness responses of a sweep and hands them
// to the robustness analysis.
type Responses struct {
	Runner     external.Runner
	Naming     runfile.Naming
	Lookup     defaults.Lookup
	Medians    *median.Compiler
	Aggregator *axes.Aggregator
	Walker     *sweep.Walker
	Logger     *slog.Logger
	Events     *logging.EventLog
}

// NewResponses creates a Responses driver over the given median compiler
// and aggregator, either of which may be nil to skip that stage.
func NewResponses(r external.Runner, n runfile.Naming, m *median.Compiler, agg *axes.Aggregator, w *sweep.Walker, logger *slog.Logger, events *logging.EventLog) *Responses {
	if logger == nil {
		logger = logging.Discard()
	}
	if w == nil {
		w = sweep.New(1, logger)
	}
	return &Responses{Runner: r, Naming: n, Medians: m, Aggregator: agg, Walker: w, Logger: logger, Events: events}
}

// Run resolves the default value, recreates Dir, generates each
// ensemble's response file and collects it (twice for the ensemble run at
// the default), compiles medians, redraws the sweep's graphs, and finally
// runs the robustness analysis in Dir. Ensemble failures are recorded in
// the result; the analysis still runs over the responses that exist.
func (r *Responses) Run(ctx context.Context, sweepPath string, opts ResponseOptions) (*ResponseResult, error) {
	def, err := defaults.Resolve(sweepPath, opts.Default, r.Lookup)
	if err != nil {
		return nil, fmt.Errorf("resolving default value: %w", err)
	}
	r.Logger.Info("default value", "value", def.Value, "source", def.Source)

	outDir := filepath.Join(sweepPath, Dir)
	if err := pathutil.ResetDir(outDir); err != nil {
		return nil, fmt.Errorf("recreating %s: %w", Dir, err)
	}

	names, err := classify.Ensembles(sweepPath, r.Naming)
	if err != nil {
		return nil, fmt.Errorf("listing ensembles: %w", err)
	}

	res := &ResponseResult{Sweep: sweepPath, Default: def}
	end := strconv.FormatFloat(opts.End, 'g', -1, 64)
	collected := make([][]string, len(names))
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	res.Outcomes = r.Walker.Run(ctx, sweepPath, names, func(ctx context.Context, dir string) error {
		value := EnsembleValue(dir)
		name := ResponseName(def.Tags, value)
		err := r.Runner.Run(ctx, external.Invocation{
			Dir:      dir,
			Function: responseFunction,
			Args:     external.Quote(name) + "," + external.Quote(end),
			Literal:  true,
			Expect:   []string{name},
		})
		if err != nil {
			return err
		}

		var written []string
		to := filepath.Join(outDir, name)
		if err := pathutil.CopyFile(filepath.Join(dir, name), to); err != nil {
			return err
		}
		written = append(written, to)
		if SameValue(value, def.Value) {
			to := filepath.Join(outDir, DefaultResponseName(def.Tags, def.Value))
			if err := pathutil.CopyFile(filepath.Join(dir, name), to); err != nil {
				return err
			}
			written = append(written, to)
		}
		collected[index[filepath.Base(dir)]] = written
		return nil
	})
	if err := ctx.Err(); err != nil {
		return res, err
	}
	for _, w := range collected {
		res.Responses = append(res.Responses, w...)
	}
	r.Events.Record("responses_collected", map[string]any{"sweep": sweepPath, "count": len(res.Responses)})

	if r.Medians != nil {
		if res.Medians, err = r.Medians.Sweep(ctx, sweepPath); err != nil {
			return res, err
		}
	}
	if r.Aggregator != nil {
		if err := os.RemoveAll(filepath.Join(sweepPath, axes.PngDir)); err != nil {
			return res, err
		}
		res.Graphs, err = r.Aggregator.Run(ctx, sweepPath, axes.Options{End: opts.End})
		if err != nil {
			return res, fmt.Errorf("drawing graphs: %w", err)
		}
	}

	if err := r.Runner.Run(ctx, external.Invocation{Dir: outDir, Function: analysisFunction}); err != nil {
		return res, fmt.Errorf("robustness analysis: %w", err)
	}
	return res, nil
}
