package axes

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/artimmus/simbatch/internal/classify"
	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
)

const (
	// RenderFunction draws an ensemble's graphs and reports its axis bounds.
	RenderFunction = "drawSimOutputGraph"

	// PngDir collects every rendered graph under the sweep root.
	PngDir = "simulationOutputPngs"
)

// Options tune the render calls.
type Options struct {
	// End truncates the plotted time range. Zero leaves it to the renderer.
	End float64 `json:"end,omitempty"`

	// ErrorInterval draws error bars every ErrorInterval samples. Zero
	// disables error bars.
	ErrorInterval int `json:"error_interval,omitempty"`
}

func (o Options) args() string {
	var b strings.Builder
	if o.End != 0 {
		fmt.Fprintf(&b, "-end %s ", strconv.FormatFloat(o.End, 'g', -1, 64))
	}
	if o.ErrorInterval > 0 {
		fmt.Fprintf(&b, "-error %d ", o.ErrorInterval)
	}
	return b.String()
}

// BoundsArgs is the argument string of the bounds-calculating pass.
func (o Options) BoundsArgs() string {
	return "-save 0 -calculateYs 1 " + o.args()
}

// RenderArgs is the argument string of the final pass.
func (o Options) RenderArgs(axes []Axis, m Maxima) string {
	return "-save 1 -calculateYs 0 " + o.args() + m.RenderArgs(axes)
}

// Result describes a completed aggregation.
type Result struct {
	Sweep     string          `json:"sweep"`
	Ensembles []string        `json:"ensembles"`
	Table     Table           `json:"table,omitempty"`
	Maxima    Maxima          `json:"maxima,omitempty"`
	Bounds    []sweep.Outcome `json:"-"`
	Render    []sweep.Outcome `json:"-"`
	Pngs      []string        `json:"pngs,omitempty"`
}

// Failed lists the ensembles that failed either pass.
func (r *Result) Failed() []sweep.Outcome {
	return append(sweep.Failed(r.Bounds), sweep.Failed(r.Render)...)
}

// Aggregator runs the two render passes over a sweep.
type Aggregator struct {
	Runner external.Runner
	Naming runfile.Naming
	Walker *sweep.Walker
	Axes   []Axis
	Logger *slog.Logger
	Events *logging.EventLog
}

// NewAggregator creates an Aggregator over every known axis.
func NewAggregator(r external.Runner, n runfile.Naming, w *sweep.Walker, logger *slog.Logger, events *logging.EventLog) *Aggregator {
	if logger == nil {
		logger = logging.Discard()
	}
	if w == nil {
		w = sweep.New(1, logger)
	}
	return &Aggregator{Runner: r, Naming: n, Walker: w, Axes: All, Logger: logger, Events: events}
}

// Run renders every ensemble of sweepPath that holds a median file twice.
// The first pass makes each ensemble append its axis bounds to the files
// at the sweep root. Once every first-pass step has finished the bounds
// are reduced to one maximum per axis, and the second pass renders each
// ensemble that succeeded in the first with those maxima. Rendered PNGs are
// gathered under PngDir. The bounds files are removed on return.
//
// A step that exits cleanly but adds no bounds, or renders no PNG, fails
// with external.ErrMissingOutput. Run in order, such an ensemble is left
// out of the reduction and the render pass; run concurrently, a bounds
// count that does not match the successful ensembles fails the whole run.
func (a *Aggregator) Run(ctx context.Context, sweepPath string, opts Options) (*Result, error) {
	names, err := classify.EnsemblesWith(sweepPath, a.Naming.MedianFile)
	if err != nil {
		return nil, fmt.Errorf("listing ensembles: %w", err)
	}
	res := &Result{Sweep: sweepPath, Ensembles: names}
	if len(names) == 0 {
		a.Logger.Warn("no ensembles with median data", "sweep", sweepPath, "file", a.Naming.MedianFile)
		return res, nil
	}

	a.removeBounds(sweepPath)
	defer a.removeBounds(sweepPath)

	boundsArgs := opts.BoundsArgs()
	sequential := a.Walker.Workers < 2
	res.Bounds = a.Walker.Run(ctx, sweepPath, names, func(ctx context.Context, dir string) error {
		inv := external.Invocation{Dir: dir, Function: RenderFunction, Args: boundsArgs}
		if !sequential {
			return a.Runner.Run(ctx, inv)
		}
		before, err := a.snapshot(sweepPath)
		if err != nil {
			return err
		}
		if err := a.Runner.Run(ctx, inv); err != nil {
			a.rollback(sweepPath, before)
			return err
		}
		return a.checkAppended(sweepPath, dir, before)
	})
	if err := ctx.Err(); err != nil {
		return res, err
	}

	var ok []string
	for _, o := range res.Bounds {
		if o.OK() {
			ok = append(ok, o.Name)
		}
	}
	if len(ok) == 0 {
		return res, errors.New("bounds pass failed for every ensemble")
	}

	res.Table, err = ReadTable(sweepPath, a.Naming.AxisFilePrefix, a.Axes)
	if err != nil {
		return res, err
	}
	if !sequential {
		// Concurrent appends cannot be attributed to an ensemble, so every
		// axis must hold exactly one value per successful ensemble.
		for _, ax := range a.Axes {
			if n := len(res.Table[ax.Name]); n != len(ok) {
				return res, fmt.Errorf("%s: %w: axis %s has %d bounds for %d ensembles",
					RenderFunction, external.ErrMissingOutput, ax.Name, n, len(ok))
			}
		}
	}
	res.Maxima, err = res.Table.Reduce(a.Axes)
	if err != nil {
		return res, err
	}
	a.Events.Record("axis_maxima", map[string]any{"sweep": sweepPath, "maxima": res.Maxima})

	pngDir := filepath.Join(sweepPath, PngDir)
	if err := os.MkdirAll(pngDir, 0755); err != nil {
		return res, fmt.Errorf("creating %s: %w", PngDir, err)
	}

	renderArgs := opts.RenderArgs(a.Axes, res.Maxima)
	a.Logger.Info("rendering with common axes", "sweep", sweepPath, "ensembles", len(ok))
	collected := make([][]string, len(ok))
	index := make(map[string]int, len(ok))
	for i, n := range ok {
		index[n] = i
	}
	res.Render = a.Walker.Run(ctx, sweepPath, ok, func(ctx context.Context, dir string) error {
		if err := a.Runner.Run(ctx, external.Invocation{Dir: dir, Function: RenderFunction, Args: renderArgs}); err != nil {
			return err
		}
		copied, err := pathutil.CopyMatching(dir, pngDir, isPng)
		collected[index[filepath.Base(dir)]] = copied
		if err != nil {
			return fmt.Errorf("collecting graphs: %w", err)
		}
		if len(copied) == 0 {
			return fmt.Errorf("%s in %s: %w: *.png", RenderFunction, dir, external.ErrMissingOutput)
		}
		return nil
	})
	for _, c := range collected {
		res.Pngs = append(res.Pngs, c...)
	}

	return res, ctx.Err()
}

func (a *Aggregator) removeBounds(sweepPath string) {
	for _, ax := range a.Axes {
		path := filepath.Join(sweepPath, ax.FileName(a.Naming.AxisFilePrefix))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.Logger.Warn("removing axis bounds", "path", path, "error", err)
		}
	}
}

// axisState is the size and value count of one bounds file.
type axisState struct {
	size   int64
	values int
}

func (a *Aggregator) snapshot(sweepPath string) (map[string]axisState, error) {
	states := make(map[string]axisState, len(a.Axes))
	for _, ax := range a.Axes {
		st, err := readAxisState(filepath.Join(sweepPath, ax.FileName(a.Naming.AxisFilePrefix)))
		if err != nil {
			return nil, fmt.Errorf("axis %s: %w", ax.Name, err)
		}
		states[ax.Name] = st
	}
	return states, nil
}

// checkAppended fails the bounds step of dir unless it added a value to
// every axis file. A failed step's partial bounds are discarded.
func (a *Aggregator) checkAppended(sweepPath, dir string, before map[string]axisState) error {
	after, err := a.snapshot(sweepPath)
	if err != nil {
		a.rollback(sweepPath, before)
		return err
	}
	for _, ax := range a.Axes {
		if after[ax.Name].values <= before[ax.Name].values {
			a.rollback(sweepPath, before)
			return fmt.Errorf("%s in %s: %w: %s", RenderFunction, dir, external.ErrMissingOutput, ax.FileName(a.Naming.AxisFilePrefix))
		}
	}
	return nil
}

func (a *Aggregator) rollback(sweepPath string, before map[string]axisState) {
	for _, ax := range a.Axes {
		path := filepath.Join(sweepPath, ax.FileName(a.Naming.AxisFilePrefix))
		var err error
		if size := before[ax.Name].size; size == 0 {
			err = os.Remove(path)
		} else {
			err = os.Truncate(path, size)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.Logger.Warn("discarding axis bounds", "path", path, "error", err)
		}
	}
}

func readAxisState(path string) (axisState, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return axisState{}, nil
	}
	if err != nil {
		return axisState{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return axisState{}, err
	}
	values, err := ParseValues(f)
	if err != nil {
		return axisState{}, err
	}
	return axisState{size: info.Size(), values: len(values)}, nil
}

func isPng(name string) bool { return strings.HasSuffix(name, ".png") }
