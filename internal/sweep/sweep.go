// Package sweep runs one step over every ensemble of a sweep directory.
//
// Ensembles are independent: a failing step is recorded against its ensemble
// and never stops the others. Run returns only after every dispatched step
// has finished, so callers can use it as a barrier between phases.
package sweep

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/artimmus/simbatch/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Step processes one ensemble directory.
type Step func(ctx context.Context, dir string) error

// Outcome is the result of a Step for one ensemble.
type Outcome struct {
	Name     string        `json:"name"`
	Dir      string        `json:"dir"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the step succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Walker dispatches steps over ensembles.
type Walker struct {
	// Workers bounds concurrent steps. Values below 2 run strictly in order.
	Workers int
	Logger  *slog.Logger
}

// New returns a Walker with the given concurrency. A nil logger discards output.
func New(workers int, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Walker{Workers: workers, Logger: logger}
}

// Run applies step to root/<name> for each name and returns one Outcome per
// name, in the order given. Once ctx is done no further steps start; the
// remaining ensembles get ctx.Err() as their outcome.
func (w *Walker) Run(ctx context.Context, root string, names []string, step Step) []Outcome {
	outcomes := make([]Outcome, len(names))
	for i, name := range names {
		outcomes[i] = Outcome{Name: name, Dir: filepath.Join(root, name)}
	}

	do := func(i int) {
		o := &outcomes[i]
		if err := ctx.Err(); err != nil {
			o.Err = err
			return
		}
		w.Logger.Info("processing ensemble", "dir", o.Name)
		start := time.Now()
		o.Err = step(ctx, o.Dir)
		o.Duration = time.Since(start)
		if o.Err != nil {
			w.Logger.Warn("ensemble step failed", "dir", o.Name, "error", o.Err)
		}
	}

	if w.Workers < 2 {
		for i := range outcomes {
			do(i)
		}
		return outcomes
	}

	var g errgroup.Group
	g.SetLimit(w.Workers)
	for i := range outcomes {
		g.Go(func() error {
			do(i)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// Failed returns the outcomes whose step returned an error.
func Failed(outcomes []Outcome) []Outcome {
	var failed []Outcome
	for _, o := range outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}
