package median

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artimmus/simbatch/internal/classify"
	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
)

// ExternalFunction compiles the median run with the external tool.
const ExternalFunction = "compileMedianDataRunFromSingleRuns"

// Compiler writes the median file of ensembles.
type Compiler struct {
	Naming runfile.Naming

	// Runner, when set, delegates compilation to the external tool.
	Runner external.Runner

	// Force recompiles ensembles that already have a median file.
	Force bool

	Walker *sweep.Walker
	Logger *slog.Logger
	Events *logging.EventLog
}

// NewCompiler creates a Compiler that computes medians natively.
func NewCompiler(n runfile.Naming, w *sweep.Walker, logger *slog.Logger, events *logging.EventLog) *Compiler {
	if logger == nil {
		logger = logging.Discard()
	}
	if w == nil {
		w = sweep.New(1, logger)
	}
	return &Compiler{Naming: n, Walker: w, Logger: logger, Events: events}
}

// Ensemble writes dir's median file. An existing median file is left
// alone unless Force is set.
func (c *Compiler) Ensemble(ctx context.Context, dir string) error {
	target := filepath.Join(dir, c.Naming.MedianFile)
	if !c.Force {
		if _, err := os.Stat(target); err == nil {
			c.Logger.Info("median already compiled", "dir", dir)
			return nil
		}
	}
	if c.Runner != nil {
		return c.Runner.Run(ctx, external.Invocation{
			Dir:      dir,
			Function: ExternalFunction,
			Bare:     true,
			Expect:   []string{c.Naming.MedianFile},
		})
	}
	return c.native(ctx, dir, target)
}

func (c *Compiler) native(ctx context.Context, dir, target string) error {
	n := c.Naming
	refs, err := runfile.Scan(dir, n.DataPrefix, n.DataSuffix)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("no run files in %s", dir)
	}

	runs := make([]Matrix, 0, len(refs))
	for _, r := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := ReadMatrixFile(r.Path())
		if err != nil {
			return err
		}
		runs = append(runs, m)
	}
	med, err := Compile(runs)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".median-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, med); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}

	c.Logger.Debug("wrote median run", "dir", dir, "runs", len(runs), "rows", len(med))
	c.Events.Record("median_compiled", map[string]any{"dir": dir, "runs": len(runs)})
	return nil
}

// Sweep compiles every ensemble of sweepPath.
func (c *Compiler) Sweep(ctx context.Context, sweepPath string) ([]sweep.Outcome, error) {
	names, err := classify.Ensembles(sweepPath, c.Naming)
	if err != nil {
		return nil, fmt.Errorf("listing ensembles: %w", err)
	}
	return c.Walker.Run(ctx, sweepPath, names, c.Ensemble), nil
}
