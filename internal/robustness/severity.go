package robustness

import (
	"context"
	"fmt"
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
	// SeverityDir collects the severity distributions of every ensemble.
	SeverityDir = "EAESeverityAnalysis"

	// SeverityScores is the per-run severity score file of an ensemble.
	SeverityScores = "EAESeverityScoresForRuns"

	distributionFunction = "EAESeverityDistributions"
	distributionPrefix   = "EAESeverityDistributions-"
	scoresFunction       = "compileEAESeveritiesForRuns"
)

// SeverityResult describes a completed severity run.
type SeverityResult struct {
	Sweep         string          `json:"sweep"`
	Distributions []string        `json:"distributions"`
	Outcomes      []sweep.Outcome `json:"-"`
}

// Severity computes EAE severity distributions for every ensemble of a
// sweep.
type Severity struct {
	Runner external.Runner
	Naming runfile.Naming
	Walker *sweep.Walker
	Logger *slog.Logger
}

// NewSeverity creates a Severity driver. A nil walker is sequential.
func NewSeverity(r external.Runner, n runfile.Naming, w *sweep.Walker, logger *slog.Logger) *Severity {
	if logger == nil {
		logger = logging.Discard()
	}
	if w == nil {
		w = sweep.New(1, logger)
	}
	return &Severity{Runner: r, Naming: n, Walker: w, Logger: logger}
}

// Run recreates SeverityDir, then in each ensemble computes the severity
// distributions up to end and copies them into SeverityDir, and compiles
// the per-run severity scores unless they already exist.
func (s *Severity) Run(ctx context.Context, sweepPath string, end float64) (*SeverityResult, error) {
	outDir := filepath.Join(sweepPath, SeverityDir)
	if err := pathutil.ResetDir(outDir); err != nil {
		return nil, fmt.Errorf("recreating %s: %w", SeverityDir, err)
	}
	names, err := classify.Ensembles(sweepPath, s.Naming)
	if err != nil {
		return nil, fmt.Errorf("listing ensembles: %w", err)
	}

	res := &SeverityResult{Sweep: sweepPath}
	collected := make([][]string, len(names))
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	endArg := strconv.FormatFloat(end, 'g', -1, 64)

	res.Outcomes = s.Walker.Run(ctx, sweepPath, names, func(ctx context.Context, dir string) error {
		err := s.Runner.Run(ctx, external.Invocation{
			Dir:      dir,
			Function: distributionFunction,
			Args:     endArg,
			Literal:  true,
		})
		if err != nil {
			return err
		}
		copied, err := pathutil.CopyMatching(dir, outDir, func(name string) bool {
			return strings.HasPrefix(name, distributionPrefix)
		})
		if err != nil {
			return err
		}
		if len(copied) == 0 {
			return fmt.Errorf("%s in %s: %w: %s*", distributionFunction, dir, external.ErrMissingOutput, distributionPrefix)
		}
		collected[index[filepath.Base(dir)]] = copied

		if _, err := os.Stat(filepath.Join(dir, SeverityScores)); err == nil {
			return nil
		}
		return s.Runner.Run(ctx, external.Invocation{
			Dir:      dir,
			Function: scoresFunction,
			Bare:     true,
			Expect:   []string{SeverityScores},
		})
	})

	for _, c := range collected {
		res.Distributions = append(res.Distributions, c...)
	}
	return res, ctx.Err()
}
