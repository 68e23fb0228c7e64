package consistency

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/artimmus/simbatch/internal/classify"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
)

// Verdict is the outcome for one ensemble.
type Verdict struct {
	Ensemble string `json:"ensemble"`
	Pass     bool   `json:"pass"`

	// Detail holds the FAIL lines, or the reason the verdict is
	// inconclusive.
	Detail []string `json:"detail,omitempty"`
}

// Report is the sweep-level result.
type Report struct {
	Sweep       string      `json:"sweep"`
	Expectation Expectation `json:"expectation"`
	Pass        bool        `json:"pass"`
	Failed      []string    `json:"failed,omitempty"`
	Verdicts    []Verdict   `json:"verdicts"`

	// ResultPath is the written sweep-level file, empty when the sweep
	// held no ensembles.
	ResultPath string `json:"result_path,omitempty"`
}

// Driver runs a DirectoryCheck over every ensemble of a sweep.
type Driver struct {
	Check  DirectoryCheck
	Naming runfile.Naming
	Walker *sweep.Walker
	Logger *slog.Logger
	Events *logging.EventLog
}

// NewDriver creates a Driver. A nil walker processes ensembles sequentially.
func NewDriver(check DirectoryCheck, n runfile.Naming, w *sweep.Walker, logger *slog.Logger, events *logging.EventLog) *Driver {
	if logger == nil {
		logger = logging.Discard()
	}
	if w == nil {
		w = sweep.New(1, logger)
	}
	return &Driver{Check: check, Naming: n, Walker: w, Logger: logger, Events: events}
}

// CheckAll checks every subdirectory of sweepPath holding run files, then
// reads each ensemble's result file. Only a result holding a PASS line and
// no FAIL line passes; a step error, an absent result file or one without a
// verdict is a FAIL. The sweep's own result file is overwritten once all verdicts
// are in, and is left alone when the sweep has no ensembles.
func (d *Driver) CheckAll(ctx context.Context, sweepPath string, exp Expectation) (*Report, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	names, err := classify.Candidates(sweepPath, d.Naming)
	if err != nil {
		return nil, fmt.Errorf("listing ensembles: %w", err)
	}

	outcomes := d.Walker.Run(ctx, sweepPath, names, func(ctx context.Context, dir string) error {
		// a verdict left over from an earlier run must not stand in for this one
		if err := os.Remove(filepath.Join(dir, d.Naming.ResultFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return d.Check.Check(ctx, dir, exp)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rep := &Report{Sweep: sweepPath, Expectation: exp, Pass: true}
	for _, o := range outcomes {
		v := d.verdict(o)
		rep.Verdicts = append(rep.Verdicts, v)
		if !v.Pass {
			rep.Pass = false
			rep.Failed = append(rep.Failed, v.Ensemble)
		}
		d.Events.Record("consistency_verdict", map[string]any{
			"sweep": sweepPath, "ensemble": v.Ensemble, "pass": v.Pass,
		})
	}

	if len(names) == 0 {
		d.Logger.Warn("no ensembles found", "sweep", sweepPath)
		return rep, nil
	}

	rep.ResultPath = filepath.Join(sweepPath, d.Naming.ResultFile)
	if err := os.WriteFile(rep.ResultPath, []byte(rep.Summary()), 0644); err != nil {
		return rep, fmt.Errorf("writing sweep result: %w", err)
	}
	d.Logger.Info("consistency check finished", "sweep", sweepPath, "pass", rep.Pass, "failed", len(rep.Failed))
	return rep, nil
}

func (d *Driver) verdict(o sweep.Outcome) Verdict {
	v := Verdict{Ensemble: o.Name}
	if o.Err != nil {
		v.Detail = []string{fmt.Sprintf("check failed: %v", o.Err)}
		return v
	}
	data, err := os.ReadFile(filepath.Join(o.Dir, d.Naming.ResultFile))
	if err != nil {
		v.Detail = []string{fmt.Sprintf("no result: %v", err)}
		return v
	}
	passed := false
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.Contains(line, "FAIL"):
			v.Detail = append(v.Detail, line)
		case strings.HasPrefix(line, "PASS"):
			passed = true
		}
	}
	if len(v.Detail) > 0 {
		return v
	}
	if !passed {
		v.Detail = []string{"inconclusive result: no PASS line"}
		return v
	}
	v.Pass = true
	return v
}

// Summary renders the sweep result file: PASS, or one "FAIL - <ensemble>"
// line per failing ensemble, followed by the parameter line.
func (r *Report) Summary() string {
	var b strings.Builder
	if r.Pass {
		b.WriteString("PASS\n")
	}
	for _, name := range r.Failed {
		fmt.Fprintf(&b, "FAIL - %s\n", name)
	}
	b.WriteString(r.Expectation.Args())
	return b.String()
}
