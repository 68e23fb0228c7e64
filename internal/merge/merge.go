// Package merge appends the runs of one ensemble to another.
//
// Incoming runs are renumbered to continue the destination's index sequence
// and each run's seed file travels with it. Nothing already in the
// destination is overwritten or deleted, and the source is never modified.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/artimmus/simbatch/internal/runfile"
)

// ErrSameEnsemble is returned when source and destination are one directory.
var ErrSameEnsemble = errors.New("source and destination are the same directory")

// Copied records one run carried from the source into the destination.
// SeedFrom and SeedTo are empty when the source run had no seed file.
type Copied struct {
	From     string `json:"from"`
	To       string `json:"to"`
	SeedFrom string `json:"seed_from,omitempty"`
	SeedTo   string `json:"seed_to,omitempty"`
}

// Result describes a completed merge.
type Result struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	FirstIndex  int      `json:"first_index"`
	Copied      []Copied `json:"copied"`

	// Warnings flags integrity problems that were observed but not repaired,
	// such as gaps in the destination's numbering.
	Warnings []string `json:"warnings,omitempty"`
}

// Merger copies runs between ensembles.
type Merger struct {
	Naming runfile.Naming
	Logger *slog.Logger
	Events *logging.EventLog
}

// New creates a Merger. A nil logger discards output.
func New(n runfile.Naming, logger *slog.Logger, events *logging.EventLog) *Merger {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Merger{Naming: n, Logger: logger, Events: events}
}

// Merge copies every data run of src into dst, numbered from max(dst)+1
// (or 0 when dst holds no runs), in ascending source order. Duplicate
// indices on either side abort the merge before anything is copied.
func (m *Merger) Merge(ctx context.Context, src, dst string) (*Result, error) {
	if info, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("source ensemble: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("source ensemble %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return nil, fmt.Errorf("creating destination: %w", err)
	}
	same, err := pathutil.SameDir(src, dst)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, ErrSameEnsemble
	}

	n := m.Naming
	srcRuns, err := runfile.Scan(src, n.DataPrefix, n.DataSuffix)
	if err != nil {
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	dstRuns, err := runfile.Scan(dst, n.DataPrefix, n.DataSuffix)
	if err != nil {
		return nil, fmt.Errorf("scanning destination: %w", err)
	}

	next := runfile.MaxIndex(dstRuns) + 1
	res := &Result{Source: src, Destination: dst, FirstIndex: next}

	if gaps := runfile.Gaps(dstRuns); len(gaps) > 0 {
		msg := fmt.Sprintf("destination %s is not contiguous: missing run indices %v; appending past %d without repair",
			pathutil.RedactPath(dst), gaps, next-1)
		res.Warnings = append(res.Warnings, msg)
		m.Logger.Warn("merge integrity", "destination", dst, "missing", gaps)
	}

	m.Logger.Info("merging runs", "source", src, "destination", dst, "incoming", len(srcRuns), "existing", len(dstRuns))

	plan := m.plan(src, dst, srcRuns, next)
	for _, c := range plan {
		for _, target := range []string{c.To, c.SeedTo} {
			if target == "" {
				continue
			}
			if _, err := os.Lstat(target); err == nil {
				return res, fmt.Errorf("refusing to overwrite %s", target)
			}
		}
	}

	for _, c := range plan {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := copyFile(c.From, c.To); err != nil {
			return res, fmt.Errorf("copying %s: %w", c.From, err)
		}
		if c.SeedFrom != "" {
			if err := copyFile(c.SeedFrom, c.SeedTo); err != nil {
				return res, fmt.Errorf("copying seed %s: %w", c.SeedFrom, err)
			}
		}
		res.Copied = append(res.Copied, c)
		m.Events.Record("merge_copy", map[string]any{
			"from": c.From, "to": c.To, "seed_from": c.SeedFrom, "seed_to": c.SeedTo,
		})
	}

	return res, nil
}

// plan assigns destination names to the source runs in ascending order.
// The seed file is looked up by the run's source index in the source directory.
func (m *Merger) plan(src, dst string, runs []runfile.Ref, next int) []Copied {
	n := m.Naming
	plan := make([]Copied, 0, len(runs))
	for _, run := range runs {
		c := Copied{
			From: run.Path(),
			To:   filepath.Join(dst, n.DataName(next)),
		}
		seedFrom := filepath.Join(src, n.SeedName(run.Index))
		if info, err := os.Stat(seedFrom); err == nil && info.Mode().IsRegular() {
			c.SeedFrom = seedFrom
			c.SeedTo = filepath.Join(dst, n.SeedName(next))
		} else {
			m.Logger.Debug("no seed file for run", "source", src, "run", run.Index)
		}
		plan = append(plan, c)
		next++
	}
	return plan
}

// copyFile copies src to dst. dst must not exist.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("refusing to overwrite %s: %w", dst, err)
		}
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
