// Package consistency verifies that every ensemble of a sweep holds the
// expected number of runs, each with the expected number of time samples,
// and rolls the per-ensemble verdicts up into one sweep-level report.
package consistency

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/runfile"
)

// Expectation is the shape every ensemble must have.
type Expectation struct {
	NumRuns     int `json:"num_runs"`
	TimeSamples int `json:"time_samples"`
}

// Args renders the parameter line written after the verdicts and handed to
// the external check.
func (e Expectation) Args() string {
	return fmt.Sprintf("-numRuns %d -timeSamples %d", e.NumRuns, e.TimeSamples)
}

// Validate rejects non-positive expectations.
func (e Expectation) Validate() error {
	if e.NumRuns <= 0 {
		return fmt.Errorf("numRuns must be positive, got %d", e.NumRuns)
	}
	if e.TimeSamples <= 0 {
		return fmt.Errorf("timeSamples must be positive, got %d", e.TimeSamples)
	}
	return nil
}

// DirectoryCheck inspects one ensemble and leaves its verdict in the
// ensemble's result file. The file holds PASS, or one or more lines
// containing FAIL.
type DirectoryCheck interface {
	Check(ctx context.Context, dir string, exp Expectation) error
}

// NativeCheck counts runs and sample rows in Go.
type NativeCheck struct {
	Naming runfile.Naming
}

// Check writes PASS to dir's result file when dir holds exactly the runs
// 0..NumRuns-1 and each has exactly TimeSamples rows, and a FAIL line per
// problem otherwise. An error means the verdict could not be written.
func (c NativeCheck) Check(ctx context.Context, dir string, exp Expectation) error {
	n := c.Naming
	refs, scanErr := runfile.Scan(dir, n.DataPrefix, n.DataSuffix)
	if refs == nil && scanErr != nil {
		return scanErr
	}

	var failures []string
	if scanErr != nil {
		failures = append(failures, scanErr.Error())
	}

	present := make(map[int]runfile.Ref, len(refs))
	for _, r := range refs {
		present[r.Index] = r
		if r.Index >= exp.NumRuns {
			failures = append(failures, fmt.Sprintf("unexpected run file %s", r.Path()))
		}
	}
	for i := 0; i < exp.NumRuns; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, ok := present[i]
		if !ok {
			failures = append(failures, fmt.Sprintf("missing run file %s", n.DataName(i)))
			continue
		}
		rows, err := CountRows(r.Path())
		if err != nil {
			failures = append(failures, fmt.Sprintf("unreadable run file %s: %v", r.Name(), err))
			continue
		}
		if rows != exp.TimeSamples {
			failures = append(failures, fmt.Sprintf("%s has %d time samples, expected %d", r.Name(), rows, exp.TimeSamples))
		}
	}

	var b strings.Builder
	if len(failures) == 0 {
		b.WriteString("PASS\n")
	}
	for _, f := range failures {
		fmt.Fprintf(&b, "FAIL - %s\n", f)
	}
	b.WriteString(exp.Args())
	b.WriteString("\n")

	return os.WriteFile(filepath.Join(dir, n.ResultFile), []byte(b.String()), 0644)
}

// CountRows returns the number of sample rows in a run file: non-blank
// lines that are not comments.
func CountRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rows := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if isSampleRow(sc.Text()) {
			rows++
		}
	}
	return rows, sc.Err()
}

func isSampleRow(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "%")
}

// ExternalCheck delegates to checkConsistencyOfSingleRunDataFiles.
type ExternalCheck struct {
	Runner external.Runner
	Naming runfile.Naming
}

// Check runs the external check in dir and requires the result file.
func (c ExternalCheck) Check(ctx context.Context, dir string, exp Expectation) error {
	return c.Runner.Run(ctx, external.Invocation{
		Dir:      dir,
		Function: "checkConsistencyOfSingleRunDataFiles",
		Args:     exp.Args(),
		Expect:   []string{c.Naming.ResultFile},
	})
}
