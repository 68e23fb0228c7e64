// Package progress reports how far each Latin-hypercube experiment has got,
// judged by the highest-numbered run file it holds.
package progress

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/artimmus/simbatch/internal/runfile"
)

// ReportFile is written at the root of a progress scan.
const ReportFile = "progress"

// Experiment is one experiment directory and its furthest run.
type Experiment struct {
	Dir    string `json:"dir"`
	Number int    `json:"number"`
	Runs   int    `json:"runs"`

	// Latest is the name of the highest-numbered run file, empty when the
	// experiment has none yet.
	Latest string `json:"latest,omitempty"`
}

// Scan walks root for directories whose name contains the experiment
// prefix and returns them ordered by experiment number.
func Scan(root string, n runfile.Naming) ([]Experiment, error) {
	var exps []Experiment
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		i := strings.Index(d.Name(), n.ExperimentPrefix)
		if i < 0 {
			return nil
		}

		e := Experiment{Dir: path, Number: leadingInt(d.Name()[i+len(n.ExperimentPrefix):])}
		refs, _ := runfile.Scan(path, n.DataPrefix, n.DataSuffix)
		e.Runs = len(refs)
		if len(refs) > 0 {
			e.Latest = refs[len(refs)-1].Name()
		}
		exps = append(exps, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(exps, func(i, j int) bool { return exps[i].Number < exps[j].Number })
	return exps, nil
}

// leadingInt parses the digits at the start of s, or 0 when there are none.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, _ := strconv.Atoi(s[:end])
	return v
}

// Write renders exps as a blank-line separated list of experiment
// directories, each followed by its latest run file.
func Write(w io.Writer, exps []Experiment) error {
	for _, e := range exps {
		if _, err := fmt.Fprintf(w, "\n\n%s\n%s", e.Dir, e.Latest); err != nil {
			return err
		}
	}
	return nil
}

// WriteReport scans root and writes the report to root/ReportFile.
func WriteReport(root string, n runfile.Naming) ([]Experiment, error) {
	exps, err := Scan(root, n)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(root, ReportFile))
	if err != nil {
		return exps, err
	}
	if err := Write(f, exps); err != nil {
		f.Close()
		return exps, err
	}
	return exps, f.Close()
}
