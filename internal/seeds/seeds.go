// Package seeds verifies that every run of an ensemble used a distinct seed.
// Runs sharing a seed replay the same stochastic trajectory and are not
// independent trials.
package seeds

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/artimmus/simbatch/internal/runfile"
)

// Report is the outcome of a seed uniqueness check over one ensemble.
type Report struct {
	Dir       string `json:"dir"`
	Total     int    `json:"total"`
	AllUnique bool   `json:"all_unique"`

	// Duplicates maps each seed value used by two or more runs to the
	// sorted names of the seed files holding it.
	Duplicates map[int64][]string `json:"duplicates,omitempty"`

	// Unreadable lists seed files whose contents are not an integer.
	Unreadable []string `json:"unreadable,omitempty"`
}

// Check reads every seed file in dir and groups file names by seed value.
// It never modifies the directory.
func Check(dir string, n runfile.Naming) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	byValue := make(map[int64][]string)
	rep := &Report{Dir: dir}
	for _, e := range entries {
		if _, ok := runfile.Parse(e.Name(), n.SeedPrefix, ""); !ok {
			continue
		}
		if info, err := e.Info(); err != nil || !info.Mode().IsRegular() {
			continue
		}

		rep.Total++
		v, err := runfile.ReadSeed(filepath.Join(dir, e.Name()))
		if err != nil {
			rep.Unreadable = append(rep.Unreadable, e.Name())
			continue
		}
		byValue[v] = append(byValue[v], e.Name())
	}

	for v, files := range byValue {
		if len(files) < 2 {
			continue
		}
		sort.Strings(files)
		if rep.Duplicates == nil {
			rep.Duplicates = make(map[int64][]string)
		}
		rep.Duplicates[v] = files
	}
	sort.Strings(rep.Unreadable)
	rep.AllUnique = len(rep.Duplicates) == 0 && len(rep.Unreadable) == 0

	return rep, nil
}

// DuplicateValues returns the duplicated seed values in ascending order.
func (r *Report) DuplicateValues() []int64 {
	values := make([]int64, 0, len(r.Duplicates))
	for v := range r.Duplicates {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}
