// Package classify decides what role a directory plays in an experiment tree.
//
// Experiment trees are exactly two levels deep: a sweep directory holds one
// ensemble directory per parameter setting, and each ensemble holds the
// numbered run files. Classification never looks further than one level.
package classify

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/artimmus/simbatch/internal/runfile"
)

// Category is the role of a directory.
type Category int

const (
	Unrelated Category = iota
	SingleRunEnsemble
	Sweep
)

func (c Category) String() string {
	switch c {
	case SingleRunEnsemble:
		return "ensemble"
	case Sweep:
		return "sweep"
	default:
		return "unrelated"
	}
}

// Classify reports whether path is an ensemble, a sweep, or unrelated.
// Entries that cannot be read count as non-matching.
func Classify(path string, n runfile.Naming) Category {
	if IsEnsemble(path, n) {
		return SingleRunEnsemble
	}
	names, err := Ensembles(path, n)
	if err == nil && len(names) > 0 {
		return Sweep
	}
	return Unrelated
}

// IsEnsemble reports whether path directly contains the sentinel run file.
func IsEnsemble(path string, n runfile.Naming) bool {
	return hasRegularFile(path, n.Sentinel())
}

// Ensembles returns the sorted names of the immediate subdirectories of
// sweepPath that are ensembles.
func Ensembles(sweepPath string, n runfile.Naming) ([]string, error) {
	return EnsemblesWith(sweepPath, n.Sentinel())
}

// EnsemblesWith returns the sorted names of the immediate subdirectories of
// sweepPath that directly contain a regular file called marker.
func EnsemblesWith(sweepPath, marker string) ([]string, error) {
	entries, err := os.ReadDir(sweepPath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		sub := filepath.Join(sweepPath, e.Name())
		info, err := os.Stat(sub)
		if err != nil || !info.IsDir() {
			continue
		}
		if hasRegularFile(sub, marker) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Candidates returns the sorted names of the immediate subdirectories of
// sweepPath holding at least one data run file of any index. Unlike
// Ensembles it also finds ensembles whose first run is missing.
func Candidates(sweepPath string, n runfile.Naming) ([]string, error) {
	entries, err := os.ReadDir(sweepPath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		sub := filepath.Join(sweepPath, e.Name())
		if info, err := os.Stat(sub); err != nil || !info.IsDir() {
			continue
		}
		refs, _ := runfile.Scan(sub, n.DataPrefix, n.DataSuffix)
		if len(refs) > 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func hasRegularFile(dir, name string) bool {
	info, err := os.Stat(filepath.Join(dir, name))
	return err == nil && info.Mode().IsRegular()
}
