package runfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Ref is one artifact file belonging to a numbered simulation run.
type Ref struct {
	Dir    string
	File   string // name on disk; may carry leading zeros
	Prefix string
	Suffix string
	Index  int
}

// Name returns the canonical file name for the reference's index.
func (r Ref) Name() string {
	return Format(r.Prefix, r.Index, r.Suffix)
}

// Path returns the on-disk path of the reference.
func (r Ref) Path() string {
	if r.File != "" {
		return filepath.Join(r.Dir, r.File)
	}
	return filepath.Join(r.Dir, r.Name())
}

// Format builds <prefix><index><suffix>.
func Format(prefix string, index int, suffix string) string {
	return prefix + strconv.Itoa(index) + suffix
}

// Parse extracts the run index from name. The index is the run of digits
// immediately following prefix; when suffix is non-empty the remainder of the
// name must equal it. ok is false when name is not a run artifact.
func Parse(name, prefix, suffix string) (ref Ref, ok bool) {
	if prefix == "" || !strings.HasPrefix(name, prefix) {
		return Ref{}, false
	}
	rest := name[len(prefix):]

	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return Ref{}, false
	}
	if suffix != "" && rest[end:] != suffix {
		return Ref{}, false
	}
	if suffix == "" && end != len(rest) {
		return Ref{}, false
	}

	index, err := strconv.Atoi(rest[:end])
	if err != nil {
		return Ref{}, false
	}
	return Ref{File: name, Prefix: prefix, Suffix: suffix, Index: index}, true
}

// DuplicateIndexError reports two or more files in one directory that parse
// to the same run index.
type DuplicateIndexError struct {
	Dir   string
	Index int
	Files []string
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("duplicate run index %d in %s: %s", e.Index, e.Dir, strings.Join(e.Files, ", "))
}

// Scan lists the run artifacts directly inside dir, sorted by index.
// Subdirectories and entries that cannot be inspected are skipped. When two
// files share an index, the sorted refs are returned together with a
// *DuplicateIndexError for the first collision found.
func Scan(dir, prefix, suffix string) ([]Ref, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var refs []Ref
	names := make(map[int][]string)
	for _, e := range entries {
		ref, ok := Parse(e.Name(), prefix, suffix)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil || info.IsDir() {
			continue
		}
		ref.Dir = dir
		refs = append(refs, ref)
		names[ref.Index] = append(names[ref.Index], e.Name())
	}

	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Index < refs[j].Index })

	for _, r := range refs {
		if files := names[r.Index]; len(files) > 1 {
			sort.Strings(files)
			return refs, &DuplicateIndexError{Dir: dir, Index: r.Index, Files: files}
		}
	}
	return refs, nil
}

// MaxIndex returns the largest index in refs, or -1 when refs is empty.
func MaxIndex(refs []Ref) int {
	highest := -1
	for _, r := range refs {
		if r.Index > highest {
			highest = r.Index
		}
	}
	return highest
}

// Gaps returns the indices missing from 0..MaxIndex(refs).
func Gaps(refs []Ref) []int {
	seen := make(map[int]bool, len(refs))
	for _, r := range refs {
		seen[r.Index] = true
	}
	var gaps []int
	for i := 0; i <= MaxIndex(refs); i++ {
		if !seen[i] {
			gaps = append(gaps, i)
		}
	}
	return gaps
}
