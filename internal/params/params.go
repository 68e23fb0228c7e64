// Package params applies structural fixes to simulator parameter files.
// Only tag names and characters are touched; parameter values keep their
// meaning.
package params

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ParametersFile is the simulator's parameter document.
	ParametersFile = "parameters.xml"

	// SensitivityFile is the sensitivity analysis parameter document.
	SensitivityFile = "sensitivity_parameters.xml"

	// RootTag is the root element the simulator expects.
	RootTag = "input"

	experimentParamsPrefix = "lhc1_parameters_"
)

// RenameRoot renames the root element of the XML document in data to
// name, leaving every other byte as it was.
func RenameRoot(data []byte, name string) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	var (
		raw        string
		start, end int64 = -1, -1
	)
	for {
		offset := dec.InputOffset()
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && start < 0 {
				start, raw = offset, rawName(t.Name)
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 && end < 0 {
				end = offset
			}
		}
	}
	if start < 0 {
		return nil, errors.New("no root element")
	}

	var out bytes.Buffer
	closing := []byte("</" + raw)
	if end < 0 || !bytes.HasPrefix(data[end:], closing) {
		// self-closing root
		out.Write(data[:start])
		out.WriteString("<" + name)
		out.Write(data[start+1+int64(len(raw)):])
		return out.Bytes(), nil
	}
	out.Write(data[:start])
	out.WriteString("<" + name)
	out.Write(data[start+1+int64(len(raw)) : end])
	out.WriteString("</" + name)
	out.Write(data[end+int64(len(closing)):])
	return out.Bytes(), nil
}

func rawName(n xml.Name) string {
	if n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

// RenameRootFile rewrites the file at path in place with its root element
// renamed. It reports whether the file changed.
func RenameRootFile(path, name string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	fixed, err := RenameRoot(data, name)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if bytes.Equal(fixed, data) {
		return false, nil
	}
	return true, writeKeepingMode(path, fixed)
}

// ExperimentFiles lists the parameter files of every experiment directory
// directly under root: each directory's parameters.xml and its
// lhc1_parameters_*.xml files.
func ExperimentFiles(root, experimentPrefix string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(e.Name(), experimentPrefix) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		inner, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range inner {
			name := f.Name()
			if !f.Type().IsRegular() {
				continue
			}
			if name == ParametersFile || (strings.HasPrefix(name, experimentParamsPrefix) && strings.HasSuffix(name, ".xml")) {
				files = append(files, filepath.Join(dir, name))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// FixRoots renames the root element of every experiment parameter file
// under root to RootTag and returns the files that changed.
func FixRoots(root, experimentPrefix string) ([]string, error) {
	files, err := ExperimentFiles(root, experimentPrefix)
	if err != nil {
		return nil, err
	}
	var changed []string
	for _, f := range files {
		ok, err := RenameRootFile(f, RootTag)
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, f)
		}
	}
	return changed, nil
}

// StripUnderscores removes every underscore from each parameters.xml and
// sensitivity_parameters.xml found below root, and returns the files that
// changed.
func StripUnderscores(root string) ([]string, error) {
	var changed []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || (d.Name() != ParametersFile && d.Name() != SensitivityFile) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		stripped := bytes.ReplaceAll(data, []byte("_"), nil)
		if len(stripped) == len(data) {
			return nil
		}
		if err := writeKeepingMode(path, stripped); err != nil {
			return err
		}
		changed = append(changed, path)
		return nil
	})
	return changed, err
}

func writeKeepingMode(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, info.Mode().Perm())
}
