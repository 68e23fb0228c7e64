// Package defaults resolves the default value of the parameter a sweep
// varies.
//
// A sweep directory is named after the parameter's position in the
// sensitivity parameters document, e.g. "sensAnal_-_cd4Th1_deathRate_Reg"
// for <cd4Th1><deathRate><default>. That naming convention is confined to
// ParseSweepName; everything else works with the tag path.
package defaults

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SweepPrefix starts every sensitivity sweep directory name.
	SweepPrefix = "sensAnal_-_"

	// DocumentFile is the sensitivity parameters document in a sweep.
	DocumentFile = "sensitivity_parameters.xml"

	// OverrideFile, when present in a sweep, holds the default value on its
	// first line.
	OverrideFile = "defaultParameterValue"
)

// ErrNotFound is returned when the document has no default at a tag path.
var ErrNotFound = errors.New("default value not found")

// sweepSuffixes mark the experiment variant and are not tags.
var sweepSuffixes = []string{"_EAE", "_Reg"}

// ParseSweepName extracts the tag path from a sweep directory name.
func ParseSweepName(name string) ([]string, error) {
	base := filepath.Base(name)
	rest, ok := strings.CutPrefix(base, SweepPrefix)
	if !ok {
		return nil, fmt.Errorf("sweep name %q does not start with %q", base, SweepPrefix)
	}
	for trimmed := true; trimmed; {
		trimmed = false
		for _, suffix := range sweepSuffixes {
			if r, ok := strings.CutSuffix(rest, suffix); ok {
				rest, trimmed = r, true
			}
		}
	}
	var tags []string
	for _, t := range strings.Split(rest, "_") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("sweep name %q names no parameter", base)
	}
	return tags, nil
}

// Lookup maps a tag path to a default value.
type Lookup interface {
	Default(tags []string) (string, error)
}

// XMLLookup reads defaults from a sensitivity parameters document. Tags are
// matched below the root element, first match at each level, and the value
// is the text of the <default> element at the end of the path.
type XMLLookup struct {
	Path string
}

// Default implements Lookup.
func (l XMLLookup) Default(tags []string) (string, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	root, err := parseTree(f)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", filepath.Base(l.Path), err)
	}

	node := root
	for _, tag := range append(append([]string(nil), tags...), "default") {
		node = node.child(tag)
		if node == nil {
			return "", fmt.Errorf("%w: %s", ErrNotFound, strings.Join(tags, "/"))
		}
	}
	return strings.TrimSpace(node.text.String()), nil
}

type element struct {
	name     string
	text     strings.Builder
	children []*element
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseTree builds a minimal element tree from r and returns the root.
func parseTree(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	var stack []*element
	var root *element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			e := &element{name: t.Name.Local}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, e)
			} else if root == nil {
				root = e
			}
			stack = append(stack, e)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("empty document")
	}
	return root, nil
}

// Resolution is a resolved default and where it came from.
type Resolution struct {
	Value  string   `json:"value"`
	Source string   `json:"source"`
	Tags   []string `json:"tags,omitempty"`
}

// Resolve finds the default for a sweep. An explicit value wins, then the
// sweep's OverrideFile, then lookup over the tags parsed from the sweep's
// name. Tags are returned whenever the name parses, since they also name
// the response files.
func Resolve(sweepPath, explicit string, lookup Lookup) (*Resolution, error) {
	tags, tagErr := ParseSweepName(sweepPath)
	res := &Resolution{Tags: tags}

	if explicit != "" {
		res.Value, res.Source = explicit, "flag"
		return res, nil
	}

	data, err := os.ReadFile(filepath.Join(sweepPath, OverrideFile))
	if err == nil {
		line, _, _ := strings.Cut(string(data), "\n")
		if v := strings.TrimSpace(line); v != "" {
			res.Value, res.Source = v, OverrideFile
			return res, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if tagErr != nil {
		return nil, tagErr
	}
	if lookup == nil {
		lookup = XMLLookup{Path: filepath.Join(sweepPath, DocumentFile)}
	}
	v, err := lookup.Default(tags)
	if err != nil {
		return nil, err
	}
	res.Value, res.Source = v, DocumentFile
	return res, nil
}
