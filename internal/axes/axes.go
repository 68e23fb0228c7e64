// Package axes aggregates per-ensemble plot bounds across a sweep so that
// every ensemble's graphs can be redrawn on a common scale.
package axes

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrMissingAxis is returned when an axis has no bounds file, or the file
// holds no values.
var ErrMissingAxis = errors.New("axis bounds missing")

// Axis is one plotted quantity. Name is the bounds file suffix and Flag is
// the render option that carries the axis maximum.
type Axis struct {
	Name string `json:"name"`
	Flag string `json:"flag"`
}

// All lists every axis the renderer reports, in render-argument order.
var All = []Axis{
	{"syswide", "-syswideY"},
	{"cumulativeKilled", "-cumkillY"},
	{"cumulativeCompartmentKilled", "-cumkillCompY"},
	{"primedCompTh", "-primedCompThY"},
	{"primedCompCD4Treg", "-primedCompCD4TregY"},
	{"primedCompCD8Treg", "-primedCompCD8TregY"},
	{"cumulativeNeuronsKilled", "-cumNeuronsKilledY"},
	{"neuronsKilled", "-neuronsKilledY"},
	{"apcStatesCLN", "-apcStatesCLNY"},
	{"apcStatesSpleen", "-apcStatesSpleenY"},
	{"apcStatesCNS", "-apcStatesCNSY"},
	{"apcStatesSLO", "-apcStatesSLOY"},
	{"clnAPCPolarizations", "-clnAPCPolarizationsY"},
	{"cd4ThStates", "-cd4ThStatesY"},
	{"cd4TregStates", "-cd4TregStatesY"},
	{"cd8TregStates", "-cd8TregStatesY"},
	{"thCNS", "-thCNSY"},
}

// FileName is the bounds file for a under the given prefix.
func (a Axis) FileName(prefix string) string { return prefix + a.Name }

// Table holds the values collected for each axis, one per contributing
// ensemble.
type Table map[string][]float64

// Maxima maps an axis name to its global maximum.
type Maxima map[string]float64

// ParseValues reads one decimal float per non-blank line.
func ParseValues(r io.Reader) ([]float64, error) {
	var values []float64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		values = append(values, v)
	}
	return values, sc.Err()
}

// Max returns the largest value, or false for an empty slice.
func Max(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	highest := math.Inf(-1)
	for _, v := range values {
		highest = math.Max(highest, v)
	}
	return highest, true
}

// ReadTable reads every axis bounds file in dir.
func ReadTable(dir, prefix string, axes []Axis) (Table, error) {
	t := make(Table, len(axes))
	for _, a := range axes {
		f, err := os.Open(filepath.Join(dir, a.FileName(prefix)))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return t, fmt.Errorf("%w: %s", ErrMissingAxis, a.Name)
			}
			return t, err
		}
		values, err := ParseValues(f)
		f.Close()
		if err != nil {
			return t, fmt.Errorf("axis %s: %w", a.Name, err)
		}
		t[a.Name] = values
	}
	return t, nil
}

// Reduce collapses each axis to its maximum. Every axis in axes must have
// at least one value.
func (t Table) Reduce(axes []Axis) (Maxima, error) {
	m := make(Maxima, len(axes))
	for _, a := range axes {
		v, ok := Max(t[a.Name])
		if !ok {
			return nil, fmt.Errorf("%w: %s has no values", ErrMissingAxis, a.Name)
		}
		m[a.Name] = v
	}
	return m, nil
}

// RenderArgs renders the maxima as render options in axes order, each
// followed by a space.
func (m Maxima) RenderArgs(axes []Axis) string {
	var b strings.Builder
	for _, a := range axes {
		b.WriteString(a.Flag)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(m[a.Name], 'g', -1, 64))
		b.WriteByte(' ')
	}
	return b.String()
}
