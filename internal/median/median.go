// Package median compiles the run files of an ensemble into one median run:
// each cell of the output is the median of that cell across every run.
package median

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Matrix is a run file's sample rows.
type Matrix [][]float64

// ReadMatrix parses whitespace-separated rows, skipping blank lines and
// comment lines starting with '#' or '%'. Every row must have the same
// number of columns.
func ReadMatrix(r io.Reader) (Matrix, error) {
	var m Matrix
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "%") {
			continue
		}
		fields := strings.Fields(text)
		if len(m) > 0 && len(fields) != len(m[0]) {
			return nil, fmt.Errorf("line %d: %d columns, expected %d", line, len(fields), len(m[0]))
		}
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			row[i] = v
		}
		m = append(m, row)
	}
	return m, sc.Err()
}

// ReadMatrixFile reads a run file from disk.
func ReadMatrixFile(path string) (Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// Of returns the median of values: the middle value, or the mean of the
// two middle values for an even count. values is not modified.
func Of(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Compile returns the cell-wise median of runs, which must all have the
// same shape.
func Compile(runs []Matrix) (Matrix, error) {
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs to compile")
	}
	rows := len(runs[0])
	cols := 0
	if rows > 0 {
		cols = len(runs[0][0])
	}
	for i, r := range runs {
		if len(r) != rows || (rows > 0 && len(r[0]) != cols) {
			return nil, fmt.Errorf("run %d has shape %dx%d, expected %dx%d", i, len(r), width(r), rows, cols)
		}
	}

	out := make(Matrix, rows)
	cell := make([]float64, len(runs))
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			for k, r := range runs {
				cell[k] = r[i][j]
			}
			out[i][j] = Of(cell)
		}
	}
	return out, nil
}

func width(m Matrix) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Write renders m with six significant digits per value, space separated,
// one row per line.
func Write(w io.Writer, m Matrix) error {
	bw := bufio.NewWriter(w)
	for _, row := range m {
		for j, v := range row {
			if j > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(v, 'g', 6, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
