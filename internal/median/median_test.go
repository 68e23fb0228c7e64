package median

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{5, 1, 3}, 3},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Of(tt.values))
		})
	}

	in := []float64{3, 1, 2}
	Of(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestReadMatrix(t *testing.T) {
	m, err := ReadMatrix(strings.NewReader("#time a b \n0 1 2 \n\n1.5 3 4\n"))
	require.NoError(t, err)
	assert.Equal(t, Matrix{{0, 1, 2}, {1.5, 3, 4}}, m)

	_, err = ReadMatrix(strings.NewReader("1 2\n3\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ReadMatrix(strings.NewReader("1 x\n"))
	assert.ErrorContains(t, err, "column 2")
}

func TestCompile(t *testing.T) {
	runs := []Matrix{
		{{0, 10}, {1, 20}},
		{{0, 30}, {1, 60}},
		{{0, 20}, {1, 40}},
	}
	med, err := Compile(runs)
	require.NoError(t, err)
	assert.Equal(t, Matrix{{0, 20}, {1, 40}}, med)

	_, err = Compile([]Matrix{{{1, 2}}, {{1, 2}, {3, 4}}})
	assert.ErrorContains(t, err, "shape")

	_, err = Compile(nil)
	assert.Error(t, err)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Matrix{{0, 2.5, 1234567}, {0.0001, 1.0 / 3, 100}}))
	assert.Equal(t, "0 2.5 1.23457e+06\n0.0001 0.333333 100\n", buf.String())
}

func writeRuns(t *testing.T, dir string, runs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i, r := range runs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, runfile.DefaultNaming().DataName(i)), []byte(r), 0644))
	}
}

func TestCompiler_Sweep(t *testing.T) {
	sweepDir := t.TempDir()
	writeRuns(t, filepath.Join(sweepDir, "a"), "#h\n0 1\n1 5\n", "#h\n0 3\n1 7\n")
	writeRuns(t, filepath.Join(sweepDir, "b"), "0 1\n", "0 1 2\n")
	writeRuns(t, filepath.Join(sweepDir, "c"), "0 9\n")
	require.NoError(t, os.WriteFile(filepath.Join(sweepDir, "c", "multipleDataOutput.txt"), []byte("kept\n"), 0644))

	c := NewCompiler(runfile.DefaultNaming(), sweep.New(2, nil), nil, nil)
	outcomes, err := c.Sweep(context.Background(), sweepDir)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.NoError(t, outcomes[0].Err)
	data, err := os.ReadFile(filepath.Join(sweepDir, "a", "multipleDataOutput.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 2\n1 6\n", string(data))

	assert.Error(t, outcomes[1].Err)
	assert.NoFileExists(t, filepath.Join(sweepDir, "b", "multipleDataOutput.txt"))

	assert.NoError(t, outcomes[2].Err)
	data, err = os.ReadFile(filepath.Join(sweepDir, "c", "multipleDataOutput.txt"))
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(data))
}

func TestCompiler_Force(t *testing.T) {
	dir := t.TempDir()
	writeRuns(t, dir, "0 9\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "multipleDataOutput.txt"), []byte("stale\n"), 0644))

	c := NewCompiler(runfile.DefaultNaming(), nil, nil, nil)
	c.Force = true
	require.NoError(t, c.Ensemble(context.Background(), dir))

	data, err := os.ReadFile(filepath.Join(dir, "multipleDataOutput.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 9\n", string(data))
}

func TestCompiler_External(t *testing.T) {
	dir := t.TempDir()
	writeRuns(t, dir, "0 9\n")

	var got external.Invocation
	c := NewCompiler(runfile.DefaultNaming(), nil, nil, nil)
	c.Runner = external.RunnerFunc(func(_ context.Context, inv external.Invocation) error {
		got = inv
		return nil
	})
	require.NoError(t, c.Ensemble(context.Background(), dir))

	assert.Equal(t, ExternalFunction, got.Function)
	assert.True(t, got.Bare)
	assert.Equal(t, []string{"multipleDataOutput.txt"}, got.Expect)
	assert.Equal(t, dir, got.Dir)
}
