package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEnsemble(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "simOutputData_0.txt"), []byte("1 2\n"), 0644))
}

func TestClassify(t *testing.T) {
	n := runfile.DefaultNaming()
	root := t.TempDir()

	ensemble := filepath.Join(root, "ensemble")
	mkEnsemble(t, ensemble)

	sweep := filepath.Join(root, "sweep")
	mkEnsemble(t, filepath.Join(sweep, "param_0.5"))
	mkEnsemble(t, filepath.Join(sweep, "param_1.0"))
	require.NoError(t, os.MkdirAll(filepath.Join(sweep, "plots"), 0755))

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.MkdirAll(empty, 0755))

	onlyLater := filepath.Join(root, "later")
	require.NoError(t, os.MkdirAll(onlyLater, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(onlyLater, "simOutputData_3.txt"), nil, 0644))

	deep := filepath.Join(root, "deep")
	mkEnsemble(t, filepath.Join(deep, "a", "b"))

	sentinelDir := filepath.Join(root, "sentineldir")
	require.NoError(t, os.MkdirAll(filepath.Join(sentinelDir, "simOutputData_0.txt"), 0755))

	tests := []struct {
		name string
		path string
		want Category
	}{
		{"ensemble", ensemble, SingleRunEnsemble},
		{"sweep", sweep, Sweep},
		{"empty", empty, Unrelated},
		{"no sentinel", onlyLater, Unrelated},
		{"two levels deep is not a sweep", deep, Unrelated},
		{"sentinel that is a directory", sentinelDir, Unrelated},
		{"missing path", filepath.Join(root, "missing"), Unrelated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.path, n))
		})
	}
}

func TestEnsembles_Sorted(t *testing.T) {
	n := runfile.DefaultNaming()
	sweep := t.TempDir()
	mkEnsemble(t, filepath.Join(sweep, "b"))
	mkEnsemble(t, filepath.Join(sweep, "a"))
	require.NoError(t, os.MkdirAll(filepath.Join(sweep, "c"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sweep, "simOutputData_0.txt"), nil, 0644))

	names, err := Ensembles(sweep, n)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestEnsemblesWith(t *testing.T) {
	sweep := t.TempDir()
	mkEnsemble(t, filepath.Join(sweep, "a"))
	mkEnsemble(t, filepath.Join(sweep, "b"))
	require.NoError(t, os.WriteFile(filepath.Join(sweep, "b", "multipleDataOutput.txt"), nil, 0644))

	names, err := EnsemblesWith(sweep, "multipleDataOutput.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)
}

func TestCandidates_IncludesMissingSentinel(t *testing.T) {
	n := runfile.DefaultNaming()
	sweep := t.TempDir()
	mkEnsemble(t, filepath.Join(sweep, "a"))
	require.NoError(t, os.MkdirAll(filepath.Join(sweep, "b"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sweep, "b", "simOutputData_4.txt"), nil, 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(sweep, "c"), 0755))

	names, err := Candidates(sweep, n)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	ensembles, err := Ensembles(sweep, n)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ensembles)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "ensemble", SingleRunEnsemble.String())
	assert.Equal(t, "sweep", Sweep.String())
	assert.Equal(t, "unrelated", Unrelated.String())
}
