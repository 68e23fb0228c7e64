package params

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameRoot(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "root with prolog",
			in:   "<?xml version=\"1.0\"?>\n<root a=\"1\">\n  <root>inner</root>\n</root>\n",
			want: "<?xml version=\"1.0\"?>\n<input a=\"1\">\n  <root>inner</root>\n</input>\n",
		},
		{
			name: "already input",
			in:   "<input><x>1</x></input>",
			want: "<input><x>1</x></input>",
		},
		{
			name: "comment before root",
			in:   "<!-- params --><params><cd4Th1_deathRate>0.1</cd4Th1_deathRate></params>",
			want: "<!-- params --><input><cd4Th1_deathRate>0.1</cd4Th1_deathRate></input>",
		},
		{
			name: "self closing",
			in:   "<root/>",
			want: "<input/>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenameRoot([]byte(tt.in), "input")
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := RenameRoot([]byte("just text"), "input")
	assert.Error(t, err)
}

func TestFixRoots(t *testing.T) {
	root := t.TempDir()
	exp := filepath.Join(root, "LHC1_run_3")
	require.NoError(t, os.MkdirAll(exp, 0755))
	write := func(path, content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	write(filepath.Join(exp, "parameters.xml"), "<root><a>1</a></root>")
	write(filepath.Join(exp, "lhc1_parameters_7.xml"), "<root><a>2</a></root>")
	write(filepath.Join(exp, "lhc1_parameters_8.xml"), "<input><a>2</a></input>")
	write(filepath.Join(exp, "other.xml"), "<root/>")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "elsewhere"), 0755))
	write(filepath.Join(root, "elsewhere", "parameters.xml"), "<root/>")

	changed, err := FixRoots(root, "LHC1_run_")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(exp, "lhc1_parameters_7.xml"),
		filepath.Join(exp, "parameters.xml"),
	}, changed)

	data, err := os.ReadFile(filepath.Join(exp, "parameters.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<input><a>1</a></input>", string(data))

	data, err = os.ReadFile(filepath.Join(exp, "other.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<root/>", string(data))
}

func TestStripUnderscores(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "sensAnal_-_a_b", "b_1")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sensAnal_-_a_b", "sensitivity_parameters.xml"), []byte("<input><cd4_th1>1</cd4_th1></input>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "parameters.xml"), []byte("<input><a>1</a></input>"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "notes_x.txt"), []byte("a_b"), 0644))

	changed, err := StripUnderscores(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "sensAnal_-_a_b", "sensitivity_parameters.xml")}, changed)

	data, err := os.ReadFile(changed[0])
	require.NoError(t, err)
	assert.Equal(t, "<input><cd4th1>1</cd4th1></input>", string(data))

	data, err = os.ReadFile(filepath.Join(nested, "notes_x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a_b", string(data))
}
