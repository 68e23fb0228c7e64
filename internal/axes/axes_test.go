package axes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValues(t *testing.T) {
	values, err := ParseValues(strings.NewReader("3.1\n\n7.4\n  2 \n1e3\n"))
	require.NoError(t, err)
	assert.Equal(t, []float64{3.1, 7.4, 2, 1000}, values)

	_, err = ParseValues(strings.NewReader("3.1\nNaNx\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestMax(t *testing.T) {
	v, ok := Max([]float64{3.1, 7.4, 2.0})
	assert.True(t, ok)
	assert.Equal(t, 7.4, v)

	v, ok = Max([]float64{-3, -1})
	assert.True(t, ok)
	assert.Equal(t, -1.0, v)

	_, ok = Max(nil)
	assert.False(t, ok)
}

func TestAllAxes(t *testing.T) {
	require.Len(t, All, 17)
	seen := map[string]bool{}
	for _, a := range All {
		assert.False(t, seen[a.Name], "duplicate axis %s", a.Name)
		seen[a.Name] = true
		assert.True(t, strings.HasPrefix(a.Flag, "-"))
		assert.True(t, strings.HasSuffix(a.Flag, "Y"))
	}
	assert.Equal(t, Axis{"cumulativeKilled", "-cumkillY"}, All[1])
}

func TestReduce_MissingAxis(t *testing.T) {
	tbl := Table{"syswide": {1}}
	_, err := tbl.Reduce([]Axis{{"syswide", "-syswideY"}, {"thCNS", "-thCNSY"}})
	assert.ErrorIs(t, err, ErrMissingAxis)
}

func TestOptionsArgs(t *testing.T) {
	assert.Equal(t, "-save 0 -calculateYs 1 ", Options{}.BoundsArgs())
	assert.Equal(t, "-save 0 -calculateYs 1 -end 50 -error 5 ", Options{End: 50, ErrorInterval: 5}.BoundsArgs())

	axes := []Axis{{"syswide", "-syswideY"}, {"thCNS", "-thCNSY"}}
	m := Maxima{"syswide": 7.4, "thCNS": 120}
	assert.Equal(t, "-save 1 -calculateYs 0 -end 12.5 -syswideY 7.4 -thCNSY 120 ", Options{End: 12.5}.RenderArgs(axes, m))
}

// fakeRenderer stands in for the render tool. In the bounds pass it appends
// the ensemble's configured bound for every axis to the sweep-root files,
// and in the render pass it records the args and writes a png.
type fakeRenderer struct {
	mu      sync.Mutex
	sweep   string
	bounds  map[string]float64
	fail    map[string]bool
	silent  map[string]bool // exits cleanly without appending bounds
	noPng   map[string]bool // exits cleanly without drawing
	renders map[string]string
}

func (f *fakeRenderer) Run(_ context.Context, inv external.Invocation) error {
	name := filepath.Base(inv.Dir)
	if f.fail[name] {
		return fmt.Errorf("%s: %w", name, external.ErrToolFailed)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasPrefix(inv.Args, "-save 0 -calculateYs 1") {
		if f.silent[name] {
			return nil
		}
		for _, a := range All {
			fh, err := os.OpenFile(filepath.Join(f.sweep, a.FileName("simoutputGraphAxesLimits_")), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return err
			}
			fmt.Fprintf(fh, "%g\n", f.bounds[name])
			fh.Close()
		}
		return nil
	}
	f.renders[name] = inv.Args
	if f.noPng[name] {
		return nil
	}
	return os.WriteFile(filepath.Join(inv.Dir, name+"_syswide.png"), []byte("png"), 0644)
}

func mkMedian(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "multipleDataOutput.txt"), []byte("1 2\n"), 0644))
}

func TestAggregator_CommonMaximum(t *testing.T) {
	sweepDir := t.TempDir()
	for _, name := range []string{"a", "b", "c"} {
		mkMedian(t, filepath.Join(sweepDir, name))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(sweepDir, "unrelated"), 0755))
	// stale bounds from an interrupted run are discarded
	require.NoError(t, os.WriteFile(filepath.Join(sweepDir, "simoutputGraphAxesLimits_syswide"), []byte("999\n"), 0644))

	f := &fakeRenderer{
		sweep:   sweepDir,
		bounds:  map[string]float64{"a": 3.1, "b": 7.4, "c": 2.0},
		renders: map[string]string{},
	}
	agg := NewAggregator(f, runfile.DefaultNaming(), sweep.New(3, nil), nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{End: 50})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, res.Ensembles)
	assert.Equal(t, 7.4, res.Maxima["syswide"])
	assert.ElementsMatch(t, []float64{3.1, 7.4, 2.0}, res.Table["syswide"])
	require.Len(t, f.renders, 3)
	for name, args := range f.renders {
		assert.True(t, strings.HasPrefix(args, "-save 1 -calculateYs 0 -end 50 "), name)
		assert.Contains(t, args, "-syswideY 7.4 ", name)
		assert.Contains(t, args, "-thCNSY 7.4 ", name)
	}

	assert.Len(t, res.Pngs, 3)
	assert.FileExists(t, filepath.Join(sweepDir, PngDir, "b_syswide.png"))
	for _, a := range All {
		assert.NoFileExists(t, filepath.Join(sweepDir, a.FileName("simoutputGraphAxesLimits_")))
	}
	assert.Empty(t, res.Failed())
}

func TestAggregator_FailedEnsembleSkipsRender(t *testing.T) {
	sweepDir := t.TempDir()
	mkMedian(t, filepath.Join(sweepDir, "a"))
	mkMedian(t, filepath.Join(sweepDir, "b"))

	f := &fakeRenderer{
		sweep:   sweepDir,
		bounds:  map[string]float64{"a": 1, "b": 2},
		fail:    map[string]bool{"b": true},
		renders: map[string]string{},
	}
	agg := NewAggregator(f, runfile.DefaultNaming(), nil, nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Maxima["syswide"])
	assert.Contains(t, f.renders, "a")
	assert.NotContains(t, f.renders, "b")
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Name)
}

func TestAggregator_MissingAxisIsHardError(t *testing.T) {
	sweepDir := t.TempDir()
	mkMedian(t, filepath.Join(sweepDir, "a"))

	// the tool reports success but writes only one axis file
	runner := external.RunnerFunc(func(_ context.Context, inv external.Invocation) error {
		return os.WriteFile(filepath.Join(sweepDir, "simoutputGraphAxesLimits_syswide"), []byte("4\n"), 0644)
	})
	agg := NewAggregator(runner, runfile.DefaultNaming(), sweep.New(2, nil), nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{})

	assert.True(t, errors.Is(err, ErrMissingAxis))
	assert.Empty(t, res.Render)
	assert.NoFileExists(t, filepath.Join(sweepDir, "simoutputGraphAxesLimits_syswide"))
}

func TestAggregator_PartialBoundsFailEnsemble(t *testing.T) {
	sweepDir := t.TempDir()
	mkMedian(t, filepath.Join(sweepDir, "a"))

	runner := external.RunnerFunc(func(_ context.Context, inv external.Invocation) error {
		return os.WriteFile(filepath.Join(sweepDir, "simoutputGraphAxesLimits_syswide"), []byte("4\n"), 0644)
	})
	agg := NewAggregator(runner, runfile.DefaultNaming(), nil, nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{})

	require.Error(t, err)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, external.ErrMissingOutput)
	assert.Empty(t, res.Render)
	assert.NoFileExists(t, filepath.Join(sweepDir, "simoutputGraphAxesLimits_syswide"))
}

func TestAggregator_SilentBoundsStepFails(t *testing.T) {
	sweepDir := t.TempDir()
	mkMedian(t, filepath.Join(sweepDir, "a"))
	mkMedian(t, filepath.Join(sweepDir, "b"))

	f := &fakeRenderer{
		sweep:   sweepDir,
		bounds:  map[string]float64{"a": 1, "b": 2},
		silent:  map[string]bool{"b": true},
		renders: map[string]string{},
	}
	agg := NewAggregator(f, runfile.DefaultNaming(), nil, nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, []float64{1}, res.Table["syswide"])
	assert.Contains(t, f.renders, "a")
	assert.NotContains(t, f.renders, "b")
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Name)
	assert.ErrorIs(t, failed[0].Err, external.ErrMissingOutput)
}

func TestAggregator_ConcurrentBoundsCountMismatch(t *testing.T) {
	sweepDir := t.TempDir()
	mkMedian(t, filepath.Join(sweepDir, "a"))
	mkMedian(t, filepath.Join(sweepDir, "b"))

	f := &fakeRenderer{
		sweep:   sweepDir,
		bounds:  map[string]float64{"a": 1, "b": 2},
		silent:  map[string]bool{"b": true},
		renders: map[string]string{},
	}
	agg := NewAggregator(f, runfile.DefaultNaming(), sweep.New(2, nil), nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{})

	assert.ErrorIs(t, err, external.ErrMissingOutput)
	assert.ErrorContains(t, err, "1 bounds for 2 ensembles")
	assert.Empty(t, res.Render)
	assert.Empty(t, f.renders)
}

func TestAggregator_RenderWithoutPngFails(t *testing.T) {
	sweepDir := t.TempDir()
	mkMedian(t, filepath.Join(sweepDir, "a"))
	mkMedian(t, filepath.Join(sweepDir, "b"))

	f := &fakeRenderer{
		sweep:   sweepDir,
		bounds:  map[string]float64{"a": 1, "b": 2},
		noPng:   map[string]bool{"a": true},
		renders: map[string]string{},
	}
	agg := NewAggregator(f, runfile.DefaultNaming(), nil, nil, nil)
	res, err := agg.Run(context.Background(), sweepDir, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(sweepDir, PngDir, "b_syswide.png")}, res.Pngs)
	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "a", failed[0].Name)
	assert.ErrorIs(t, failed[0].Err, external.ErrMissingOutput)
}

func TestAggregator_NoEnsembles(t *testing.T) {
	calls := 0
	runner := external.RunnerFunc(func(context.Context, external.Invocation) error {
		calls++
		return nil
	})
	agg := NewAggregator(runner, runfile.DefaultNaming(), nil, nil, nil)
	res, err := agg.Run(context.Background(), t.TempDir(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Ensembles)
	assert.Zero(t, calls)
}
