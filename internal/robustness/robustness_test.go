package robustness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/artimmus/simbatch/internal/axes"
	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/median"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkEnsemble(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "simOutputData_0.txt"), []byte("0 1\n1 2\n"), 0644))
}

// recorder is a fake tool that writes whatever the invoked function is
// expected to produce.
type recorder struct {
	mu    sync.Mutex
	calls []external.Invocation
	fail  map[string]bool
}

func (r *recorder) Run(_ context.Context, inv external.Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()
	if r.fail[filepath.Base(inv.Dir)] {
		return external.ErrToolFailed
	}
	switch inv.Function {
	case responseFunction:
		name := strings.Trim(strings.SplitN(inv.Args, ",", 2)[0], "'")
		return os.WriteFile(filepath.Join(inv.Dir, name), []byte(filepath.Base(inv.Dir)), 0644)
	case distributionFunction:
		return os.WriteFile(filepath.Join(inv.Dir, distributionPrefix+filepath.Base(inv.Dir)), []byte("d"), 0644)
	case scoresFunction:
		return os.WriteFile(filepath.Join(inv.Dir, SeverityScores), []byte("s"), 0644)
	}
	return nil
}

func (r *recorder) byFunction(fn string) []external.Invocation {
	var out []external.Invocation
	for _, c := range r.calls {
		if c.Function == fn {
			out = append(out, c)
		}
	}
	return out
}

func TestNames(t *testing.T) {
	tags := []string{"cd4Th1", "deathRate"}
	assert.Equal(t, "robustness_analysis_response_data_-_cd4Th1_-_deathRate_-_0.5", ResponseName(tags, "0.5"))
	assert.Equal(t, "robustness_analysis_response_data_-_cd4Th1_-_deathRate_-_default_-_0.02", DefaultResponseName(tags, "0.02"))
	assert.Equal(t, "robustness_analysis_response_data_-_7", ResponseName(nil, "7"))

	assert.Equal(t, "0.02", EnsembleValue("/x/deathRate_0.02"))
	assert.Equal(t, "plain", EnsembleValue("plain"))

	assert.True(t, SameValue("0.020", "0.02"))
	assert.True(t, SameValue("2e-2", " 0.02\n"))
	assert.False(t, SameValue("0.03", "0.02"))
	assert.False(t, SameValue("abc", "abc"))
}

func TestResponses_Run(t *testing.T) {
	sweepDir := filepath.Join(t.TempDir(), "sensAnal_-_cd4Th1_deathRate_Reg")
	for _, v := range []string{"0.01", "0.020", "0.04"} {
		mkEnsemble(t, filepath.Join(sweepDir, "deathRate_"+v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(sweepDir, "defaultParameterValue"), []byte("0.02\n"), 0644))
	// stale output from an earlier run is discarded
	require.NoError(t, os.MkdirAll(filepath.Join(sweepDir, Dir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sweepDir, Dir, "stale"), nil, 0644))

	rec := &recorder{}
	n := runfile.DefaultNaming()
	r := NewResponses(rec, n, median.NewCompiler(n, nil, nil, nil), nil, sweep.New(2, nil), nil, nil)
	res, err := r.Run(context.Background(), sweepDir, ResponseOptions{End: 50})
	require.NoError(t, err)

	out := filepath.Join(sweepDir, Dir)
	assert.NoFileExists(t, filepath.Join(out, "stale"))
	assert.Equal(t, "0.02", res.Default.Value)
	assert.Len(t, res.Responses, 4)

	prefix := "robustness_analysis_response_data_-_cd4Th1_-_deathRate_-_"
	for _, v := range []string{"0.01", "0.020", "0.04"} {
		assert.FileExists(t, filepath.Join(out, prefix+v))
	}
	data, err := os.ReadFile(filepath.Join(out, prefix+"default_-_0.02"))
	require.NoError(t, err)
	assert.Equal(t, "deathRate_0.020", string(data))

	calls := rec.byFunction(responseFunction)
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.True(t, c.Literal)
		assert.True(t, strings.HasSuffix(c.Args, ",'50'"), c.Args)
		assert.Equal(t, []string{strings.Trim(strings.SplitN(c.Args, ",", 2)[0], "'")}, c.Expect)
	}

	final := rec.byFunction(analysisFunction)
	require.Len(t, final, 1)
	assert.Equal(t, out, final[0].Dir)
	assert.Equal(t, "robustnessAnalysis('');quit", final[0].Call())

	require.Len(t, res.Medians, 3)
	assert.FileExists(t, filepath.Join(sweepDir, "deathRate_0.01", "multipleDataOutput.txt"))
}

func TestResponses_QuotesTags(t *testing.T) {
	sweepDir := filepath.Join(t.TempDir(), "sensAnal_-_o'k_rate")
	mkEnsemble(t, filepath.Join(sweepDir, "rate_1"))

	var got external.Invocation
	runner := external.RunnerFunc(func(_ context.Context, inv external.Invocation) error {
		if inv.Function != responseFunction {
			return nil
		}
		got = inv
		return os.WriteFile(filepath.Join(inv.Dir, inv.Expect[0]), []byte("r"), 0644)
	})
	r := NewResponses(runner, runfile.DefaultNaming(), nil, nil, nil, nil, nil)
	_, err := r.Run(context.Background(), sweepDir, ResponseOptions{End: 5, Default: "1"})
	require.NoError(t, err)

	name := "robustness_analysis_response_data_-_o'k_-_rate_-_1"
	assert.Equal(t, []string{name}, got.Expect)
	assert.Equal(t, "generate_LHCx_response('robustness_analysis_response_data_-_o''k_-_rate_-_1','5');quit", got.Call())
	assert.FileExists(t, filepath.Join(sweepDir, Dir, name))
}

func TestResponses_WithGraphs(t *testing.T) {
	sweepDir := filepath.Join(t.TempDir(), "sensAnal_-_a_b")
	mkEnsemble(t, filepath.Join(sweepDir, "b_1"))
	require.NoError(t, os.WriteFile(filepath.Join(sweepDir, "b_1", "multipleDataOutput.txt"), []byte("1\n"), 0644))

	n := runfile.DefaultNaming()
	rec := &recorder{}
	var renders []string
	runner := external.RunnerFunc(func(ctx context.Context, inv external.Invocation) error {
		if inv.Function != axes.RenderFunction {
			return rec.Run(ctx, inv)
		}
		if strings.HasPrefix(inv.Args, "-save 0") {
			for _, a := range axes.All {
				if err := os.WriteFile(filepath.Join(sweepDir, a.FileName(n.AxisFilePrefix)), []byte("3\n"), 0644); err != nil {
					return err
				}
			}
			return nil
		}
		renders = append(renders, inv.Args)
		return os.WriteFile(filepath.Join(inv.Dir, "syswide.png"), []byte("png"), 0644)
	})

	agg := axes.NewAggregator(runner, n, nil, nil, nil)
	r := NewResponses(runner, n, nil, agg, nil, nil, nil)
	res, err := r.Run(context.Background(), sweepDir, ResponseOptions{End: 30, Default: "1"})
	require.NoError(t, err)

	require.NotNil(t, res.Graphs)
	assert.Empty(t, res.Graphs.Failed())
	require.Len(t, renders, 1)
	assert.Contains(t, renders[0], "-end 30 ")
	assert.Contains(t, renders[0], "-syswideY 3 ")
}

func TestResponses_EnsembleFailureStillAnalyses(t *testing.T) {
	sweepDir := filepath.Join(t.TempDir(), "sensAnal_-_a_b")
	mkEnsemble(t, filepath.Join(sweepDir, "b_1"))
	mkEnsemble(t, filepath.Join(sweepDir, "b_2"))

	rec := &recorder{fail: map[string]bool{"b_2": true}}
	r := NewResponses(rec, runfile.DefaultNaming(), nil, nil, nil, nil, nil)
	res, err := r.Run(context.Background(), sweepDir, ResponseOptions{End: 10, Default: "5"})
	require.NoError(t, err)

	failed := sweep.Failed(res.Outcomes)
	require.Len(t, failed, 1)
	assert.Equal(t, "b_2", failed[0].Name)
	assert.Len(t, res.Responses, 1)
	assert.Len(t, rec.byFunction(analysisFunction), 1)
}

func TestResponses_UnresolvableDefault(t *testing.T) {
	sweepDir := t.TempDir()
	mkEnsemble(t, filepath.Join(sweepDir, "x_1"))

	r := NewResponses(&recorder{}, runfile.DefaultNaming(), nil, nil, nil, nil, nil)
	_, err := r.Run(context.Background(), sweepDir, ResponseOptions{End: 10})
	assert.ErrorContains(t, err, "resolving default value")
	assert.NoDirExists(t, filepath.Join(sweepDir, Dir))
}

func TestSeverity_Run(t *testing.T) {
	sweepDir := t.TempDir()
	mkEnsemble(t, filepath.Join(sweepDir, "a"))
	mkEnsemble(t, filepath.Join(sweepDir, "b"))
	require.NoError(t, os.WriteFile(filepath.Join(sweepDir, "b", SeverityScores), []byte("done"), 0644))

	rec := &recorder{}
	s := NewSeverity(rec, runfile.DefaultNaming(), nil, nil)
	res, err := s.Run(context.Background(), sweepDir, 50)
	require.NoError(t, err)

	assert.Empty(t, sweep.Failed(res.Outcomes))
	assert.Equal(t, []string{
		filepath.Join(sweepDir, SeverityDir, distributionPrefix+"a"),
		filepath.Join(sweepDir, SeverityDir, distributionPrefix+"b"),
	}, res.Distributions)

	dist := rec.byFunction(distributionFunction)
	require.Len(t, dist, 2)
	assert.Equal(t, "EAESeverityDistributions(50);quit", dist[0].Call())

	scores := rec.byFunction(scoresFunction)
	require.Len(t, scores, 1)
	assert.Equal(t, "a", filepath.Base(scores[0].Dir))
}

func TestSeverity_NoDistributionsIsMissingOutput(t *testing.T) {
	sweepDir := t.TempDir()
	mkEnsemble(t, filepath.Join(sweepDir, "a"))

	runner := external.RunnerFunc(func(context.Context, external.Invocation) error { return nil })
	s := NewSeverity(runner, runfile.DefaultNaming(), nil, nil)
	res, err := s.Run(context.Background(), sweepDir, 50)
	require.NoError(t, err)

	failed := sweep.Failed(res.Outcomes)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, external.ErrMissingOutput)
	assert.Contains(t, fmt.Sprint(failed[0].Err), distributionPrefix)
}
