package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/artimmus/simbatch/internal/classify"
	"github.com/artimmus/simbatch/internal/consistency"
	"github.com/artimmus/simbatch/internal/history"
	"github.com/artimmus/simbatch/internal/merge"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/artimmus/simbatch/internal/progress"
	"github.com/artimmus/simbatch/internal/ratelimit"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/seeds"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultHistoryLimit = 20

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simbatch_classify",
		Description: "Classify a directory as a single-run ensemble, a parameter sweep, or unrelated",
	}, s.handleClassify)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simbatch_check_seeds",
		Description: "Check that every run of an ensemble (or of each ensemble in a sweep) used a distinct random seed",
	}, s.handleCheckSeeds)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simbatch_consistency",
		Description: "Check every ensemble of a sweep holds the expected number of runs and time samples, writing PASS/FAIL result files",
	}, s.handleConsistency)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simbatch_merge_runs",
		Description: "Copy the runs of one ensemble into another, renumbering them after the destination's last run",
	}, s.handleMergeRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simbatch_progress",
		Description: "Report the furthest run of each Latin-hypercube experiment directory",
	}, s.handleProgress)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simbatch_history",
		Description: "List recorded simbatch operations, newest first",
	}, s.handleHistory)
}

// resolve maps a tool path onto the server root and rejects anything
// outside it.
func (s *Server) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	resolved, err := pathutil.Resolve(path)
	if err != nil {
		return "", err
	}
	within, err := pathutil.IsWithin(resolved, s.root)
	if err != nil {
		return "", err
	}
	if !within {
		return "", fmt.Errorf("path %s is outside the server root", pathutil.RedactPath(resolved))
	}
	return resolved, nil
}

func (s *Server) naming() runfile.Naming {
	return s.settings.Naming
}

func (s *Server) handleClassify(ctx context.Context, req *sdk.CallToolRequest, args ClassifyInput) (_ *sdk.CallToolResult, _ ClassifyOutput, retErr error) {
	start := time.Now()
	path := args.Path
	defer func() { s.auditTool(ctx, "simbatch_classify", path, start, retErr, nil) }()

	if err := ratelimit.CheckLimit(s.limiters, "simbatch_classify"); err != nil {
		return nil, ClassifyOutput{}, err
	}
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, ClassifyOutput{}, err
	}

	n := s.naming()
	out := ClassifyOutput{Path: path, Category: classify.Classify(path, n).String()}
	switch out.Category {
	case classify.Sweep.String():
		if out.Ensembles, err = classify.Ensembles(path, n); err != nil {
			return nil, ClassifyOutput{}, err
		}
	case classify.SingleRunEnsemble.String():
		refs, err := runfile.Scan(path, n.DataPrefix, n.DataSuffix)
		if err != nil {
			return nil, ClassifyOutput{}, err
		}
		out.Runs = len(refs)
	}
	return nil, out, nil
}

func (s *Server) handleCheckSeeds(ctx context.Context, req *sdk.CallToolRequest, args CheckSeedsInput) (_ *sdk.CallToolResult, _ CheckSeedsOutput, retErr error) {
	start := time.Now()
	path := args.Path
	defer func() {
		s.auditTool(ctx, "simbatch_check_seeds", path, start, retErr, map[string]any{"sweep": args.Sweep})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "simbatch_check_seeds"); err != nil {
		return nil, CheckSeedsOutput{}, err
	}
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, CheckSeedsOutput{}, err
	}

	if !args.Sweep {
		rep, err := seeds.Check(path, s.naming())
		if err != nil {
			return nil, CheckSeedsOutput{}, err
		}
		return nil, CheckSeedsOutput{AllUnique: rep.AllUnique, Ensembles: []SeedReport{seedReport(rep)}}, nil
	}

	rep, err := seeds.CheckSweep(ctx, path, s.naming(), s.walker)
	if err != nil {
		return nil, CheckSeedsOutput{}, err
	}
	out := CheckSeedsOutput{AllUnique: rep.AllUnique, Ensembles: []SeedReport{}}
	for _, e := range rep.Ensembles {
		out.Ensembles = append(out.Ensembles, seedReport(e))
	}
	for name, msg := range rep.Errors {
		out.Errors = append(out.Errors, name+": "+msg)
	}
	sort.Strings(out.Errors)
	return nil, out, nil
}

func (s *Server) handleConsistency(ctx context.Context, req *sdk.CallToolRequest, args ConsistencyInput) (_ *sdk.CallToolResult, _ ConsistencyOutput, retErr error) {
	start := time.Now()
	path := args.Path
	defer func() {
		s.auditTool(ctx, "simbatch_consistency", path, start, retErr, map[string]any{
			"num_runs": args.NumRuns, "time_samples": args.TimeSamples,
		})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "simbatch_consistency"); err != nil {
		return nil, ConsistencyOutput{}, err
	}
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, ConsistencyOutput{}, err
	}

	n := s.naming()
	d := consistency.NewDriver(consistency.NativeCheck{Naming: n}, n, s.walker, s.logger, s.events)
	rep, err := d.CheckAll(ctx, path, consistency.Expectation{NumRuns: args.NumRuns, TimeSamples: args.TimeSamples})
	if err != nil {
		return nil, ConsistencyOutput{}, err
	}
	return nil, ConsistencyOutput{Report: rep}, nil
}

func (s *Server) handleMergeRuns(ctx context.Context, req *sdk.CallToolRequest, args MergeRunsInput) (_ *sdk.CallToolResult, _ MergeRunsOutput, retErr error) {
	start := time.Now()
	path := args.Destination
	defer func() {
		s.auditTool(ctx, "simbatch_merge_runs", path, start, retErr, map[string]any{"source": args.Source})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "simbatch_merge_runs"); err != nil {
		return nil, MergeRunsOutput{}, err
	}
	src, err := s.resolve(args.Source)
	if err != nil {
		return nil, MergeRunsOutput{}, fmt.Errorf("source: %w", err)
	}
	dst, err := s.resolve(args.Destination)
	if err != nil {
		return nil, MergeRunsOutput{}, fmt.Errorf("destination: %w", err)
	}
	path = dst

	res, err := merge.New(s.naming(), s.logger, s.events).Merge(ctx, src, dst)
	if err != nil {
		return nil, MergeRunsOutput{}, err
	}
	return nil, MergeRunsOutput{Result: res}, nil
}

func (s *Server) handleProgress(ctx context.Context, req *sdk.CallToolRequest, args ProgressInput) (_ *sdk.CallToolResult, _ ProgressOutput, retErr error) {
	start := time.Now()
	path := args.Path
	defer func() {
		s.auditTool(ctx, "simbatch_progress", path, start, retErr, map[string]any{"write": args.Write})
	}()

	if err := ratelimit.CheckLimit(s.limiters, "simbatch_progress"); err != nil {
		return nil, ProgressOutput{}, err
	}
	path, err := s.resolve(args.Path)
	if err != nil {
		return nil, ProgressOutput{}, err
	}

	var exps []progress.Experiment
	if args.Write {
		exps, err = progress.WriteReport(path, s.naming())
	} else {
		exps, err = progress.Scan(path, s.naming())
	}
	if err != nil {
		return nil, ProgressOutput{}, err
	}
	return nil, ProgressOutput{Experiments: exps}, nil
}

func (s *Server) handleHistory(ctx context.Context, req *sdk.CallToolRequest, args HistoryInput) (_ *sdk.CallToolResult, _ HistoryOutput, retErr error) {
	if err := ratelimit.CheckLimit(s.limiters, "simbatch_history"); err != nil {
		return nil, HistoryOutput{}, err
	}
	if s.history == nil {
		return nil, HistoryOutput{}, fmt.Errorf("history is disabled")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries, err := s.history.List(ctx, history.Filter{Operation: args.Operation, Limit: limit})
	if err != nil {
		return nil, HistoryOutput{}, err
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return nil, HistoryOutput{Entries: entries}, nil
}
