package mcp

import (
	"github.com/artimmus/simbatch/internal/consistency"
	"github.com/artimmus/simbatch/internal/history"
	"github.com/artimmus/simbatch/internal/merge"
	"github.com/artimmus/simbatch/internal/progress"
	"github.com/artimmus/simbatch/internal/seeds"
)

// ClassifyInput defines the input for the simbatch_classify tool.
type ClassifyInput struct {
	Path string `json:"path" jsonschema:"Directory to classify, relative to the server root"`
}

// ClassifyOutput defines the output for the simbatch_classify tool.
type ClassifyOutput struct {
	Path      string   `json:"path" jsonschema:"Resolved directory"`
	Category  string   `json:"category" jsonschema:"One of ensemble, sweep or unrelated"`
	Ensembles []string `json:"ensembles,omitempty" jsonschema:"Ensemble names when the directory is a sweep"`
	Runs      int      `json:"runs" jsonschema:"Number of run files when the directory is an ensemble"`
}

// CheckSeedsInput defines the input for the simbatch_check_seeds tool.
type CheckSeedsInput struct {
	Path  string `json:"path" jsonschema:"Ensemble directory, or sweep directory when sweep is set"`
	Sweep bool   `json:"sweep,omitempty" jsonschema:"Check every ensemble of the sweep at path"`
}

// CheckSeedsOutput defines the output for the simbatch_check_seeds tool.
type CheckSeedsOutput struct {
	AllUnique bool         `json:"all_unique" jsonschema:"Whether every checked seed is unique"`
	Ensembles []SeedReport `json:"ensembles" jsonschema:"One report per checked ensemble"`
	Errors    []string     `json:"errors,omitempty" jsonschema:"Ensembles that could not be read"`
}

// SeedReport is the seed check of one ensemble.
type SeedReport struct {
	Dir        string          `json:"dir"`
	Total      int             `json:"total"`
	AllUnique  bool            `json:"all_unique"`
	Duplicates []DuplicateSeed `json:"duplicates,omitempty"`
	Unreadable []string        `json:"unreadable,omitempty"`
}

// DuplicateSeed is a seed value shared by several runs.
type DuplicateSeed struct {
	Value int64    `json:"value"`
	Files []string `json:"files"`
}

func seedReport(rep *seeds.Report) SeedReport {
	out := SeedReport{Dir: rep.Dir, Total: rep.Total, AllUnique: rep.AllUnique, Unreadable: rep.Unreadable}
	for _, v := range rep.DuplicateValues() {
		out.Duplicates = append(out.Duplicates, DuplicateSeed{Value: v, Files: rep.Duplicates[v]})
	}
	return out
}

// ConsistencyInput defines the input for the simbatch_consistency tool.
type ConsistencyInput struct {
	Path        string `json:"path" jsonschema:"Sweep directory"`
	NumRuns     int    `json:"num_runs" jsonschema:"Number of runs each ensemble must hold"`
	TimeSamples int    `json:"time_samples" jsonschema:"Number of samples each run file must hold"`
}

// ConsistencyOutput defines the output for the simbatch_consistency tool.
type ConsistencyOutput struct {
	Report *consistency.Report `json:"report" jsonschema:"Per-ensemble verdicts and the sweep verdict"`
}

// MergeRunsInput defines the input for the simbatch_merge_runs tool.
type MergeRunsInput struct {
	Source      string `json:"source" jsonschema:"Ensemble whose runs are copied"`
	Destination string `json:"destination" jsonschema:"Ensemble receiving the runs"`
}

// MergeRunsOutput defines the output for the simbatch_merge_runs tool.
type MergeRunsOutput struct {
	Result *merge.Result `json:"result" jsonschema:"Copied runs and integrity warnings"`
}

// ProgressInput defines the input for the simbatch_progress tool.
type ProgressInput struct {
	Path  string `json:"path" jsonschema:"Directory holding experiment directories"`
	Write bool   `json:"write,omitempty" jsonschema:"Also write the progress file at path"`
}

// ProgressOutput defines the output for the simbatch_progress tool.
type ProgressOutput struct {
	Experiments []progress.Experiment `json:"experiments" jsonschema:"Experiments ordered by number"`
}

// HistoryInput defines the input for the simbatch_history tool.
type HistoryInput struct {
	Operation string `json:"operation,omitempty" jsonschema:"Only entries of this operation"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of entries (default 20)"`
}

// HistoryOutput defines the output for the simbatch_history tool.
type HistoryOutput struct {
	Entries []history.Entry `json:"entries" jsonschema:"Entries newest first"`
}
