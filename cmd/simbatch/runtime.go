package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/artimmus/simbatch/internal/config"
	"github.com/artimmus/simbatch/internal/external"
	"github.com/artimmus/simbatch/internal/history"
	"github.com/artimmus/simbatch/internal/logging"
	"github.com/artimmus/simbatch/internal/pathutil"
	"github.com/artimmus/simbatch/internal/sweep"
	"github.com/spf13/cobra"
)

// runtime is what every command shares: settings, logging, and the
// history ledger.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	events  *logging.EventLog
	history *history.Store
	walker  *sweep.Walker
	jsonOut bool
	out     io.Writer
}

// setup loads the configuration, applies the global flags over it, and
// opens logging and history.
func setup(cmd *cobra.Command) (*runtime, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers != 0 {
		cfg.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rt := &runtime{cfg: cfg, out: cmd.OutOrStdout()}
	rt.jsonOut, _ = cmd.Flags().GetBool("json")
	rt.logger = logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	if dir, err := config.StateDir(); err == nil {
		rt.events = logging.NewEventLog(dir, cfg.Logging.Level)
	}
	rt.walker = sweep.New(cfg.Workers, rt.logger)

	if cfg.History.Enabled {
		path, err := cfg.HistoryPath()
		if err == nil {
			rt.history, err = history.Open(path)
		}
		if err != nil {
			rt.logger.Warn("history disabled", "error", err)
		}
	}
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.history != nil {
		rt.history.Close()
	}
	rt.events.Close()
}

func (rt *runtime) runner() external.Runner {
	return external.NewExecRunner(rt.cfg.External, rt.logger, rt.events)
}

// record stores an operation in the history ledger. err wins over failed
// when choosing the status.
func (rt *runtime) record(ctx context.Context, op, path string, start time.Time, err error, failed bool, detail string) {
	if rt.history == nil {
		return
	}
	status := history.StatusOK
	switch {
	case err != nil:
		status, detail = history.StatusError, err.Error()
	case failed:
		status = history.StatusFailed
	}
	_, recErr := rt.history.Record(context.WithoutCancel(ctx), history.Entry{
		Operation:  op,
		Path:       path,
		Status:     status,
		Detail:     detail,
		StartedAt:  start,
		FinishedAt: time.Now(),
	})
	if recErr != nil {
		rt.logger.Warn("failed to record operation", "operation", op, "error", recErr)
	}
}

// emit writes v as JSON when --json is set and calls text otherwise.
func (rt *runtime) emit(v any, text func(w io.Writer)) error {
	if rt.jsonOut {
		enc := json.NewEncoder(rt.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(rt.out)
	return nil
}

// dirArg returns the resolved directory named by args[i], or the working
// directory when it was omitted.
func dirArg(args []string, i int) (string, error) {
	path := "."
	if len(args) > i {
		path = args[i]
	}
	resolved, err := pathutil.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return resolved, nil
}

// outcomeErr summarises failed ensembles as a single error, or nil.
func outcomeErr(outcomes []sweep.Outcome) error {
	failed := sweep.Failed(outcomes)
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d ensembles failed", len(failed), len(outcomes))
}

func printOutcomes(w io.Writer, outcomes []sweep.Outcome) {
	for _, o := range outcomes {
		if o.OK() {
			fmt.Fprintf(w, "  ok    %s (%s)\n", o.Name, o.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(w, "  FAIL  %s: %v\n", o.Name, o.Err)
		}
	}
}

// outcomeView is the JSON form of a sweep.Outcome.
type outcomeView struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

func viewOutcomes(outcomes []sweep.Outcome) []outcomeView {
	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		v := outcomeView{Name: o.Name, OK: o.OK(), Duration: o.Duration.String()}
		if o.Err != nil {
			v.Error = o.Err.Error()
		}
		views = append(views, v)
	}
	return views
}

func relName(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
