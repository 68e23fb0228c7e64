package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

// exitCodeError ends the process with code after the command has already
// reported why.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	rootCmd := newRootCmd()
	rootCmd.SetArgs(normalizeArgs(os.Args[1:]))
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simbatch",
		Short: "Batch orchestration for stochastic simulation output",
		Long: `simbatch organises and checks the output of batches of stochastic
simulation runs.

A single-run ensemble is a directory of numbered run files
(simOutputData_0.txt, simOutputData_1.txt, ...). A parameter sweep is a
directory whose subdirectories are ensembles. simbatch merges ensembles,
checks seeds and run counts, compiles medians, and drives the external
analysis scripts over every ensemble of a sweep.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.simbatch/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: warn, info, debug or trace")
	rootCmd.PersistentFlags().Int("workers", 0, "Ensembles processed at once (default from config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newClassifyCmd(),
		newMergeCmd(),
		newSeedsCmd(),
		newConsistencyCmd(),
		newMediansCmd(),
		newGraphsCmd(),
		newResponsesCmd(),
		newSeverityCmd(),
		newParamsCmd(),
		newProgressCmd(),
		newHistoryCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// normalizeArgs rewrites single-dash long flags (-end 50) to their
// double-dash form. Short flags, negative numbers and everything after
// "--" are left alone.
func normalizeArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "--" {
			copy(out[i:], args[i:])
			break
		}
		if len(a) > 2 && a[0] == '-' && isLetter(a[1]) && isLetter(a[2]) {
			if name, _, _ := strings.Cut(a[1:], "="); isFlagName(name) {
				a = "-" + a
			}
		}
		out[i] = a
	}
	return out
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isFlagName(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) && s[i] != '-' && (s[i] < '0' || s[i] > '9') {
			return false
		}
	}
	return true
}
