package main

import (
	"fmt"
	"io"

	"github.com/artimmus/simbatch/internal/classify"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [path]",
		Short: "Report whether a directory is an ensemble, a sweep, or neither",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			path, err := dirArg(args, 0)
			if err != nil {
				return err
			}

			category := classify.Classify(path, rt.cfg.Naming)
			var ensembles []string
			if category == classify.Sweep {
				if ensembles, err = classify.Ensembles(path, rt.cfg.Naming); err != nil {
					return err
				}
			}

			result := map[string]any{"path": path, "category": category.String()}
			if ensembles != nil {
				result["ensembles"] = ensembles
			}
			return rt.emit(result, func(w io.Writer) {
				switch category {
				case classify.Sweep:
					fmt.Fprintf(w, "%s: sweep of %d ensembles\n", path, len(ensembles))
					for _, e := range ensembles {
						fmt.Fprintf(w, "  %s\n", e)
					}
				default:
					fmt.Fprintf(w, "%s: %s\n", path, category)
				}
			})
		},
	}
}
