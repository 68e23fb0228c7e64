package seeds

import (
	"context"
	"fmt"
	"sync"

	"github.com/artimmus/simbatch/internal/classify"
	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/artimmus/simbatch/internal/sweep"
)

// SweepReport collects the seed checks of every ensemble in a sweep.
type SweepReport struct {
	Sweep     string            `json:"sweep"`
	AllUnique bool              `json:"all_unique"`
	Ensembles []*Report         `json:"ensembles"`
	Errors    map[string]string `json:"errors,omitempty"`
	Outcomes  []sweep.Outcome   `json:"-"`
}

// CheckSweep runs Check on every ensemble directly under sweepPath.
// An ensemble that cannot be read counts against AllUnique.
func CheckSweep(ctx context.Context, sweepPath string, n runfile.Naming, w *sweep.Walker) (*SweepReport, error) {
	names, err := classify.Ensembles(sweepPath, n)
	if err != nil {
		return nil, fmt.Errorf("listing ensembles: %w", err)
	}

	var mu sync.Mutex
	byDir := make(map[string]*Report, len(names))
	outcomes := w.Run(ctx, sweepPath, names, func(ctx context.Context, dir string) error {
		rep, err := Check(dir, n)
		if err != nil {
			return err
		}
		mu.Lock()
		byDir[dir] = rep
		mu.Unlock()
		return nil
	})

	out := &SweepReport{Sweep: sweepPath, AllUnique: true, Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Err != nil {
			if out.Errors == nil {
				out.Errors = make(map[string]string)
			}
			out.Errors[o.Name] = o.Err.Error()
			out.AllUnique = false
			continue
		}
		rep := byDir[o.Dir]
		out.Ensembles = append(out.Ensembles, rep)
		if !rep.AllUnique {
			out.AllUnique = false
		}
	}
	return out, nil
}
