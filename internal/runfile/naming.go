// Package runfile identifies numbered simulation-run artifacts by file name.
//
// A run artifact is named <prefix><index><suffix>, e.g. simOutputData_12.txt.
// Seed files follow the same convention with an empty suffix (simRunSeed_12).
package runfile

// Naming holds the file-name conventions shared by every component.
// It is passed to components at construction rather than read from globals.
type Naming struct {
	// DataPrefix and DataSuffix bracket the run index of a data file.
	DataPrefix string `json:"data_prefix" yaml:"data_prefix"`
	DataSuffix string `json:"data_suffix" yaml:"data_suffix"`

	// SeedPrefix names the per-run seed file. Seed files have no suffix.
	SeedPrefix string `json:"seed_prefix" yaml:"seed_prefix"`

	// ResultFile is the consistency verdict written per ensemble and per sweep.
	ResultFile string `json:"result_file" yaml:"result_file"`

	// MedianFile is the aggregated median run compiled from all run files.
	MedianFile string `json:"median_file" yaml:"median_file"`

	// AxisFilePrefix prefixes the per-axis bound files written at a sweep root.
	AxisFilePrefix string `json:"axis_file_prefix" yaml:"axis_file_prefix"`

	// ExperimentPrefix starts the name of each Latin-hypercube experiment
	// directory, followed by the experiment number.
	ExperimentPrefix string `json:"experiment_prefix" yaml:"experiment_prefix"`
}

// DefaultNaming returns the conventions used by the simulator's output writers.
func DefaultNaming() Naming {
	return Naming{
		DataPrefix:       "simOutputData_",
		DataSuffix:       ".txt",
		SeedPrefix:       "simRunSeed_",
		ResultFile:       "consistencyOfDataResult",
		MedianFile:       "multipleDataOutput.txt",
		AxisFilePrefix:   "simoutputGraphAxesLimits_",
		ExperimentPrefix: "LHC1_run_",
	}
}

// Sentinel is the first run's data file. Its presence marks a directory as an ensemble.
func (n Naming) Sentinel() string {
	return Format(n.DataPrefix, 0, n.DataSuffix)
}

// DataName returns the data file name for run index i.
func (n Naming) DataName(i int) string {
	return Format(n.DataPrefix, i, n.DataSuffix)
}

// SeedName returns the seed file name for run index i.
func (n Naming) SeedName(i int) string {
	return Format(n.SeedPrefix, i, "")
}
