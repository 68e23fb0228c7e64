package runfile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Seed associates a run with the value that seeded its random number generator.
type Seed struct {
	RunIndex int
	Value    int64
	Path     string
}

// ReadSeed reads the integer on the first line of a seed file.
func ReadSeed(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		return 0, fmt.Errorf("seed file %s is empty", path)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("seed file %s: %w", path, err)
	}
	return v, nil
}

// ScanSeeds lists the seed files in dir sorted by run index. Values are not read.
func ScanSeeds(dir string, n Naming) ([]Ref, error) {
	return Scan(dir, n.SeedPrefix, "")
}
