// Package refdata loads the read-only reference datasets a worker needs at
// process start. Missing or unreadable reference data is an unrecoverable
// startup failure; the process must exit non-zero and let the supervisor
// make the condition visible.
package refdata

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// SectorBenchmark holds the per-sector decarbonization pathway figures the
// engine folds into target-based scores.
type SectorBenchmark struct {
	// PathwayAdjustment shifts a target-derived score for sectors whose
	// benchmark pathway runs hotter or cooler than the economy-wide one.
	PathwayAdjustment decimal.Decimal
}

// Benchmarks is the immutable sector benchmark table. Loaded once at
// process start; safe for concurrent reads.
type Benchmarks struct {
	sectors map[string]SectorBenchmark
}

type benchmarksFile struct {
	Sectors map[string]struct {
		PathwayAdjustment string `yaml:"pathway_adjustment"`
	} `yaml:"sectors"`
}

// Load reads the benchmark table from a YAML file.
func Load(path string) (*Benchmarks, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading reference data %s", path)
	}
	return Parse(raw)
}

// Parse decodes a benchmark table from YAML bytes.
func Parse(raw []byte) (*Benchmarks, error) {
	var f benchmarksFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parsing reference data")
	}
	if len(f.Sectors) == 0 {
		return nil, errors.New("reference data lists no sectors")
	}

	sectors := make(map[string]SectorBenchmark, len(f.Sectors))
	for name, s := range f.Sectors {
		adj, err := decimal.NewFromString(s.PathwayAdjustment)
		if err != nil {
			return nil, errors.Wrapf(err, "sector %s: bad pathway_adjustment", name)
		}
		sectors[name] = SectorBenchmark{PathwayAdjustment: adj}
	}
	return &Benchmarks{sectors: sectors}, nil
}

// Lookup returns the benchmark for a sector, ok=false when unmapped.
func (b *Benchmarks) Lookup(sector string) (SectorBenchmark, bool) {
	s, ok := b.sectors[sector]
	return s, ok
}

// Sectors returns the mapped sector names, sorted.
func (b *Benchmarks) Sectors() []string {
	names := make([]string, 0, len(b.sectors))
	for name := range b.sectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
