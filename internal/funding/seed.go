package funding

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"fundingchart/internal/domain"
)

// LoadSeed parses a pre-seeded bulk funding dataset: a JSON object mapping
// unix-millisecond timestamps to 8-hour rates, e.g. {"1700000000000": -0.012}.
// A record with an unparseable timestamp is dropped; parsing continues with
// the remaining data.
func LoadSeed(r io.Reader) ([]domain.FundingSample, error) {
	var raw map[string]float64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding funding seed: %w", err)
	}

	samples := make([]domain.FundingSample, 0, len(raw))
	for key, rate := range raw {
		ms, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			continue
		}
		samples = append(samples, domain.FundingSample{Time: time.UnixMilli(ms), Rate8h: rate})
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
	return samples, nil
}

// LoadSeedFile reads the seed dataset from disk.
func LoadSeedFile(path string) ([]domain.FundingSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening funding seed %s: %w", path, err)
	}
	defer f.Close()
	return LoadSeed(f)
}
