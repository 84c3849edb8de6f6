package catalog

import (
	"errors"
	"fmt"
	"sort"
)

var errDuplicateSymbol = errors.New("duplicate listing")

// maxExcludedSamples bounds the symbols kept per exclusion reason.
const maxExcludedSamples = 5

// LoadReport summarises a catalog build. Excluded records are counted per
// reason so feed-quality problems stay visible.
type LoadReport struct {
	Source    string              `json:"source"`
	Synthetic bool                `json:"synthetic"`
	Total     int                 `json:"total"`
	Loaded    int                 `json:"loaded"`
	Excluded  int                 `json:"excluded"`
	Reasons   map[string]int      `json:"reasons,omitempty"`
	Samples   map[string][]string `json:"samples,omitempty"`
}

func (r *LoadReport) exclude(symbol string, reason error) {
	r.Excluded++
	if r.Reasons == nil {
		r.Reasons = make(map[string]int)
		r.Samples = make(map[string][]string)
	}
	key := reason.Error()
	r.Reasons[key]++
	if len(r.Samples[key]) < maxExcludedSamples {
		r.Samples[key] = append(r.Samples[key], symbol)
	}
}

// merge folds the row-level exclusions of a raw build into the record-level
// report produced by Load.
func (r *LoadReport) merge(other LoadReport) {
	r.Total += other.Total
	r.Excluded += other.Excluded
	for k, n := range other.Reasons {
		if r.Reasons == nil {
			r.Reasons = make(map[string]int)
			r.Samples = make(map[string][]string)
		}
		r.Reasons[k] += n
		for _, s := range other.Samples[k] {
			if len(r.Samples[k]) < maxExcludedSamples {
				r.Samples[k] = append(r.Samples[k], s)
			}
		}
	}
}

// String renders a one-line summary for logs and CLI output.
func (r LoadReport) String() string {
	s := fmt.Sprintf("source=%s synthetic=%t total=%d loaded=%d excluded=%d", r.Source, r.Synthetic, r.Total, r.Loaded, r.Excluded)
	keys := make([]string, 0, len(r.Reasons))
	for k := range r.Reasons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s += fmt.Sprintf(" [%s: %d]", k, r.Reasons[k])
	}
	return s
}
