package geotiff

import (
	"fmt"
	"sort"
)

// Percentiles returns the values at the pmin-th and pmax-th percentile
// of samples, linearly interpolated between neighbors. Used as linear
// stretch endpoints for display.
func Percentiles(samples []float64, pmin, pmax float64) (float64, float64, error) {
	if len(samples) == 0 {
		return 0, 0, fmt.Errorf("no samples to compute percentiles from")
	}
	if pmin < 0 || pmax > 100 || pmin > pmax {
		return 0, 0, fmt.Errorf("invalid percentile pair (%g, %g)", pmin, pmax)
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return percentile(sorted, pmin), percentile(sorted, pmax), nil
}

// percentile expects sorted input.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
