// Package rom aggregates per-frame joint measurements into a range of motion report.
package rom

import (
	"errors"
	"math"
	"slices"
)

// ErrEmptySample is returned when a statistic is requested for no values.
var ErrEmptySample = errors.New("empty sample")

// Percentile returns the p-th quantile (p in [0,1]) of values using linear
// interpolation between order statistics: index = (n-1)*p.
// values is not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptySample
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, errors.New("percentile must be within [0, 1]")
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p), nil
}

func percentileSorted(sorted []float64, p float64) float64 {
	idx := float64(len(sorted)-1) * p
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
