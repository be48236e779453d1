package rom

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Percentiles holds the quantiles used by the estimator, each in [0,1].
type Percentiles struct {
	// Floor estimates the most flexed position.
	Floor float64

	// Baseline estimates the extended position.
	Baseline float64

	// Ceiling estimates the hyperextended position.
	Ceiling float64

	// Distance picks the minimum fingertip distance.
	Distance float64
}

// DefaultPercentiles returns the 5/95/99 angle and 1 distance percentiles.
func DefaultPercentiles() Percentiles {
	return Percentiles{Floor: 0.05, Baseline: 0.95, Ceiling: 0.99, Distance: 0.01}
}

// Result is the range of motion of one finger joint in degrees.
type Result struct {
	Flexion   float64 `json:"flexion"`
	Extension float64 `json:"extension"`
	Valid     bool    `json:"valid"`
	Samples   int     `json:"samples"`
	Baseline  float64 `json:"baseline"`
	Floor     float64 `json:"floor"`
	Ceiling   float64 `json:"ceiling"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
}

// Estimator converts angle sequences into robust range of motion estimates.
// Upper and lower percentiles stand in for max and min so that single-frame
// detector spikes do not dominate.
type Estimator struct {
	Percentiles Percentiles
	MinSamples  int
}

// DefaultEstimator returns an estimator with default percentiles and a 5 sample minimum.
func DefaultEstimator() Estimator {
	return Estimator{Percentiles: DefaultPercentiles(), MinSamples: DefaultMinSamples}
}

// Estimate computes flexion and extension from an angle sequence.
// ok is false when there are fewer than MinSamples angles.
func (e Estimator) Estimate(angles []float64) (Result, bool) {
	minSamples := e.MinSamples
	if minSamples < LegacyMinSamples {
		minSamples = LegacyMinSamples
	}
	if len(angles) < minSamples {
		return Result{Samples: len(angles)}, false
	}

	sorted := slices.Clone(angles)
	slices.Sort(sorted)

	r := Result{
		Valid:    true,
		Samples:  len(sorted),
		Baseline: percentileSorted(sorted, e.Percentiles.Baseline),
		Floor:    percentileSorted(sorted, e.Percentiles.Floor),
		Ceiling:  percentileSorted(sorted, e.Percentiles.Ceiling),
	}
	r.Flexion = math.Max(0, r.Baseline-r.Floor)
	r.Extension = math.Max(0, r.Ceiling-r.Baseline)
	r.Mean, r.StdDev = stat.MeanStdDev(sorted, nil)
	if math.IsNaN(r.StdDev) {
		r.StdDev = 0
	}

	return r, true
}

// MinDistance returns the low percentile of a fingertip distance sequence.
func (e Estimator) MinDistance(distances []float64) (float64, bool) {
	if len(distances) == 0 {
		return 0, false
	}
	v, err := Percentile(distances, e.Percentiles.Distance)
	if err != nil {
		return 0, false
	}
	return v, true
}
