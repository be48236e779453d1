package rom

import (
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/joint"
)

// Outcome is the overall verdict of an analysis.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeLowVisibility Outcome = "low_visibility"
)

// LowVisibilityAdvice is shown when the hand was not detected often enough.
const LowVisibilityAdvice = "insufficient hand visibility: film the finger from the side and keep it in frame"

// Counts are the run's frame diagnostics. Attempted counts frames handed to
// the detector whose call did not fail. Degenerate counts finger angle
// samples dropped because of degenerate geometry and DistanceOmitted the
// distance samples dropped on their own.
type Counts struct {
	Planned          int `json:"planned"`
	Attempted        int `json:"attempted"`
	Detected         int `json:"detected"`
	NotReady         int `json:"not_ready"`
	DetectorFailures int `json:"detector_failures"`
	Degenerate       int `json:"degenerate"`
	DistanceOmitted  int `json:"distance_omitted"`
}

// FingerReport is the result for one finger.
type FingerReport struct {
	Finger          detector.Finger        `json:"finger"`
	Measurable      bool                   `json:"measurable"`
	Joints          map[joint.Joint]Result `json:"joints,omitempty"`
	MinDistance     *float64               `json:"min_distance,omitempty"`
	AngleSamples    int                    `json:"angle_samples"`
	DistanceSamples int                    `json:"distance_samples"`
}

// Report is the final, read-only analysis result.
type Report struct {
	Valid          bool                             `json:"valid"`
	Outcome        Outcome                          `json:"outcome"`
	Advisory       string                           `json:"advisory,omitempty"`
	Cancelled      bool                             `json:"cancelled,omitempty"`
	DetectionRatio float64                          `json:"detection_ratio"`
	DistanceMetric joint.DistanceMetric             `json:"distance_metric"`
	Fingers        map[detector.Finger]FingerReport `json:"fingers"`
	FingerOrder    []detector.Finger                `json:"finger_order"`
	Counts         Counts                           `json:"counts"`
}

// Finger returns the report for f.
func (r *Report) Finger(f detector.Finger) (FingerReport, bool) {
	fr, ok := r.Fingers[f]
	return fr, ok
}

// Builder assembles a Report from an aggregator's tracks.
type Builder struct {
	Gate      Gate
	Estimator Estimator
	Metric    joint.DistanceMetric
}

// Build gates the run and estimates every measurable finger. Tracks are only read.
func (b Builder) Build(agg *Aggregator, counts Counts, cancelled bool) *Report {
	r := &Report{
		Outcome:        OutcomeOK,
		Cancelled:      cancelled,
		DistanceMetric: b.Metric,
		Fingers:        make(map[detector.Finger]FingerReport, len(agg.Fingers())),
		FingerOrder:    append([]detector.Finger(nil), agg.Fingers()...),
		Counts:         counts,
	}

	ratio, visible := b.Gate.Visible(counts.Attempted, counts.Detected)
	r.DetectionRatio = ratio

	for _, f := range agg.Fingers() {
		t := agg.Track(f)
		r.Fingers[f] = FingerReport{
			Finger:          f,
			AngleSamples:    len(t.MCP),
			DistanceSamples: len(t.Distance),
		}
	}

	if !visible {
		r.Outcome = OutcomeLowVisibility
		r.Advisory = LowVisibilityAdvice
		return r
	}
	r.Valid = true

	est := b.Estimator
	est.MinSamples = b.Gate.MinSamples
	for _, f := range agg.Fingers() {
		t := agg.Track(f)
		fr := r.Fingers[f]
		if !b.Gate.Measurable(t) {
			r.Fingers[f] = fr
			continue
		}

		fr.Measurable = true
		fr.Joints = make(map[joint.Joint]Result, len(joint.All))
		for _, j := range joint.All {
			res, _ := est.Estimate(t.Angles(j))
			fr.Joints[j] = res
		}
		if d, ok := est.MinDistance(t.Distance); ok {
			fr.MinDistance = &d
		}
		r.Fingers[f] = fr
	}

	return r
}
