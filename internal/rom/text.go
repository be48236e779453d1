package rom

import (
	"fmt"
	"io"
	"strings"

	"github.com/ayusman/romscope/internal/joint"
)

// WriteText renders the report for terminal output.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	verdict := "valid"
	if !r.Valid {
		verdict = "not valid"
	}
	fmt.Fprintf(&b, "outcome: %s (%s)\n", r.Outcome, verdict)
	fmt.Fprintf(&b, "detection ratio: %.2f (%d of %d frames)\n", r.DetectionRatio, r.Counts.Detected, r.Counts.Attempted)
	fmt.Fprintf(&b, "distance metric: %s\n", r.DistanceMetric)
	fmt.Fprintf(&b, "frames: planned %d, not ready %d, detector failures %d, degenerate samples %d, distances omitted %d\n",
		r.Counts.Planned, r.Counts.NotReady, r.Counts.DetectorFailures, r.Counts.Degenerate, r.Counts.DistanceOmitted)
	if r.Cancelled {
		b.WriteString("cancelled: partial report\n")
	}
	if r.Advisory != "" {
		fmt.Fprintf(&b, "advisory: %s\n", r.Advisory)
	}

	for _, f := range r.FingerOrder {
		fr := r.Fingers[f]
		b.WriteByte('\n')
		if !fr.Measurable {
			fmt.Fprintf(&b, "%s: not measurable (%d angle samples)\n", f, fr.AngleSamples)
			continue
		}

		fmt.Fprintf(&b, "%s:\n", f)
		for _, j := range joint.All {
			res, ok := fr.Joints[j]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %-3s  flexion %6.1f  extension %5.1f  baseline %6.1f  mean %6.1f  sd %5.1f  (%d samples)\n",
				j, res.Flexion, res.Extension, res.Baseline, res.Mean, res.StdDev, res.Samples)
		}
		if fr.MinDistance != nil {
			fmt.Fprintf(&b, "  min distance %.4f (%d samples)\n", *fr.MinDistance, fr.DistanceSamples)
		} else {
			b.WriteString("  min distance n/a\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
