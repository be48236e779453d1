package rom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/joint"
)

func TestReport_WriteText(t *testing.T) {
	dist := 0.0312
	r := &Report{
		Valid:          true,
		Outcome:        OutcomeOK,
		DetectionRatio: 0.9,
		DistanceMetric: joint.PalmPlane,
		FingerOrder:    []detector.Finger{detector.FingerRing, detector.FingerPinky},
		Fingers: map[detector.Finger]FingerReport{
			detector.FingerRing: {
				Finger:     detector.FingerRing,
				Measurable: true,
				Joints: map[joint.Joint]Result{
					joint.MCP: {Flexion: 85, Extension: 12.5, Valid: true, Samples: 9, Baseline: 172.5},
					joint.PIP: {Flexion: 100, Valid: true, Samples: 9, Baseline: 178},
					joint.DIP: {Flexion: 60, Valid: true, Samples: 9, Baseline: 179},
				},
				MinDistance:     &dist,
				AngleSamples:    9,
				DistanceSamples: 9,
			},
			detector.FingerPinky: {Finger: detector.FingerPinky, AngleSamples: 2},
		},
		Counts: Counts{Planned: 10, Attempted: 10, Detected: 9},
	}

	var b strings.Builder
	require.NoError(t, r.WriteText(&b))
	out := b.String()

	assert.Contains(t, out, "outcome: ok (valid)")
	assert.Contains(t, out, "detection ratio: 0.90 (9 of 10 frames)")
	assert.Contains(t, out, "ring:\n  MCP  flexion   85.0  extension  12.5")
	assert.Contains(t, out, "min distance 0.0312 (9 samples)")
	assert.Contains(t, out, "pinky: not measurable (2 angle samples)")
	assert.NotContains(t, out, "cancelled")
	assert.Less(t, strings.Index(out, "ring:"), strings.Index(out, "pinky:"), "fingers keep their selection order")
}

func TestReport_WriteText_LowVisibility(t *testing.T) {
	r := &Report{
		Outcome:     OutcomeLowVisibility,
		Advisory:    LowVisibilityAdvice,
		Cancelled:   true,
		FingerOrder: []detector.Finger{detector.FingerRing},
		Fingers:     map[detector.Finger]FingerReport{detector.FingerRing: {Finger: detector.FingerRing}},
	}

	var b strings.Builder
	require.NoError(t, r.WriteText(&b))
	out := b.String()

	assert.Contains(t, out, "outcome: low_visibility (not valid)")
	assert.Contains(t, out, "cancelled: partial report")
	assert.Contains(t, out, "advisory: "+LowVisibilityAdvice)
	assert.Contains(t, out, "ring: not measurable")
}
