package rom

// Default gate thresholds.
const (
	DefaultVisibilityThreshold = 0.7
	DefaultMinSamples          = 5
	// LegacyMinSamples is the lowest permitted per-finger minimum.
	LegacyMinSamples = 3
)

// Gate decides whether a run, and each finger within it, has enough data.
type Gate struct {
	VisibilityThreshold float64
	MinSamples          int
}

// DefaultGate returns a 0.7 visibility threshold and a 5 sample minimum.
func DefaultGate() Gate {
	return Gate{
		VisibilityThreshold: DefaultVisibilityThreshold,
		MinSamples:          DefaultMinSamples,
	}
}

// DetectionRatio returns detected/attempted, or 0 when nothing was attempted.
func DetectionRatio(attempted, detected int) float64 {
	if attempted <= 0 {
		return 0
	}
	return float64(detected) / float64(attempted)
}

// Visible reports whether the hand was seen often enough. The ratio is
// recomputed from the raw counts on every call; a ratio equal to the
// threshold passes.
func (g Gate) Visible(attempted, detected int) (ratio float64, ok bool) {
	ratio = DetectionRatio(attempted, detected)
	if attempted <= 0 {
		return ratio, false
	}
	return ratio, !(ratio < g.VisibilityThreshold)
}

// Measurable reports whether a finger's track has enough MCP samples.
func (g Gate) Measurable(t *FingerTrack) bool {
	if t == nil {
		return false
	}
	return len(t.MCP) >= g.minSamples()
}

func (g Gate) minSamples() int {
	if g.MinSamples < LegacyMinSamples {
		return LegacyMinSamples
	}
	return g.MinSamples
}
