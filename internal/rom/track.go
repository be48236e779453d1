package rom

import (
	"fmt"
	"time"

	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/joint"
)

// FingerTrack is the ordered per-frame history of one finger over a video.
// Invalid samples are omitted, so the sequences may be shorter than the
// number of frames and the distance sequence may differ in length from the angles.
type FingerTrack struct {
	Finger       detector.Finger
	MCP          []float64
	PIP          []float64
	DIP          []float64
	Distance     []float64
	AngleTimes   []time.Duration
	DegenerateAt []time.Duration
}

// Angles returns the angle sequence for j.
func (t *FingerTrack) Angles(j joint.Joint) []float64 {
	switch j {
	case joint.MCP:
		return t.MCP
	case joint.PIP:
		return t.PIP
	case joint.DIP:
		return t.DIP
	}
	return nil
}

// Aggregator owns the finger tracks of one analysis run.
type Aggregator struct {
	fingers []detector.Finger
	tracks  map[detector.Finger]*FingerTrack
	last    time.Duration
	seen    bool
}

// NewAggregator creates empty tracks for the given fingers.
func NewAggregator(fingers []detector.Finger) *Aggregator {
	a := &Aggregator{
		fingers: fingers,
		tracks:  make(map[detector.Finger]*FingerTrack, len(fingers)),
	}
	for _, f := range fingers {
		a.tracks[f] = &FingerTrack{Finger: f}
	}
	return a
}

// Add appends one frame's measurement of finger at ts.
// The three angles are recorded together only when all are valid; the
// distance is recorded on its own. It reports whether the angles were kept.
func (a *Aggregator) Add(finger detector.Finger, ts time.Duration, m joint.Measurement) (bool, error) {
	t, ok := a.tracks[finger]
	if !ok {
		return false, fmt.Errorf("finger %q is not tracked", finger)
	}
	if a.seen && ts < a.last {
		return false, fmt.Errorf("sample at %v is older than %v", ts, a.last)
	}
	a.last, a.seen = ts, true

	if m.Distance.Valid {
		t.Distance = append(t.Distance, m.Distance.Value)
	}

	if !m.AnglesValid() {
		t.DegenerateAt = append(t.DegenerateAt, ts)
		return false, nil
	}

	t.MCP = append(t.MCP, m.MCP.Value)
	t.PIP = append(t.PIP, m.PIP.Value)
	t.DIP = append(t.DIP, m.DIP.Value)
	t.AngleTimes = append(t.AngleTimes, ts)
	return true, nil
}

// Fingers returns the tracked fingers in selection order.
func (a *Aggregator) Fingers() []detector.Finger {
	return a.fingers
}

// Track returns the track of finger, or nil when it is not tracked.
func (a *Aggregator) Track(finger detector.Finger) *FingerTrack {
	return a.tracks[finger]
}
