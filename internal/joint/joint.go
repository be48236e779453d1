// Package joint turns one frame's hand landmarks into finger joint angles
// and a normalized fingertip distance.
package joint

import (
	"fmt"
	"math"

	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/geometry"
)

// Joint identifies a finger joint, from hand to fingertip.
type Joint string

const (
	MCP Joint = "MCP"
	PIP Joint = "PIP"
	DIP Joint = "DIP"
)

// All lists the modelled joints in anatomical order.
var All = []Joint{MCP, PIP, DIP}

// DistanceMetric selects how the fingertip distance is measured.
type DistanceMetric string

const (
	// PalmPlane measures the fingertip's height above the plane through
	// the wrist, index MCP and pinky MCP.
	PalmPlane DistanceMetric = "palm_plane"
	// WristLine measures the straight fingertip to wrist distance.
	WristLine DistanceMetric = "wrist_line"
)

// ParseDistanceMetric validates a metric name.
func ParseDistanceMetric(s string) (DistanceMetric, error) {
	switch m := DistanceMetric(s); m {
	case PalmPlane, WristLine:
		return m, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Value is a measurement that may be missing because the geometry was degenerate.
type Value struct {
	Value float64
	Valid bool
}

// Measurement holds one finger's angles (degrees) and normalized distance for one frame.
type Measurement struct {
	MCP      Value
	PIP      Value
	DIP      Value
	Distance Value
}

// Angle returns the measured angle for j.
func (m Measurement) Angle(j Joint) Value {
	switch j {
	case MCP:
		return m.MCP
	case PIP:
		return m.PIP
	case DIP:
		return m.DIP
	}
	return Value{}
}

// AnglesValid reports whether all three angles could be measured.
func (m Measurement) AnglesValid() bool {
	return m.MCP.Valid && m.PIP.Valid && m.DIP.Valid
}

// Model computes vertex-anchored joint angles: each angle is measured at the
// joint landmark between its two adjoining segments, so a straight joint
// reads 180 degrees.
type Model struct {
	metric DistanceMetric
}

// NewModel creates a Model using the given distance metric.
func NewModel(metric DistanceMetric) *Model {
	if metric == "" {
		metric = PalmPlane
	}
	return &Model{metric: metric}
}

// Metric returns the distance metric in use.
func (m *Model) Metric() DistanceMetric {
	return m.metric
}

// Measure computes the angles and distance of finger in hand.
// It fails only for a finger without an MCP/PIP/DIP/TIP chain; degenerate
// geometry is reported through the Valid flags.
func (m *Model) Measure(hand *detector.HandLandmarks, finger detector.Finger) (Measurement, error) {
	chain, ok := finger.Chain()
	if !ok {
		return Measurement{}, fmt.Errorf("finger %q has no joint chain", finger)
	}

	p := func(i int) detector.Point3D { return hand.Points[i] }
	wrist := p(detector.Wrist).Vec()
	mcp := p(chain.MCP).Vec()
	pip := p(chain.PIP).Vec()
	dip := p(chain.DIP).Vec()
	tip := p(chain.Tip).Vec()

	var out Measurement
	out.MCP.Value, out.MCP.Valid = geometry.AngleAt(mcp, pip, wrist)
	out.PIP.Value, out.PIP.Valid = geometry.AngleAt(pip, mcp, dip)
	out.DIP.Value, out.DIP.Valid = geometry.AngleAt(dip, pip, tip)

	// Hand size: wrist to middle MCP.
	size := geometry.Distance(wrist, p(detector.MiddleMCP).Vec())
	if size == 0 || !finite(size) {
		return out, nil
	}

	var d float64
	switch m.metric {
	case WristLine:
		d = geometry.Distance(tip, wrist)
	default:
		var ok bool
		d, ok = geometry.PointPlaneDistance(tip, wrist, p(detector.IndexMCP).Vec(), p(detector.PinkyMCP).Vec())
		if !ok {
			return out, nil
		}
	}
	if v := d / size; finite(v) {
		out.Distance = Value{Value: v, Valid: true}
	}

	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
