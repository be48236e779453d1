// Package geometry provides the vector math used to turn hand landmarks into joint angles.
//
// Numerically degenerate input never panics or returns an error. Functions
// report it through a second boolean result so callers can drop the sample.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vector returns b-a componentwise.
func Vector(a, b r3.Vec) r3.Vec {
	return r3.Sub(b, a)
}

// Dot returns the dot product of u and v.
func Dot(u, v r3.Vec) float64 {
	return r3.Dot(u, v)
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v r3.Vec) float64 {
	return r3.Norm(v)
}

// AngleBetween returns the angle between u and v in degrees, in [0, 180].
// ok is false when either vector has zero length or the cosine is not finite.
func AngleBetween(u, v r3.Vec) (deg float64, ok bool) {
	mu, mv := Magnitude(u), Magnitude(v)
	if mu == 0 || mv == 0 {
		return 0, false
	}

	cos := Dot(u, v) / (mu * mv)
	if math.IsNaN(cos) || math.IsInf(cos, 0) {
		return 0, false
	}

	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi, true
}

// AngleAt returns the angle at vertex between the segments vertex->a and vertex->b.
func AngleAt(vertex, a, b r3.Vec) (float64, bool) {
	return AngleBetween(Vector(vertex, a), Vector(vertex, b))
}

// Distance returns the straight-line distance between a and b.
func Distance(a, b r3.Vec) float64 {
	return Magnitude(Vector(a, b))
}

// PointPlaneDistance returns the distance from p to the plane through a, b and c.
// ok is false when the three points are collinear (or coincide) and no plane exists.
func PointPlaneDistance(p, a, b, c r3.Vec) (float64, bool) {
	normal := r3.Cross(Vector(a, b), Vector(a, c))
	n := Magnitude(normal)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}

	d := math.Abs(Dot(Vector(a, p), normal)) / n
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}
