package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const epsilon = 1e-9

func TestVector(t *testing.T) {
	v := Vector(r3.Vec{X: 1, Y: 2, Z: 3}, r3.Vec{X: 4, Y: 0, Z: 3})
	assert.Equal(t, r3.Vec{X: 3, Y: -2, Z: 0}, v)
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, 5.0, Magnitude(r3.Vec{X: 3, Y: 4}), epsilon)
	assert.InDelta(t, 0.0, Magnitude(r3.Vec{}), epsilon)
}

func TestAngleBetween(t *testing.T) {
	tests := []struct {
		name string
		u, v r3.Vec
		want float64
	}{
		{"identical direction", r3.Vec{X: 1}, r3.Vec{X: 2}, 0},
		{"opposite unit vectors", r3.Vec{X: 1}, r3.Vec{X: -1}, 180},
		{"orthogonal", r3.Vec{X: 1}, r3.Vec{Y: 1}, 90},
		{"orthogonal in z", r3.Vec{Y: 3}, r3.Vec{Z: -0.5}, 90},
		{"forty five degrees", r3.Vec{X: 1}, r3.Vec{X: 1, Y: 1}, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AngleBetween(tt.u, tt.v)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-6)

			swapped, ok := AngleBetween(tt.v, tt.u)
			require.True(t, ok)
			assert.InDelta(t, got, swapped, epsilon, "angle must be symmetric")
		})
	}

	t.Run("zero vector is invalid", func(t *testing.T) {
		_, ok := AngleBetween(r3.Vec{}, r3.Vec{X: 1})
		assert.False(t, ok)
		_, ok = AngleBetween(r3.Vec{X: 1}, r3.Vec{})
		assert.False(t, ok)
	})

	t.Run("non-finite input is invalid", func(t *testing.T) {
		_, ok := AngleBetween(r3.Vec{X: math.Inf(1)}, r3.Vec{X: 1})
		assert.False(t, ok)
		_, ok = AngleBetween(r3.Vec{X: math.NaN()}, r3.Vec{X: 1})
		assert.False(t, ok)
	})

	t.Run("rounding never leaves the acos domain", func(t *testing.T) {
		u := r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}
		got, ok := AngleBetween(u, r3.Scale(3, u))
		require.True(t, ok)
		assert.False(t, math.IsNaN(got))
		assert.InDelta(t, 0, got, 1e-5)
	})
}

func TestAngleAt(t *testing.T) {
	// straight segment through the vertex
	got, ok := AngleAt(r3.Vec{}, r3.Vec{X: -1}, r3.Vec{X: 1})
	require.True(t, ok)
	assert.InDelta(t, 180, got, 1e-6)

	// right angle
	got, ok = AngleAt(r3.Vec{X: 1, Y: 1}, r3.Vec{X: 1, Y: 2}, r3.Vec{X: 2, Y: 1})
	require.True(t, ok)
	assert.InDelta(t, 90, got, 1e-6)

	_, ok = AngleAt(r3.Vec{X: 1}, r3.Vec{X: 1}, r3.Vec{X: 2})
	assert.False(t, ok)
}

func TestPointPlaneDistance(t *testing.T) {
	a := r3.Vec{}
	b := r3.Vec{X: 1}
	c := r3.Vec{Y: 1}

	t.Run("above the xy plane", func(t *testing.T) {
		d, ok := PointPlaneDistance(r3.Vec{X: 0.3, Y: 0.7, Z: 2}, a, b, c)
		require.True(t, ok)
		assert.InDelta(t, 2.0, d, epsilon)
	})

	t.Run("below the plane is still positive", func(t *testing.T) {
		d, ok := PointPlaneDistance(r3.Vec{Z: -1.5}, a, b, c)
		require.True(t, ok)
		assert.InDelta(t, 1.5, d, epsilon)
	})

	t.Run("point in the plane", func(t *testing.T) {
		d, ok := PointPlaneDistance(r3.Vec{X: 5, Y: -3}, a, b, c)
		require.True(t, ok)
		assert.InDelta(t, 0, d, epsilon)
	})

	t.Run("collinear plane points are invalid", func(t *testing.T) {
		_, ok := PointPlaneDistance(r3.Vec{Z: 1}, a, b, r3.Vec{X: 2})
		assert.False(t, ok)
	})
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5.0, Distance(r3.Vec{X: 1, Y: 1}, r3.Vec{X: 4, Y: 5}), epsilon)
}
