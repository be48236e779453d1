package detector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-9

func TestParseFinger(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Finger
		wantErr bool
	}{
		{name: "ring", input: "ring", want: FingerRing},
		{name: "pinky upper case", input: "PINKY", want: FingerPinky},
		{name: "padded", input: "  index ", want: FingerIndex},
		{name: "thumb is not modelled", input: "thumb", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFinger(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFingers(t *testing.T) {
	t.Run("keeps order and drops duplicates", func(t *testing.T) {
		got, err := ParseFingers("pinky, ring,pinky")
		require.NoError(t, err)
		assert.Equal(t, []Finger{FingerPinky, FingerRing}, got)
	})

	t.Run("empty list", func(t *testing.T) {
		_, err := ParseFingers(" , ")
		assert.Error(t, err)
	})

	t.Run("unknown finger", func(t *testing.T) {
		_, err := ParseFingers("ring,toe")
		assert.Error(t, err)
	})
}

func TestFinger_Chain(t *testing.T) {
	ring, ok := FingerRing.Chain()
	require.True(t, ok)
	assert.Equal(t, FingerChain{MCP: 13, PIP: 14, DIP: 15, Tip: 16}, ring)

	pinky, ok := FingerPinky.Chain()
	require.True(t, ok)
	assert.Equal(t, FingerChain{MCP: 17, PIP: 18, DIP: 19, Tip: 20}, pinky)

	_, ok = Finger("thumb").Chain()
	assert.False(t, ok)
}

func TestParseResponse(t *testing.T) {
	t.Run("no hands", func(t *testing.T) {
		hand, err := parseResponse([]byte(`{"hands":[]}` + "\n"))
		require.NoError(t, err)
		assert.Nil(t, hand)
	})

	t.Run("missing z defaults to zero", func(t *testing.T) {
		line := `{"hands":[{"handedness":"Left","score":0.8,"points":[`
		for i := 0; i < NumLandmarks; i++ {
			if i > 0 {
				line += ","
			}
			if i == PinkyTip {
				line += `{"x":0.2,"y":0.3,"z":-0.05}`
			} else {
				line += `{"x":0.1,"y":0.1}`
			}
		}
		line += `]}]}`

		hand, err := parseResponse([]byte(line))
		require.NoError(t, err)
		require.NotNil(t, hand)
		assert.Equal(t, "Left", hand.Handedness)
		assert.Equal(t, 0.0, hand.Points[Wrist].Z)
		assert.Equal(t, -0.05, hand.Points[PinkyTip].Z)
	})

	t.Run("incomplete hand", func(t *testing.T) {
		_, err := parseResponse([]byte(`{"hands":[{"points":[{"x":1,"y":1}]}]}`))
		assert.True(t, errors.Is(err, ErrIncompleteHand))
	})

	t.Run("service error", func(t *testing.T) {
		_, err := parseResponse([]byte(`{"error":"model not loaded"}`))
		assert.ErrorContains(t, err, "model not loaded")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseResponse([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestMockDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("returns no hand by default", func(t *testing.T) {
		mock := NewMockDetector()

		hand, err := mock.Detect(ctx, nil)

		assert.NoError(t, err)
		assert.Nil(t, hand)
		assert.Equal(t, 1, mock.Calls())
	})

	t.Run("returns configured hand", func(t *testing.T) {
		mock := NewMockDetector()
		open := OpenHandLandmarks()
		mock.SetHand(&open)

		hand, err := mock.Detect(ctx, nil)

		require.NoError(t, err)
		assert.Equal(t, &open, hand)
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		hand, err := mock.Detect(ctx, nil)

		assert.Equal(t, expectedErr, err)
		assert.Nil(t, hand)
	})

	t.Run("plays the sequence before the fallback", func(t *testing.T) {
		mock := NewMockDetector()
		open := OpenHandLandmarks()
		fist := FistLandmarks()
		boom := errors.New("boom")
		mock.SetHand(&fist)
		mock.SetSequence([]MockResult{{Hand: &open}, {Err: boom}, {}})

		h, err := mock.Detect(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, &open, h)

		_, err = mock.Detect(ctx, nil)
		assert.Equal(t, boom, err)

		h, err = mock.Detect(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, h)

		h, err = mock.Detect(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, &fist, h)
	})

	t.Run("Close returns nil", func(t *testing.T) {
		assert.NoError(t, NewMockDetector().Close())
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
	})
}

func TestFlexedHandLandmarks(t *testing.T) {
	t.Run("open hand keeps fingers in the palm plane", func(t *testing.T) {
		hand := OpenHandLandmarks()
		for _, idx := range []int{RingTip, PinkyTip, IndexTip, MiddleTip} {
			assert.InDelta(t, 0, hand.Points[idx].Z, epsilon)
		}
	})

	t.Run("fingers extend away from the wrist", func(t *testing.T) {
		hand := OpenHandLandmarks()
		for _, f := range []Finger{FingerIndex, FingerMiddle, FingerRing, FingerPinky} {
			c, _ := f.Chain()
			tip := hand.Points[c.Tip]
			mcp := hand.Points[c.MCP]
			assert.Less(t, tip.Y, mcp.Y, "finger %s should point up", f)
		}
	})

	t.Run("segment lengths are preserved when flexed", func(t *testing.T) {
		hand := FistLandmarks()
		c, _ := FingerRing.Chain()
		got := dist(hand.Points[c.MCP], hand.Points[c.PIP])
		assert.InDelta(t, syntheticSegments[0], got, 1e-9)
		got = dist(hand.Points[c.DIP], hand.Points[c.Tip])
		assert.InDelta(t, syntheticSegments[2], got, 1e-9)
	})
}

func dist(a, b Point3D) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
