package detector

import (
	"context"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// MockResult is one scripted answer of a MockDetector.
type MockResult struct {
	Hand *HandLandmarks
	Err  error
}

// MockDetector is a test implementation of the Detector interface.
// Scripted results are returned in order; once they run out the
// fallback hand (or error) is returned on every call.
type MockDetector struct {
	mu       sync.Mutex
	sequence []MockResult
	hand     *HandLandmarks
	err      error
	calls    int
}

// NewMockDetector creates a new MockDetector that sees no hand.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHand sets the hand returned once the scripted sequence is exhausted.
func (m *MockDetector) SetHand(hand *HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hand = hand
}

// SetError sets the error returned once the scripted sequence is exhausted.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetSequence scripts the answers for the next len(results) calls.
func (m *MockDetector) SetSequence(results []MockResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = append([]MockResult(nil), results...)
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the next scripted result.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) (*HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if len(m.sequence) > 0 {
		r := m.sequence[0]
		m.sequence = m.sequence[1:]
		return r.Hand, r.Err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.hand, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Synthetic hand geometry. The palm lies in the z=0 plane and every finger
// bends out of it, so joint angles and fingertip heights are known exactly.
var (
	syntheticWrist = Point3D{X: 0.50, Y: 0.90}
	syntheticMCPs  = map[Finger]Point3D{
		FingerIndex:  {X: 0.62, Y: 0.58},
		FingerMiddle: {X: 0.54, Y: 0.55},
		FingerRing:   {X: 0.46, Y: 0.57},
		FingerPinky:  {X: 0.39, Y: 0.61},
	}
	syntheticSegments = [3]float64{0.10, 0.06, 0.045}
)

// FlexedHandLandmarks returns a right hand whose four fingers are all bent by
// the given flexion angles in degrees at MCP, PIP and DIP. A flexion of 0 is
// a straight joint, which measures 180 degrees at the vertex.
func FlexedHandLandmarks(mcp, pip, dip float64) HandLandmarks {
	hand := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	hand.Points[Wrist] = syntheticWrist

	// Thumb resting beside the palm.
	hand.Points[ThumbCMC] = Point3D{X: 0.60, Y: 0.85}
	hand.Points[ThumbMCP] = Point3D{X: 0.68, Y: 0.78}
	hand.Points[ThumbIP] = Point3D{X: 0.74, Y: 0.72}
	hand.Points[ThumbTip] = Point3D{X: 0.78, Y: 0.67}

	flex := [3]float64{mcp, pip, dip}
	for finger, mcpPoint := range syntheticMCPs {
		chain := chains[finger]
		u := normalize(Point3D{X: mcpPoint.X - syntheticWrist.X, Y: mcpPoint.Y - syntheticWrist.Y})

		hand.Points[chain.MCP] = mcpPoint
		joints := [3]int{chain.PIP, chain.DIP, chain.Tip}

		prev := mcpPoint
		phi := 0.0
		for i, idx := range joints {
			phi += flex[i] * math.Pi / 180
			dir := Point3D{X: u.X * math.Cos(phi), Y: u.Y * math.Cos(phi), Z: math.Sin(phi)}
			next := Point3D{
				X: prev.X + dir.X*syntheticSegments[i],
				Y: prev.Y + dir.Y*syntheticSegments[i],
				Z: prev.Z + dir.Z*syntheticSegments[i],
			}
			hand.Points[idx] = next
			prev = next
		}
	}

	return hand
}

// OpenHandLandmarks returns a hand with every finger fully extended.
func OpenHandLandmarks() HandLandmarks {
	return FlexedHandLandmarks(0, 0, 0)
}

// FistLandmarks returns a hand with every finger curled toward the palm.
func FistLandmarks() HandLandmarks {
	return FlexedHandLandmarks(85, 100, 70)
}

func normalize(p Point3D) Point3D {
	n := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	return Point3D{X: p.X / n, Y: p.Y / n, Z: p.Z / n}
}
