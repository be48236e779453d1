// Package detector provides the hand landmark topology and the landmark source
// used to analyze recorded finger motion.
package detector

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D represents a landmark in the detector's normalized coordinate space.
// Z is zero when the detector does not report depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec returns the point as a gonum vector.
func (p Point3D) Vec() r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Finger names a finger whose joints follow the MCP, PIP, DIP, TIP chain.
type Finger string

// Supported fingers. The thumb has no PIP/DIP pair and is not modelled.
const (
	FingerIndex  Finger = "index"
	FingerMiddle Finger = "middle"
	FingerRing   Finger = "ring"
	FingerPinky  Finger = "pinky"
)

// FingerChain holds the landmark indices of one finger, from knuckle to tip.
type FingerChain struct {
	MCP int
	PIP int
	DIP int
	Tip int
}

var chains = map[Finger]FingerChain{
	FingerIndex:  {MCP: IndexMCP, PIP: IndexPIP, DIP: IndexDIP, Tip: IndexTip},
	FingerMiddle: {MCP: MiddleMCP, PIP: MiddlePIP, DIP: MiddleDIP, Tip: MiddleTip},
	FingerRing:   {MCP: RingMCP, PIP: RingPIP, DIP: RingDIP, Tip: RingTip},
	FingerPinky:  {MCP: PinkyMCP, PIP: PinkyPIP, DIP: PinkyDIP, Tip: PinkyTip},
}

// Chain returns the landmark indices for f.
func (f Finger) Chain() (FingerChain, bool) {
	c, ok := chains[f]
	return c, ok
}

// ParseFinger converts a user-supplied name into a Finger.
func ParseFinger(s string) (Finger, error) {
	f := Finger(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := chains[f]; !ok {
		return "", fmt.Errorf("unknown finger %q", s)
	}
	return f, nil
}

// ParseFingers parses a comma separated finger list, dropping duplicates.
func ParseFingers(s string) ([]Finger, error) {
	var fingers []Finger
	seen := make(map[Finger]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := ParseFinger(part)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			fingers = append(fingers, f)
		}
	}
	if len(fingers) == 0 {
		return nil, fmt.Errorf("no fingers selected")
	}
	return fingers, nil
}
