package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// ErrIncompleteHand is returned when a detector reports fewer than NumLandmarks points.
var ErrIncompleteHand = errors.New("hand has fewer than 21 landmarks")

// Detector finds at most one hand in a video frame.
type Detector interface {
	// Detect analyzes a frame and returns the hand's landmarks,
	// or nil when no hand is visible. Errors are per-frame and transient.
	Detect(ctx context.Context, frame *gocv.Mat) (*HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// ModelComplexity selects the MediaPipe hand model (0 or 1).
	ModelComplexity int

	// ScriptPath overrides the mediapipe_service.py lookup.
	ScriptPath string

	// PythonPath overrides the interpreter lookup.
	PythonPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence:   0.5,
		ModelComplexity: 1,
	}
}
