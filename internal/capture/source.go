// Package capture provides seekable video sources and the fixed-rate frame sampler.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrSourceClosed is returned when using a source that has been closed.
var ErrSourceClosed = errors.New("video source is closed")

// Source is a seekable recorded video.
//
// Seeking mutates the source's position, so a Source must not be used by
// more than one sampler at a time.
type Source interface {
	// Duration returns the length of the video.
	Duration() time.Duration
	// Seek moves the read position to ts.
	Seek(ts time.Duration) error
	// TryFrame decodes the frame at the current position. ok is false while
	// the frame is not decodable yet. The caller owns the returned Mat.
	TryFrame() (frame *gocv.Mat, ok bool)
	// Close releases the underlying decoder.
	Close() error
}

// FileSource reads frames from a video file using GoCV (OpenCV).
type FileSource struct {
	path     string
	capture  *gocv.VideoCapture
	duration time.Duration
	pos      time.Duration
	mu       sync.Mutex
}

// OpenFile opens the video at path.
func OpenFile(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: not a readable video", path)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	frames := capture.Get(gocv.VideoCaptureFrameCount)
	if fps <= 0 || frames <= 0 {
		capture.Close()
		return nil, fmt.Errorf("open video %s: unknown duration (fps=%.2f, frames=%.0f)", path, fps, frames)
	}

	return &FileSource{
		path:     path,
		capture:  capture,
		duration: time.Duration(frames / fps * float64(time.Second)),
	}, nil
}

// Path returns the file the source reads from.
func (s *FileSource) Path() string {
	return s.path
}

// Duration returns the length of the video.
func (s *FileSource) Duration() time.Duration {
	return s.duration
}

// Seek moves the read position to ts.
func (s *FileSource) Seek(ts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return ErrSourceClosed
	}

	s.pos = ts
	s.capture.Set(gocv.VideoCapturePosMsec, float64(ts.Milliseconds()))
	return nil
}

// TryFrame decodes the frame at the current position.
// Reading advances the decoder, so the position is re-applied before every attempt.
func (s *FileSource) TryFrame() (*gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil, false
	}

	s.capture.Set(gocv.VideoCapturePosMsec, float64(s.pos.Milliseconds()))

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok || mat.Empty() || mat.Cols() <= 0 || mat.Rows() <= 0 {
		mat.Close()
		return nil, false
	}

	return &mat, true
}

// Close closes the video and releases resources.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	return err
}
