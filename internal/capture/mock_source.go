package capture

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockSource is an in-memory Source for tests. Frames become decodable after
// a configurable number of polls, and selected timestamps never do.
type MockSource struct {
	duration   time.Duration
	readyAfter int
	never      map[time.Duration]bool
	mu         sync.Mutex
	pos        time.Duration
	polls      int
	seeks      []time.Duration
	closed     bool
}

// NewMockSource creates a MockSource of the given duration whose frames are
// ready on the first poll.
func NewMockSource(duration time.Duration) *MockSource {
	return &MockSource{
		duration: duration,
		never:    make(map[time.Duration]bool),
	}
}

// SetReadyAfter makes every frame decodable only after n failed polls.
func (s *MockSource) SetReadyAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyAfter = n
}

// SetNeverReady makes the frame at ts never decodable.
func (s *MockSource) SetNeverReady(ts time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.never[ts] = true
}

// Seeks returns the timestamps seeked so far, in order.
func (s *MockSource) Seeks() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.seeks...)
}

// Closed reports whether Close has been called.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockSource) Duration() time.Duration {
	return s.duration
}

func (s *MockSource) Seek(ts time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	s.pos = ts
	s.polls = 0
	s.seeks = append(s.seeks, ts)
	return nil
}

func (s *MockSource) TryFrame() (*gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.never[s.pos] {
		return nil, false
	}
	if s.polls < s.readyAfter {
		s.polls++
		return nil, false
	}

	mat := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	return &mat, true
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
