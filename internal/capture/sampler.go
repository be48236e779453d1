package capture

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"time"

	"gocv.io/x/gocv"
)

// Default sampling settings.
const (
	DefaultRateHz       = 2.0
	DefaultReadyTimeout = 800 * time.Millisecond
	DefaultPollInterval = 16 * time.Millisecond
)

// ErrFrameNotReady is reported for a timestamp whose frame never became decodable.
var ErrFrameNotReady = errors.New("frame not ready before timeout")

// SamplerConfig controls the temporal sampling of a Source.
type SamplerConfig struct {
	RateHz       float64
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

// DefaultSamplerConfig returns 2 Hz sampling with an 800ms readiness timeout polled every 16ms.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		RateHz:       DefaultRateHz,
		ReadyTimeout: DefaultReadyTimeout,
		PollInterval: DefaultPollInterval,
	}
}

// Frame is one sampling attempt. Exactly one of Image and Err is set.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Image     *gocv.Mat
	Err       error
	Waited    time.Duration
}

// Skipped reports whether no image could be extracted for this timestamp.
func (f Frame) Skipped() bool {
	return f.Image == nil
}

// Sampler walks a Source at a fixed temporal step.
type Sampler struct {
	src Source
	cfg SamplerConfig
}

// NewSampler creates a Sampler over src. Zero config fields fall back to the defaults.
func NewSampler(src Source, cfg SamplerConfig) *Sampler {
	def := DefaultSamplerConfig()
	if cfg.RateHz <= 0 {
		cfg.RateHz = def.RateHz
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = def.ReadyTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	return &Sampler{src: src, cfg: cfg}
}

// Timestamps returns the planned sampling times: 0, step, 2*step, ... < duration,
// at most ceil(duration*rate) of them.
func (s *Sampler) Timestamps() []time.Duration {
	return Timestamps(s.src.Duration(), s.cfg.RateHz)
}

// Timestamps computes the sampling times for a video of the given duration.
// Times are derived from the index rather than accumulated, so no drift builds up.
func Timestamps(duration time.Duration, rateHz float64) []time.Duration {
	if duration <= 0 || rateHz <= 0 {
		return nil
	}

	n := int(math.Ceil(duration.Seconds() * rateHz))
	out := make([]time.Duration, 0, n)
	for i := 0; i < n; i++ {
		ts := time.Duration(math.Round(float64(i) / rateHz * float64(time.Second)))
		if ts >= duration {
			break
		}
		out = append(out, ts)
	}
	return out
}

// Frames returns a single-pass sequence of sampling attempts.
//
// Frames are extracted strictly one at a time. The Mat of a yielded frame is
// closed when the consumer's loop body returns, so it must not be retained.
// The sequence stops early when ctx is cancelled.
func (s *Sampler) Frames(ctx context.Context) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for i, ts := range s.Timestamps() {
			if ctx.Err() != nil {
				return
			}

			frame := Frame{Index: i, Timestamp: ts}

			if err := s.src.Seek(ts); err != nil {
				frame.Err = fmt.Errorf("seek %v: %w", ts, err)
				if !yield(frame) {
					return
				}
				continue
			}

			start := time.Now()
			img, err := s.waitReady(ctx)
			frame.Waited = time.Since(start)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				frame.Err = err
				if !yield(frame) {
					return
				}
				continue
			}

			frame.Image = img
			more := yield(frame)
			img.Close()
			if !more {
				return
			}
		}
	}
}

// waitReady polls the source until the current frame decodes or the timeout expires.
func (s *Sampler) waitReady(ctx context.Context) (*gocv.Mat, error) {
	if img, ok := s.src.TryFrame(); ok {
		return img, nil
	}

	deadline := time.NewTimer(s.cfg.ReadyTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrFrameNotReady
		case <-ticker.C:
			if img, ok := s.src.TryFrame(); ok {
				return img, nil
			}
		}
	}
}
