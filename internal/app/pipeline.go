package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/romscope/internal/capture"
	"github.com/ayusman/romscope/internal/config"
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/diag"
	"github.com/ayusman/romscope/internal/joint"
	"github.com/ayusman/romscope/internal/rom"
)

// ErrNoInput is returned when an analysis is started without a video.
var ErrNoInput = errors.New("no video provided")

// Selection chooses which fingers are analyzed and how fingertip distance is measured.
type Selection struct {
	Fingers []detector.Finger
	Metric  joint.DistanceMetric
}

// Analyzer runs the sampling, detection and estimation pipeline over one
// video at a time. It holds no per-run state and can be reused.
type Analyzer struct {
	detector  detector.Detector
	settings  config.Analysis
	selection Selection
	log       logrus.FieldLogger
}

// NewAnalyzer creates an Analyzer that finds hands with det.
func NewAnalyzer(det detector.Detector, settings config.Analysis, log logrus.FieldLogger) *Analyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{
		detector: det,
		settings: settings,
		selection: Selection{
			Fingers: settings.Fingers,
			Metric:  settings.DistanceMetric,
		},
		log: log,
	}
}

// WithSelection returns a copy of the analyzer that measures sel instead of
// the configured fingers and metric. Empty fields keep the configured values.
func (a *Analyzer) WithSelection(sel Selection) *Analyzer {
	c := *a
	if len(sel.Fingers) > 0 {
		c.selection.Fingers = sel.Fingers
	}
	if sel.Metric != "" {
		c.selection.Metric = sel.Metric
	}
	return &c
}

// Selection returns the fingers and metric this analyzer measures.
func (a *Analyzer) Selection() Selection {
	return a.selection
}

// Run analyzes src and returns its report. Per-frame problems are logged to
// dl and skipped; only a missing source is an error. When ctx is cancelled the
// samples gathered so far are reported with Cancelled set.
func (a *Analyzer) Run(ctx context.Context, src capture.Source, dl *diag.Log) (*rom.Report, error) {
	if dl == nil {
		dl = diag.New(nil)
	}
	if src == nil {
		dl.Append("no video provided")
		return nil, ErrNoInput
	}

	fingers := a.selection.Fingers
	if len(fingers) == 0 {
		fingers = config.DefaultAnalysis().Fingers
	}

	model := joint.NewModel(a.selection.Metric)
	agg := rom.NewAggregator(fingers)
	sampler := capture.NewSampler(src, a.settings.Sampler())

	var counts rom.Counts
	counts.Planned = len(sampler.Timestamps())
	dl.Printf("analysis started: %d frames planned over %.1fs, fingers %v, metric %s",
		counts.Planned, src.Duration().Seconds(), fingers, model.Metric())

	for frame := range sampler.Frames(ctx) {
		at := fmt.Sprintf("frame %d (%.2fs)", frame.Index, frame.Timestamp.Seconds())

		if frame.Skipped() {
			counts.NotReady++
			dl.Printf("%s: skipped: %v", at, frame.Err)
			continue
		}

		hand, err := a.detector.Detect(ctx, frame.Image)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			counts.DetectorFailures++
			dl.Printf("%s: detector failed: %v", at, err)
			continue
		}

		counts.Attempted++
		if hand == nil {
			dl.Printf("%s: no hand", at)
			continue
		}
		counts.Detected++
		dl.Printf("%s: hand detected (%s, score %.2f)", at, hand.Handedness, hand.Score)

		for _, f := range fingers {
			m, err := model.Measure(hand, f)
			if err != nil {
				dl.Printf("%s: %s: %v", at, f, err)
				continue
			}
			kept, err := agg.Add(f, frame.Timestamp, m)
			if err != nil {
				dl.Printf("%s: %s: %v", at, f, err)
				continue
			}
			if !kept {
				counts.Degenerate++
				dl.Printf("%s: %s: degenerate joint geometry, angle sample omitted", at, f)
			}
			if !m.Distance.Valid {
				counts.DistanceOmitted++
				dl.Printf("%s: %s: degenerate distance geometry, distance sample omitted", at, f)
			}
		}
	}

	cancelled := ctx.Err() != nil
	if cancelled {
		dl.Printf("analysis cancelled after %d of %d frames", counts.Attempted+counts.NotReady+counts.DetectorFailures, counts.Planned)
	}

	builder := rom.Builder{
		Gate:      a.settings.Gate(),
		Estimator: a.settings.Estimator(),
		Metric:    model.Metric(),
	}
	report := builder.Build(agg, counts, cancelled)
	logDecisions(dl, report, builder.Gate)

	a.log.WithFields(logrus.Fields{
		"outcome":         report.Outcome,
		"detection_ratio": report.DetectionRatio,
		"cancelled":       report.Cancelled,
	}).Info("analysis finished")

	return report, nil
}

func logDecisions(dl *diag.Log, r *rom.Report, gate rom.Gate) {
	c := r.Counts
	dl.Printf("frames: %d planned, %d attempted, %d with hand, %d not ready, %d detector failures",
		c.Planned, c.Attempted, c.Detected, c.NotReady, c.DetectorFailures)

	if !r.Valid {
		dl.Printf("detection ratio %.2f below %.2f: low visibility, no range of motion computed",
			r.DetectionRatio, gate.VisibilityThreshold)
		return
	}
	dl.Printf("detection ratio %.2f", r.DetectionRatio)

	for _, f := range r.FingerOrder {
		fr := r.Fingers[f]
		if !fr.Measurable {
			dl.Printf("%s: %d samples, not measurable", f, fr.AngleSamples)
			continue
		}
		for _, j := range joint.All {
			res := fr.Joints[j]
			dl.Printf("%s %s: flexion %.1f, extension %.1f (%d samples)",
				f, j, res.Flexion, res.Extension, res.Samples)
		}
		if fr.MinDistance != nil {
			dl.Printf("%s: min distance %.3f", f, *fr.MinDistance)
		}
	}
}
