// Package app orchestrates romscope analyses: the sampling and estimation
// pipeline, and the service that runs it for stored, published reports.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/romscope/internal/capture"
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/diag"
	"github.com/ayusman/romscope/internal/joint"
	"github.com/ayusman/romscope/internal/logging"
	"github.com/ayusman/romscope/internal/plugin"
	"github.com/ayusman/romscope/internal/publish"
	"github.com/ayusman/romscope/internal/rom"
	"github.com/ayusman/romscope/internal/store"
)

// ErrShuttingDown is returned for submissions after Shutdown.
var ErrShuttingDown = errors.New("service is shutting down")

// DefaultPublishTimeout is how long a finished report may take to be delivered.
const DefaultPublishTimeout = 30 * time.Second

// Config holds the collaborators of a Service.
type Config struct {
	Store     *store.Store
	Analyzer  *Analyzer
	Publisher publish.Publisher
	Plugins   *plugin.Manager
	Executor  *plugin.Executor
	Logger    logrus.FieldLogger

	// ExportDir is passed to plugins as the directory for exported files.
	ExportDir string

	// PublishTimeout bounds the delivery of one report; defaults to DefaultPublishTimeout.
	PublishTimeout time.Duration

	// OpenVideo opens a video for analysis; defaults to capture.OpenFile.
	OpenVideo func(path string) (capture.Source, error)
}

// Request asks for one video to be analyzed. Empty selection fields use the
// analyzer's configured fingers and metric.
type Request struct {
	VideoPath string
	Fingers   []detector.Finger
	Metric    joint.DistanceMetric
}

// Service runs analyses in the background, one pipeline at a time, and
// records, publishes and exports their reports.
type Service struct {
	config Config

	// runMu serializes pipeline runs over the shared detector.
	runMu sync.Mutex

	mu     sync.RWMutex
	active map[string]*run
	closed bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

type run struct {
	diag   *diag.Log
	cancel context.CancelFunc
}

// NewService creates a Service. Store and Analyzer are required.
func NewService(config Config) *Service {
	if config.Publisher == nil {
		config.Publisher = publish.Nop{}
	}
	if config.Executor == nil {
		config.Executor = plugin.NewExecutor(0)
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = DefaultPublishTimeout
	}
	if config.OpenVideo == nil {
		config.OpenVideo = func(path string) (capture.Source, error) {
			return capture.OpenFile(path)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		config: config,
		active: make(map[string]*run),
		ctx:    ctx,
		stop:   stop,
	}
}

// Submit records a pending analysis and runs it in the background.
func (s *Service) Submit(req Request) (*store.Analysis, error) {
	a, r, ctx, err := s.start(s.ctx, req)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, a.ID, req, r)
	}()

	return a, nil
}

// Analyze records an analysis and runs it to completion. The returned error
// is the run's terminal error, such as ErrNoInput; the analysis record is
// returned whenever it could be created.
func (s *Service) Analyze(ctx context.Context, req Request) (*store.Analysis, *rom.Report, error) {
	a, r, runCtx, err := s.start(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	report, runErr := s.execute(runCtx, a.ID, req, r)

	stored, err := s.config.Store.Analyses().GetByID(a.ID)
	if err != nil {
		stored = a
	}
	return stored, report, runErr
}

// Diagnostics returns the live log of a running analysis.
func (s *Service) Diagnostics(id string) (*diag.Log, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.active[id]
	if !ok {
		return nil, false
	}
	return r.diag, true
}

// Cancel stops a pending or running analysis. Its partial report is still stored.
func (s *Service) Cancel(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.active[id]
	if ok {
		r.cancel()
	}
	return ok
}

// Shutdown cancels all analyses and waits for them to finish storing their
// results, or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) start(parent context.Context, req Request) (*store.Analysis, *run, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, nil, ErrShuttingDown
	}

	sel := s.config.Analyzer.WithSelection(Selection{Fingers: req.Fingers, Metric: req.Metric}).Selection()
	a := &store.Analysis{
		VideoPath:      req.VideoPath,
		Fingers:        fingerNames(sel.Fingers),
		DistanceMetric: string(sel.Metric),
	}
	if err := s.config.Store.Analyses().Create(a); err != nil {
		return nil, nil, nil, fmt.Errorf("create analysis: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	r := &run{
		diag:   diag.New(logging.ForAnalysis(s.config.Logger, a.ID)),
		cancel: cancel,
	}
	s.active[a.ID] = r
	return a, r, ctx, nil
}

// execute runs the pipeline for one recorded analysis, stores the outcome
// and then delivers it. Delivery runs after the run lock is released.
func (s *Service) execute(ctx context.Context, id string, req Request, r *run) (*rom.Report, error) {
	defer s.finish(id, r)

	report, payload, failed, err := s.runPipeline(ctx, id, req, r)
	if failed {
		s.dispatch(context.WithoutCancel(ctx), plugin.Request{
			Event:      plugin.EventAnalysisFailed,
			AnalysisID: id,
			VideoPath:  req.VideoPath,
			Error:      err.Error(),
		}, r)
		return nil, err
	}
	if err != nil {
		return report, err
	}

	// Delivery outlives cancellation so a cancelled run still reports its partial result.
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.PublishTimeout)
	defer cancel()

	env := publish.Envelope{AnalysisID: id, VideoPath: req.VideoPath, Report: report}
	if err := s.config.Publisher.Publish(deliverCtx, env); err != nil {
		r.diag.Printf("publish failed: %v", err)
		logging.ForAnalysis(s.config.Logger, id).WithError(err).Warn("failed to publish report")
	}

	s.dispatch(context.WithoutCancel(ctx), plugin.Request{
		Event:      plugin.EventAnalysisCompleted,
		AnalysisID: id,
		VideoPath:  req.VideoPath,
		OutputDir:  s.config.ExportDir,
		Report:     payload,
	}, r)

	return report, nil
}

// runPipeline holds the run lock while the analysis is marked running,
// analyzed and stored. failed reports that the analysis was marked failed.
func (s *Service) runPipeline(ctx context.Context, id string, req Request, r *run) (report *rom.Report, payload []byte, failed bool, err error) {
	log := logging.ForAnalysis(s.config.Logger, id)

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := s.config.Store.Analyses().SetRunning(id); err != nil {
		log.WithError(err).Error("failed to mark analysis running")
		return nil, nil, false, err
	}

	var src capture.Source
	if req.VideoPath != "" {
		opened, err := s.config.OpenVideo(req.VideoPath)
		if err != nil {
			s.markFailed(id, r, err)
			return nil, nil, true, err
		}
		defer opened.Close()
		src = opened
	}

	analyzer := s.config.Analyzer.WithSelection(Selection{Fingers: req.Fingers, Metric: req.Metric})
	report, err = analyzer.Run(ctx, src, r.diag)
	if err != nil {
		s.markFailed(id, r, err)
		return nil, nil, true, err
	}

	payload, err = json.Marshal(report)
	if err != nil {
		s.markFailed(id, r, err)
		return nil, nil, true, err
	}

	if err := s.config.Store.Analyses().Complete(id, completion(report, payload)); err != nil {
		log.WithError(err).Error("failed to store report")
		return report, nil, false, err
	}
	return report, payload, false, nil
}

func (s *Service) markFailed(id string, r *run, cause error) {
	r.diag.Printf("analysis failed: %v", cause)
	if err := s.config.Store.Analyses().Fail(id, cause.Error()); err != nil {
		logging.ForAnalysis(s.config.Logger, id).WithError(err).Error("failed to mark analysis failed")
	}
}

func (s *Service) dispatch(ctx context.Context, req plugin.Request, r *run) {
	if s.config.Plugins == nil {
		return
	}
	for _, res := range s.config.Executor.Dispatch(ctx, s.config.Plugins.Subscribers(req.Event), req) {
		if res.Err != nil {
			r.diag.Printf("plugin %s: %v", res.Plugin, res.Err)
			continue
		}
		r.diag.Printf("plugin %s: %s done", res.Plugin, req.Event)
	}
}

// finish persists the diagnostics log and forgets the run.
func (s *Service) finish(id string, r *run) {
	lines := r.diag.Lines()
	stored := make([]store.LogLine, len(lines))
	for i, l := range lines {
		stored[i] = store.LogLine{Time: l.Time, Message: l.Message}
	}
	if err := s.config.Store.Logs().Append(id, stored); err != nil {
		logging.ForAnalysis(s.config.Logger, id).WithError(err).Error("failed to store diagnostics")
	}

	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()

	r.diag.Close()
	r.cancel()
}

// completion flattens a report into one stored row per finger and joint.
func completion(report *rom.Report, payload []byte) store.Completion {
	c := store.Completion{
		Outcome:        string(report.Outcome),
		Valid:          report.Valid,
		Cancelled:      report.Cancelled,
		DetectionRatio: report.DetectionRatio,
		Report:         payload,
	}

	for _, f := range report.FingerOrder {
		fr := report.Fingers[f]
		for _, j := range joint.All {
			row := store.FingerResult{
				Finger:      string(f),
				Joint:       string(j),
				Measurable:  fr.Measurable,
				Samples:     fr.AngleSamples,
				MinDistance: fr.MinDistance,
			}
			if res, ok := fr.Joints[j]; ok && fr.Measurable {
				row.Flexion = res.Flexion
				row.Extension = res.Extension
				row.Baseline = res.Baseline
				row.Samples = res.Samples
			}
			c.Results = append(c.Results, row)
		}
	}
	return c
}

func fingerNames(fingers []detector.Finger) []string {
	out := make([]string, len(fingers))
	for i, f := range fingers {
		out[i] = string(f)
	}
	return out
}
