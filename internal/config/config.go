// Package config loads romscope settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ayusman/romscope/internal/capture"
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/joint"
	"github.com/ayusman/romscope/internal/rom"
)

// Analysis holds the tunables of the analysis pipeline.
type Analysis struct {
	SampleRateHz        float64              `validate:"gt=0,lte=120"`
	FrameReadyTimeout   time.Duration        `validate:"gt=0"`
	FramePollInterval   time.Duration        `validate:"gt=0"`
	VisibilityThreshold float64              `validate:"gte=0,lte=1"`
	MinFingerSamples    int                  `validate:"gte=3"`
	PercentileFloor     float64              `validate:"gte=0,lte=1"`
	PercentileBaseline  float64              `validate:"gte=0,lte=1,gtefield=PercentileFloor"`
	PercentileCeiling   float64              `validate:"gte=0,lte=1,gtefield=PercentileBaseline"`
	PercentileDistance  float64              `validate:"gte=0,lte=1"`
	Fingers             []detector.Finger    `validate:"required,min=1"`
	DistanceMetric      joint.DistanceMetric `validate:"oneof=palm_plane wrist_line"`
}

// Kafka holds the report publisher settings. Publishing is disabled when
// BootstrapServers is empty.
type Kafka struct {
	BootstrapServers string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	Topic            string `validate:"required"`
	Acks             string
	CompressionType  string
}

// Config is the full application configuration.
type Config struct {
	Analysis Analysis

	LogLevel string `validate:"omitempty,oneof=debug info warn warning error"`
	LogFile  string
	DataDir  string `validate:"required"`
	HTTPAddr string `validate:"required"`

	StaticDir     string
	PluginDir     string
	PluginTimeout time.Duration `validate:"gt=0"`

	MediaPipeScript       string
	MediaPipePython       string
	DetectorMinConfidence float64 `validate:"gte=0,lte=1"`

	Kafka Kafka
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := ".romscope"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".romscope")
	}

	return Config{
		Analysis:              DefaultAnalysis(),
		LogLevel:              "info",
		DataDir:               dataDir,
		HTTPAddr:              ":8080",
		PluginTimeout:         5 * time.Second,
		DetectorMinConfidence: detector.DefaultConfig().MinConfidence,
		Kafka: Kafka{
			SecurityProtocol: "PLAINTEXT",
			Topic:            "romscope-reports",
			Acks:             "all",
			CompressionType:  "snappy",
		},
	}
}

// DefaultAnalysis returns the default pipeline tunables.
func DefaultAnalysis() Analysis {
	p := rom.DefaultPercentiles()
	return Analysis{
		SampleRateHz:        capture.DefaultRateHz,
		FrameReadyTimeout:   capture.DefaultReadyTimeout,
		FramePollInterval:   capture.DefaultPollInterval,
		VisibilityThreshold: rom.DefaultVisibilityThreshold,
		MinFingerSamples:    rom.DefaultMinSamples,
		PercentileFloor:     p.Floor,
		PercentileBaseline:  p.Baseline,
		PercentileCeiling:   p.Ceiling,
		PercentileDistance:  p.Distance,
		Fingers:             []detector.Finger{detector.FingerRing, detector.FingerPinky},
		DistanceMetric:      joint.PalmPlane,
	}
}

// Load reads .env files (missing ones are ignored), overlays environment
// variables on the defaults and validates the result.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, which is normally os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Default()
	a := &cfg.Analysis

	a.SampleRateHz = e.float("SAMPLE_RATE_HZ", a.SampleRateHz)
	a.FrameReadyTimeout = e.millis("FRAME_READY_TIMEOUT_MS", a.FrameReadyTimeout)
	a.FramePollInterval = e.millis("FRAME_READY_POLL_MS", a.FramePollInterval)
	a.VisibilityThreshold = e.float("VISIBILITY_THRESHOLD", a.VisibilityThreshold)
	a.MinFingerSamples = e.int("MIN_FINGER_SAMPLES", a.MinFingerSamples)
	a.PercentileFloor = e.float("PERCENTILE_FLOOR", a.PercentileFloor)
	a.PercentileBaseline = e.float("PERCENTILE_BASELINE", a.PercentileBaseline)
	a.PercentileCeiling = e.float("PERCENTILE_CEILING", a.PercentileCeiling)
	a.PercentileDistance = e.float("PERCENTILE_DISTANCE", a.PercentileDistance)
	a.DistanceMetric = joint.DistanceMetric(e.string("DISTANCE_METRIC", string(a.DistanceMetric)))
	if v, ok := e.get("FINGERS"); ok {
		fingers, err := detector.ParseFingers(v)
		if err != nil {
			e.fail("FINGERS", err)
		} else {
			a.Fingers = fingers
		}
	}

	cfg.LogLevel = strings.ToLower(e.string("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = e.string("LOG_FILE", cfg.LogFile)
	cfg.DataDir = e.string("DATA_DIR", cfg.DataDir)
	cfg.HTTPAddr = e.string("HTTP_ADDR", cfg.HTTPAddr)
	cfg.StaticDir = e.string("STATIC_DIR", cfg.StaticDir)
	cfg.PluginDir = e.string("PLUGIN_DIR", cfg.PluginDir)
	cfg.PluginTimeout = e.millis("PLUGIN_TIMEOUT_MS", cfg.PluginTimeout)
	cfg.MediaPipeScript = e.string("MEDIAPIPE_SCRIPT", cfg.MediaPipeScript)
	cfg.MediaPipePython = e.string("MEDIAPIPE_PYTHON", cfg.MediaPipePython)
	cfg.DetectorMinConfidence = e.float("DETECTOR_MIN_CONFIDENCE", cfg.DetectorMinConfidence)

	k := &cfg.Kafka
	k.BootstrapServers = e.string("KAFKA_BOOTSTRAP_SERVERS", k.BootstrapServers)
	k.SecurityProtocol = e.string("KAFKA_SECURITY_PROTOCOL", k.SecurityProtocol)
	k.SASLMechanism = e.string("KAFKA_SASL_MECHANISM", k.SASLMechanism)
	k.SASLUsername = e.string("KAFKA_SASL_USERNAME", k.SASLUsername)
	k.SASLPassword = e.string("KAFKA_SASL_PASSWORD", k.SASLPassword)
	k.Topic = e.string("KAFKA_TOPIC", k.Topic)
	k.Acks = e.string("KAFKA_ACKS", k.Acks)
	k.CompressionType = e.string("KAFKA_COMPRESSION_TYPE", k.CompressionType)

	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and percentile ordering.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks the analysis tunables on their own.
func (a Analysis) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid analysis settings: %w", err)
	}
	return nil
}

// Sampler converts the tunables to a sampler configuration.
func (a Analysis) Sampler() capture.SamplerConfig {
	return capture.SamplerConfig{
		RateHz:       a.SampleRateHz,
		ReadyTimeout: a.FrameReadyTimeout,
		PollInterval: a.FramePollInterval,
	}
}

// Gate converts the tunables to a quality gate.
func (a Analysis) Gate() rom.Gate {
	return rom.Gate{
		VisibilityThreshold: a.VisibilityThreshold,
		MinSamples:          a.MinFingerSamples,
	}
}

// Estimator converts the tunables to a ROM estimator.
func (a Analysis) Estimator() rom.Estimator {
	return rom.Estimator{
		Percentiles: rom.Percentiles{
			Floor:    a.PercentileFloor,
			Baseline: a.PercentileBaseline,
			Ceiling:  a.PercentileCeiling,
			Distance: a.PercentileDistance,
		},
		MinSamples: a.MinFingerSamples,
	}
}

// DBPath returns the sqlite database location under DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "romscope.db")
}

// Detector returns the MediaPipe detector settings.
func (c Config) Detector() detector.Config {
	dc := detector.DefaultConfig()
	dc.MinConfidence = c.DetectorMinConfidence
	dc.ScriptPath = c.MediaPipeScript
	dc.PythonPath = c.MediaPipePython
	return dc
}

type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
}

func (e *env) string(key, def string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return def
}

func (e *env) float(key string, def float64) float64 {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *env) int(key string, def int) int {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) millis(key string, def time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return time.Duration(n) * time.Millisecond
}
