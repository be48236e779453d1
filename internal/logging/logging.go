// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field keys shared across packages.
const (
	AnalysisIDKey = "analysis_id"
	ComponentKey  = "component"
)

// Options controls where and how much is logged.
type Options struct {
	Level   string
	File    string
	NoColor bool

	// Output replaces stderr; used by tests.
	Output io.Writer
}

// New creates a logger writing to stderr and, when File is set, to a rotated
// log file.
func New(opts Options) (*logrus.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&formatter.Formatter{
		NoColors:        opts.NoColor,
		TimestampFormat: "02 Jan 06 - 15:04:05",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" [%s:%d][%s()]", path.Base(f.File), f.Line, funcName)
		},
	})

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	logger.SetOutput(io.MultiWriter(writers...))
	logger.SetReportCaller(true)
	return logger, nil
}

// ParseLevel maps debug|info|warn|error to a logrus level. Empty means info.
func ParseLevel(s string) (logrus.Level, error) {
	level := strings.ToLower(strings.TrimSpace(s))
	switch level {
	case "":
		return logrus.InfoLevel, nil
	case "debug", "info", "warn", "warning", "error":
		return logrus.ParseLevel(level)
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// ForAnalysis returns an entry tagged with the analysis ID.
func ForAnalysis(logger logrus.FieldLogger, id string) *logrus.Entry {
	return logger.WithField(AnalysisIDKey, id)
}
