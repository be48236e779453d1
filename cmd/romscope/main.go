package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/romscope/internal/app"
	"github.com/ayusman/romscope/internal/config"
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/joint"
	"github.com/ayusman/romscope/internal/logging"
	"github.com/ayusman/romscope/internal/plugin"
	"github.com/ayusman/romscope/internal/publish"
	"github.com/ayusman/romscope/internal/server"
	"github.com/ayusman/romscope/internal/server/api"
	"github.com/ayusman/romscope/internal/store"
)

const usage = `romscope - finger range of motion from hand video

Usage:
  romscope analyze -video file.mp4 [-fingers ring,pinky] [-metric palm_plane] [-json]
  romscope serve [-addr :8080]
  romscope log -id <analysis>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[2:]
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(ctx, cfg, logger, args, os.Stdout)
	case "serve":
		err = runServe(ctx, cfg, logger, args)
	case "log":
		err = runLog(cfg, args, os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			logger.WithError(err).Error(os.Args[1] + " failed")
		}
		os.Exit(1)
	}
}

func runAnalyze(ctx context.Context, cfg config.Config, logger *logrus.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	video := fs.String("video", "", "video file to analyze")
	fingers := fs.String("fingers", "", "comma separated fingers (index, middle, ring, pinky)")
	metric := fs.String("metric", "", "distance metric (palm_plane or wrist_line)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *video == "" {
		return app.ErrNoInput
	}

	req := app.Request{VideoPath: *video}
	if *fingers != "" {
		parsed, err := detector.ParseFingers(*fingers)
		if err != nil {
			return err
		}
		req.Fingers = parsed
	}
	if *metric != "" {
		parsed, err := joint.ParseDistanceMetric(*metric)
		if err != nil {
			return err
		}
		req.Metric = parsed
	}

	svc, cleanup, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a, report, err := svc.Analyze(ctx, req)
	if a != nil {
		fmt.Fprintf(os.Stderr, "analysis %s\n", a.ID)
	}
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return report.WriteText(stdout)
}

func runServe(ctx context.Context, cfg config.Config, logger *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.HTTPAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc, cleanup, err := newServiceWithStore(cfg, logger, st)
	if err != nil {
		return err
	}
	defer cleanup()

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.WithField("dir", staticDir).Info("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     st,
		Service:   svc,
		Logger:    logger.WithField(logging.ComponentKey, "http"),
	})
	return srv.ListenAndServe(ctx, *addr)
}

func runLog(cfg config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	id := fs.String("id", "", "analysis ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("-id is required")
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	text, err := api.Diagnostics(st, nil, *id)
	if err != nil {
		return fmt.Errorf("analysis %s: %w", *id, err)
	}
	_, err = fmt.Fprintln(stdout, text)
	return err
}

// newService opens the store and wires the analysis service.
func newService(cfg config.Config, logger *logrus.Logger) (*app.Service, func(), error) {
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	svc, cleanup, err := newServiceWithStore(cfg, logger, st)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return svc, func() {
		cleanup()
		st.Close()
	}, nil
}

func newServiceWithStore(cfg config.Config, logger *logrus.Logger, st *store.Store) (*app.Service, func(), error) {
	det, err := detector.NewMediaPipeDetector(cfg.Detector())
	if err != nil {
		return nil, nil, fmt.Errorf("detector: %w", err)
	}

	pub, err := publish.New(cfg.Kafka, logger.WithField(logging.ComponentKey, "publish"))
	if err != nil {
		det.Close()
		return nil, nil, fmt.Errorf("publisher: %w", err)
	}

	pluginDir := cfg.PluginDir
	if pluginDir == "" {
		pluginDir = findPluginDir()
	}
	var plugins *plugin.Manager
	if pluginDir != "" {
		plugins = plugin.NewManager(pluginDir)
		if err := plugins.Discover(); err != nil {
			logger.WithError(err).Warn("plugin discovery failed")
		}
		for _, p := range plugins.List() {
			logger.WithField("plugin", p.Manifest.Name).Debug("plugin loaded")
		}
		for _, sk := range plugins.Skipped() {
			logger.WithField("dir", sk.Dir).Warn("plugin skipped: " + sk.Reason)
		}
	}

	svc := app.NewService(app.Config{
		Store:     st,
		Analyzer:  app.NewAnalyzer(det, cfg.Analysis, logger.WithField(logging.ComponentKey, "pipeline")),
		Publisher: pub,
		Plugins:   plugins,
		Executor:  plugin.NewExecutor(cfg.PluginTimeout),
		Logger:    logger,
		ExportDir: filepath.Join(cfg.DataDir, "exports"),
	})

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.PluginTimeout+5*time.Second)
		defer cancel()
		if err := svc.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("analyses still running at shutdown")
		}
		pub.Close()
		det.Close()
	}
	return svc, cleanup, nil
}

// findWebDir searches for the web directory in common locations.
func findWebDir() string {
	return findDir("web")
}

// findPluginDir searches for the plugins directory in common locations.
func findPluginDir() string {
	return findDir("plugins")
}

// findDir checks name, ../name, ../../name and ~/.romscope/name and returns
// the first existing directory or empty string if none found.
func findDir(name string) string {
	for _, p := range []string{name, filepath.Join("..", name), filepath.Join("..", "..", name)} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeDirPath := filepath.Join(homeDir, ".romscope", name)
	if info, err := os.Stat(homeDirPath); err == nil && info.IsDir() {
		return homeDirPath
	}

	return ""
}
