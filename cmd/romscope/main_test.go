package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/romscope/internal/app"
	"github.com/ayusman/romscope/internal/config"
	"github.com/ayusman/romscope/internal/logging"
)

func TestRunAnalyze_NoVideo(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.MediaPipeScript = filepath.Join(t.TempDir(), "missing.py")

	var out bytes.Buffer
	err := runAnalyze(context.Background(), cfg, logging.Discard(), nil, &out)

	assert.ErrorIs(t, err, app.ErrNoInput)
	assert.Empty(t, out.String())

	_, statErr := os.Stat(cfg.DataDir)
	assert.True(t, os.IsNotExist(statErr), "no store is opened without a video")
}

func TestRunAnalyze_BadFlags(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown finger", args: []string{"-video", "a.mp4", "-fingers", "thumb"}},
		{name: "unknown metric", args: []string{"-video", "a.mp4", "-metric", "euclid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runAnalyze(context.Background(), cfg, logging.Discard(), tt.args, &bytes.Buffer{})
			require.Error(t, err)
		})
	}
}

func TestRunLog_RequiresID(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	err := runLog(cfg, nil, &bytes.Buffer{})
	assert.EqualError(t, err, "-id is required")
}
