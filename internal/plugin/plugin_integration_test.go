package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPlugin_CSVExport_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pluginDir := findPluginDir("csv-export")
	if pluginDir == "" {
		t.Skip("csv-export plugin not found")
	}

	mgr := NewManager(filepath.Dir(pluginDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get("csv-export")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !plug.Handles(EventAnalysisCompleted) {
		t.Fatal("csv-export should subscribe to analysis.completed")
	}
	if _, err := os.Stat(plug.Executable); err != nil {
		t.Skip("csv-export plugin not built")
	}

	outDir := t.TempDir()
	req := &Request{
		Event:      EventAnalysisCompleted,
		AnalysisID: "integration",
		OutputDir:  outDir,
		Report:     json.RawMessage(`{"valid":false,"outcome":"low_visibility","fingers":{},"finger_order":[]}`),
	}

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plug, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}

	if _, err := os.Stat(filepath.Join(outDir, "integration.csv")); err != nil {
		t.Errorf("expected exported file: %v", err)
	}
}

func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		manifest := filepath.Join(dir, "plugin.json")
		if _, err := os.Stat(manifest); err == nil {
			return dir
		}
	}
	return ""
}
