// Package main provides an export plugin that writes completed analyses as CSV.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ayusman/romscope/internal/plugin"
	"github.com/ayusman/romscope/internal/rom"
)

// Config is the plugin section of plugin.json.
type Config struct {
	OutputDir string `json:"output_dir"`
}

func main() {
	var req plugin.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Event != plugin.EventAnalysisCompleted {
		writeErrorResponse(fmt.Sprintf("unsupported event: %s", req.Event))
		return
	}

	path, err := export(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	data, _ := json.Marshal(map[string]string{"file": path})
	writeResponse(plugin.Response{Success: true, Data: data})
}

// export writes the request's report to <dir>/<analysis id>.csv.
func export(req plugin.Request) (string, error) {
	if req.AnalysisID == "" {
		return "", fmt.Errorf("analysis_id is required")
	}
	if len(req.Report) == 0 {
		return "", fmt.Errorf("report is required")
	}

	var report rom.Report
	if err := json.Unmarshal(req.Report, &report); err != nil {
		return "", fmt.Errorf("failed to parse report: %w", err)
	}

	dir, err := outputDir(req)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	path := filepath.Join(dir, req.AnalysisID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeCSV(f, &report); err != nil {
		return "", err
	}
	return path, f.Close()
}

func outputDir(req plugin.Request) (string, error) {
	if req.OutputDir != "" {
		return req.OutputDir, nil
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.OutputDir != "" {
		return cfg.OutputDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".romscope", "exports"), nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	writeResponse(plugin.Response{Success: false, Error: errMsg})
}

func writeResponse(resp plugin.Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
