package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/romscope/internal/app"
	"github.com/ayusman/romscope/internal/capture"
	"github.com/ayusman/romscope/internal/config"
	"github.com/ayusman/romscope/internal/detector"
	"github.com/ayusman/romscope/internal/logging"
	"github.com/ayusman/romscope/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, s *store.Store) *app.Service {
	t.Helper()

	det := detector.NewMockDetector()
	hand := detector.OpenHandLandmarks()
	det.SetHand(&hand)

	settings := config.DefaultAnalysis()
	settings.FrameReadyTimeout = 20 * time.Millisecond
	settings.FramePollInterval = time.Millisecond

	svc := app.NewService(app.Config{
		Store:    s,
		Analyzer: app.NewAnalyzer(det, settings, logging.Discard()),
		Logger:   logging.Discard(),
		OpenVideo: func(path string) (capture.Source, error) {
			return capture.NewMockSource(5 * time.Second), nil
		},
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})
	return svc
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestAPI_AnalysisWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	s := newTestStore(t)
	srv := New(Config{Store: s, Service: newTestService(t, s), Logger: logging.Discard()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Start an analysis
	createBody := `{"video_path": "/videos/ring.mp4", "fingers": ["ring"]}`
	resp, err := client.Post(ts.URL+"/api/analyses", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/analyses error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var created struct {
		ID      string   `json:"id"`
		Fingers []string `json:"fingers"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if len(created.Fingers) != 1 || created.Fingers[0] != "ring" {
		t.Errorf("created fingers = %v, want [ring]", created.Fingers)
	}

	// 2. Wait for it to complete
	var got struct {
		Status  string `json:"status"`
		Valid   bool   `json:"valid"`
		Results []struct {
			Finger string `json:"finger"`
			Joint  string `json:"joint"`
		} `json:"results"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = client.Get(ts.URL + "/api/analyses/" + created.ID)
		if err != nil {
			t.Fatalf("GET /api/analyses/%s error = %v", created.ID, err)
		}
		json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()

		if got.Status == string(store.StatusCompleted) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("analysis still %q after 5s", got.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}

	if !got.Valid {
		t.Error("expected a valid report")
	}
	if len(got.Results) != 3 {
		t.Errorf("len(results) = %d, want 3", len(got.Results))
	}

	// 3. List analyses
	resp, _ = client.Get(ts.URL + "/api/analyses")
	var listed struct {
		Analyses []struct {
			ID string `json:"id"`
		} `json:"analyses"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Analyses) != 1 || listed.Analyses[0].ID != created.ID {
		t.Fatalf("listed = %+v, want the created analysis", listed.Analyses)
	}

	// 4. Export the diagnostics
	resp, _ = client.Get(ts.URL + "/api/analyses/" + created.ID + "/log")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "analysis started") {
		t.Errorf("log = %q, want the start line", body)
	}

	// 5. Delete
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/analyses/"+created.ID, nil)
	deadline = time.Now().Add(5 * time.Second)
	for {
		resp, _ = client.Do(req)
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp, _ = client.Get(ts.URL + "/api/analyses/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_StreamStoredLog(t *testing.T) {
	s := newTestStore(t)

	a := &store.Analysis{VideoPath: "/videos/ring.mp4"}
	if err := s.Analyses().Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	at := time.Now()
	err := s.Logs().Append(a.ID, []store.LogLine{
		{Time: at, Message: "no video provided"},
		{Time: at, Message: "analysis failed: no video provided"},
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	srv := New(Config{Store: s, Logger: logging.Discard()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/analyses/"+a.ID+"/stream"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var messages []string
	for {
		var msg struct {
			Message string `json:"message"`
			Text    string `json:"text"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("ReadJSON() error = %v, want normal closure", err)
			}
			break
		}
		messages = append(messages, msg.Message)
		if !strings.HasPrefix(msg.Text, "[") {
			t.Errorf("text = %q, want a timestamped line", msg.Text)
		}
	}

	if len(messages) != 2 || messages[1] != "analysis failed: no video provided" {
		t.Errorf("messages = %v", messages)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
