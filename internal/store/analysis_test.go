package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createAnalysis(t *testing.T, s *Store, video string) *Analysis {
	t.Helper()
	a := &Analysis{
		VideoPath:      video,
		Fingers:        []string{"ring", "pinky"},
		DistanceMetric: "palm_plane",
	}
	require.NoError(t, s.Analyses().Create(a))
	return a
}

func ptr(f float64) *float64 { return &f }

func TestAnalysisRepository_Create(t *testing.T) {
	s := newTestStore(t)
	a := createAnalysis(t, s, "/videos/a.mp4")

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, StatusPending, a.Status)

	got, err := s.Analyses().GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "/videos/a.mp4", got.VideoPath)
	assert.Equal(t, []string{"ring", "pinky"}, got.Fingers)
	assert.Equal(t, "palm_plane", got.DistanceMetric)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Report)
}

func TestAnalysisRepository_Create_KeepsGivenID(t *testing.T) {
	s := newTestStore(t)
	a := &Analysis{ID: "fixed-id", VideoPath: "v.mp4"}
	require.NoError(t, s.Analyses().Create(a))
	assert.Equal(t, "fixed-id", a.ID)

	err := s.Analyses().Create(&Analysis{ID: "fixed-id", VideoPath: "w.mp4"})
	assert.Error(t, err, "duplicate id")
}

func TestAnalysisRepository_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Analyses().GetByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAnalysisRepository_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	repo := s.Analyses()
	a := createAnalysis(t, s, "v.mp4")

	// Completing before running is rejected
	err := repo.Complete(a.ID, Completion{Outcome: "ok"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, repo.SetRunning(a.ID))
	assert.ErrorIs(t, repo.SetRunning(a.ID), ErrInvalidTransition)

	report := json.RawMessage(`{"valid":true}`)
	err = repo.Complete(a.ID, Completion{
		Outcome:        "ok",
		Valid:          true,
		DetectionRatio: 0.9,
		Report:         report,
		Results: []FingerResult{
			{Finger: "ring", Joint: "MCP", Measurable: true, Flexion: 80, Extension: 5, Baseline: 175, Samples: 9, MinDistance: ptr(0.12)},
			{Finger: "ring", Joint: "PIP", Measurable: true, Flexion: 95, Samples: 9, MinDistance: ptr(0.12)},
			{Finger: "pinky", Joint: "MCP", Measurable: false, Samples: 2},
		},
	})
	require.NoError(t, err)

	got, err := repo.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "ok", got.Outcome)
	assert.True(t, got.Valid)
	assert.False(t, got.Cancelled)
	assert.InDelta(t, 0.9, got.DetectionRatio, 1e-9)
	assert.JSONEq(t, string(report), string(got.Report))
	require.NotNil(t, got.CompletedAt)

	results, err := s.Results().GetByAnalysisID(a.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "ring", results[0].Finger)
	assert.Equal(t, "MCP", results[0].Joint)
	assert.True(t, results[0].Measurable)
	assert.InDelta(t, 80, results[0].Flexion, 1e-9)
	require.NotNil(t, results[0].MinDistance)
	assert.InDelta(t, 0.12, *results[0].MinDistance, 1e-9)
	assert.False(t, results[2].Measurable)
	assert.Nil(t, results[2].MinDistance)

	// A finished analysis cannot fail afterwards
	assert.ErrorIs(t, repo.Fail(a.ID, "late"), ErrInvalidTransition)
}

func TestAnalysisRepository_Fail(t *testing.T) {
	s := newTestStore(t)
	repo := s.Analyses()
	a := createAnalysis(t, s, "missing.mp4")

	require.NoError(t, repo.Fail(a.ID, "no video provided"))

	got, err := repo.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "no video provided", got.Error)
	assert.NotNil(t, got.CompletedAt)

	assert.ErrorIs(t, repo.Fail("missing", "x"), ErrNotFound)
	assert.ErrorIs(t, repo.SetRunning("missing"), ErrNotFound)
}

func TestAnalysisRepository_List(t *testing.T) {
	s := newTestStore(t)
	first := createAnalysis(t, s, "1.mp4")
	time.Sleep(10 * time.Millisecond)
	second := createAnalysis(t, s, "2.mp4")

	all, err := s.Analyses().List(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)

	limited, err := s.Analyses().List(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAnalysisRepository_Delete_Cascades(t *testing.T) {
	s := newTestStore(t)
	repo := s.Analyses()
	a := createAnalysis(t, s, "v.mp4")
	require.NoError(t, repo.SetRunning(a.ID))
	require.NoError(t, s.Logs().Append(a.ID, []LogLine{{Time: time.Now(), Message: "analysis started"}}))
	require.NoError(t, repo.Complete(a.ID, Completion{
		Outcome: "ok",
		Results: []FingerResult{{Finger: "ring", Joint: "MCP", Measurable: true}},
	}))

	require.NoError(t, repo.Delete(a.ID))

	_, err := repo.GetByID(a.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	results, err := s.Results().GetByAnalysisID(a.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	lines, err := s.Logs().GetByAnalysisID(a.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	assert.ErrorIs(t, repo.Delete(a.ID), ErrNotFound)
}

func TestLogRepository_Append(t *testing.T) {
	s := newTestStore(t)
	a := createAnalysis(t, s, "v.mp4")
	logs := s.Logs()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, logs.Append(a.ID, []LogLine{
		{Time: base, Message: "analysis started"},
		{Time: base.Add(time.Second), Message: "frame 0 (0.00s): no hand"},
	}))
	require.NoError(t, logs.Append(a.ID, []LogLine{
		{Time: base.Add(2 * time.Second), Message: "detection ratio 0.10"},
	}))
	require.NoError(t, logs.Append(a.ID, nil))

	lines, err := logs.GetByAnalysisID(a.ID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for i, l := range lines {
		assert.Equal(t, i, l.Seq)
	}
	assert.Equal(t, "analysis started", lines[0].Message)
	assert.Equal(t, "detection ratio 0.10", lines[2].Message)
	assert.True(t, lines[1].Time.Equal(base.Add(time.Second)))

	err = logs.Append("missing", []LogLine{{Time: base, Message: "orphan"}})
	assert.Error(t, err, "foreign key")
}
