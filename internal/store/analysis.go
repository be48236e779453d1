package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a status change is not allowed from
// the analysis' current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle state of an analysis.
type Status string

const (
	// StatusPending is an analysis that has been accepted but not started.
	StatusPending Status = "pending"
	// StatusRunning is an analysis whose pipeline is executing.
	StatusRunning Status = "running"
	// StatusCompleted is an analysis that produced a report.
	StatusCompleted Status = "completed"
	// StatusFailed is an analysis that ended without a report.
	StatusFailed Status = "failed"
)

// Analysis represents one analysis run stored in the database.
type Analysis struct {
	ID             string          `json:"id"`
	VideoPath      string          `json:"video_path"`
	Fingers        []string        `json:"fingers"`
	DistanceMetric string          `json:"distance_metric"`
	Status         Status          `json:"status"`
	Outcome        string          `json:"outcome,omitempty"`
	Valid          bool            `json:"valid"`
	Cancelled      bool            `json:"cancelled"`
	DetectionRatio float64         `json:"detection_ratio"`
	Report         json.RawMessage `json:"report,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Completion is the outcome of a finished analysis.
type Completion struct {
	Outcome        string
	Valid          bool
	Cancelled      bool
	DetectionRatio float64
	Report         json.RawMessage
	Results        []FingerResult
}

// AnalysisRepository provides CRUD operations for analyses.
type AnalysisRepository struct {
	db *sql.DB
}

// Analyses returns the analysis repository for this store.
func (s *Store) Analyses() *AnalysisRepository {
	return &AnalysisRepository{db: s.db}
}

const analysisColumns = `id, video_path, fingers, distance_metric, status, outcome, valid, cancelled,
		detection_ratio, report, error, created_at, updated_at, completed_at`

// Create inserts a new pending analysis. An empty ID is filled with a UUID.
func (r *AnalysisRepository) Create(a *Analysis) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now()
	a.Status = StatusPending
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO analyses (id, video_path, fingers, distance_metric, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.VideoPath, strings.Join(a.Fingers, ","), a.DistanceMetric, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// GetByID retrieves an analysis by its ID.
func (r *AnalysisRepository) GetByID(id string) (*Analysis, error) {
	row := r.db.QueryRow(`SELECT `+analysisColumns+` FROM analyses WHERE id = ?`, id)

	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// List retrieves analyses, newest first. A limit of zero or less returns all.
func (r *AnalysisRepository) List(limit int) ([]*Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses ORDER BY created_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return analyses, nil
}

// SetRunning moves a pending analysis to running.
func (r *AnalysisRepository) SetRunning(id string) error {
	return r.transition(id, StatusPending, StatusRunning)
}

// Fail marks a pending or running analysis as failed with the given reason.
func (r *AnalysisRepository) Fail(id, reason string) error {
	now := time.Now()
	result, err := r.db.Exec(
		`UPDATE analyses SET status = ?, error = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		string(StatusFailed), reason, now, now, id, string(StatusPending), string(StatusRunning),
	)
	if err != nil {
		return err
	}
	return checkTransition(r.db, result, id)
}

// Complete stores the report of a running analysis and its flattened
// per-finger results in a single transaction.
func (r *AnalysisRepository) Complete(id string, c Completion) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.Exec(
		`UPDATE analyses SET status = ?, outcome = ?, valid = ?, cancelled = ?, detection_ratio = ?,
		 report = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusCompleted), c.Outcome, c.Valid, c.Cancelled, c.DetectionRatio,
		string(c.Report), now, now, id, string(StatusRunning),
	)
	if err != nil {
		return err
	}
	if err := checkTransition(tx, result, id); err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO finger_results (analysis_id, finger, joint, measurable, flexion, extension, baseline, samples, min_distance)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, fr := range c.Results {
		var minDistance sql.NullFloat64
		if fr.MinDistance != nil {
			minDistance = sql.NullFloat64{Float64: *fr.MinDistance, Valid: true}
		}
		if _, err := stmt.Exec(id, fr.Finger, fr.Joint, fr.Measurable, fr.Flexion, fr.Extension,
			fr.Baseline, fr.Samples, minDistance); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Delete removes an analysis and, through cascading, its results and logs.
func (r *AnalysisRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM analyses WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *AnalysisRepository) transition(id string, from, to Status) error {
	result, err := r.db.Exec(
		`UPDATE analyses SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now(), id, string(from),
	)
	if err != nil {
		return err
	}
	return checkTransition(r.db, result, id)
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

// checkTransition tells a missing analysis apart from one in the wrong state.
func checkTransition(q queryRower, result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var status string
	err = q.QueryRow(`SELECT status FROM analyses WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: analysis %s is %s", ErrInvalidTransition, id, status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	a := &Analysis{}
	var fingers, status, report string
	var valid, cancelled int
	var completedAt sql.NullTime

	err := row.Scan(&a.ID, &a.VideoPath, &fingers, &a.DistanceMetric, &status, &a.Outcome,
		&valid, &cancelled, &a.DetectionRatio, &report, &a.Error,
		&a.CreatedAt, &a.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	a.Status = Status(status)
	a.Valid = valid == 1
	a.Cancelled = cancelled == 1
	if fingers != "" {
		a.Fingers = strings.Split(fingers, ",")
	}
	if report != "" {
		a.Report = json.RawMessage(report)
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return a, nil
}
