package store

import (
	"database/sql"
	"time"
)

// LogLine is one stored diagnostics line.
type LogLine struct {
	Seq     int       `json:"seq"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// LogRepository stores the diagnostics log of each analysis.
type LogRepository struct {
	db *sql.DB
}

// Logs returns the log repository for this store.
func (s *Store) Logs() *LogRepository {
	return &LogRepository{db: s.db}
}

// Append adds lines after any already stored for the analysis, in a single
// transaction.
func (r *LogRepository) Append(analysisID string, lines []LogLine) error {
	if len(lines) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM analysis_logs WHERE analysis_id = ?`,
		analysisID,
	).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO analysis_logs (analysis_id, seq, logged_at, message) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, line := range lines {
		if _, err := stmt.Exec(analysisID, next+i, line.Time, line.Message); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByAnalysisID retrieves the log of an analysis in order.
func (r *LogRepository) GetByAnalysisID(analysisID string) ([]LogLine, error) {
	rows, err := r.db.Query(
		`SELECT seq, logged_at, message
		 FROM analysis_logs
		 WHERE analysis_id = ?
		 ORDER BY seq`,
		analysisID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []LogLine
	for rows.Next() {
		var l LogLine
		if err := rows.Scan(&l.Seq, &l.Time, &l.Message); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}
