package store

import (
	"database/sql"
)

// FingerResult is one finger/joint row of a completed analysis. Fingers that
// were not measurable are stored with Measurable false and zero angles.
type FingerResult struct {
	ID          int64    `json:"id"`
	AnalysisID  string   `json:"analysis_id"`
	Finger      string   `json:"finger"`
	Joint       string   `json:"joint"`
	Measurable  bool     `json:"measurable"`
	Flexion     float64  `json:"flexion"`
	Extension   float64  `json:"extension"`
	Baseline    float64  `json:"baseline"`
	Samples     int      `json:"samples"`
	MinDistance *float64 `json:"min_distance,omitempty"`
}

// ResultRepository reads the flattened per-finger results.
type ResultRepository struct {
	db *sql.DB
}

// Results returns the result repository for this store.
func (s *Store) Results() *ResultRepository {
	return &ResultRepository{db: s.db}
}

// GetByAnalysisID retrieves all result rows of an analysis in insertion order.
func (r *ResultRepository) GetByAnalysisID(analysisID string) ([]FingerResult, error) {
	rows, err := r.db.Query(
		`SELECT id, analysis_id, finger, joint, measurable, flexion, extension, baseline, samples, min_distance
		 FROM finger_results
		 WHERE analysis_id = ?
		 ORDER BY id`,
		analysisID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FingerResult
	for rows.Next() {
		var fr FingerResult
		var measurable int
		var minDistance sql.NullFloat64
		if err := rows.Scan(&fr.ID, &fr.AnalysisID, &fr.Finger, &fr.Joint, &measurable,
			&fr.Flexion, &fr.Extension, &fr.Baseline, &fr.Samples, &minDistance); err != nil {
			return nil, err
		}
		fr.Measurable = measurable == 1
		if minDistance.Valid {
			d := minDistance.Float64
			fr.MinDistance = &d
		}
		results = append(results, fr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}
