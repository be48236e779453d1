package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Analyses table - one row per analysis run
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			video_path TEXT NOT NULL,
			fingers TEXT NOT NULL DEFAULT '',
			distance_metric TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'completed', 'failed')),
			outcome TEXT NOT NULL DEFAULT '',
			valid INTEGER NOT NULL DEFAULT 0,
			cancelled INTEGER NOT NULL DEFAULT 0,
			detection_ratio REAL NOT NULL DEFAULT 0,
			report TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at DATETIME
		)`,

		// Finger results table - flattened per finger and joint
		`CREATE TABLE IF NOT EXISTS finger_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			finger TEXT NOT NULL,
			joint TEXT NOT NULL,
			measurable INTEGER NOT NULL,
			flexion REAL NOT NULL DEFAULT 0,
			extension REAL NOT NULL DEFAULT 0,
			baseline REAL NOT NULL DEFAULT 0,
			samples INTEGER NOT NULL DEFAULT 0,
			min_distance REAL
		)`,

		// Analysis logs table - the diagnostics lines of a run
		`CREATE TABLE IF NOT EXISTS analysis_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			analysis_id TEXT NOT NULL REFERENCES analyses(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			logged_at DATETIME NOT NULL,
			message TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_finger_results_analysis_id ON finger_results(analysis_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analysis_logs_analysis_id ON analysis_logs(analysis_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
