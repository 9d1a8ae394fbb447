package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lib/pq"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string) error {
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)

	for _, filename := range sqlFiles {
		slog.Info("running migration", "file", filename)

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	slog.Info("migrations completed", "count", len(sqlFiles))
	return nil
}

// InsertReadings stores the cleaned history of one run. Readings are bulk
// loaded with COPY. A run that is already stored is skipped and reported as
// not inserted.
func (db *DB) InsertReadings(ctx context.Context, run *ReadingRun, readings []CleanedReading) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO reading_runs (run_id, fetched_at, excluded, outliers, regressions, reading_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO NOTHING
	`, run.RunID, run.FetchedAt, run.Excluded, run.Outliers, run.Regressions, len(readings))
	if err != nil {
		return false, fmt.Errorf("failed to insert reading run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("cleaned_readings", "run_id", "entry_id", "ts", "value"))
	if err != nil {
		return false, fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, run.RunID, r.EntryID, r.Timestamp, r.Value); err != nil {
			stmt.Close()
			return false, fmt.Errorf("failed to copy reading %d: %w", r.EntryID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return false, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return false, fmt.Errorf("failed to close copy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit readings: %w", err)
	}
	return true, nil
}

// InsertForecastRun stores a cascade result. A run that is already stored is
// skipped and reported as not inserted.
func (db *DB) InsertForecastRun(ctx context.Context, run *ForecastRun, results []ForecastResult) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO forecast_runs (run_id, generated_at)
		VALUES ($1, $2)
		ON CONFLICT (run_id) DO NOTHING
	`, run.RunID, run.GeneratedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert forecast run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	query := `
		INSERT INTO forecast_results (
			run_id, resolution_minutes, alpha, rmse, mape, next_value,
			next_timestamp, overridden, test_size, warning_level
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, query,
			run.RunID,
			r.ResolutionMinutes,
			r.Alpha,
			r.RMSE,
			r.MAPE,
			r.NextValue,
			r.NextTimestamp,
			r.Overridden,
			r.TestSize,
			r.WarningLevel,
		); err != nil {
			return false, fmt.Errorf("failed to insert %d-minute result: %w", r.ResolutionMinutes, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit forecast run: %w", err)
	}
	return true, nil
}

// LatestForecastRun returns the newest stored run and its results, or nil
// when nothing is stored yet.
func (db *DB) LatestForecastRun(ctx context.Context) (*ForecastRun, []ForecastResult, error) {
	var run ForecastRun
	err := db.QueryRowContext(ctx, `
		SELECT run_id, generated_at, created_at
		FROM forecast_runs
		ORDER BY generated_at DESC
		LIMIT 1
	`).Scan(&run.RunID, &run.GeneratedAt, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT resolution_minutes, alpha, rmse, mape, next_value,
		       next_timestamp, overridden, test_size, warning_level
		FROM forecast_results
		WHERE run_id = $1
		ORDER BY resolution_minutes
	`, run.RunID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var results []ForecastResult
	for rows.Next() {
		var r ForecastResult
		if err := rows.Scan(
			&r.ResolutionMinutes,
			&r.Alpha,
			&r.RMSE,
			&r.MAPE,
			&r.NextValue,
			&r.NextTimestamp,
			&r.Overridden,
			&r.TestSize,
			&r.WarningLevel,
		); err != nil {
			return nil, nil, err
		}
		results = append(results, r)
	}

	return &run, results, rows.Err()
}
