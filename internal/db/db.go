package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import for side-effects only

	"mspro-labs/cfe-tariffs/internal/models"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("not found")

// DefaultLimit caps listings when the caller passes no positive limit.
const DefaultLimit = 100

// Connect opens a connection to the SQLite database and ensures the schema exists.
// It automatically applies recommended settings for concurrency (WAL mode).
func Connect(dbPath string) (*sql.DB, error) {
	// Use robust connection settings to prevent "database locked" errors
	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// createSchema is private as it's only called by Connect.
func createSchema(db *sql.DB) error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
	  run_id TEXT PRIMARY KEY,
	  status TEXT NOT NULL DEFAULT 'queued',
	  started_at TIMESTAMP,
	  finished_at TIMESTAMP,
	  message TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(runsTable); err != nil {
		return err
	}

	// English records, deduplicated across runs by fare and the scraper's record id
	tariffsTable := `
	CREATE TABLE IF NOT EXISTS tariffs_en (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  record_id TEXT NOT NULL,
	  run_id TEXT,
	  region TEXT,
	  municipality TEXT,
	  division TEXT,
	  year TEXT,
	  month INTEGER,
	  month_name TEXT,
	  extracted_at TEXT,
	  fare TEXT,
	  post TEXT,
	  units TEXT,
	  tariff_value TEXT,
	  UNIQUE (record_id, fare)
	);
	CREATE INDEX IF NOT EXISTS idx_tariffs_run ON tariffs_en(run_id);
	CREATE INDEX IF NOT EXISTS idx_tariffs_location ON tariffs_en(region, municipality, division);
	`
	if _, err := db.Exec(tariffsTable); err != nil {
		return err
	}

	// The failure log is re-read in full on every ingest, so identical entries collapse
	failuresTable := `
	CREATE TABLE IF NOT EXISTS failures (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  run_id TEXT,
	  timestamp TEXT,
	  fare_type TEXT,
	  region TEXT,
	  municipality TEXT,
	  division TEXT,
	  year TEXT,
	  month INTEGER,
	  error TEXT,
	  UNIQUE (timestamp, fare_type, region, municipality, division, year, month, error)
	);
	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`
	if _, err := db.Exec(failuresTable); err != nil {
		return err
	}

	return nil
}

// --- Runs ---

// CreateRun inserts a queued run.
func CreateRun(db *sql.DB, runID string) error {
	_, err := db.Exec(`INSERT INTO runs (run_id, status) VALUES (?, ?)`, runID, models.RunQueued)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// SetRunStatus moves a run to status. Entering running stamps started_at,
// entering a terminal status stamps finished_at.
func SetRunStatus(db *sql.DB, runID, status, message string) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	switch status {
	case models.RunRunning:
		res, err = db.Exec(`UPDATE runs SET status = ?, message = ?, started_at = ? WHERE run_id = ?`, status, message, now, runID)
	case models.RunSucceeded, models.RunFailed:
		res, err = db.Exec(`UPDATE runs SET status = ?, message = ?, finished_at = ? WHERE run_id = ?`, status, message, now, runID)
	default:
		res, err = db.Exec(`UPDATE runs SET status = ?, message = ? WHERE run_id = ?`, status, message, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns one run, or ErrNotFound.
func GetRun(db *sql.DB, runID string) (models.Run, error) {
	var (
		run      models.Run
		started  sql.NullTime
		finished sql.NullTime
	)
	err := db.QueryRow(`SELECT run_id, status, started_at, finished_at, message FROM runs WHERE run_id = ?`, runID).
		Scan(&run.ID, &run.Status, &started, &finished, &run.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return run, ErrNotFound
	}
	if err != nil {
		return run, err
	}
	if started.Valid {
		run.StartedAt = &started.Time
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return run, nil
}

// --- Records ---

// StoredRecord is an English tariff row together with the run that ingested it.
type StoredRecord struct {
	RunID string `json:"run_id"`
	models.TariffRecord
}

// InsertTariffs adds records whose fare and id are not stored yet and returns how many were new.
func InsertTariffs(ctx context.Context, db *sql.DB, runID string, records []models.TariffRecord) (int64, error) {
	insertSQL := `
	INSERT INTO tariffs_en (
	  record_id, run_id, region, municipality, division, year, month, month_name,
	  extracted_at, fare, post, units, tariff_value
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(record_id, fare) DO NOTHING;
	`
	return batch(ctx, db, insertSQL, len(records), func(ctx context.Context, stmt *sql.Stmt, i int) (sql.Result, error) {
		r := records[i]
		if r.ID == "" {
			return nil, nil
		}
		return stmt.ExecContext(ctx,
			r.ID, runID, r.Region, r.Municipality, r.Division, r.Year, r.Month, r.MonthName,
			r.ExtractedAt, r.Fare, r.Post, r.Units, r.TariffValue,
		)
	})
}

// RecordFilter narrows ListRecords. Empty fields match everything.
type RecordFilter struct {
	Limit        int
	Region       string
	Municipality string
	Division     string
	Fare         string
}

// ListRecords returns the newest matching records first.
func ListRecords(db *sql.DB, f RecordFilter) ([]StoredRecord, error) {
	var (
		where []string
		args  []any
	)
	for _, c := range []struct{ column, value string }{
		{"region", f.Region},
		{"municipality", f.Municipality},
		{"division", f.Division},
		{"fare", f.Fare},
	} {
		if c.value != "" {
			where = append(where, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	query := `SELECT record_id, IFNULL(run_id, ''), region, municipality, division, year, month, month_name,
	  extracted_at, fare, post, units, tariff_value FROM tariffs_en`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limitOrDefault(f.Limit))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var r StoredRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.Region, &r.Municipality, &r.Division, &r.Year, &r.Month,
			&r.MonthName, &r.ExtractedAt, &r.Fare, &r.Post, &r.Units, &r.TariffValue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Failures ---

// StoredFailure is a failure log entry with its row id and ingesting run.
type StoredFailure struct {
	ID    int64  `json:"id"`
	RunID string `json:"run_id"`
	models.FailureRecord
}

// InsertFailures adds failure entries not stored yet and returns how many were new.
func InsertFailures(ctx context.Context, db *sql.DB, runID string, failures []models.FailureRecord) (int64, error) {
	insertSQL := `
	INSERT INTO failures (run_id, timestamp, fare_type, region, municipality, division, year, month, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING;
	`
	return batch(ctx, db, insertSQL, len(failures), func(ctx context.Context, stmt *sql.Stmt, i int) (sql.Result, error) {
		f := failures[i]
		return stmt.ExecContext(ctx, runID, f.Timestamp, f.FareType, f.Region, f.Municipality, f.Division, f.Year, f.Month, f.Error)
	})
}

// ListFailures returns the newest failures first.
func ListFailures(db *sql.DB, limit int) ([]StoredFailure, error) {
	rows, err := db.Query(`
		SELECT id, IFNULL(run_id, ''), timestamp, fare_type, region, municipality, division, year, month, error
		FROM failures
		ORDER BY id DESC
		LIMIT ?
	`, limitOrDefault(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredFailure
	for rows.Next() {
		var f StoredFailure
		if err := rows.Scan(&f.ID, &f.RunID, &f.Timestamp, &f.FareType, &f.Region, &f.Municipality,
			&f.Division, &f.Year, &f.Month, &f.Error); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// batch runs exec for n items inside one transaction and sums the affected rows.
// exec may return a nil result to skip an item.
func batch(ctx context.Context, db *sql.DB, query string, n int, exec func(context.Context, *sql.Stmt, int) (sql.Result, error)) (int64, error) {
	if n == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	var totalAffected int64
	for i := 0; i < n; i++ {
		res, err := exec(ctx, stmt, i)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert item %d: %w", i, err)
		}
		if res == nil {
			continue
		}
		rows, _ := res.RowsAffected()
		totalAffected += rows
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return totalAffected, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
