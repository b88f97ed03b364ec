package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed refresh history
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// :memory: databases are per-connection, and parallel refreshes write
	// through one connection so they queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Store initialized", "path", dbPath)
	return s, nil
}

const busyTimeoutMillis = 5000

// dsn adds a busy timeout so writers from another process wait for the lock.
func dsn(dbPath string) string {
	if dbPath == ":memory:" {
		return dbPath
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dbPath, sep, busyTimeoutMillis)
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// RefreshRun Operations
// ============================================================================

const runColumns = `id, network, start_time, end_time, candidates, accepted,
		       dropped, output_path, status, error_message`

// CreateRun inserts a new RefreshRun and sets its ID
func (s *Store) CreateRun(run *RefreshRun) error {
	const query = `
		INSERT INTO refresh_runs (
			network, start_time, end_time, candidates, accepted, dropped,
			output_path, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(
		query,
		run.Network, run.StartTime, run.EndTime, run.Candidates, run.Accepted,
		run.Dropped, run.OutputPath, run.Status, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return nil
}

// UpdateRun updates an existing RefreshRun by ID
func (s *Store) UpdateRun(run *RefreshRun) error {
	const query = `
		UPDATE refresh_runs SET
			network = ?, start_time = ?, end_time = ?, candidates = ?,
			accepted = ?, dropped = ?, output_path = ?, status = ?, error_message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(
		query,
		run.Network, run.StartTime, run.EndTime, run.Candidates, run.Accepted,
		run.Dropped, run.OutputPath, run.Status, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update refresh run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("refresh run not found: %d", run.ID)
	}

	return nil
}

// GetRun retrieves a RefreshRun by ID
func (s *Store) GetRun(id int64) (*RefreshRun, error) {
	query := "SELECT " + runColumns + " FROM refresh_runs WHERE id = ?"

	run, err := scanRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to query refresh run: %w", err)
	}

	return run, nil
}

// ListRuns retrieves RefreshRuns, newest first, optionally filtered by network
func (s *Store) ListRuns(network string, limit int) ([]RefreshRun, error) {
	query := "SELECT " + runColumns + " FROM refresh_runs"
	var args []interface{}

	if network != "" {
		query += " WHERE network = ?"
		args = append(args, network)
	}

	query += " ORDER BY start_time DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []RefreshRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RefreshRun, error) {
	run := &RefreshRun{}
	var errMsg, outputPath sql.NullString
	err := row.Scan(
		&run.ID, &run.Network, &run.StartTime, &run.EndTime,
		&run.Candidates, &run.Accepted, &run.Dropped,
		&outputPath, &run.Status, &errMsg,
	)
	if err != nil {
		return nil, err
	}
	run.OutputPath = outputPath.String
	run.ErrorMessage = errMsg.String
	return run, nil
}

// ============================================================================
// MirrorRecord Operations
// ============================================================================

// ReplaceMirrors swaps a network's recorded mirrors for records in one
// transaction
func (s *Store) ReplaceMirrors(network string, runID int64, records []MirrorRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM mirror_records WHERE network = ?", network); err != nil {
		return fmt.Errorf("failed to clear mirror records: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO mirror_records (network, region_key, url, run_id)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(network, rec.RegionKey, rec.URL, runID); err != nil {
			return fmt.Errorf("failed to insert mirror record %s: %w", rec.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mirror records: %w", err)
	}

	return nil
}

// ListMirrors retrieves a network's mirrors ordered by region key then URL
func (s *Store) ListMirrors(network string) ([]MirrorRecord, error) {
	const query = `
		SELECT id, network, region_key, url, run_id
		FROM mirror_records WHERE network = ? ORDER BY region_key, url
	`

	rows, err := s.db.Query(query, network)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror records: %w", err)
	}
	defer rows.Close()

	var records []MirrorRecord
	for rows.Next() {
		rec := MirrorRecord{}
		if err := rows.Scan(&rec.ID, &rec.Network, &rec.RegionKey, &rec.URL, &rec.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan mirror record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirror records: %w", err)
	}

	return records, nil
}

// CountMirrors returns how many mirrors are recorded for a network
func (s *Store) CountMirrors(network string) (int, error) {
	const query = "SELECT COUNT(*) FROM mirror_records WHERE network = ?"

	var count int
	if err := s.db.QueryRow(query, network).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count mirror records: %w", err)
	}

	return count, nil
}
