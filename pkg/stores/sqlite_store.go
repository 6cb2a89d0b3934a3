package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	config Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{config: cfg}, nil
}

// Init opens the database, creating its directory if needed, and enables
// WAL mode and foreign keys.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.config.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(s.config.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := s.config.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if s.config.Path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database answers.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, mode, status, started_at, completed_at, executed, failed, pending, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Mode,
		run.Status,
		toMillis(run.StartedAt),
		nullMillis(run.CompletedAt),
		run.Executed,
		run.Failed,
		run.Pending,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// CompleteRun records the final status and counters of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, executed = ?, failed = ?, pending = ?, error = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		run.Status,
		nullMillis(run.CompletedAt),
		run.Executed,
		run.Failed,
		run.Pending,
		run.Error,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}

	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, mode, status, started_at, completed_at, executed, failed, pending, error
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRuns returns runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `
		SELECT id, mode, status, started_at, completed_at, executed, failed, pending, error
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// RecordAction appends an action result to its run.
func (s *SQLiteStore) RecordAction(ctx context.Context, result *ActionResult) error {
	query := `
		INSERT INTO action_results (run_id, seq, manifest, idx, kind, message, error, duration_ms, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM action_results WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		result.RunID,
		result.RunID,
		result.Manifest,
		result.Index,
		result.Kind,
		result.Message,
		result.Error,
		result.Duration.Milliseconds(),
		toMillis(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	return nil
}

// ListActions returns a run's action results in execution order.
func (s *SQLiteStore) ListActions(ctx context.Context, runID string) ([]*ActionResult, error) {
	query := `
		SELECT run_id, manifest, idx, kind, message, error, duration_ms, created_at
		FROM action_results
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	results := make([]*ActionResult, 0)
	for rows.Next() {
		var (
			r          ActionResult
			errMsg     sql.NullString
			durationMs int64
			createdAt  int64
		)
		if err := rows.Scan(&r.RunID, &r.Manifest, &r.Index, &r.Kind, &r.Message, &errMsg, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if errMsg.Valid {
			r.Error = &errMsg.String
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdAt)
		results = append(results, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return results, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run         Run
		startedAt   int64
		completedAt sql.NullInt64
		errMsg      sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Mode,
		&run.Status,
		&startedAt,
		&completedAt,
		&run.Executed,
		&run.Failed,
		&run.Pending,
		&errMsg,
	)
	if err != nil {
		return nil, err
	}

	run.StartedAt = time.UnixMilli(startedAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	return &run, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
