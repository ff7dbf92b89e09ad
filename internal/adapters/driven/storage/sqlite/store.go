package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/sercha-extensions/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/sercha-extensions/internal/core/domain"
	"github.com/custodia-labs/sercha-extensions/internal/core/ports/driven"
)

// Store is a SQLite-based store for host bookkeeping.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.sercha/data/extensions.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".sercha", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "extensions.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// ProcessRecords returns a ProcessRecordStore backed by this store.
func (s *Store) ProcessRecords() driven.ProcessRecordStore {
	return &processStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_extension_processes.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.apply(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) apply(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(script); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ==================== Process Store ====================

// processStore implements driven.ProcessRecordStore.
type processStore struct {
	store *Store
}

var _ driven.ProcessRecordStore = (*processStore)(nil)

// Register stores or replaces the record for its pid.
func (s *processStore) Register(ctx context.Context, record domain.ProcessRecord) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO extension_processes (pid, extension_id, host_pid, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(pid) DO UPDATE SET
			extension_id = excluded.extension_id,
			host_pid = excluded.host_pid,
			started_at = excluded.started_at
	`, record.PID, string(record.ExtensionID), record.HostPID, record.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("registering process %d: %w", record.PID, err)
	}
	return nil
}

// Unregister removes the record for pid.
func (s *processStore) Unregister(ctx context.Context, pid int) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM extension_processes WHERE pid = ?", pid)
	if err != nil {
		return fmt.Errorf("unregistering process %d: %w", pid, err)
	}
	return nil
}

// List returns all records ordered by pid.
func (s *processStore) List(ctx context.Context) ([]domain.ProcessRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT pid, extension_id, host_pid, started_at
		FROM extension_processes ORDER BY pid
	`)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	defer rows.Close()

	var records []domain.ProcessRecord
	for rows.Next() {
		var (
			record      domain.ProcessRecord
			extensionID string
			startedAt   int64
		)
		if err := rows.Scan(&record.PID, &extensionID, &record.HostPID, &startedAt); err != nil {
			return nil, fmt.Errorf("scanning process: %w", err)
		}
		record.ExtensionID = domain.ExtensionID(extensionID)
		record.StartedAt = time.UnixMilli(startedAt)
		records = append(records, record)
	}
	return records, rows.Err()
}
