package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"propscan-api/internal/logger"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLitePropertyRepository implements PropertyRepository using SQLite.
// Writers are serialised; WAL mode keeps reads concurrent.
type SQLitePropertyRepository struct {
	*sqlStore
}

// NewSQLitePropertyRepository opens (and creates) the database at dbPath.
func NewSQLitePropertyRepository(dbPath string) (*SQLitePropertyRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSQLiteTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log := logger.WithComponent("SQLitePropertyRepository")
	log.Info().Str("path", dbPath).Msg("Initialized")
	return &SQLitePropertyRepository{sqlStore: &sqlStore{
		db: db,
		dialect: dialect{
			name:         "sqlite",
			insertIgnore: insertOnConflictIgnore,
			isDuplicate: func(err error) bool {
				return strings.Contains(err.Error(), "UNIQUE constraint failed")
			},
		},
		mu: &sync.Mutex{},
	}}, nil
}

func createSQLiteTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		serial_number TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_properties_created_at ON properties(created_at);
	CREATE TABLE IF NOT EXISTS scan_records (
		id TEXT PRIMARY KEY,
		scanned_at INTEGER NOT NULL,
		type TEXT NOT NULL,
		serial_number TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 0,
		platform TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_scan_records_scanned_at ON scan_records(scanned_at);
	`
	_, err := db.Exec(query)
	return err
}

// ScanRecords returns the scan record repository sharing this database.
func (r *SQLitePropertyRepository) ScanRecords() ScanRecordRepository {
	return scanRecords{r.sqlStore}
}

var (
	_ PropertyRepository   = (*SQLitePropertyRepository)(nil)
	_ ScanRecordRepository = scanRecords{}
)
