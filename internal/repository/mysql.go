package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"propscan-api/internal/logger"
)

// MySQLPropertyRepository implements PropertyRepository using MySQL.
type MySQLPropertyRepository struct {
	*sqlStore
}

// NewMySQLPropertyRepository connects to MySQL. The DSN must enable
// clientFoundRows so unchanged updates still count as matched.
func NewMySQLPropertyRepository(dsn string) (*MySQLPropertyRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	for _, stmt := range mysqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	log := logger.WithComponent("MySQLPropertyRepository")
	log.Info().Msg("Initialized")
	return &MySQLPropertyRepository{sqlStore: &sqlStore{
		db: db,
		dialect: dialect{
			name: "mysql",
			insertIgnore: func(insert string) string {
				return strings.Replace(insert, "INSERT INTO", "INSERT IGNORE INTO", 1)
			},
			isDuplicate: isMySQLDuplicate,
		},
	}}, nil
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

// MySQL runs one statement per Exec.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id VARCHAR(64) PRIMARY KEY,
		serial_number VARCHAR(32) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(255) NOT NULL DEFAULT '',
		location TEXT NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		metadata TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		INDEX idx_properties_created_at (created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS scan_records (
		id VARCHAR(64) PRIMARY KEY,
		scanned_at BIGINT NOT NULL,
		type VARCHAR(8) NOT NULL,
		serial_number VARCHAR(32) NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error_message TEXT NOT NULL,
		duration BIGINT NOT NULL DEFAULT 0,
		platform VARCHAR(32) NOT NULL DEFAULT '',
		model VARCHAR(64) NOT NULL DEFAULT '',
		INDEX idx_scan_records_scanned_at (scanned_at)
	)`,
}

// ScanRecords returns the scan record repository sharing this database.
func (r *MySQLPropertyRepository) ScanRecords() ScanRecordRepository {
	return scanRecords{r.sqlStore}
}

var _ PropertyRepository = (*MySQLPropertyRepository)(nil)
