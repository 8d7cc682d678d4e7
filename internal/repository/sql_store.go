package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"propscan-api/internal/model"
	"propscan-api/pkg/serial"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
	// insertIgnore turns an INSERT into one that skips conflicting rows.
	insertIgnore func(insert string) string
	isDuplicate  func(err error) bool
}

// sqlStore implements PropertyRepository and ScanRecordRepository on
// database/sql. Timestamps are stored as epoch milliseconds so every
// driver round-trips them identically.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	// mu serialises writers for single-writer engines; nil otherwise.
	mu *sync.Mutex
}

// rebind rewrites ? placeholders for the dialect.
func (s *sqlStore) rebind(query string) string {
	if s.dialect.placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

const propertyColumns = `id, serial_number, name, description, category, location, status, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProperty(row rowScanner) (*model.Property, error) {
	var (
		p                    model.Property
		metadata             string
		createdAt, updatedAt int64
	)
	err := row.Scan(&p.ID, &p.SerialNumber, &p.Name, &p.Description, &p.Category,
		&p.Location, &p.Status, &metadata, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", p.ID, err)
		}
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}

func propertyArgs(p *model.Property) ([]interface{}, error) {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return []interface{}{
		p.SerialNumber, p.Name, p.Description, p.Category, p.Location, p.Status,
		string(metadata), p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli(),
	}, nil
}

// Create inserts a new property.
func (s *sqlStore) Create(ctx context.Context, p *model.Property) error {
	args, err := propertyArgs(p)
	if err != nil {
		return err
	}
	defer s.lock()()

	query := s.rebind(`INSERT INTO properties (serial_number, name, description, category, location, status, metadata, created_at, updated_at, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, append(args, p.ID)...); err != nil {
		if s.dialect.isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

// GetByID finds a property by id.
func (s *sqlStore) GetByID(ctx context.Context, id string) (*model.Property, error) {
	return s.getOne(ctx, "id", id)
}

// GetBySerial finds a property by serial number.
func (s *sqlStore) GetBySerial(ctx context.Context, serialNumber string) (*model.Property, error) {
	return s.getOne(ctx, "serial_number", serialNumber)
}

func (s *sqlStore) getOne(ctx context.Context, column, value string) (*model.Property, error) {
	query := s.rebind(`SELECT ` + propertyColumns + ` FROM properties WHERE ` + column + ` = ?`)

	p, err := scanProperty(s.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return p, nil
}

// Update replaces the property with the same id.
func (s *sqlStore) Update(ctx context.Context, p *model.Property) error {
	args, err := propertyArgs(p)
	if err != nil {
		return err
	}
	defer s.lock()()

	query := s.rebind(`UPDATE properties SET serial_number = ?, name = ?, description = ?, category = ?,
		location = ?, status = ?, metadata = ?, created_at = ?, updated_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, append(args, p.ID)...)
	if err != nil {
		if s.dialect.isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update property: %w", err)
	}
	return expectRow(res)
}

// Delete removes a property by id.
func (s *sqlStore) Delete(ctx context.Context, id string) error {
	defer s.lock()()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM properties WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a page of properties, newest first.
func (s *sqlStore) List(ctx context.Context, offset, limit int) ([]model.Property, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count properties: %w", err)
	}

	query := s.rebind(`SELECT ` + propertyColumns + ` FROM properties ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	props := make([]model.Property, 0, limit)
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, 0, err
		}
		props = append(props, *p)
	}
	return props, total, rows.Err()
}

// MaxSequence returns the highest sequence issued for year. Serial
// sequences are zero padded, so the lexical maximum is the numeric one.
func (s *sqlStore) MaxSequence(ctx context.Context, year int) (int, error) {
	prefix := fmt.Sprintf("%s-%04d-", serial.Prefix, year)
	query := s.rebind(`SELECT MAX(serial_number) FROM properties WHERE serial_number LIKE ?`)

	var top sql.NullString
	if err := s.db.QueryRowContext(ctx, query, prefix+"%").Scan(&top); err != nil {
		return 0, fmt.Errorf("failed to read max serial: %w", err)
	}
	if !top.Valid {
		return 0, nil
	}
	parts, ok := serial.Parse(top.String)
	if !ok {
		return 0, fmt.Errorf("stored serial %q is malformed", top.String)
	}
	return parts.Sequence, nil
}

// GetStats returns statistics about the store.
func (s *sqlStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{"backend": s.dialect.name}

	var properties, records int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties").Scan(&properties); err != nil {
		return nil, err
	}
	stats["total_properties"] = properties

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_records").Scan(&records); err != nil {
		return nil, err
	}
	stats["total_scan_records"] = records

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM properties").Scan(&last); err == nil && last.Valid {
		stats["last_update"] = time.UnixMilli(last.Int64).UTC()
	}

	byStatus := make(map[string]int64)
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM properties GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		byStatus[status] = n
	}
	stats["by_status"] = byStatus

	return stats, rows.Err()
}

// BatchInsert stores scan records, skipping ids already present.
func (s *sqlStore) BatchInsert(ctx context.Context, records []model.ScanRecord) error {
	if len(records) == 0 {
		return nil
	}
	defer s.lock()()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `INSERT INTO scan_records (id, scanned_at, type, serial_number, success, error_message, duration, platform, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, s.rebind(s.dialect.insertIgnore(insert)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.ID, r.Timestamp, string(r.Type), r.SerialNumber,
			r.Success, r.Error, r.Duration, r.DeviceInfo.Platform, r.DeviceInfo.Model)
		if err != nil {
			return fmt.Errorf("failed to insert scan record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListScanRecords returns a page of scan records, newest first.
func (s *sqlStore) ListScanRecords(ctx context.Context, offset, limit int) ([]model.ScanRecord, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count scan records: %w", err)
	}

	query := s.rebind(`SELECT id, scanned_at, type, serial_number, success, error_message, duration, platform, model
		FROM scan_records ORDER BY scanned_at DESC, id DESC LIMIT ? OFFSET ?`)
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list scan records: %w", err)
	}
	defer rows.Close()

	records := make([]model.ScanRecord, 0, limit)
	for rows.Next() {
		var r model.ScanRecord
		var typ string
		if err := rows.Scan(&r.ID, &r.Timestamp, &typ, &r.SerialNumber, &r.Success,
			&r.Error, &r.Duration, &r.DeviceInfo.Platform, &r.DeviceInfo.Model); err != nil {
			return nil, 0, err
		}
		r.Type = model.ScanType(typ)
		records = append(records, r)
	}
	return records, total, rows.Err()
}

// DeleteOlderThan removes scan records older than cutoff.
func (s *sqlStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	defer s.lock()()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM scan_records WHERE scanned_at < ?`), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete scan records: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// scanRecords adapts the scan record methods of a sqlStore to
// ScanRecordRepository, whose List collides with the property List.
type scanRecords struct {
	*sqlStore
}

func (r scanRecords) List(ctx context.Context, offset, limit int) ([]model.ScanRecord, int64, error) {
	return r.ListScanRecords(ctx, offset, limit)
}

func postgresPlaceholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func insertOnConflictIgnore(insert string) string {
	return insert + ` ON CONFLICT (id) DO NOTHING`
}
