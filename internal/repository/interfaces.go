package repository

//go:generate mockgen -destination=mock_repository.go -package=repository propscan-api/internal/repository PropertyRepository,ScanRecordRepository

import (
	"context"
	"errors"
	"time"

	"propscan-api/internal/model"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when a unique key (serial number) is taken.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// PropertyRepository defines property data access methods.
type PropertyRepository interface {
	// Create inserts a new property. A taken serial number yields ErrDuplicate.
	Create(ctx context.Context, p *model.Property) error

	// GetByID finds a property by its id.
	GetByID(ctx context.Context, id string) (*model.Property, error)

	// GetBySerial finds a property by its serial number.
	GetBySerial(ctx context.Context, serialNumber string) (*model.Property, error)

	// Update replaces the stored property with the same id.
	Update(ctx context.Context, p *model.Property) error

	// Delete removes a property by id.
	Delete(ctx context.Context, id string) error

	// List returns a page of properties, newest first, and the total count.
	List(ctx context.Context, offset, limit int) ([]model.Property, int64, error)

	// MaxSequence returns the highest serial sequence issued for year, or 0.
	MaxSequence(ctx context.Context, year int) (int, error)

	// GetStats returns statistics about the property store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Close closes the repository connection.
	Close() error
}

// ScanRecordRepository stores the server-side copy of scan records.
type ScanRecordRepository interface {
	// BatchInsert stores records, ignoring ids that already exist.
	BatchInsert(ctx context.Context, records []model.ScanRecord) error

	// List returns a page of records, newest first, and the total count.
	List(ctx context.Context, offset, limit int) ([]model.ScanRecord, int64, error)

	// DeleteOlderThan removes records with a timestamp before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
