package repository

import (
	"fmt"

	"propscan-api/internal/config"
)

// Stores bundles the repositories backed by one database.
type Stores struct {
	Properties  PropertyRepository
	ScanRecords ScanRecordRepository
}

// Close closes the shared connection.
func (s *Stores) Close() error {
	return s.Properties.Close()
}

// Open connects to the backend selected by PROPERTY_DB_TYPE.
func Open(cfg config.PropertyDBConfig) (*Stores, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		repo, err := NewPostgresPropertyRepository(cfg.PostgresDSN())
		if err != nil {
			return nil, err
		}
		return &Stores{Properties: repo, ScanRecords: repo.ScanRecords()}, nil
	case "mysql":
		repo, err := NewMySQLPropertyRepository(cfg.MySQLDSN())
		if err != nil {
			return nil, err
		}
		return &Stores{Properties: repo, ScanRecords: repo.ScanRecords()}, nil
	case "mongodb", "mongo":
		repo, err := NewMongoDBPropertyRepository(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return &Stores{Properties: repo, ScanRecords: repo.ScanRecords()}, nil
	case "sqlite", "":
		repo, err := NewSQLitePropertyRepository(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &Stores{Properties: repo, ScanRecords: repo.ScanRecords()}, nil
	default:
		return nil, fmt.Errorf("unsupported property database type %q", cfg.Type)
	}
}
