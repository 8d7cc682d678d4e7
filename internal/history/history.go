// Package history keeps the capped, newest-first log of scan attempts.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"propscan-api/internal/kv"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/pkg/uid"

	"github.com/rs/zerolog"
)

const (
	// StorageKey is the kv key holding the serialized log.
	StorageKey = "scan_history"

	// DefaultMaxRecords caps the log length.
	DefaultMaxRecords = 100
)

// Sink receives every record after it has been written to the local log.
type Sink interface {
	Record(ctx context.Context, rec model.ScanRecord) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec model.ScanRecord) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, rec model.ScanRecord) error {
	return f(ctx, rec)
}

// Store is the scan history log. Every mutation is a read-modify-write of
// the whole log; mu serialises writers within this process only.
type Store struct {
	kv         kv.Store
	maxRecords int
	sinks      []Sink
	mu         sync.Mutex
	log        zerolog.Logger
}

// NewStore creates a history log over the given kv store.
func NewStore(store kv.Store, maxRecords int, sinks ...Sink) *Store {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	return &Store{
		kv:         store,
		maxRecords: maxRecords,
		sinks:      sinks,
		log:        logger.WithComponent("ScanHistory"),
	}
}

// AddSink registers an additional sink. Not safe to call concurrently with AddRecord.
func (s *Store) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// MaxRecords returns the log capacity.
func (s *Store) MaxRecords() int {
	return s.maxRecords
}

// AddRecord assigns a fresh id to rec, prepends it and evicts the oldest
// records beyond the cap. The stored record is returned.
func (s *Store) AddRecord(ctx context.Context, rec model.ScanRecord) (model.ScanRecord, error) {
	rec.ID = uid.NewOrdered()

	s.mu.Lock()
	records := s.load(ctx)
	records = append([]model.ScanRecord{rec}, records...)
	if len(records) > s.maxRecords {
		records = records[:s.maxRecords]
	}
	err := s.save(ctx, records)
	s.mu.Unlock()

	if err != nil {
		return rec, err
	}

	for _, sink := range s.sinks {
		if err := sink.Record(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("record_id", rec.ID).Msg("sink rejected scan record")
		}
	}
	return rec, nil
}

// Records returns the log newest-first. Missing or corrupt data yields an
// empty log.
func (s *Store) Records(ctx context.Context) []model.ScanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Statistics aggregates the current log.
func (s *Store) Statistics(ctx context.Context) model.ScanStatistics {
	return Summarize(s.Records(ctx))
}

// Clear removes the whole log.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Remove(ctx, StorageKey)
}

// Export returns the log as indented JSON.
func (s *Store) Export(ctx context.Context) (string, error) {
	data, err := json.MarshalIndent(s.Records(ctx), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to export history: %w", err)
	}
	return string(data), nil
}

func (s *Store) load(ctx context.Context) []model.ScanRecord {
	raw, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.log.Warn().Err(err).Msg("failed to read history, treating as empty")
		}
		return []model.ScanRecord{}
	}

	var records []model.ScanRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.log.Warn().Err(err).Msg("corrupt history, treating as empty")
		return []model.ScanRecord{}
	}
	if records == nil {
		records = []model.ScanRecord{}
	}
	return records
}

func (s *Store) save(ctx context.Context, records []model.ScanRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}
