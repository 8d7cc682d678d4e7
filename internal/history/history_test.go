package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"propscan-api/internal/kv"
	"propscan-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(serial string, success bool, typ model.ScanType, platform string, duration int64) model.ScanRecord {
	return model.ScanRecord{
		Timestamp:    time.Now().UnixMilli(),
		Type:         typ,
		SerialNumber: serial,
		Success:      success,
		Duration:     duration,
		DeviceInfo:   model.DeviceInfo{Platform: platform},
	}
}

func TestAddRecordAssignsIDAndPrepends(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryStore(), 0)

	first, err := store.AddRecord(ctx, record("PROP-2024-000001", true, model.ScanTypeQR, "iOS", 10))
	require.NoError(t, err)
	second, err := store.AddRecord(ctx, record("PROP-2024-000002", true, model.ScanTypeQR, "iOS", 10))
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	records := store.Records(ctx)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID, "newest first")
	assert.Equal(t, first.ID, records[1].ID)
}

func TestAddRecordEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryStore(), 100)

	var firstID string
	for i := 0; i < 101; i++ {
		rec, err := store.AddRecord(ctx, record(fmt.Sprintf("PROP-2024-%06d", i), true, model.ScanTypeNFC, "Android", 1))
		require.NoError(t, err)
		if i == 0 {
			firstID = rec.ID
		}
	}

	records := store.Records(ctx)
	require.Len(t, records, 100)
	assert.Equal(t, "PROP-2024-000100", records[0].SerialNumber)
	assert.Equal(t, "PROP-2024-000001", records[99].SerialNumber)

	ids := make(map[string]struct{})
	for _, r := range records {
		assert.NotEqual(t, firstID, r.ID, "oldest record must be evicted")
		ids[r.ID] = struct{}{}
	}
	assert.Len(t, ids, 100, "ids must be unique")
}

func TestRecordsTreatsCorruptDataAsEmpty(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, StorageKey, "{not json"))

	store := NewStore(mem, 10)
	assert.Empty(t, store.Records(ctx))

	_, err := store.AddRecord(ctx, record("PROP-2024-000001", true, model.ScanTypeQR, "iOS", 1))
	require.NoError(t, err)
	assert.Len(t, store.Records(ctx), 1)
}

func TestStatisticsOnEmptyLog(t *testing.T) {
	stats := NewStore(kv.NewMemoryStore(), 10).Statistics(context.Background())

	assert.Equal(t, 0, stats.Total)
	assert.Equal(t, 0.0, stats.SuccessRate)
	assert.Equal(t, 0.0, stats.AverageDuration)
	assert.NotNil(t, stats.ByPlatform)
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryStore(), 10)

	_, _ = store.AddRecord(ctx, record("PROP-2024-000001", true, model.ScanTypeQR, "iOS", 100))
	_, _ = store.AddRecord(ctx, record("", false, model.ScanTypeNFC, "Android", 300))
	_, _ = store.AddRecord(ctx, record("PROP-2024-000002", true, model.ScanTypeNFC, "Android", 200))
	_, _ = store.AddRecord(ctx, record("PROP-2024-000003", true, model.ScanTypeQR, "unknown", 400))

	stats := store.Statistics(ctx)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Successful)
	assert.InDelta(t, 75.0, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 250.0, stats.AverageDuration, 1e-9)
	assert.Equal(t, model.TypeCounts{NFC: 2, QR: 2}, stats.ByType)
	assert.Equal(t, map[string]int{"iOS": 1, "Android": 2, "unknown": 1}, stats.ByPlatform)
}

func TestClearAndExport(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kv.NewMemoryStore(), 10)
	_, _ = store.AddRecord(ctx, record("PROP-2024-000001", true, model.ScanTypeQR, "iOS", 1))

	out, err := store.Export(ctx)
	require.NoError(t, err)

	var decoded []model.ScanRecord
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "PROP-2024-000001", decoded[0].SerialNumber)

	require.NoError(t, store.Clear(ctx))
	assert.Empty(t, store.Records(ctx))

	out, err = store.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestSinksReceiveRecordsAfterPersist(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()

	var seen []model.ScanRecord
	var store *Store
	sink := SinkFunc(func(ctx context.Context, rec model.ScanRecord) error {
		// The record must already be visible in the local log.
		raw, err := mem.Get(ctx, StorageKey)
		require.NoError(t, err)
		assert.Contains(t, raw, rec.ID)
		seen = append(seen, rec)
		return nil
	})
	failing := SinkFunc(func(ctx context.Context, rec model.ScanRecord) error {
		return errors.New("offline")
	})
	store = NewStore(mem, 10, sink, failing)

	rec, err := store.AddRecord(ctx, record("PROP-2024-000001", true, model.ScanTypeQR, "iOS", 1))
	require.NoError(t, err, "sink errors must not fail the local write")
	require.Len(t, seen, 1)
	assert.Equal(t, rec.ID, seen[0].ID)
}

func TestTrends(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	records := []model.ScanRecord{
		{ID: "a", Timestamp: now.Add(-10 * time.Minute).UnixMilli(), Type: model.ScanTypeQR, Success: true, Duration: 100},
		{ID: "b", Timestamp: now.Add(-3 * time.Hour).UnixMilli(), Type: model.ScanTypeNFC, Success: false, Duration: 300},
		{ID: "c", Timestamp: now.Add(-3 * 24 * time.Hour).UnixMilli(), Type: model.ScanTypeNFC, Success: true, Duration: 500},
		{ID: "d", Timestamp: now.Add(-30 * 24 * time.Hour).UnixMilli(), Type: model.ScanTypeQR, Success: true, Duration: 900},
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, StorageKey, string(data)))

	trends := NewStore(mem, 10).Trends(ctx, now)

	require.NotNil(t, trends.Hourly)
	assert.Equal(t, 1, trends.Hourly.TotalScans)
	assert.Equal(t, 100.0, trends.Hourly.SuccessRate)

	require.NotNil(t, trends.Daily)
	assert.Equal(t, 2, trends.Daily.TotalScans)
	assert.Equal(t, 50.0, trends.Daily.ErrorRate)
	assert.Equal(t, 200.0, trends.Daily.AverageDuration)

	require.NotNil(t, trends.Weekly)
	assert.Equal(t, 3, trends.Weekly.TotalScans)
	assert.Equal(t, model.TypeCounts{NFC: 2, QR: 1}, trends.Weekly.TypeDistribution)

	empty := NewStore(kv.NewMemoryStore(), 10).Trends(ctx, now)
	assert.Nil(t, empty.Hourly)
	assert.Nil(t, empty.Weekly)
}
