package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"propscan-api/internal/logger"
	"propscan-api/internal/model"
)

// Buffer configuration
const (
	MaxBatchSize       = 50
	FlushTimeout       = 60 * time.Second
	StaleDataThreshold = 24 * time.Hour
	CleanupInterval    = 5 * time.Minute
)

// FlushFunc persists a batch of buffered scan records.
type FlushFunc func(ctx context.Context, records []model.ScanRecord) error

// removeScript drops a record from the hash and the pending set atomically.
var removeScript = redis.NewScript(`
	redis.call("HDEL", KEYS[1], ARGV[1])
	redis.call("SREM", KEYS[2], ARGV[1])
	return 1
`)

// RedisScanBuffer is a write-behind buffer that queues scan records in
// Redis and flushes them to the scan record store in batches. It is a
// history sink, so every locally recorded scan reaches the server copy.
type RedisScanBuffer struct {
	client    *redis.Client
	flushFunc FlushFunc
	keyPrefix string
	now       func() time.Time
	log       zerolog.Logger

	flushInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once
	done          sync.WaitGroup
}

// NewRedisScanBuffer creates a buffer. Call Start to run the background
// flush and cleanup loops.
func NewRedisScanBuffer(client *redis.Client, keyPrefix string, flushInterval time.Duration, flushFunc FlushFunc) *RedisScanBuffer {
	if keyPrefix == "" {
		keyPrefix = "propscan:scan_records"
	}
	return &RedisScanBuffer{
		client:        client,
		flushFunc:     flushFunc,
		keyPrefix:     keyPrefix,
		now:           time.Now,
		log:           logger.WithComponent("RedisScanBuffer"),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
	}
}

func (b *RedisScanBuffer) bufferKey() string {
	return b.keyPrefix + ":buffer"
}

func (b *RedisScanBuffer) pendingKey() string {
	return b.keyPrefix + ":pending"
}

// Record queues a scan record.
func (b *RedisScanBuffer) Record(ctx context.Context, rec model.ScanRecord) error {
	data, err := json.Marshal(model.BufferedScanRecord{Record: rec, QueuedAt: b.now()})
	if err != nil {
		return err
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.bufferKey(), rec.ID, data)
	pipe.SAdd(ctx, b.pendingKey(), rec.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Count returns the number of pending records.
func (b *RedisScanBuffer) Count(ctx context.Context) (int64, error) {
	return b.client.SCard(ctx, b.pendingKey()).Result()
}

// FlushBatch writes up to MaxBatchSize records and removes them from Redis.
func (b *RedisScanBuffer) FlushBatch(ctx context.Context) (int, error) {
	ids, err := b.client.SRandMemberN(ctx, b.pendingKey(), MaxBatchSize).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	records := make([]model.ScanRecord, 0, len(ids))
	flushed := make([]string, 0, len(ids))
	for _, id := range ids {
		buffered, err := b.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			b.client.SRem(ctx, b.pendingKey(), id)
			continue
		}
		if err != nil {
			b.log.Warn().Err(err).Str("id", id).Msg("Dropping unreadable buffered record")
			b.remove(ctx, id)
			continue
		}
		records = append(records, buffered.Record)
		flushed = append(flushed, id)
	}

	if len(records) == 0 {
		return 0, nil
	}

	if err := b.flushFunc(ctx, records); err != nil {
		b.log.Error().Err(err).Int("batch", len(records)).Msg("Flush failed")
		return 0, err
	}

	for _, id := range flushed {
		b.remove(ctx, id)
	}

	b.log.Debug().Int("flushed", len(records)).Msg("Flushed scan records")
	return len(records), nil
}

// Flush drains the buffer.
func (b *RedisScanBuffer) Flush(ctx context.Context) error {
	for {
		n, err := b.FlushBatch(ctx)
		if err != nil || n == 0 {
			return err
		}
	}
}

// CleanupStale drops records that have waited longer than StaleDataThreshold.
func (b *RedisScanBuffer) CleanupStale(ctx context.Context) (int, error) {
	ids, err := b.client.SMembers(ctx, b.pendingKey()).Result()
	if err != nil {
		return 0, err
	}

	threshold := b.now().Add(-StaleDataThreshold)
	stale := 0
	for _, id := range ids {
		buffered, err := b.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			b.client.SRem(ctx, b.pendingKey(), id)
			continue
		}
		if err != nil || buffered.QueuedAt.Before(threshold) {
			b.remove(ctx, id)
			stale++
		}
	}

	if stale > 0 {
		b.log.Warn().Int("count", stale).Msg("Dropped stale buffered scan records")
	}
	return stale, nil
}

func (b *RedisScanBuffer) load(ctx context.Context, id string) (*model.BufferedScanRecord, error) {
	data, err := b.client.HGet(ctx, b.bufferKey(), id).Bytes()
	if err != nil {
		return nil, err
	}
	var buffered model.BufferedScanRecord
	if err := json.Unmarshal(data, &buffered); err != nil {
		return nil, err
	}
	return &buffered, nil
}

func (b *RedisScanBuffer) remove(ctx context.Context, id string) {
	if err := removeScript.Run(ctx, b.client, []string{b.bufferKey(), b.pendingKey()}, id).Err(); err != nil {
		b.log.Warn().Err(err).Str("id", id).Msg("Failed to clear buffered record")
	}
}

// Start runs the background flush and cleanup loops until Close.
func (b *RedisScanBuffer) Start() {
	b.done.Add(2)
	go b.backgroundFlush()
	go b.backgroundCleanup()
	b.log.Info().Str("prefix", b.keyPrefix).Dur("flush", b.flushInterval).Int("batch", MaxBatchSize).Msg("Started")
}

func (b *RedisScanBuffer) backgroundFlush() {
	defer b.done.Done()

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			if _, err := b.FlushBatch(ctx); err != nil {
				b.log.Error().Err(err).Msg("Background flush error")
			}
			cancel()
		case <-b.stop:
			b.log.Info().Msg("Shutdown: flushing remaining records")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			if err := b.Flush(ctx); err != nil {
				b.log.Error().Err(err).Msg("Shutdown flush error")
			}
			cancel()
			return
		}
	}
}

func (b *RedisScanBuffer) backgroundCleanup() {
	defer b.done.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := b.CleanupStale(ctx); err != nil {
				b.log.Warn().Err(err).Msg("Cleanup error")
			}
			cancel()
		case <-b.stop:
			return
		}
	}
}

// Close stops the loops after a final flush. The client is owned by the caller.
func (b *RedisScanBuffer) Close() error {
	b.stopOnce.Do(func() {
		close(b.stop)
	})
	b.done.Wait()
	return nil
}
