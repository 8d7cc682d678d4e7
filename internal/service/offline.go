package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"propscan-api/internal/kv"
	"propscan-api/internal/logger"
	"propscan-api/internal/model"
	"propscan-api/pkg/apierror"
	"propscan-api/pkg/uid"
)

const (
	// OfflineKey is the storage key of the offline queue.
	OfflineKey = "offline_data"

	// MaxOfflineItems caps the queue; the oldest item is dropped on overflow.
	MaxOfflineItems = 100
)

// PropertyWriter is the subset of PropertyService the offline queue replays into.
type PropertyWriter interface {
	Create(ctx context.Context, form model.PropertyForm) (*model.Property, error)
	Update(ctx context.Context, id string, upd model.PropertyUpdate) (*model.Property, error)
	Delete(ctx context.Context, id string) error
}

// SyncResult reports one replay of the offline queue.
type SyncResult struct {
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Pending int      `json:"pending"`
	Errors  []string `json:"errors,omitempty"`
}

// OfflineQueue holds property mutations captured while the store was
// unreachable and replays them on Sync.
type OfflineQueue struct {
	store  kv.Store
	writer PropertyWriter
	now    func() time.Time
	log    zerolog.Logger

	mu sync.Mutex
}

// NewOfflineQueue creates a queue persisted in store.
func NewOfflineQueue(store kv.Store, writer PropertyWriter) *OfflineQueue {
	return &OfflineQueue{
		store:  store,
		writer: writer,
		now:    time.Now,
		log:    logger.WithComponent("OfflineQueue"),
	}
}

// Enqueue appends an operation. Update and delete need a target id.
func (q *OfflineQueue) Enqueue(ctx context.Context, opType, targetID string, data json.RawMessage) (model.OfflineOperation, error) {
	switch opType {
	case model.OfflineCreate:
		if len(data) == 0 {
			return model.OfflineOperation{}, apierror.ValidationError("Create requires data",
				apierror.FieldError{Field: "data", Message: "is required"})
		}
	case model.OfflineUpdate, model.OfflineDelete:
		if targetID == "" {
			return model.OfflineOperation{}, apierror.ValidationError("Missing target",
				apierror.FieldError{Field: "target_id", Message: "is required"})
		}
	default:
		return model.OfflineOperation{}, apierror.ValidationError("Unknown operation",
			apierror.FieldError{Field: "type", Message: "must be create, update or delete"})
	}

	op := model.OfflineOperation{
		ID:        uid.NewOrdered(),
		Timestamp: q.now().UnixMilli(),
		Type:      opType,
		TargetID:  targetID,
		Data:      data,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.load(ctx)
	if len(items) >= MaxOfflineItems {
		items = items[len(items)-MaxOfflineItems+1:]
	}
	items = append(items, op)

	if err := q.save(ctx, items); err != nil {
		return model.OfflineOperation{}, err
	}
	return op, nil
}

// Items returns the queued operations, oldest first.
func (q *OfflineQueue) Items(ctx context.Context) []model.OfflineOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Pending returns the number of unsynced operations.
func (q *OfflineQueue) Pending(ctx context.Context) int {
	n := 0
	for _, op := range q.Items(ctx) {
		if !op.Synced {
			n++
		}
	}
	return n
}

// Sync replays unsynced operations in order. Operations that fail stay
// queued for the next sync; synced ones are removed.
func (q *OfflineQueue) Sync(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	done := make(map[string]bool)

	for _, op := range q.Items(ctx) {
		if op.Synced {
			done[op.ID] = true
			continue
		}
		if err := q.replay(ctx, op); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", op.ID, err))
			q.log.Warn().Err(err).Str("id", op.ID).Str("type", op.Type).Msg("Failed to sync offline operation")
			continue
		}
		done[op.ID] = true
		result.Synced++
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Items enqueued during the replay are kept.
	remaining := make([]model.OfflineOperation, 0)
	for _, op := range q.load(ctx) {
		if !done[op.ID] {
			remaining = append(remaining, op)
		}
	}
	if err := q.save(ctx, remaining); err != nil {
		return result, err
	}
	result.Pending = len(remaining)

	if result.Synced > 0 || result.Failed > 0 {
		q.log.Info().Int("synced", result.Synced).Int("failed", result.Failed).Msg("Offline queue synced")
	}
	return result, nil
}

func (q *OfflineQueue) replay(ctx context.Context, op model.OfflineOperation) error {
	switch op.Type {
	case model.OfflineCreate:
		var form model.PropertyForm
		if err := json.Unmarshal(op.Data, &form); err != nil {
			return fmt.Errorf("decode create: %w", err)
		}
		_, err := q.writer.Create(ctx, form)
		return err
	case model.OfflineUpdate:
		var upd model.PropertyUpdate
		if len(op.Data) > 0 {
			if err := json.Unmarshal(op.Data, &upd); err != nil {
				return fmt.Errorf("decode update: %w", err)
			}
		}
		_, err := q.writer.Update(ctx, op.TargetID, upd)
		return err
	case model.OfflineDelete:
		return q.writer.Delete(ctx, op.TargetID)
	}
	return fmt.Errorf("unknown operation %q", op.Type)
}

// load returns the stored queue; a missing or unreadable value is empty.
func (q *OfflineQueue) load(ctx context.Context) []model.OfflineOperation {
	raw, err := q.store.Get(ctx, OfflineKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			q.log.Warn().Err(err).Msg("Failed to read offline queue")
		}
		return []model.OfflineOperation{}
	}

	var items []model.OfflineOperation
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		q.log.Warn().Err(err).Msg("Discarding unreadable offline queue")
		return []model.OfflineOperation{}
	}
	return items
}

func (q *OfflineQueue) save(ctx context.Context, items []model.OfflineOperation) error {
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := q.store.Set(ctx, OfflineKey, string(data)); err != nil {
		return fmt.Errorf("save offline queue: %w", err)
	}
	return nil
}
