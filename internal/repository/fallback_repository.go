package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/models"
	appErrors "github.com/arvichandar/facemark-api/pkg/errors"
)

const (
	fallbackSnapshotKey = "facemark:attendance:snapshot"
	fallbackPendingKey  = "facemark:attendance:pending"
)

// FallbackRepository is the Redis-backed local store the ledger degrades to
// when Postgres is unreachable. It holds a snapshot of known records for
// degraded reads and a pending list of writes awaiting reconciliation. It
// is never authoritative; reconciliation replaces its contents wholesale.
type FallbackRepository struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewFallbackRepository constructs the repository.
func NewFallbackRepository(client *redis.Client, logger *zap.Logger, ttl time.Duration) *FallbackRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &FallbackRepository{client: client, logger: logger, ttl: ttl}
}

// SaveSnapshot replaces the degraded-read snapshot.
func (r *FallbackRepository) SaveSnapshot(ctx context.Context, records []models.AttendanceRecord) error {
	if r.client == nil {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal attendance snapshot: %w", err)
	}
	if err := r.client.Set(ctx, fallbackSnapshotKey, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last stored snapshot.
func (r *FallbackRepository) LoadSnapshot(ctx context.Context) ([]models.AttendanceRecord, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	raw, err := r.client.Get(ctx, fallbackSnapshotKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	var records []models.AttendanceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("unmarshal attendance snapshot: %w", err)
	}
	return records, nil
}

// EnqueuePending appends a record written while the primary store was down.
func (r *FallbackRepository) EnqueuePending(ctx context.Context, record models.AttendanceRecord) error {
	if r.client == nil {
		return appErrors.ErrBackendUnreachable
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal pending record: %w", err)
	}
	if err := r.client.RPush(ctx, fallbackPendingKey, payload).Err(); err != nil {
		return fmt.Errorf("redis push pending: %w", err)
	}
	if err := r.client.Expire(ctx, fallbackPendingKey, r.ttl).Err(); err != nil {
		r.logger.Warn("failed to refresh pending queue ttl", zap.Error(err))
	}
	return nil
}

// PendingRecords returns the queued writes without consuming them.
func (r *FallbackRepository) PendingRecords(ctx context.Context) ([]models.AttendanceRecord, error) {
	if r.client == nil {
		return nil, nil
	}
	raw, err := r.client.LRange(ctx, fallbackPendingKey, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis range pending: %w", err)
	}
	records := make([]models.AttendanceRecord, 0, len(raw))
	for _, item := range raw {
		var record models.AttendanceRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			r.logger.Warn("skipping malformed pending record", zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// ClearPending drops the pending queue after a successful reconciliation.
func (r *FallbackRepository) ClearPending(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, fallbackPendingKey).Err(); err != nil {
		return fmt.Errorf("redis clear pending: %w", err)
	}
	return nil
}

// PendingCount reports the number of queued writes.
func (r *FallbackRepository) PendingCount(ctx context.Context) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	count, err := r.client.LLen(ctx, fallbackPendingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis count pending: %w", err)
	}
	return count, nil
}
