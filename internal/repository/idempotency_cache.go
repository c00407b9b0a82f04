package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// CachedIdempotencyReader is a redis read-through cache in front of
// the idempotency table. Postgres stays authoritative; the cache only
// short-circuits repeat replays. Cache failures degrade to the
// database silently.
type CachedIdempotencyReader struct {
	pool   *pgxpool.Pool
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedIdempotencyReader(pool *pgxpool.Pool, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedIdempotencyReader {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedIdempotencyReader{pool: pool, client: client, ttl: ttl, logger: logger}
}

type cachedRecord struct {
	ToolName    string          `json:"tool_name"`
	PayloadHash string          `json:"payload_hash"`
	Response    json.RawMessage `json:"response"`
	StatusCode  int             `json:"status_code"`
	CreatedAt   time.Time       `json:"created_at"`
}

func idempotencyCacheKey(actorID, requestKey string) string {
	return fmt.Sprintf("idem:%s:%s", actorID, requestKey)
}

func (r *CachedIdempotencyReader) GetIdempotency(ctx context.Context, actorID, requestKey string) (*domain.IdempotencyRecord, error) {
	key := idempotencyCacheKey(actorID, requestKey)
	if r.client != nil {
		raw, err := r.client.Get(ctx, key).Bytes()
		if err == nil {
			var cached cachedRecord
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &domain.IdempotencyRecord{
					ActorID:     actorID,
					RequestKey:  requestKey,
					ToolName:    cached.ToolName,
					PayloadHash: cached.PayloadHash,
					Response:    cached.Response,
					StatusCode:  cached.StatusCode,
					CreatedAt:   cached.CreatedAt,
				}, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.logger.Warn("idempotency cache read failed", zap.Error(err))
		}
	}

	record, err := r.fetch(ctx, actorID, requestKey)
	if err != nil || record == nil {
		return record, err
	}
	r.fill(ctx, key, record)
	return record, nil
}

func (r *CachedIdempotencyReader) fetch(ctx context.Context, actorID, requestKey string) (*domain.IdempotencyRecord, error) {
	const query = `
        SELECT actor_id, request_key, tool_name, payload_hash, response, status_code, created_at
        FROM idempotency_records
        WHERE actor_id = $1 AND request_key = $2`
	var record domain.IdempotencyRecord
	err := r.pool.QueryRow(ctx, query, actorID, requestKey).Scan(
		&record.ActorID, &record.RequestKey, &record.ToolName, &record.PayloadHash,
		&record.Response, &record.StatusCode, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *CachedIdempotencyReader) fill(ctx context.Context, key string, record *domain.IdempotencyRecord) {
	if r.client == nil {
		return
	}
	raw, err := json.Marshal(cachedRecord{
		ToolName:    record.ToolName,
		PayloadHash: record.PayloadHash,
		Response:    record.Response,
		StatusCode:  record.StatusCode,
		CreatedAt:   record.CreatedAt,
	})
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("idempotency cache fill failed", zap.Error(err))
	}
}
