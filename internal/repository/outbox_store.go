package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// OutboxStore is the worker's view of the outbox queue. Claim and
// result updates for one batch happen inside a single transaction;
// FOR UPDATE SKIP LOCKED lets N workers run in parallel with at most
// one claimant per row.
type OutboxStore struct {
	pool *pgxpool.Pool
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{pool: pool}
}

// OutboxTx is the per-batch transactional surface.
type OutboxTx interface {
	// ClaimDue locks up to limit PENDING rows whose next attempt is
	// due, oldest first, skipping rows claimed by concurrent
	// workers.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, eventID string, providerMetadata map[string]any, now time.Time) error
	Reschedule(ctx context.Context, eventID string, attemptCount int, nextAttemptAt time.Time, lastError string) error
	DeadLetter(ctx context.Context, eventID string, attemptCount int, lastError string) error
	InsertAudit(ctx context.Context, event *domain.AuditEvent) error
}

func (s *OutboxStore) InTx(ctx context.Context, fn func(ctx context.Context, tx OutboxTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &outboxTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Replay resets a dead-lettered row to PENDING with a zeroed attempt
// count and a cleared error. The idempotency key is untouched so the
// channel provider can still deduplicate. Returns false when the row
// is not in DEAD_LETTER.
func (s *OutboxStore) Replay(ctx context.Context, eventID string, now time.Time) (bool, error) {
	const query = `
        UPDATE outbox_events
        SET status = 'PENDING', attempt_count = 0, next_attempt_at = $2, last_error = NULL, updated_at = $2
        WHERE id = $1 AND status = 'DEAD_LETTER'`
	cmd, err := s.pool.Exec(ctx, query, eventID, now)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// ListDeadLetters returns the rows waiting on operator intervention.
func (s *OutboxStore) ListDeadLetters(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	const query = `
        SELECT id, aggregate_type, aggregate_id, event_type, payload, idempotency_key,
               status, attempt_count, next_attempt_at, last_error, created_at, updated_at
        FROM outbox_events
        WHERE status = 'DEAD_LETTER'
        ORDER BY created_at
        LIMIT $1`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOutboxEvents(rows)
}

type outboxTx struct {
	tx pgx.Tx
}

func (t *outboxTx) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	const query = `
        SELECT id, aggregate_type, aggregate_id, event_type, payload, idempotency_key,
               status, attempt_count, next_attempt_at, last_error, created_at, updated_at
        FROM outbox_events
        WHERE status = 'PENDING' AND next_attempt_at <= $1
        ORDER BY created_at
        LIMIT $2
        FOR UPDATE SKIP LOCKED`
	rows, err := t.tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOutboxEvents(rows)
}

func (t *outboxTx) MarkSent(ctx context.Context, eventID string, providerMetadata map[string]any, now time.Time) error {
	metadata, err := json.Marshal(providerMetadata)
	if err != nil {
		return fmt.Errorf("encode provider metadata: %w", err)
	}
	const query = `
        UPDATE outbox_events
        SET status = 'SENT', provider_metadata = $2, last_error = NULL, updated_at = $3
        WHERE id = $1`
	_, err = t.tx.Exec(ctx, query, eventID, metadata, now)
	return err
}

func (t *outboxTx) Reschedule(ctx context.Context, eventID string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	const query = `
        UPDATE outbox_events
        SET attempt_count = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
        WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, eventID, attemptCount, nextAttemptAt, lastError)
	return err
}

func (t *outboxTx) DeadLetter(ctx context.Context, eventID string, attemptCount int, lastError string) error {
	const query = `
        UPDATE outbox_events
        SET status = 'DEAD_LETTER', attempt_count = $2, last_error = $3, updated_at = NOW()
        WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, eventID, attemptCount, lastError)
	return err
}

func (t *outboxTx) InsertAudit(ctx context.Context, event *domain.AuditEvent) error {
	return (&mutationTx{tx: t.tx}).InsertAudit(ctx, event)
}

func collectOutboxEvents(rows pgx.Rows) ([]domain.OutboxEvent, error) {
	events := make([]domain.OutboxEvent, 0)
	for rows.Next() {
		var event domain.OutboxEvent
		var payload []byte
		err := rows.Scan(
			&event.ID, &event.AggregateType, &event.AggregateID, &event.EventType,
			&payload, &event.IdempotencyKey, &event.Status, &event.AttemptCount,
			&event.NextAttemptAt, &event.LastError, &event.CreatedAt, &event.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &event.Payload); err != nil {
				return nil, fmt.Errorf("decode outbox payload: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
