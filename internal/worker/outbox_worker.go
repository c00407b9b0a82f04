// Package worker runs the transactional outbox delivery loop,
// decoupled from request latency.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/comms"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

const workerActorID = "dispatch-outbox-worker"
const workerToolName = "dispatch.outbox_worker"

// OutboxStore is the persistence surface the worker needs. Claim and
// result updates for one batch share a transaction.
type OutboxStore interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx repository.OutboxTx) error) error
}

// IterationSummary reports what one worker pass did.
type IterationSummary struct {
	Processed    int
	Sent         int
	Failed       int
	DeadLettered int
}

// OutboxWorker drains PENDING outbox rows through the channel
// adapter with capped exponential backoff and a dead-letter ceiling.
type OutboxWorker struct {
	store   OutboxStore
	adapter comms.Adapter
	cfg     config.OutboxConfig
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewOutboxWorker(store OutboxStore, adapter comms.Adapter, cfg config.OutboxConfig, logger *zap.Logger, metrics *observability.Metrics) *OutboxWorker {
	return &OutboxWorker{
		store:   store,
		adapter: adapter,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run polls until the context is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunIteration(ctx); err != nil {
			w.logger.Error("outbox iteration failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunIteration claims one batch of due rows and processes each:
// success marks the row SENT (terminal, never reprocessed); failure
// reschedules with backoff or dead-letters at the attempt ceiling.
// The whole batch commits atomically with its claim.
func (w *OutboxWorker) RunIteration(ctx context.Context) (IterationSummary, error) {
	var summary IterationSummary
	err := w.store.InTx(ctx, func(ctx context.Context, tx repository.OutboxTx) error {
		now := w.now()
		rows, err := tx.ClaimDue(ctx, now, w.cfg.BatchLimit)
		if err != nil {
			return err
		}
		for i := range rows {
			row := &rows[i]
			summary.Processed++
			sent, err := w.processRow(ctx, tx, row)
			if err != nil {
				// The transaction is aborted after a failed statement;
				// stop here so the claim rolls back whole instead of
				// burning through rows whose updates can only fail.
				return err
			}
			if sent {
				summary.Sent++
			} else {
				summary.Failed++
				if row.Status == domain.OutboxStatusDeadLetter {
					summary.DeadLettered++
				}
			}
		}
		return nil
	})
	if err != nil {
		return IterationSummary{}, err
	}
	w.metrics.RecordOutbox(summary.Processed, summary.Sent, summary.Failed, summary.DeadLettered)
	return summary, nil
}

// processRow delivers one claimed row. A send failure is a business
// outcome (reschedule or dead-letter); a failed storage statement is
// returned as an error because it aborts the shared transaction.
func (w *OutboxWorker) processRow(ctx context.Context, tx repository.OutboxTx, row *domain.OutboxEvent) (bool, error) {
	to, _ := row.Payload["to"].(string)
	body, _ := row.Payload["body"].(string)
	result, sendErr := w.adapter.Send(ctx, comms.Message{
		To:         to,
		Body:       body,
		MessageKey: row.IdempotencyKey,
	})
	now := w.now()

	if sendErr == nil {
		metadata := map[string]any{
			"provider":            result.Provider,
			"provider_message_id": result.ProviderMessageID,
			"provider_status":     result.Status,
			"last_send_at":        now.UTC().Format(time.RFC3339Nano),
		}
		if err := tx.MarkSent(ctx, row.ID, metadata, now); err != nil {
			return false, fmt.Errorf("mark outbox row %s sent: %w", row.ID, err)
		}
		row.Status = domain.OutboxStatusSent
		if err := w.audit(ctx, tx, row, string(domain.OutboxStatusSent), map[string]any{"provider_result": metadata}); err != nil {
			return false, err
		}
		return true, nil
	}

	attempts := row.AttemptCount + 1
	row.AttemptCount = attempts
	if attempts < w.cfg.MaxAttempts {
		nextAt := now.Add(w.backoff(attempts))
		if err := tx.Reschedule(ctx, row.ID, attempts, nextAt, sendErr.Error()); err != nil {
			return false, fmt.Errorf("reschedule outbox row %s: %w", row.ID, err)
		}
		row.Status = domain.OutboxStatusPending
		if err := w.audit(ctx, tx, row, string(domain.OutboxStatusPending), map[string]any{"error": sendErr.Error()}); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := tx.DeadLetter(ctx, row.ID, attempts, sendErr.Error()); err != nil {
		return false, fmt.Errorf("dead-letter outbox row %s: %w", row.ID, err)
	}
	row.Status = domain.OutboxStatusDeadLetter
	if err := w.audit(ctx, tx, row, string(domain.OutboxStatusDeadLetter), map[string]any{"error": sendErr.Error()}); err != nil {
		return false, err
	}
	w.logger.Warn("outbox row dead-lettered",
		zap.String("outbox_id", row.ID),
		zap.String("event_type", row.EventType),
		zap.Int("attempt_count", attempts),
	)
	return false, nil
}

// backoff is base * 2^(attempts-1), capped.
func (w *OutboxWorker) backoff(attempts int) time.Duration {
	delay := w.cfg.BaseRetry
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= w.cfg.MaxRetry {
			return w.cfg.MaxRetry
		}
	}
	if delay > w.cfg.MaxRetry {
		return w.cfg.MaxRetry
	}
	return delay
}

func (w *OutboxWorker) audit(ctx context.Context, tx repository.OutboxTx, row *domain.OutboxEvent, status string, extra map[string]any) error {
	payload := map[string]any{
		"outbox_id":      row.ID,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID,
		"event_type":     row.EventType,
		"attempt_count":  row.AttemptCount,
		"status":         status,
		"worker":         workerActorID,
	}
	for key, value := range extra {
		payload[key] = value
	}

	event := &domain.AuditEvent{
		ID:        uuid.NewString(),
		ActorType: domain.ActorTypeSystem,
		ActorID:   workerActorID,
		ActorRole: "SYSTEM",
		ToolName:  workerToolName,
		RequestID: uuid.NewString(),
		Payload:   payload,
		CreatedAt: w.now(),
	}
	if row.AggregateType == "ticket" {
		ticketID := row.AggregateID
		event.TicketID = &ticketID
	}
	if err := tx.InsertAudit(ctx, event); err != nil {
		return fmt.Errorf("write outbox audit for row %s: %w", row.ID, err)
	}
	return nil
}
