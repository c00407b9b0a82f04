package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/comms"
	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/repository"
)

type fakeOutboxTx struct {
	rows   []domain.OutboxEvent
	audits []domain.AuditEvent

	sent         map[string]map[string]any
	rescheduled  map[string]time.Time
	attempts     map[string]int
	deadLettered map[string]string

	markSentErr error
}

func newFakeOutboxTx(rows ...domain.OutboxEvent) *fakeOutboxTx {
	return &fakeOutboxTx{
		rows:         rows,
		sent:         make(map[string]map[string]any),
		rescheduled:  make(map[string]time.Time),
		attempts:     make(map[string]int),
		deadLettered: make(map[string]string),
	}
}

func (t *fakeOutboxTx) ClaimDue(_ context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	due := make([]domain.OutboxEvent, 0, len(t.rows))
	for _, row := range t.rows {
		if row.Status == domain.OutboxStatusPending && !row.NextAttemptAt.After(now) && len(due) < limit {
			due = append(due, row)
		}
	}
	return due, nil
}

func (t *fakeOutboxTx) MarkSent(_ context.Context, eventID string, providerMetadata map[string]any, _ time.Time) error {
	if t.markSentErr != nil {
		return t.markSentErr
	}
	t.sent[eventID] = providerMetadata
	t.setStatus(eventID, domain.OutboxStatusSent)
	return nil
}

func (t *fakeOutboxTx) Reschedule(_ context.Context, eventID string, attemptCount int, nextAttemptAt time.Time, _ string) error {
	t.rescheduled[eventID] = nextAttemptAt
	t.attempts[eventID] = attemptCount
	for i := range t.rows {
		if t.rows[i].ID == eventID {
			t.rows[i].AttemptCount = attemptCount
			t.rows[i].NextAttemptAt = nextAttemptAt
		}
	}
	return nil
}

func (t *fakeOutboxTx) DeadLetter(_ context.Context, eventID string, attemptCount int, lastError string) error {
	t.deadLettered[eventID] = lastError
	t.attempts[eventID] = attemptCount
	t.setStatus(eventID, domain.OutboxStatusDeadLetter)
	return nil
}

func (t *fakeOutboxTx) InsertAudit(_ context.Context, event *domain.AuditEvent) error {
	t.audits = append(t.audits, *event)
	return nil
}

func (t *fakeOutboxTx) setStatus(eventID string, status domain.OutboxStatus) {
	for i := range t.rows {
		if t.rows[i].ID == eventID {
			t.rows[i].Status = status
		}
	}
}

type fakeOutboxStore struct {
	tx *fakeOutboxTx
}

func (s *fakeOutboxStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.OutboxTx) error) error {
	return fn(ctx, s.tx)
}

// failingAdapter fails the first failures sends, then succeeds.
type failingAdapter struct {
	failures int
	calls    int
}

func (a *failingAdapter) Send(_ context.Context, message comms.Message) (comms.SendResult, error) {
	a.calls++
	if a.calls <= a.failures {
		return comms.SendResult{}, errors.New("provider unavailable")
	}
	return comms.SendResult{
		ProviderMessageID: comms.DeterministicMessageID(message.MessageKey, message.To, message.Body),
		Provider:          "test",
		Status:            "accepted",
	}, nil
}

func testWorkerConfig() config.OutboxConfig {
	return config.OutboxConfig{
		PollInterval: time.Second,
		BatchLimit:   10,
		MaxAttempts:  3,
		BaseRetry:    2 * time.Second,
		MaxRetry:     30 * time.Second,
		SendTimeout:  time.Second,
	}
}

func newTestWorker(store *fakeOutboxStore, adapter comms.Adapter, at time.Time) *OutboxWorker {
	w := NewOutboxWorker(store, adapter, testWorkerConfig(), zap.NewNop(), observability.NewMetrics())
	w.now = func() time.Time { return at }
	return w
}

func outboxRow(id string, at time.Time) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:             id,
		AggregateType:  "ticket",
		AggregateID:    "t-1",
		EventType:      "schedule.confirm.sms",
		Payload:        map[string]any{"to": "+15550100", "body": "Your service visit is confirmed."},
		IdempotencyKey: "t-1:schedule.confirm.sms:tr-1",
		Status:         domain.OutboxStatusPending,
		NextAttemptAt:  at,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func TestIterationMarksRowSent(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tx := newFakeOutboxTx(outboxRow("ob-1", now))
	store := &fakeOutboxStore{tx: tx}
	worker := newTestWorker(store, &failingAdapter{}, now)

	summary, err := worker.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, IterationSummary{Processed: 1, Sent: 1}, summary)

	metadata, ok := tx.sent["ob-1"]
	require.True(t, ok)
	assert.Equal(t, "test", metadata["provider"])
	assert.NotEmpty(t, metadata["provider_message_id"])

	require.Len(t, tx.audits, 1)
	audit := tx.audits[0]
	assert.Equal(t, domain.ActorTypeSystem, audit.ActorType)
	assert.Equal(t, "dispatch-outbox-worker", audit.ActorID)
	assert.Equal(t, "dispatch.outbox_worker", audit.ToolName)
	assert.Equal(t, "SENT", audit.Payload["status"])
	require.NotNil(t, audit.TicketID)
	assert.Equal(t, "t-1", *audit.TicketID)
}

func TestIterationReschedulesWithBackoff(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tx := newFakeOutboxTx(outboxRow("ob-1", now))
	store := &fakeOutboxStore{tx: tx}
	worker := newTestWorker(store, &failingAdapter{failures: 1}, now)

	summary, err := worker.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, IterationSummary{Processed: 1, Failed: 1}, summary)
	assert.Equal(t, 1, tx.attempts["ob-1"])
	assert.Equal(t, now.Add(2*time.Second), tx.rescheduled["ob-1"])
	assert.Empty(t, tx.deadLettered)

	// Second pass succeeds once the row is due again.
	worker.now = func() time.Time { return now.Add(3 * time.Second) }
	summary, err = worker.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, IterationSummary{Processed: 1, Sent: 1}, summary)
	assert.Contains(t, tx.sent, "ob-1")
}

func TestIterationDeadLettersAtAttemptCeiling(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	row := outboxRow("ob-1", now)
	row.AttemptCount = 2
	tx := newFakeOutboxTx(row)
	store := &fakeOutboxStore{tx: tx}
	worker := newTestWorker(store, &failingAdapter{failures: 10}, now)

	summary, err := worker.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, IterationSummary{Processed: 1, Failed: 1, DeadLettered: 1}, summary)
	assert.Equal(t, "provider unavailable", tx.deadLettered["ob-1"])
	assert.Equal(t, 3, tx.attempts["ob-1"])

	require.Len(t, tx.audits, 1)
	assert.Equal(t, "DEAD_LETTER", tx.audits[0].Payload["status"])

	// A dead-lettered row is never claimed again.
	summary, err = worker.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestIterationStopsBatchOnStorageFailure(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tx := newFakeOutboxTx(outboxRow("ob-1", now), outboxRow("ob-2", now))
	tx.markSentErr = errors.New("connection reset")
	store := &fakeOutboxStore{tx: tx}
	adapter := &failingAdapter{}
	worker := newTestWorker(store, adapter, now)

	_, err := worker.RunIteration(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "ob-1")

	// The first failed statement aborts the transaction, so the second
	// row must not be attempted in the same pass.
	assert.Equal(t, 1, adapter.calls)
	assert.Empty(t, tx.audits)
	assert.Empty(t, tx.sent)
}

func TestIterationSkipsRowsNotYetDue(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	row := outboxRow("ob-1", now.Add(time.Minute))
	tx := newFakeOutboxTx(row)
	store := &fakeOutboxStore{tx: tx}
	worker := newTestWorker(store, &failingAdapter{}, now)

	summary, err := worker.RunIteration(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	worker := NewOutboxWorker(nil, nil, testWorkerConfig(), zap.NewNop(), nil)
	assert.Equal(t, 2*time.Second, worker.backoff(1))
	assert.Equal(t, 4*time.Second, worker.backoff(2))
	assert.Equal(t, 8*time.Second, worker.backoff(3))
	assert.Equal(t, 16*time.Second, worker.backoff(4))
	assert.Equal(t, 30*time.Second, worker.backoff(5))
	assert.Equal(t, 30*time.Second, worker.backoff(12))
}
