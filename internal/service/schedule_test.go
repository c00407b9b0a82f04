package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/dispatch-service/internal/config"
	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

func schedulableTicket(state domain.TicketState) *domain.Ticket {
	ticket := inProgressTicket("DOOR_WONT_LATCH")
	ticket.State = state
	phone := "+15550100123"
	ticket.ContactPhone = &phone
	return ticket
}

func TestScheduleProposeRecordsOptionsWithoutPinningWindow(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateReadyToSchedule)

	payload := map[string]any{
		"options": []any{
			map[string]any{"start": "2026-09-01T09:00:00Z", "end": "2026-09-01T11:00:00Z"},
			map[string]any{"start": "2026-09-01T13:00:00Z", "end": "2026-09-01T15:00:00Z"},
		},
	}
	outcome, err := svc.SchedulePropose(context.Background(), newStubTx(), toolRequest(t, "schedule.propose", ticket, payload))
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.AuditPayload["proposed_option_count"])
	assert.False(t, outcome.TicketDirty)
	assert.Nil(t, ticket.ScheduledStart)
	assert.Nil(t, ticket.ScheduledEnd)
}

func TestScheduleConfirmPinsWindowAndEnqueuesSMS(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateScheduleProposed)

	payload := map[string]any{
		"start": "2026-09-01T09:00:00Z",
		"end":   "2026-09-01T11:00:00Z",
	}
	outcome, err := svc.ScheduleConfirm(context.Background(), newStubTx(), toolRequest(t, "schedule.confirm", ticket, payload))
	require.NoError(t, err)

	require.NotNil(t, outcome.Ticket.ScheduledStart)
	assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), outcome.Ticket.ScheduledStart.UTC())
	assert.Equal(t, time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC), outcome.Ticket.ScheduledEnd.UTC())
	assert.True(t, outcome.TicketDirty)

	require.NotNil(t, outcome.Outbox)
	assert.Equal(t, "ticket", outcome.Outbox.AggregateType)
	assert.Equal(t, "t-1", outcome.Outbox.AggregateID)
	assert.Equal(t, "schedule.confirm.sms", outcome.Outbox.EventType)
	assert.Equal(t, "+15550100123", outcome.Outbox.Payload["to"])
	assert.Equal(t, "t-1", outcome.Outbox.Payload["ticket_id"])
	assert.Equal(t,
		"Your service visit is confirmed for 2026-09-01T09:00:00Z to 2026-09-01T11:00:00Z.",
		outcome.Outbox.Payload["body"])
	assert.Empty(t, outcome.Outbox.IdempotencyKey, "the pipeline stamps the transition-scoped key")

	assert.Equal(t, "2026-09-01T09:00:00Z", outcome.AuditPayload["scheduled_start"])
	assert.Equal(t, "2026-09-01T11:00:00Z", outcome.AuditPayload["scheduled_end"])
}

func TestScheduleConfirmEnqueuesEvenWithoutContactPhone(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateScheduleProposed)
	ticket.ContactPhone = nil

	payload := map[string]any{"start": "2026-09-01T09:00:00Z", "end": "2026-09-01T11:00:00Z"}
	outcome, err := svc.ScheduleConfirm(context.Background(), newStubTx(), toolRequest(t, "schedule.confirm", ticket, payload))
	require.NoError(t, err)
	require.NotNil(t, outcome.Outbox)
	assert.Equal(t, "", outcome.Outbox.Payload["to"], "delivery failure is the adapter's problem, not the confirm's")
}

func TestScheduleConfirmRejectsMalformedTimestamps(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateScheduleProposed)

	for _, payload := range []map[string]any{
		{"start": "tomorrow", "end": "2026-09-01T11:00:00Z"},
		{"start": "2026-09-01T09:00:00Z"},
		{},
	} {
		_, err := svc.ScheduleConfirm(context.Background(), newStubTx(), toolRequest(t, "schedule.confirm", ticket, payload))
		require.Error(t, err)
		derr := util.ToDomainError(err)
		assert.Equal(t, "SCHEMA_VIOLATION", derr.Code)
		assert.Equal(t, http.StatusBadRequest, derr.HTTPStatus)
	}
}

func TestScheduleConfirmRejectsInvertedWindow(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateScheduleProposed)

	payload := map[string]any{"start": "2026-09-01T11:00:00Z", "end": "2026-09-01T09:00:00Z"}
	_, err := svc.ScheduleConfirm(context.Background(), newStubTx(), toolRequest(t, "schedule.confirm", ticket, payload))
	require.Error(t, err)
	derr := util.ToDomainError(err)
	assert.Equal(t, "SCHEMA_VIOLATION", derr.Code)
	assert.Equal(t, "2026-09-01T11:00:00Z", derr.Details["start"])

	zeroWidth := map[string]any{"start": "2026-09-01T09:00:00Z", "end": "2026-09-01T09:00:00Z"}
	_, err = svc.ScheduleConfirm(context.Background(), newStubTx(), toolRequest(t, "schedule.confirm", ticket, zeroWidth))
	require.Error(t, err)
}

func TestScheduleHoldParksTicketWithReason(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateScheduled)

	payload := map[string]any{
		"hold_reason":         "CUSTOMER_PENDING",
		"confirmation_window": map[string]any{"expires_at": "2026-09-02T00:00:00Z"},
	}
	outcome, err := svc.ScheduleHold(context.Background(), newStubTx(), toolRequest(t, "schedule.hold", ticket, payload))
	require.NoError(t, err)
	require.NotNil(t, outcome.Ticket.HoldReason)
	assert.Equal(t, "CUSTOMER_PENDING", *outcome.Ticket.HoldReason)
	assert.Equal(t, "CUSTOMER_PENDING", outcome.AuditPayload["hold_reason"])
	assert.NotNil(t, outcome.AuditPayload["confirmation_window"])
}

func TestScheduleReleaseClearsHold(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStatePendingCustomerConf)
	reason := "awaiting customer confirmation"
	ticket.HoldReason = &reason

	payload := map[string]any{"customer_confirmation_id": "conf-42"}
	outcome, err := svc.ScheduleRelease(context.Background(), newStubTx(), toolRequest(t, "schedule.release", ticket, payload))
	require.NoError(t, err)
	assert.Nil(t, outcome.Ticket.HoldReason)
	assert.Equal(t, "conf-42", outcome.AuditPayload["customer_confirmation_id"])
}

func TestScheduleRollbackDiscardsWindowAndHold(t *testing.T) {
	svc := newTestService(t, config.AuthConfig{})
	ticket := schedulableTicket(domain.TicketStateScheduled)
	start := testNow.Add(24 * time.Hour)
	end := start.Add(2 * time.Hour)
	reason := "stale confirmation"
	ticket.ScheduledStart = &start
	ticket.ScheduledEnd = &end
	ticket.HoldReason = &reason

	payload := map[string]any{"confirmation_id": "conf-42", "reason": "customer disputed the window"}
	outcome, err := svc.ScheduleRollback(context.Background(), newStubTx(), toolRequest(t, "schedule.rollback", ticket, payload))
	require.NoError(t, err)
	assert.Nil(t, outcome.Ticket.ScheduledStart)
	assert.Nil(t, outcome.Ticket.ScheduledEnd)
	assert.Nil(t, outcome.Ticket.HoldReason)
	assert.Equal(t, "conf-42", outcome.AuditPayload["confirmation_id"])
	assert.Equal(t, "customer disputed the window", outcome.AuditPayload["reason"])
}
