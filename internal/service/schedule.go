package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// SchedulePropose handles schedule.propose. Proposed windows are not
// persisted on the ticket; the customer-facing options live in the
// audit trail until one is confirmed.
func (s *Service) SchedulePropose(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	options, _ := req.Envelope.Payload["options"].([]any)
	return &pipeline.Outcome{
		Response: map[string]any{
			"ticket":  NewTicketView(req.Ticket),
			"options": options,
		},
		AuditPayload: map[string]any{
			"proposed_option_count": len(options),
		},
	}, nil
}

// ScheduleConfirm handles schedule.confirm: pins the visit window on
// the ticket and enqueues the confirmation SMS in the same
// transaction. The outbox idempotency key is derived from the
// transition, so a retried confirm never enqueues a second message.
func (s *Service) ScheduleConfirm(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	start := payloadTimePtr(payload, "start")
	end := payloadTimePtr(payload, "end")
	if start == nil || end == nil {
		return nil, util.NewValidationError(
			"SCHEMA_VIOLATION",
			"start and end must be RFC 3339 timestamps",
			nil,
		)
	}
	if !end.After(*start) {
		return nil, util.NewValidationError(
			"SCHEMA_VIOLATION",
			"scheduled window must end after it starts",
			map[string]any{"start": start.Format(time.RFC3339), "end": end.Format(time.RFC3339)},
		)
	}

	ticket := req.Ticket
	ticket.ScheduledStart = start
	ticket.ScheduledEnd = end

	recipient := ""
	if ticket.ContactPhone != nil {
		recipient = *ticket.ContactPhone
	}
	outbox := &domain.OutboxEvent{
		AggregateType: "ticket",
		AggregateID:   ticket.ID,
		EventType:     "schedule.confirm.sms",
		Payload: map[string]any{
			"to": recipient,
			"body": fmt.Sprintf(
				"Your service visit is confirmed for %s to %s.",
				start.Format(time.RFC3339), end.Format(time.RFC3339),
			),
			"ticket_id": ticket.ID,
		},
	}

	return &pipeline.Outcome{
		Ticket:      ticket,
		TicketDirty: true,
		Response:    NewTicketView(ticket),
		Outbox:      outbox,
		AuditPayload: map[string]any{
			"scheduled_start": start.Format(time.RFC3339),
			"scheduled_end":   end.Format(time.RFC3339),
		},
	}, nil
}

// ScheduleHold handles schedule.hold: parks a proposed schedule while
// customer confirmation is outstanding.
func (s *Service) ScheduleHold(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	ticket.HoldReason = payloadStringPtr(req.Envelope.Payload, "hold_reason")

	audit := map[string]any{}
	if ticket.HoldReason != nil {
		audit["hold_reason"] = *ticket.HoldReason
	}
	if window := payloadObject(req.Envelope.Payload, "confirmation_window"); window != nil {
		audit["confirmation_window"] = window
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// ScheduleRelease handles schedule.release: the customer confirmed,
// the hold lifts and the ticket returns to SCHEDULED.
func (s *Service) ScheduleRelease(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	ticket.HoldReason = nil
	return &pipeline.Outcome{
		Ticket:      ticket,
		TicketDirty: true,
		Response:    NewTicketView(ticket),
		AuditPayload: map[string]any{
			"customer_confirmation_id": payloadString(req.Envelope.Payload, "customer_confirmation_id"),
		},
	}, nil
}

// ScheduleRollback handles schedule.rollback: a confirmation turned
// out to be stale or wrong, so the window and hold are discarded and
// the ticket goes back to the scheduling queue.
func (s *Service) ScheduleRollback(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	ticket.ScheduledStart = nil
	ticket.ScheduledEnd = nil
	ticket.HoldReason = nil

	audit := map[string]any{
		"confirmation_id": payloadString(req.Envelope.Payload, "confirmation_id"),
	}
	if reason := payloadStringPtr(req.Envelope.Payload, "reason"); reason != nil {
		audit["reason"] = *reason
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}
