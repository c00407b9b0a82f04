package service

import (
	"context"

	"github.com/spec-kit/dispatch-service/internal/pipeline"
)

// TechCheckIn handles tech.check_in: the technician arrives on site
// and work begins.
func (s *Service) TechCheckIn(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	audit := map[string]any{
		"check_in_at": payloadString(req.Envelope.Payload, "timestamp"),
	}
	if location := payloadObject(req.Envelope.Payload, "location"); location != nil {
		audit["location"] = location
	}
	return &pipeline.Outcome{
		Ticket:       req.Ticket,
		Response:     NewTicketView(req.Ticket),
		AuditPayload: audit,
	}, nil
}

// TechRequestChange handles tech.request_change: scope or budget
// changed mid-job and the ticket parks in APPROVAL_REQUIRED until an
// approver decides.
func (s *Service) TechRequestChange(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	audit := map[string]any{
		"approval_type": payloadString(payload, "approval_type"),
		"reason":        payloadString(payload, "reason"),
	}
	if delta := payloadInt64Ptr(payload, "amount_delta_cents"); delta != nil {
		audit["amount_delta_cents"] = *delta
	}
	return &pipeline.Outcome{
		Ticket:       req.Ticket,
		Response:     NewTicketView(req.Ticket),
		AuditPayload: audit,
	}, nil
}

// ApprovalDecide handles approval.decide. Both outcomes return the
// ticket to IN_PROGRESS; the decision itself lives in the audit
// trail, and a denial leaves the technician to finish within the
// original scope.
func (s *Service) ApprovalDecide(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	audit := map[string]any{
		"approval_id": payloadString(payload, "approval_id"),
		"decision":    payloadString(payload, "decision"),
	}
	if notes := payloadStringPtr(payload, "notes"); notes != nil {
		audit["notes"] = *notes
	}
	return &pipeline.Outcome{
		Ticket:       req.Ticket,
		Response:     NewTicketView(req.Ticket),
		AuditPayload: audit,
	}, nil
}
