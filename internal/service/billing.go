package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// GenerateInvoice handles billing.generate_invoice. Invoice rendering
// happens downstream; this records the billing handoff and moves the
// ticket to INVOICED.
func (s *Service) GenerateInvoice(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	audit := map[string]any{}
	if ticket.NTECents != nil {
		audit["nte_cents"] = *ticket.NTECents
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// CancelTicket handles ticket.cancel: the terminal abort path out of
// any active state.
func (s *Service) CancelTicket(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	payload := req.Envelope.Payload

	closedAt := req.Now
	ticket.ClosedAt = &closedAt

	audit := map[string]any{
		"reason": payloadString(payload, "reason"),
	}
	if code := payloadStringPtr(payload, "cancellation_code"); code != nil {
		audit["cancellation_code"] = *code
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// ForceClose handles ticket.force_close: closes a ticket stuck in
// verification without the closeout gate. The override code is
// checked against the operator secret; the evidence set still freezes
// but no closeout packet is produced, which keeps the forced path
// distinguishable in the artifact table.
func (s *Service) ForceClose(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	payload := req.Envelope.Payload

	if err := s.checkOverrideCode(payloadString(payload, "override_code")); err != nil {
		return nil, err
	}
	if err := tx.MarkEvidenceImmutable(ctx, ticket.ID); err != nil {
		return nil, util.NewInternalError(err)
	}

	closedAt := req.Now
	ticket.ClosedAt = &closedAt
	ticket.EvidenceImmutable = true

	return &pipeline.Outcome{
		Ticket:      ticket,
		TicketDirty: true,
		Response:    map[string]any{"ticket": NewTicketView(ticket)},
		AuditPayload: map[string]any{
			"override":        true,
			"override_reason": payloadString(payload, "override_reason"),
			"approver_role":   payloadString(payload, "approver_role"),
		},
	}, nil
}

// checkOverrideCode compares a supplied override code against the
// configured bcrypt digest. An unconfigured digest fails closed.
func (s *Service) checkOverrideCode(code string) error {
	if s.auth.ForceCloseCodeBcrypt == "" {
		return util.NewForbidden("OVERRIDE_CODE_REJECTED", "operator override is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.auth.ForceCloseCodeBcrypt), []byte(code)); err != nil {
		return util.NewForbidden("OVERRIDE_CODE_REJECTED", "operator override code does not match")
	}
	return nil
}
