package service

import (
	"context"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/internal/pipeline"
	"github.com/spec-kit/dispatch-service/pkg/canonicaljson"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// CreateTicket handles ticket.create. Manually created tickets carry
// no intake signature; only blind intake participates in dedupe.
func (s *Service) CreateTicket(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		AccountID:   payloadString(payload, "account_id"),
		SiteID:      payloadString(payload, "site_id"),
		AssetID:     payloadStringPtr(payload, "asset_id"),
		Summary:     payloadString(payload, "summary"),
		Description: payloadStringPtr(payload, "description"),
		State:       req.Decision.To,
		Version:     1,
		Priority:    domain.TicketPriorityRoutine,
		NTECents:    payloadInt64Ptr(payload, "nte_cents"),
		CreatedAt:   req.Now,
		UpdatedAt:   req.Now,
	}
	if err := tx.InsertTicket(ctx, ticket); err != nil {
		return nil, util.NewInternalError(err)
	}
	return &pipeline.Outcome{
		Ticket:     ticket,
		Response:   NewTicketView(ticket),
		StatusCode: http.StatusCreated,
	}, nil
}

// BlindIntake handles ticket.blind_intake: an unauthenticated-channel
// intake that dedupes on a normalized identity signature and lands
// triaged in one step.
func (s *Service) BlindIntake(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload

	signature, err := intakeSignature(payload)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	duplicate, err := tx.FindTicketBySignature(ctx, signature)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	if duplicate != nil {
		return nil, util.NewConflict(
			"DUPLICATE_INTAKE",
			"an open ticket already exists for this intake identity",
			map[string]any{"duplicate_ticket_id": duplicate.ID},
		)
	}

	incidentType := strings.ToUpper(payloadString(payload, "incident_type"))
	priority := domain.TicketPriority(payloadString(payload, "priority"))
	state := domain.TicketStateTriaged
	ticket := &domain.Ticket{
		ID:                       uuid.NewString(),
		AccountID:                payloadString(payload, "account_id"),
		SiteID:                   payloadString(payload, "site_id"),
		CustomerName:             payloadStringPtr(payload, "customer_name"),
		ContactPhone:             payloadStringPtr(payload, "contact_phone"),
		ContactEmail:             payloadStringPtr(payload, "contact_email"),
		Summary:                  payloadString(payload, "summary"),
		Description:              payloadStringPtr(payload, "description"),
		State:                    state,
		Version:                  1,
		Priority:                 priority,
		IncidentType:             &incidentType,
		NTECents:                 payloadInt64Ptr(payload, "nte_cents"),
		IdentitySignature:        &signature,
		IdentityConfidence:       payloadFloatPtr(payload, "identity_confidence"),
		ClassificationConfidence: payloadFloatPtr(payload, "classification_confidence"),
		SOPHandoffAcknowledged:   payloadBoolPtr(payload, "sop_handoff_acknowledged"),
		CreatedAt:                req.Now,
		UpdatedAt:                req.Now,
	}
	if err := tx.InsertTicket(ctx, ticket); err != nil {
		return nil, util.NewInternalError(err)
	}
	return &pipeline.Outcome{
		Ticket:     ticket,
		State:      &state,
		Response:   NewTicketView(ticket),
		StatusCode: http.StatusCreated,
		AuditPayload: map[string]any{
			"identity_signature": signature,
		},
	}, nil
}

// Triage handles ticket.triage: classification plus the workflow
// outcome decision. Advancing a blind-intake ticket to
// READY_TO_SCHEDULE is gated on the stored confidence scores and the
// SOP handoff acknowledgement.
func (s *Service) Triage(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	ticket := req.Ticket

	ticket.Priority = domain.TicketPriority(payloadString(payload, "priority"))
	incidentType := strings.ToUpper(payloadString(payload, "incident_type"))
	ticket.IncidentType = &incidentType
	if nte := payloadInt64Ptr(payload, "nte_cents"); nte != nil {
		ticket.NTECents = nte
	}
	if ack := payloadBoolPtr(payload, "sop_handoff_acknowledged"); ack != nil {
		ticket.SOPHandoffAcknowledged = ack
	}

	outcomeState := req.Decision.To
	workflowOutcome := payloadString(payload, "workflow_outcome")
	if workflowOutcome == "" && payloadBool(payload, "ready_to_schedule") {
		workflowOutcome = "READY_TO_SCHEDULE"
	}
	if workflowOutcome == "" && payloadBool(payload, "requires_approval") {
		workflowOutcome = "APPROVAL_REQUIRED"
	}

	switch workflowOutcome {
	case "READY_TO_SCHEDULE":
		if err := s.checkIntakeConfidence(ticket); err != nil {
			return nil, err
		}
		outcomeState = domain.TicketStateReadyToSchedule
	case "APPROVAL_REQUIRED":
		outcomeState = domain.TicketStateApprovalRequired
	}

	return &pipeline.Outcome{
		Ticket:      ticket,
		State:       &outcomeState,
		TicketDirty: true,
		Response:    NewTicketView(ticket),
		AuditPayload: map[string]any{
			"workflow_outcome": string(outcomeState),
		},
	}, nil
}

// checkIntakeConfidence enforces the intake confidence policy on
// signed (blind-intake) tickets. Manually created tickets carry no
// signature and skip the gate.
func (s *Service) checkIntakeConfidence(ticket *domain.Ticket) error {
	if ticket.IdentitySignature == nil {
		return nil
	}
	if ticket.IdentityConfidence == nil || *ticket.IdentityConfidence < s.intake.MinIdentityConfidence {
		return util.NewConflict(
			"LOW_IDENTITY_CONFIDENCE",
			"intake identity confidence is below the scheduling threshold",
			map[string]any{
				"threshold":  s.intake.MinIdentityConfidence,
				"confidence": floatOrNil(ticket.IdentityConfidence),
			},
		)
	}
	if ticket.ClassificationConfidence == nil || *ticket.ClassificationConfidence < s.intake.MinClassificationConfidence {
		return util.NewConflict(
			"LOW_CLASSIFICATION_CONFIDENCE",
			"intake classification confidence is below the scheduling threshold",
			map[string]any{
				"threshold":  s.intake.MinClassificationConfidence,
				"confidence": floatOrNil(ticket.ClassificationConfidence),
			},
		)
	}
	if ticket.SOPHandoffAcknowledged == nil || !*ticket.SOPHandoffAcknowledged {
		return util.NewConflict(
			"SOP_HANDOFF_REQUIRED",
			"standard operating procedure handoff must be acknowledged before scheduling",
			nil,
		)
	}
	return nil
}

func floatOrNil(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

// intakeSignature computes the normalized dedupe identity for a blind
// intake: trimmed, case-folded strings and digit-only phone numbers,
// fingerprinted canonically.
func intakeSignature(payload map[string]any) (string, error) {
	identity := map[string]any{
		"account_id":    normalizeIntakeText(payloadString(payload, "account_id")),
		"site_id":       normalizeIntakeText(payloadString(payload, "site_id")),
		"customer_name": normalizeIntakeText(payloadString(payload, "customer_name")),
		"incident_type": normalizeIntakeText(payloadString(payload, "incident_type")),
		"contact_phone": normalizePhone(payloadString(payload, "contact_phone")),
		"contact_email": normalizeIntakeText(payloadString(payload, "contact_email")),
	}
	return canonicaljson.Hash(identity)
}

func normalizeIntakeText(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

func normalizePhone(value string) string {
	var digits strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	return digits.String()
}
