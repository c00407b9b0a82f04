package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spec-kit/dispatch-service/internal/pipeline"
)

// AssignmentDispatch handles assignment.dispatch. The technician
// directory lives outside this service; tech_id is taken at face
// value. Emergency bypass legality was already settled by the
// pipeline.
func (s *Service) AssignmentDispatch(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	ticket.AssignedTechID = payloadStringPtr(req.Envelope.Payload, "tech_id")

	audit := map[string]any{}
	if ticket.AssignedTechID != nil {
		audit["tech_id"] = *ticket.AssignedTechID
	}
	if req.Decision.BypassMode != "" {
		audit["dispatch_mode"] = req.Decision.BypassMode
		if rationale := payloadStringPtr(req.Envelope.Payload, "dispatch_rationale"); rationale != nil {
			audit["dispatch_rationale"] = *rationale
		}
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// AssignmentRecommend handles assignment.recommend. Without a
// technician directory the ranking is a deterministic snapshot keyed
// on ticket and service type, stable across retries so callers can
// cache and diff it.
func (s *Service) AssignmentRecommend(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	payload := req.Envelope.Payload
	serviceType := payloadString(payload, "service_type")

	limit := 3
	if raw := payloadInt64Ptr(payload, "recommendation_limit"); raw != nil {
		limit = int(*raw)
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 20 {
		limit = 20
	}

	seed := sha256.Sum256([]byte(req.Ticket.ID + "|" + serviceType))
	seedHex := hex.EncodeToString(seed[:])
	recommendations := make([]map[string]any, 0, limit)
	for i := 0; i < limit; i++ {
		recommendations = append(recommendations, map[string]any{
			"tech_id":      fmt.Sprintf("tech-%s-%d", seedHex[:8], i+1),
			"rank":         i + 1,
			"service_type": serviceType,
			"source":       "stub",
		})
	}

	return &pipeline.Outcome{
		Response: map[string]any{
			"ticket_id":       req.Ticket.ID,
			"service_type":    serviceType,
			"recommendations": recommendations,
		},
		AuditPayload: map[string]any{
			"service_type":         serviceType,
			"recommendation_count": limit,
		},
	}, nil
}

// ForceHold handles dispatch.force_hold: an operator override that
// pulls an in-flight ticket onto hold.
func (s *Service) ForceHold(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	ticket.HoldReason = payloadStringPtr(req.Envelope.Payload, "hold_reason")

	audit := map[string]any{"override": true}
	if ticket.HoldReason != nil {
		audit["hold_reason"] = *ticket.HoldReason
	}
	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// ForceUnassign handles dispatch.force_unassign: strips the assigned
// technician and returns the ticket to SCHEDULED for re-dispatch.
func (s *Service) ForceUnassign(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket

	audit := map[string]any{"override": true}
	if ticket.AssignedTechID != nil {
		audit["unassigned_tech_id"] = *ticket.AssignedTechID
	}
	if reason := payloadStringPtr(req.Envelope.Payload, "reason"); reason != nil {
		audit["reason"] = *reason
	}
	ticket.AssignedTechID = nil
	ticket.HoldReason = nil

	return &pipeline.Outcome{
		Ticket:       ticket,
		TicketDirty:  true,
		Response:     NewTicketView(ticket),
		AuditPayload: audit,
	}, nil
}

// ManualBypass handles dispatch.manual_bypass: records an operator
// decision to move a stuck ticket to COMPLETED_PENDING_VERIFICATION
// without the technician completion flow. Closeout requirements are
// still evaluated at verification and close.
func (s *Service) ManualBypass(ctx context.Context, tx pipeline.MutationTx, req *pipeline.Request) (*pipeline.Outcome, error) {
	ticket := req.Ticket
	return &pipeline.Outcome{
		Ticket:      ticket,
		TicketDirty: true,
		Response:    NewTicketView(ticket),
		AuditPayload: map[string]any{
			"bypass_rationale": payloadString(req.Envelope.Payload, "bypass_rationale"),
		},
	}, nil
}
